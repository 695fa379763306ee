package middlewares_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	mw "github.com/snapguard/snapguard/internal/http/middlewares"
)

type fakeLeader struct {
	leader bool
	id     string
	addr   string
}

func (f fakeLeader) IsLeader() bool     { return f.leader }
func (f fakeLeader) LeaderID() string   { return f.id }
func (f fakeLeader) LeaderAddr() string { return f.addr }

func TestRequireLeader_ReadsPassOnFollower(t *testing.T) {
	h := mw.RequireLeader(fakeLeader{leader: false, id: "n2"}, nil)(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/cluster/cleanups", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET en follower: status = %d", rec.Code)
	}
}

func TestRequireLeader_WritesOnFollowerConflict(t *testing.T) {
	h := mw.RequireLeader(fakeLeader{leader: false, id: "n2"}, nil)(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/repository/backup-1/cleanup", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("POST en follower: status = %d, esperaba 409", rec.Code)
	}
	if got := rec.Header().Get("X-Leader"); got != "n2" {
		t.Errorf("X-Leader = %q, esperaba n2", got)
	}
	if code := errBody(t, rec); code != "NOT_LEADER" {
		t.Errorf("code = %s", code)
	}
}

func TestRequireLeader_LeaderAndSingleModePass(t *testing.T) {
	// Líder real.
	h := mw.RequireLeader(fakeLeader{leader: true, id: "n1"}, nil)(okHandler)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/repository", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("POST en líder: status = %d", rec.Code)
	}

	// Modo single: sin cluster no hay guard.
	h = mw.RequireLeader(nil, nil)(okHandler)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/repository/backup-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE en modo single: status = %d", rec.Code)
	}
}

func TestRequireLeader_RedirectWhenRequested(t *testing.T) {
	redirects := map[string]string{"n2": "http://127.0.0.1:9402"}
	h := mw.RequireLeader(fakeLeader{leader: false, id: "n2"}, redirects)(okHandler)

	// Vía header.
	req := httptest.NewRequest(http.MethodPost, "/admin/repository/backup-1/cleanup?x=1", nil)
	req.Header.Set("X-Leader-Redirect", "1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, esperaba 307", rec.Code)
	}
	wantLoc := "http://127.0.0.1:9402/admin/repository/backup-1/cleanup?x=1"
	if got := rec.Header().Get("Location"); got != wantLoc {
		t.Errorf("Location = %q, esperaba %q", got, wantLoc)
	}
	if got := rec.Header().Get("X-Leader-URL"); got != "http://127.0.0.1:9402" {
		t.Errorf("X-Leader-URL = %q", got)
	}

	// Vía query param.
	req = httptest.NewRequest(http.MethodPost, "/admin/repository?leader_redirect=1", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("query param: status = %d, esperaba 307", rec.Code)
	}
}

func TestRequireLeader_NoRedirectWithoutOptIn(t *testing.T) {
	redirects := map[string]string{"n2": "http://127.0.0.1:9402"}
	h := mw.RequireLeader(fakeLeader{leader: false, id: "n2"}, redirects)(okHandler)

	// Sin opt-in explícito el follower responde conflicto, nunca redirige.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/repository", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, esperaba 409", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "" {
		t.Errorf("Location = %q, no debería haber", loc)
	}
}

func TestRequireLeader_RedirectRefusedForUnknownOrBadLeader(t *testing.T) {
	// Líder fuera del mapa de redirects.
	h := mw.RequireLeader(fakeLeader{leader: false, id: "n9"}, map[string]string{
		"n2": "http://127.0.0.1:9402",
	})(okHandler)
	req := httptest.NewRequest(http.MethodPost, "/admin/repository", nil)
	req.Header.Set("X-Leader-Redirect", "1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("líder sin URL: status = %d, esperaba 409", rec.Code)
	}

	// URL sin esquema http(s): se rehúsa el redirect.
	h = mw.RequireLeader(fakeLeader{leader: false, id: "n2"}, map[string]string{
		"n2": "ftp://127.0.0.1:9402",
	})(okHandler)
	req = httptest.NewRequest(http.MethodPost, "/admin/repository", nil)
	req.Header.Set("X-Leader-Redirect", "1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("URL no http: status = %d, esperaba 409", rec.Code)
	}
}
