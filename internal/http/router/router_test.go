package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/snapguard/snapguard/internal/cache"
	"github.com/snapguard/snapguard/internal/cleanup"
	"github.com/snapguard/snapguard/internal/cluster/membership"
	"github.com/snapguard/snapguard/internal/domain"
	"github.com/snapguard/snapguard/internal/http/controllers"
	adminctl "github.com/snapguard/snapguard/internal/http/controllers/admin"
	dto "github.com/snapguard/snapguard/internal/http/dto/admin"
	dtoi "github.com/snapguard/snapguard/internal/http/dto/internalapi"
	mw "github.com/snapguard/snapguard/internal/http/middlewares"
	"github.com/snapguard/snapguard/internal/http/router"
	"github.com/snapguard/snapguard/internal/repositories"
	"github.com/snapguard/snapguard/internal/security/nodetoken"
	"github.com/snapguard/snapguard/internal/store/memstore"
	"github.com/snapguard/snapguard/internal/verify"
)

const nodeSecret = "secret-de-test-del-router"

// env levanta el stack completo en modo single: router + controllers +
// servicios reales sobre memstore, sin red entre nodos.
type env struct {
	ts     *httptest.Server
	store  *memstore.Store
	minter *nodetoken.Minter
}

func newEnv(t *testing.T, guard mw.AdminConfig) *env {
	t.Helper()

	self := domain.Node{
		ID:      "n1",
		APIAddr: "127.0.0.1:9400",
		Roles:   []domain.NodeRole{domain.RoleData, domain.RoleMaster},
	}
	dir := membership.NewDirectory(self, []domain.Node{self}, nil)

	st := memstore.New()
	reg := repositories.NewRegistry(st)
	responder := verify.NewResponder(reg, self.ID)

	outcomes, err := cache.New(cache.Config{Kind: "memory"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = outcomes.Close() })

	coord, err := verify.NewCoordinator(verify.CoordinatorOptions{
		Directory:    dir,
		Responder:    responder,
		Prober:       verify.NewHTTPProber(nil, time.Second),
		ProbeTimeout: 2 * time.Second,
		Outcomes:     outcomes,
	})
	require.NoError(t, err)

	svc := repositories.NewService(st, reg, coord)
	runner, err := cleanup.NewRunner(cleanup.RunnerOptions{
		Resolver: reg,
		Guard:    cleanup.NewGuard(st),
	})
	require.NoError(t, err)

	verifier, err := nodetoken.NewVerifier(nodeSecret)
	require.NoError(t, err)
	minter, err := nodetoken.NewMinter(nodeSecret, "n2", time.Minute)
	require.NoError(t, err)

	ctrls := controllers.New(controllers.Deps{
		Admin: adminctl.Deps{
			Service:      svc,
			Outcomes:     coord,
			Runner:       runner,
			Coordination: st,
			Directory:    dir,
			Mode:         "single",
		},
		Cache:  outcomes,
		Prober: responder,
		SelfID: self.ID,
	})

	h := router.New(router.Deps{
		Controllers:  ctrls,
		AdminGuard:   guard,
		NodeVerifier: verifier,
	})
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	return &env{ts: ts, store: st, minter: minter}
}

func (e *env) do(t *testing.T, method, path string, body any, hdr map[string]string) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func errCode(t *testing.T, body []byte) string {
	t.Helper()
	var e struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(body, &e))
	return e.Code
}

func i64(v int64) *int64 { return &v }

func TestRouter_Health(t *testing.T) {
	e := newEnv(t, mw.AdminConfig{})

	status, body := e.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"status":"ok","node_id":"n1"}`, string(body))

	status, body = e.do(t, http.MethodGet, "/readyz", nil, nil)
	require.Equal(t, http.StatusOK, status)
	var ready struct {
		Status     string                       `json:"status"`
		Components map[string]map[string]string `json:"components"`
	}
	require.NoError(t, json.Unmarshal(body, &ready))
	require.Equal(t, "ok", ready.Status)
	require.Equal(t, "ok", ready.Components["cluster"]["status"])
	require.Equal(t, "ok", ready.Components["cache"]["status"])
}

func TestRouter_RepositoryLifecycle(t *testing.T) {
	e := newEnv(t, mw.AdminConfig{})

	// Registro con verificación: en modo single el único nodo confirma.
	status, body := e.do(t, http.MethodPut, "/v1/admin/repositories/backup-1",
		dto.PutRepositoryRequest{Type: "memory"}, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	var put dto.PutRepositoryResponse
	require.NoError(t, json.Unmarshal(body, &put))
	require.Equal(t, "backup-1", put.Repository.Name)
	require.NotNil(t, put.Verification)
	require.True(t, put.Verification.Success)
	require.Equal(t, []string{"n1"}, put.Verification.Nodes)

	// Listado y lectura puntual.
	status, body = e.do(t, http.MethodGet, "/v1/admin/repositories", nil, nil)
	require.Equal(t, http.StatusOK, status)
	var list dto.ListRepositoriesResponse
	require.NoError(t, json.Unmarshal(body, &list))
	require.Equal(t, 1, list.TotalCount)

	status, body = e.do(t, http.MethodGet, "/v1/admin/repositories/backup-1", nil, nil)
	require.Equal(t, http.StatusOK, status)
	var got dto.RepositoryResponse
	require.NoError(t, json.Unmarshal(body, &got))
	require.Equal(t, "memory", got.Type)

	// Generación fresca.
	status, body = e.do(t, http.MethodGet, "/v1/admin/repositories/backup-1/generation", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"repository":"backup-1","generation":0}`, string(body))

	// El veredicto del registro quedó cacheado.
	status, body = e.do(t, http.MethodGet, "/v1/admin/repositories/backup-1/verification", nil, nil)
	require.Equal(t, http.StatusOK, status)
	var cached dto.VerificationResponse
	require.NoError(t, json.Unmarshal(body, &cached))
	require.True(t, cached.Success)
	require.Equal(t, put.Verification.Token, cached.Token)

	// Ronda explícita.
	status, body = e.do(t, http.MethodPost, "/v1/admin/repositories/backup-1/verify", nil, nil)
	require.Equal(t, http.StatusOK, status)
	var verdict dto.VerificationResponse
	require.NoError(t, json.Unmarshal(body, &verdict))
	require.True(t, verdict.Success)
	require.NotEqual(t, cached.Token, verdict.Token)

	// Limpieza con chequeo optimista.
	status, body = e.do(t, http.MethodPost, "/v1/admin/repositories/backup-1/cleanup",
		dto.CleanupRequest{ExpectedGeneration: i64(0)}, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	var rep dto.CleanupResponse
	require.NoError(t, json.Unmarshal(body, &rep))
	require.Equal(t, int64(0), rep.OldGeneration)
	require.Equal(t, int64(1), rep.NewGeneration)

	// Terminada la limpieza no quedan registros vivos.
	status, body = e.do(t, http.MethodGet, "/v1/admin/cluster/cleanups", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"repository_cleanup":[]}`, string(body))

	// Baja.
	status, body = e.do(t, http.MethodDelete, "/v1/admin/repositories/backup-1", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"status":"ok"}`, string(body))

	status, body = e.do(t, http.MethodGet, "/v1/admin/repositories/backup-1", nil, nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "REPOSITORY_NOT_FOUND", errCode(t, body))
}

func TestRouter_PutValidation(t *testing.T) {
	e := newEnv(t, mw.AdminConfig{})

	// Nombre inválido (mayúsculas).
	status, body := e.do(t, http.MethodPut, "/v1/admin/repositories/Backups",
		dto.PutRepositoryRequest{Type: "memory"}, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "BAD_REQUEST", errCode(t, body))

	// Cuerpo que no es JSON.
	req, err := http.NewRequest(http.MethodPut, e.ts.URL+"/v1/admin/repositories/backup-1",
		strings.NewReader("{no es json"))
	require.NoError(t, err)
	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "INVALID_JSON", errCode(t, raw))

	// Settings incompletos para el tipo.
	status, body = e.do(t, http.MethodPut, "/v1/admin/repositories/backup-2",
		dto.PutRepositoryRequest{Type: "fs"}, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "BAD_REQUEST", errCode(t, body))

	// Tipo desconocido.
	status, body = e.do(t, http.MethodPut, "/v1/admin/repositories/backup-3",
		dto.PutRepositoryRequest{Type: "tape"}, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "BAD_REQUEST", errCode(t, body))
}

func TestRouter_PutUnfavorableVerdict(t *testing.T) {
	e := newEnv(t, mw.AdminConfig{})

	// root apunta a un archivo: el sondeo local no puede escribir.
	root := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(root, []byte("x"), 0o600))

	status, body := e.do(t, http.MethodPut, "/v1/admin/repositories/backup-1",
		dto.PutRepositoryRequest{Type: "fs", Settings: map[string]string{"root": root}}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, status, string(body))

	var put dto.PutRepositoryResponse
	require.NoError(t, json.Unmarshal(body, &put))
	require.Equal(t, "backup-1", put.Repository.Name)
	require.NotNil(t, put.Verification)
	require.False(t, put.Verification.Success)
	require.Contains(t, put.Verification.Failures, "n1")

	// El veredicto desfavorable NO des-registra: la definición es
	// declarativa y el operador decide si corrige o borra.
	status, _ = e.do(t, http.MethodGet, "/v1/admin/repositories/backup-1", nil, nil)
	require.Equal(t, http.StatusOK, status)
}

func TestRouter_CleanupConflicts(t *testing.T) {
	e := newEnv(t, mw.AdminConfig{})
	ctx := context.Background()

	status, _ := e.do(t, http.MethodPut, "/v1/admin/repositories/backup-1",
		dto.PutRepositoryRequest{Type: "memory", SkipVerify: true}, nil)
	require.Equal(t, http.StatusOK, status)

	// Registro vivo de otra operación.
	require.NoError(t, e.store.BeginCleanup(ctx, domain.CleanupRecord{Repository: "backup-1"}))
	status, body := e.do(t, http.MethodPost, "/v1/admin/repositories/backup-1/cleanup", nil, nil)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "OPERATION_IN_PROGRESS", errCode(t, body))

	// Generación vencida.
	require.NoError(t, e.store.EndCleanup(ctx, "backup-1"))
	status, body = e.do(t, http.MethodPost, "/v1/admin/repositories/backup-1/cleanup",
		dto.CleanupRequest{ExpectedGeneration: i64(5)}, nil)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "STALE_GENERATION", errCode(t, body))
}

func TestRouter_ClusterViews(t *testing.T) {
	e := newEnv(t, mw.AdminConfig{})
	ctx := context.Background()

	require.NoError(t, e.store.BeginCleanup(ctx, domain.CleanupRecord{
		Repository:        "backup-1",
		RepositoryStateID: 7,
	}))

	// La vista expone solo el nombre; la generación es interna.
	status, body := e.do(t, http.MethodGet, "/v1/admin/cluster/cleanups", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"repository_cleanup":[{"repository":"backup-1"}]}`, string(body))

	status, body = e.do(t, http.MethodPost, "/v1/admin/cluster/cleanups/reset",
		dto.ResetCleanupsRequest{Reason: "stuck"}, nil)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"status":"ok"}`, string(body))

	status, body = e.do(t, http.MethodGet, "/v1/admin/cluster/cleanups", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"repository_cleanup":[]}`, string(body))

	status, body = e.do(t, http.MethodGet, "/v1/admin/cluster/status", nil, nil)
	require.Equal(t, http.StatusOK, status)
	var st dto.ClusterStatusResponse
	require.NoError(t, json.Unmarshal(body, &st))
	require.Equal(t, "n1", st.NodeID)
	require.Equal(t, "single", st.Mode)
	require.True(t, st.IsLeader)
	require.Equal(t, 1, st.Peers)

	status, body = e.do(t, http.MethodGet, "/v1/admin/cluster/nodes", nil, nil)
	require.Equal(t, http.StatusOK, status)
	var nodes dto.ClusterNodesResponse
	require.NoError(t, json.Unmarshal(body, &nodes))
	require.Equal(t, 1, nodes.TotalCount)
	require.True(t, nodes.Nodes[0].Eligible)
	require.Contains(t, nodes.Nodes[0].Roles, "data")
}

func TestRouter_UnknownRouteAndMethod(t *testing.T) {
	e := newEnv(t, mw.AdminConfig{})

	status, body := e.do(t, http.MethodGet, "/nope", nil, nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "ROUTE_NOT_FOUND", errCode(t, body))

	status, body = e.do(t, http.MethodPatch, "/healthz", nil, nil)
	require.Equal(t, http.StatusMethodNotAllowed, status)
	require.Equal(t, "METHOD_NOT_ALLOWED", errCode(t, body))
}

func TestRouter_AdminKeyGuard(t *testing.T) {
	e := newEnv(t, mw.AdminConfig{Enforce: true, APIKey: "clave-admin"})

	status, body := e.do(t, http.MethodGet, "/v1/admin/repositories", nil, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "TOKEN_MISSING", errCode(t, body))

	status, _ = e.do(t, http.MethodGet, "/v1/admin/repositories", nil,
		map[string]string{"X-Admin-API-Key": "clave-admin"})
	require.Equal(t, http.StatusOK, status)

	// Health queda fuera del guard.
	status, _ = e.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, status)
}

func TestRouter_InternalProbe(t *testing.T) {
	e := newEnv(t, mw.AdminConfig{})

	status, _ := e.do(t, http.MethodPut, "/v1/admin/repositories/backup-1",
		dto.PutRepositoryRequest{Type: "memory", SkipVerify: true}, nil)
	require.Equal(t, http.StatusOK, status)

	probe := dtoi.VerifyProbeRequest{Repository: "backup-1", Token: "tok-1"}

	// Sin token de nodo la ruta interna no existe para el caller.
	status, body := e.do(t, http.MethodPost, "/internal/admin/repository/verify", probe, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "TOKEN_MISSING", errCode(t, body))

	bearer, err := e.minter.Mint()
	require.NoError(t, err)
	auth := map[string]string{"Authorization": "Bearer " + bearer}

	status, body = e.do(t, http.MethodPost, "/internal/admin/repository/verify", probe, auth)
	require.Equal(t, http.StatusOK, status, string(body))
	var pr dtoi.VerifyProbeResponse
	require.NoError(t, json.Unmarshal(body, &pr))
	require.True(t, pr.Verified)
	require.Equal(t, "n1", pr.Node)

	// Repositorio que este nodo no conoce: error tipado para el coordinador.
	status, body = e.do(t, http.MethodPost, "/internal/admin/repository/verify",
		dtoi.VerifyProbeRequest{Repository: "ghost", Token: "tok-1"}, auth)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "REPOSITORY_NOT_FOUND", errCode(t, body))

	// Campos obligatorios.
	status, body = e.do(t, http.MethodPost, "/internal/admin/repository/verify",
		dtoi.VerifyProbeRequest{Repository: "backup-1"}, auth)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "MISSING_FIELDS", errCode(t, body))
}
