package middlewares_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mw "github.com/snapguard/snapguard/internal/http/middlewares"
)

type stubLimiter struct {
	res   mw.RateLimitResult
	err   error
	calls int
}

func (l *stubLimiter) Allow(context.Context, string) (mw.RateLimitResult, error) {
	l.calls++
	return l.res, l.err
}

func TestWithRateLimit_NilLimiterIsNoop(t *testing.T) {
	h := mw.WithRateLimit(mw.RateLimitConfig{})(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/repository", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "" {
		t.Errorf("sin limiter no hay headers de rate: %q", got)
	}
}

func TestWithRateLimit_AllowedSetsInformativeHeaders(t *testing.T) {
	lim := &stubLimiter{res: mw.RateLimitResult{
		Allowed:   true,
		Remaining: 5,
		WindowTTL: 10 * time.Second,
	}}
	h := mw.WithRateLimit(mw.RateLimitConfig{Limiter: lim})(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/repository", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "5" {
		t.Errorf("X-RateLimit-Remaining = %q", got)
	}
	if rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("falta X-RateLimit-Reset")
	}
}

func TestWithRateLimit_DeniedAnswers429(t *testing.T) {
	lim := &stubLimiter{res: mw.RateLimitResult{
		Allowed:    false,
		RetryAfter: 30 * time.Second,
		WindowTTL:  30 * time.Second,
	}}
	h := mw.WithRateLimit(mw.RateLimitConfig{Limiter: lim})(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/repository/backup-1/verify", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, esperaba 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Errorf("Retry-After = %q, esperaba 30", got)
	}
	if code := errBody(t, rec); code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %s", code)
	}
}

func TestWithRateLimit_FailsOpenOnLimiterError(t *testing.T) {
	lim := &stubLimiter{err: errors.New("redis caído")}
	h := mw.WithRateLimit(mw.RateLimitConfig{Limiter: lim})(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/repository", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("un limiter roto no debe tumbar el API: status = %d", rec.Code)
	}
}

func TestWithRateLimit_WhitelistSkipsLimiter(t *testing.T) {
	lim := &stubLimiter{res: mw.RateLimitResult{Allowed: false}}
	h := mw.WithRateLimit(mw.RateLimitConfig{
		Limiter:   lim,
		Whitelist: []string{"/healthz"},
	})(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if lim.calls != 0 {
		t.Errorf("el limiter se consultó %d veces para un path whitelisted", lim.calls)
	}
}
