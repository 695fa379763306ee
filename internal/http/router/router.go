// Package router arma el árbol de rutas HTTP del servicio.
//
// Superficies:
//
//	/healthz, /readyz, /metrics   sin guard
//	/v1/admin/...                 API key de operador; escrituras solo en líder
//	/internal/...                 token de nodo (HS256 compartida)
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/snapguard/snapguard/internal/http/controllers"
	httperrors "github.com/snapguard/snapguard/internal/http/errors"
	mw "github.com/snapguard/snapguard/internal/http/middlewares"
	"github.com/snapguard/snapguard/internal/security/nodetoken"
)

// Deps agrupa todo lo que el router necesita ya construido.
type Deps struct {
	Controllers *controllers.Controllers

	// Guard de rutas admin.
	AdminGuard mw.AdminConfig

	// Verifier de tokens entre nodos; nil rechaza todas las rutas internas.
	NodeVerifier *nodetoken.Verifier

	// Liderazgo para gatear escrituras. Nil en modo single.
	Leader mw.LeaderInfo
	// LeaderURLs mapea id de nodo -> base URL para redirects 307 opcionales.
	LeaderURLs map[string]string

	// Limiters por clase de operación; nil deshabilita esa clase.
	VerifyLimiter  mw.RateLimiter
	CleanupLimiter mw.RateLimiter

	// Handler de /metrics devuelto por mw.RegisterMetrics.
	MetricsHandler http.Handler

	// DebugRequests activa el logging por request con inicio y nivel según
	// status (log.level: debug).
	DebugRequests bool
}

// New construye el router con todas las rutas y middlewares.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	// Cadena global. Recover va primero para cubrir al resto; logging al
	// final para que el request id ya esté en contexto.
	logging := mw.WithLogging()
	if d.DebugRequests {
		logging = mw.WithDebugLogging()
	}
	r.Use(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithMetrics,
		logging,
	)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	// ─── Observabilidad ───

	r.Get("/healthz", d.Controllers.Health.Healthz)
	r.Get("/readyz", d.Controllers.Health.Readyz)
	if d.MetricsHandler != nil {
		r.Handle("/metrics", d.MetricsHandler)
	}

	// ─── Admin ───

	verifyRL := mw.WithRateLimit(mw.RateLimitConfig{Limiter: d.VerifyLimiter, KeyFunc: mw.IPOnlyRateKey})
	cleanupRL := mw.WithRateLimit(mw.RateLimitConfig{Limiter: d.CleanupLimiter, KeyFunc: mw.IPOnlyRateKey})

	repos := d.Controllers.Admin.Repositories
	cluster := d.Controllers.Admin.Cluster

	r.Route("/v1/admin", func(ar chi.Router) {
		ar.Use(mw.RequireAdminKey(d.AdminGuard))
		ar.Use(mw.RequireLeader(d.Leader, d.LeaderURLs))

		ar.Route("/repositories", func(rr chi.Router) {
			rr.Get("/", repos.List)
			rr.Route("/{name}", func(nr chi.Router) {
				nr.Get("/", repos.Get)
				nr.Put("/", repos.Put)
				nr.Delete("/", repos.Delete)
				nr.Get("/verification", repos.Verification)
				nr.Get("/generation", repos.Generation)
				nr.With(verifyRL).Post("/verify", repos.Verify)
				nr.With(cleanupRL).Post("/cleanup", repos.Cleanup)
			})
		})

		ar.Route("/cluster", func(cr chi.Router) {
			cr.Get("/cleanups", cluster.Cleanups)
			cr.Post("/cleanups/reset", cluster.ResetCleanups)
			cr.Get("/status", cluster.Status)
			cr.Get("/nodes", cluster.Nodes)
		})
	})

	// ─── Interno (nodo a nodo) ───

	r.Route("/internal/admin", func(ir chi.Router) {
		ir.Use(mw.RequireNodeToken(d.NodeVerifier))
		ir.Post("/repository/verify", d.Controllers.Internal.Probe)
	})

	return r
}
