// Package health contiene el controller para health checks.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/snapguard/snapguard/internal/cache"
	"github.com/snapguard/snapguard/internal/domain"
	dto "github.com/snapguard/snapguard/internal/http/dto/health"
	"github.com/snapguard/snapguard/internal/observability/logger"
)

// HealthController maneja las rutas de health check.
type HealthController struct {
	directory domain.MembershipDirectory
	cache     cache.Client // puede ser nil
}

// NewHealthController crea un nuevo controller de health check.
func NewHealthController(directory domain.MembershipDirectory, cacheClient cache.Client) *HealthController {
	return &HealthController{directory: directory, cache: cacheClient}
}

// Healthz maneja GET /healthz: liveness puro, sin tocar dependencias.
func (c *HealthController) Healthz(w http.ResponseWriter, r *http.Request) {
	resp := dto.HealthResponse{Status: "ok"}
	if c.directory != nil {
		resp.NodeID = c.directory.Self().ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// Readyz maneja GET /readyz: el nodo está listo cuando conoce un líder y
// sus dependencias responden. Cache caído degrada pero no tumba: los
// veredictos siguen funcionando, solo se pierde la vista cacheada.
func (c *HealthController) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("HealthController.Readyz"))

	resp := dto.HealthResponse{
		Status:     "ok",
		Components: make(map[string]dto.Component),
	}
	if c.directory != nil {
		resp.NodeID = c.directory.Self().ID

		if _, err := c.directory.Leader(ctx); err != nil {
			resp.Components["cluster"] = dto.Component{Status: "unavailable", Error: err.Error()}
			resp.Status = "unavailable"
		} else {
			resp.Components["cluster"] = dto.Component{Status: "ok"}
		}
	}

	if c.cache != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := c.cache.Ping(pingCtx)
		cancel()
		if err != nil {
			resp.Components["cache"] = dto.Component{Status: "degraded", Error: err.Error()}
			if resp.Status == "ok" {
				resp.Status = "degraded"
			}
		} else {
			resp.Components["cache"] = dto.Component{Status: "ok"}
		}
	}

	statusCode := http.StatusOK
	if resp.Status == "unavailable" {
		statusCode = http.StatusServiceUnavailable
	}

	log.Debug("health check completed",
		logger.String("status", resp.Status),
		logger.Int("components_count", len(resp.Components)),
	)

	writeJSON(w, statusCode, resp)
}

func writeJSON(w http.ResponseWriter, status int, v dto.HealthResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
