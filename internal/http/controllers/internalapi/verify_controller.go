// Package internalapi contiene controllers para las rutas /internal que
// consumen los otros nodos del cluster, nunca los operadores.
package internalapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/snapguard/snapguard/internal/domain"
	dto "github.com/snapguard/snapguard/internal/http/dto/internalapi"
	httperrors "github.com/snapguard/snapguard/internal/http/errors"
	"github.com/snapguard/snapguard/internal/http/middlewares"
	"github.com/snapguard/snapguard/internal/observability/logger"
)

// Prober ejecuta el sondeo local contra un repositorio. Implementado por
// verify.Responder.
type Prober interface {
	HandleProbe(ctx context.Context, repository, token string) error
}

// VerifyController maneja POST /internal/admin/repository/verify.
type VerifyController struct {
	prober Prober
	selfID string
}

// NewVerifyController crea un nuevo controller de sondeos internos.
func NewVerifyController(prober Prober, selfID string) *VerifyController {
	return &VerifyController{prober: prober, selfID: selfID}
}

// Probe maneja POST /internal/admin/repository/verify
//
// El coordinador de la ronda manda el nombre del repositorio y el token; la
// respuesta 2xx significa que este nodo pudo escribir y releer el marcador.
// Cualquier otra respuesta cuenta como sondeo fallido para el veredicto.
func (c *VerifyController) Probe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(
		logger.Layer("controller"),
		logger.Op("VerifyController.Probe"),
	)

	var req dto.VerifyProbeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		httperrors.WriteError(w, httperrors.ErrInvalidJSON)
		return
	}
	if req.Repository == "" || req.Token == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("repository and verification_token are required"))
		return
	}

	log = log.With(logger.Repository(req.Repository))
	if caller := middlewares.GetCallerNode(ctx); caller != "" {
		log = log.With(logger.String("caller_node", caller))
	}

	if err := c.prober.HandleProbe(ctx, req.Repository, req.Token); err != nil {
		log.Warn("local probe failed", logger.Err(err))
		httperrors.WriteError(w, mapProbeError(err))
		return
	}

	writeJSON(w, http.StatusOK, dto.VerifyProbeResponse{
		Repository: req.Repository,
		Node:       c.selfID,
		Verified:   true,
	})
}

// mapProbeError preserva la distinción que el coordinador necesita: un
// repositorio no materializado viaja como REPOSITORY_NOT_FOUND y todo lo
// demás como rechazo del sondeo.
func mapProbeError(err error) *httperrors.AppError {
	if domain.IsRepositoryNotFound(err) {
		return httperrors.ErrRepositoryNotFound.WithDetail(err.Error())
	}
	return httperrors.ErrVerificationFailed.WithDetail(err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
