// Package admin contiene controllers para endpoints administrativos.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/snapguard/snapguard/internal/cleanup"
	"github.com/snapguard/snapguard/internal/domain"
	dto "github.com/snapguard/snapguard/internal/http/dto/admin"
	httperrors "github.com/snapguard/snapguard/internal/http/errors"
	"github.com/snapguard/snapguard/internal/observability/logger"
	"github.com/snapguard/snapguard/internal/repositories"
)

// RepositoryService expone las operaciones de catálogo y verificación que
// consume el controller. Implementado por repositories.Service.
type RepositoryService interface {
	Put(ctx context.Context, in repositories.PutInput) (repositories.PutResult, error)
	Get(ctx context.Context, name string) (domain.RepositoryConfig, error)
	List(ctx context.Context) ([]domain.RepositoryConfig, error)
	Delete(ctx context.Context, name string) error
	Generation(ctx context.Context, name string) (int64, error)
	Verify(ctx context.Context, name string) (domain.VerificationOutcome, error)
}

// OutcomeReader lee el último veredicto cacheado de un repositorio.
// Implementado por verify.Coordinator.
type OutcomeReader interface {
	LastOutcome(ctx context.Context, repository string) (domain.VerificationOutcome, bool, error)
}

// CleanupRunner ejecuta una limpieza completa. Implementado por cleanup.Runner.
type CleanupRunner interface {
	Run(ctx context.Context, repository string, expectedGen int64) (cleanup.Report, error)
}

// RepositoriesController maneja las rutas /v1/admin/repositories.
type RepositoriesController struct {
	service  RepositoryService
	outcomes OutcomeReader
	runner   CleanupRunner
}

// NewRepositoriesController crea un nuevo controller de repositorios.
func NewRepositoriesController(service RepositoryService, outcomes OutcomeReader, runner CleanupRunner) *RepositoriesController {
	return &RepositoriesController{service: service, outcomes: outcomes, runner: runner}
}

// List maneja GET /v1/admin/repositories
func (c *RepositoriesController) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(
		logger.Layer("controller"),
		logger.Op("RepositoriesController.List"),
	)

	configs, err := c.service.List(ctx)
	if err != nil {
		log.Error("list failed", logger.Err(err))
		httperrors.WriteError(w, mapError(err))
		return
	}

	resp := dto.ListRepositoriesResponse{
		Repositories: make([]dto.RepositoryResponse, 0, len(configs)),
		TotalCount:   len(configs),
	}
	for _, cfg := range configs {
		resp.Repositories = append(resp.Repositories, toRepositoryResponse(cfg))
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get maneja GET /v1/admin/repositories/{name}
func (c *RepositoriesController) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")
	log := logger.From(ctx).With(
		logger.Layer("controller"),
		logger.Op("RepositoriesController.Get"),
		logger.Repository(name),
	)

	cfg, err := c.service.Get(ctx, name)
	if err != nil {
		log.Warn("get failed", logger.Err(err))
		httperrors.WriteError(w, mapError(err))
		return
	}

	writeJSON(w, http.StatusOK, toRepositoryResponse(cfg))
}

// Put maneja PUT /v1/admin/repositories/{name}
//
// Registra (o actualiza) la definición y dispara la verificación salvo
// skip_verify. Con veredicto desfavorable el repositorio queda registrado
// y la respuesta es 422 con el detalle por nodo.
func (c *RepositoriesController) Put(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")
	log := logger.From(ctx).With(
		logger.Layer("controller"),
		logger.Op("RepositoriesController.Put"),
		logger.Repository(name),
	)

	var req dto.PutRepositoryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		httperrors.WriteError(w, httperrors.ErrInvalidJSON)
		return
	}

	res, err := c.service.Put(ctx, repositories.PutInput{
		Name:       name,
		Type:       domain.RepositoryType(req.Type),
		Settings:   req.Settings,
		SkipVerify: req.SkipVerify,
	})
	if err != nil {
		if errors.Is(err, domain.ErrVerificationFailed) && res.Outcome != nil {
			// Registrado pero no confiable: el cuerpo lleva el veredicto.
			log.Warn("repository registered but failed verification", logger.Err(err))
			writeJSON(w, http.StatusUnprocessableEntity, toPutResponse(res))
			return
		}
		log.Error("put failed", logger.Err(err))
		httperrors.WriteError(w, mapError(err))
		return
	}

	log.Info("repository registered")
	writeJSON(w, http.StatusOK, toPutResponse(res))
}

// Delete maneja DELETE /v1/admin/repositories/{name}
func (c *RepositoriesController) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")
	log := logger.From(ctx).With(
		logger.Layer("controller"),
		logger.Op("RepositoriesController.Delete"),
		logger.Repository(name),
	)

	if err := c.service.Delete(ctx, name); err != nil {
		log.Warn("delete failed", logger.Err(err))
		httperrors.WriteError(w, mapError(err))
		return
	}

	log.Info("repository deleted")
	writeJSON(w, http.StatusOK, dto.StatusResponse{Status: "ok"})
}

// Verify maneja POST /v1/admin/repositories/{name}/verify
//
// Dispara una ronda scatter/gather y responde el veredicto completo, tanto
// favorable como desfavorable. Solo las rondas que no pudieron ni empezar
// devuelven error.
func (c *RepositoriesController) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")
	log := logger.From(ctx).With(
		logger.Layer("controller"),
		logger.Op("RepositoriesController.Verify"),
		logger.Repository(name),
	)

	outcome, err := c.service.Verify(ctx, name)
	if err != nil {
		log.Warn("verify failed", logger.Err(err))
		httperrors.WriteError(w, mapError(err))
		return
	}

	status := http.StatusOK
	if !outcome.Success() {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, toVerificationResponse(outcome))
}

// Verification maneja GET /v1/admin/repositories/{name}/verification
//
// Devuelve el último veredicto cacheado sin disparar una ronda nueva.
func (c *RepositoriesController) Verification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")
	log := logger.From(ctx).With(
		logger.Layer("controller"),
		logger.Op("RepositoriesController.Verification"),
		logger.Repository(name),
	)

	// La definición tiene que existir aunque no haya veredicto todavía.
	if _, err := c.service.Get(ctx, name); err != nil {
		httperrors.WriteError(w, mapError(err))
		return
	}

	outcome, ok, err := c.outcomes.LastOutcome(ctx, name)
	if err != nil {
		log.Warn("cached outcome read failed", logger.Err(err))
		httperrors.WriteError(w, mapError(err))
		return
	}
	if !ok {
		httperrors.WriteError(w, httperrors.ErrNotFound.WithDetail("no verification outcome recorded"))
		return
	}

	writeJSON(w, http.StatusOK, toVerificationResponse(outcome))
}

// Generation maneja GET /v1/admin/repositories/{name}/generation
func (c *RepositoriesController) Generation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")
	log := logger.From(ctx).With(
		logger.Layer("controller"),
		logger.Op("RepositoriesController.Generation"),
		logger.Repository(name),
	)

	gen, err := c.service.Generation(ctx, name)
	if err != nil {
		log.Warn("generation read failed", logger.Err(err))
		httperrors.WriteError(w, mapError(err))
		return
	}

	writeJSON(w, http.StatusOK, dto.GenerationResponse{Repository: name, Generation: gen})
}

// Cleanup maneja POST /v1/admin/repositories/{name}/cleanup
//
// El chequeo optimista de generación ocurre antes de pedir la admisión al
// estado replicado: una generación vencida responde 409 sin tocar el
// conjunto de registros.
func (c *RepositoriesController) Cleanup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")
	log := logger.From(ctx).With(
		logger.Layer("controller"),
		logger.Op("RepositoriesController.Cleanup"),
		logger.Repository(name),
	)

	var req dto.CleanupRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
			httperrors.WriteError(w, httperrors.ErrInvalidJSON)
			return
		}
	}

	expected := int64(-1)
	if req.ExpectedGeneration != nil {
		expected = *req.ExpectedGeneration
	}

	report, err := c.runner.Run(ctx, name, expected)
	if err != nil {
		log.Warn("cleanup failed", logger.Err(err))
		httperrors.WriteError(w, mapError(err))
		return
	}

	log.Info("cleanup completed",
		logger.Int("deleted_blobs", report.DeletedBlobs),
		logger.Int64("freed_bytes", report.FreedBytes),
	)
	writeJSON(w, http.StatusOK, toCleanupResponse(report))
}

// ─── Helpers ───

func toRepositoryResponse(cfg domain.RepositoryConfig) dto.RepositoryResponse {
	return dto.RepositoryResponse{
		Name:      cfg.Name,
		Type:      string(cfg.Type),
		Settings:  cfg.Settings,
		CreatedAt: cfg.CreatedAt,
		UpdatedAt: cfg.UpdatedAt,
	}
}

func toVerificationResponse(o domain.VerificationOutcome) dto.VerificationResponse {
	resp := dto.VerificationResponse{
		Repository: o.Repository,
		Token:      o.Token,
		Success:    o.Success(),
		Nodes:      o.Nodes,
		StartedAt:  o.StartedAt,
		DurationMs: o.Duration.Milliseconds(),
	}
	if len(o.Failures) > 0 {
		resp.Failures = make(map[string]dto.ProbeErrorResponse, len(o.Failures))
		for node, pe := range o.Failures {
			resp.Failures[node] = dto.ProbeErrorResponse{Kind: string(pe.Kind), Message: pe.Message}
		}
	}
	return resp
}

func toPutResponse(res repositories.PutResult) dto.PutRepositoryResponse {
	resp := dto.PutRepositoryResponse{Repository: toRepositoryResponse(res.Config)}
	if res.Outcome != nil {
		v := toVerificationResponse(*res.Outcome)
		resp.Verification = &v
	}
	return resp
}

func toCleanupResponse(rep cleanup.Report) dto.CleanupResponse {
	return dto.CleanupResponse{
		Repository:    rep.Repository,
		DeletedBlobs:  rep.DeletedBlobs,
		FreedBytes:    rep.FreedBytes,
		OldGeneration: rep.OldGeneration,
		NewGeneration: rep.NewGeneration,
		DurationMs:    rep.Duration.Milliseconds(),
	}
}

func mapError(err error) *httperrors.AppError {
	switch {
	case domain.IsInvalidInput(err):
		return httperrors.ErrBadRequest.WithDetail(err.Error())
	case domain.IsRepositoryNotFound(err):
		return httperrors.ErrRepositoryNotFound.WithDetail(err.Error())
	case domain.IsOperationInProgress(err):
		return httperrors.ErrOperationInProgress.WithDetail(err.Error())
	case domain.IsStaleGeneration(err):
		return httperrors.ErrStaleGeneration.WithDetail(err.Error())
	case domain.IsNotLeader(err):
		return httperrors.ErrNotLeader.WithDetail(err.Error())
	case errors.Is(err, domain.ErrReplicationRejected):
		return httperrors.ErrReplicationRejected.WithDetail(err.Error())
	case errors.Is(err, domain.ErrClusterUnavailable):
		return httperrors.ErrClusterUnavailable.WithDetail(err.Error())
	case errors.Is(err, domain.ErrVerificationFailed):
		return httperrors.ErrVerificationFailed.WithDetail(err.Error())
	default:
		return httperrors.ErrInternalServerError.WithCause(err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
