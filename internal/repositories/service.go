package repositories

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/snapguard/snapguard/internal/domain"
	"github.com/snapguard/snapguard/internal/observability/logger"
)

const componentService = "repositories.service"

// Verifier dispara una ronda de verificación distribuida sobre un
// repositorio registrado. Implementado por verify.Coordinator.
type Verifier interface {
	Verify(ctx context.Context, repository string) (domain.VerificationOutcome, error)
}

// Los nombres viajan en paths de API y en keys de blobs, así que se
// restringen a minúsculas, dígitos y separadores seguros.
var nameRE = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,99}$`)

// Service expone el catálogo de repositorios a la capa admin: alta con
// verificación opcional, baja, consulta y acceso a la generación actual.
type Service struct {
	catalog  domain.CatalogStore
	registry *Registry
	verifier Verifier
	now      func() time.Time
}

func NewService(catalog domain.CatalogStore, registry *Registry, verifier Verifier) *Service {
	return &Service{
		catalog:  catalog,
		registry: registry,
		verifier: verifier,
		now:      time.Now,
	}
}

// PutInput es el alta o modificación de un repositorio.
type PutInput struct {
	Name     string
	Type     domain.RepositoryType
	Settings map[string]string

	// SkipVerify omite la ronda de verificación posterior al alta. El
	// default (false) replica el comportamiento esperado: registrar y
	// verificar en el mismo paso.
	SkipVerify bool
}

// PutResult es el resultado del alta. Outcome es nil cuando no se verificó.
type PutResult struct {
	Config  domain.RepositoryConfig
	Outcome *domain.VerificationOutcome
}

// Put registra o actualiza la definición y, salvo SkipVerify, dispara una
// ronda de verificación. Si el veredicto es desfavorable el repositorio
// QUEDA registrado y el error es ErrVerificationFailed: la definición es
// declarativa y la verificación es una puerta de confianza, no de
// existencia. El caller decide si borra o corrige settings y reintenta.
func (s *Service) Put(ctx context.Context, in PutInput) (PutResult, error) {
	lg := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component(componentService),
		logger.Op("put"),
		logger.Repository(in.Name),
	)

	if !nameRE.MatchString(in.Name) {
		return PutResult{}, fmt.Errorf("%w: nombre de repositorio inválido: %q", domain.ErrInvalidInput, in.Name)
	}
	if err := validateSettings(in.Type, in.Settings); err != nil {
		return PutResult{}, err
	}

	now := s.now().UTC()
	cfg := domain.RepositoryConfig{
		Name:      in.Name,
		Type:      in.Type,
		Settings:  in.Settings,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Un update conserva la fecha de alta original.
	if existing, err := s.catalog.GetRepository(ctx, in.Name); err == nil {
		cfg.CreatedAt = existing.CreatedAt
	} else if !domain.IsRepositoryNotFound(err) {
		return PutResult{}, err
	}

	if err := s.catalog.PutRepository(ctx, cfg); err != nil {
		return PutResult{}, err
	}
	// La definición pudo cambiar: el próximo acceso rematerializa el backend.
	s.registry.Forget(in.Name)

	lg.Info("repositorio registrado", logger.String("type", string(cfg.Type)))

	res := PutResult{Config: cfg}
	if in.SkipVerify || s.verifier == nil {
		return res, nil
	}

	outcome, err := s.verifier.Verify(ctx, in.Name)
	if err != nil {
		// Registrado, pero la ronda no pudo ni empezar (ej: sin membresía).
		return res, fmt.Errorf("repositorio registrado pero no verificado: %w", err)
	}
	res.Outcome = &outcome
	if !outcome.Success() {
		return res, fmt.Errorf("%w: %d de %d nodos fallaron", domain.ErrVerificationFailed,
			len(outcome.Failures), len(outcome.Failures)+len(outcome.Nodes))
	}
	return res, nil
}

// Get devuelve la definición registrada.
func (s *Service) Get(ctx context.Context, name string) (domain.RepositoryConfig, error) {
	return s.catalog.GetRepository(ctx, name)
}

// List devuelve todas las definiciones, ordenadas por nombre.
func (s *Service) List(ctx context.Context) ([]domain.RepositoryConfig, error) {
	return s.catalog.ListRepositories(ctx)
}

// Delete borra la definición. El estado replicado rechaza el borrado si hay
// una limpieza viva sobre el repositorio.
func (s *Service) Delete(ctx context.Context, name string) error {
	lg := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component(componentService),
		logger.Op("delete"),
		logger.Repository(name),
	)

	if err := s.catalog.DeleteRepository(ctx, name); err != nil {
		return err
	}
	s.registry.Forget(name)
	lg.Info("repositorio eliminado")
	return nil
}

// Generation lee el marcador de generación actual del repositorio.
func (s *Service) Generation(ctx context.Context, name string) (int64, error) {
	be, err := s.registry.Backend(ctx, name)
	if err != nil {
		return 0, err
	}
	return be.Generation(ctx)
}

// Verify dispara una ronda de verificación sobre un repositorio registrado.
func (s *Service) Verify(ctx context.Context, name string) (domain.VerificationOutcome, error) {
	// Sin definición no hay ronda: el error sale acá, no nodo por nodo.
	if _, err := s.catalog.GetRepository(ctx, name); err != nil {
		return domain.VerificationOutcome{}, err
	}
	if s.verifier == nil {
		return domain.VerificationOutcome{}, fmt.Errorf("verificación no configurada")
	}
	return s.verifier.Verify(ctx, name)
}

func validateSettings(t domain.RepositoryType, settings map[string]string) error {
	get := func(k string) string {
		if settings == nil {
			return ""
		}
		return settings[k]
	}
	switch t {
	case domain.RepositoryTypeFS:
		if get("root") == "" {
			return fmt.Errorf("%w: tipo fs: setting root requerido", domain.ErrInvalidInput)
		}
	case domain.RepositoryTypeS3:
		if get("bucket") == "" {
			return fmt.Errorf("%w: tipo s3: setting bucket requerido", domain.ErrInvalidInput)
		}
	case domain.RepositoryTypeMemory:
		// sin settings
	default:
		return fmt.Errorf("%w: tipo de repositorio %q no soportado", domain.ErrInvalidInput, t)
	}
	return nil
}
