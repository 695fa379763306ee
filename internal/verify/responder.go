package verify

import (
	"context"

	"github.com/snapguard/snapguard/internal/observability/logger"
	"github.com/snapguard/snapguard/internal/repositories/backend"
)

// BackendResolver materializa el backend de un repositorio registrado.
// Implementado por repositories.Registry.
type BackendResolver interface {
	Backend(ctx context.Context, name string) (backend.Backend, error)
}

// Responder ejecuta el sondeo local de un nodo: escribe el blob de
// verificación con el token de la ronda y lo relee. Corre en cada nodo
// elegible, incluido el coordinador (que lo invoca in-process).
type Responder struct {
	resolver BackendResolver
	self     string
}

func NewResponder(resolver BackendResolver, selfID string) *Responder {
	return &Responder{resolver: resolver, self: selfID}
}

// HandleProbe resuelve el backend y ejecuta el ciclo write/read/delete del
// blob de sondeo. Un repositorio ausente del catálogo local se devuelve tal
// cual (ErrRepositoryNotFound): el coordinador lo trata como bug de
// consistencia de configuración, no como fallo de red, y no lo reintenta.
func (r *Responder) HandleProbe(ctx context.Context, repository, token string) error {
	lg := logger.From(ctx).With(
		logger.Component("verify.responder"),
		logger.Repository(repository),
		logger.Node(r.self),
	)

	be, err := r.resolver.Backend(ctx, repository)
	if err != nil {
		lg.Warn("probe: backend no disponible", logger.Err(err))
		return err
	}
	if err := be.Verify(ctx, token, r.self); err != nil {
		lg.Warn("probe: acceso al repositorio falló", logger.Err(err))
		return err
	}
	lg.Debug("probe ok", logger.Token(token))
	return nil
}
