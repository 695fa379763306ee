// Package cleanup ejecuta la limpieza de blobs huérfanos de un repositorio
// bajo exclusión de cluster: a lo sumo una operación viva por repositorio,
// coordinada a través del estado replicado.
package cleanup

import (
	"context"

	"github.com/snapguard/snapguard/internal/domain"
)

// Guard publica y retira registros de operación en el estado replicado.
// Garantiza exclusión, nada más: el chequeo optimista de generación es del
// runner, antes de pedir la admisión.
type Guard struct {
	store domain.CoordinationStore
}

func NewGuard(store domain.CoordinationStore) *Guard {
	return &Guard{store: store}
}

// TryBegin intenta publicar el registro de la operación. Devuelve
// ErrOperationInProgress si ya hay una viva para el repositorio, o
// ErrNotLeader / ErrReplicationRejected si el cluster no admitió el cambio.
// En cualquiera de esos casos no quedó registro parcial.
func (g *Guard) TryBegin(ctx context.Context, repository string, stateID int64) error {
	return g.store.BeginCleanup(ctx, domain.CleanupRecord{
		Repository:        repository,
		RepositoryStateID: stateID,
	})
}

// End retira el registro. Idempotente: retirar uno ausente es éxito. Si End
// falla, el registro sigue vivo y sigue bloqueando operaciones sobre ese
// repositorio; eso es preferible a liberar una exclusión que el cluster no
// confirmó.
func (g *Guard) End(ctx context.Context, repository string) error {
	return g.store.EndCleanup(ctx, repository)
}

// Active devuelve los registros vivos.
func (g *Guard) Active(ctx context.Context) (domain.CleanupState, error) {
	return g.store.Cleanups(ctx)
}
