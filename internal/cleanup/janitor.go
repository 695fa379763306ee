package cleanup

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/snapguard/snapguard/internal/domain"
	appmetrics "github.com/snapguard/snapguard/internal/metrics"
	"github.com/snapguard/snapguard/internal/observability/logger"
)

const resetTimeout = 15 * time.Second

// Janitor escucha transiciones de liderazgo y resetea el estado de limpieza
// al asumir. Los registros vivos pertenecían a operaciones coordinadas por la
// época anterior: su dueño ya no puede retirarlos, así que quedarían
// bloqueando sus repositorios para siempre.
type Janitor struct {
	store  domain.CoordinationStore
	events <-chan bool
}

// NewJanitor construye el janitor. events es el canal de transiciones del
// nodo (true al ganar liderazgo); el janitor debe ser su único consumidor.
func NewJanitor(store domain.CoordinationStore, events <-chan bool) *Janitor {
	return &Janitor{store: store, events: events}
}

// Run bloquea consumiendo transiciones hasta que ctx muera o el canal se
// cierre. Pensado para correr en su propia goroutine.
func (j *Janitor) Run(ctx context.Context) {
	lg := logger.Named("cleanup.janitor")
	for {
		select {
		case <-ctx.Done():
			return
		case isLeader, ok := <-j.events:
			if !ok {
				return
			}
			if !isLeader {
				continue
			}
			j.reset(ctx, lg)
		}
	}
}

func (j *Janitor) reset(ctx context.Context, lg *zap.Logger) {
	rctx, cancel := context.WithTimeout(ctx, resetTimeout)
	defer cancel()

	if err := j.store.ResetCleanups(rctx, "leadership-change"); err != nil {
		// El próximo intento de limpieza sobre un repositorio bloqueado va a
		// fallar con OperationInProgress; el operador puede resetear a mano.
		lg.Warn("reset de limpiezas al asumir liderazgo falló", logger.Err(err))
		return
	}
	appmetrics.CleanupResets.Inc()
	lg.Info("estado de limpieza reseteado al asumir liderazgo")
}
