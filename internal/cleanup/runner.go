package cleanup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/snapguard/snapguard/internal/domain"
	appmetrics "github.com/snapguard/snapguard/internal/metrics"
	"github.com/snapguard/snapguard/internal/observability/logger"
	"github.com/snapguard/snapguard/internal/repositories/backend"
)

const (
	defaultStaleAge    = 6 * time.Hour
	defaultConcurrency = 8
	endTimeout         = 10 * time.Second
)

// BackendResolver materializa el backend de un repositorio registrado.
// Implementado por repositories.Registry.
type BackendResolver interface {
	Backend(ctx context.Context, name string) (backend.Backend, error)
}

// FailureNotifier recibe limpiezas fallidas para alertar al operador.
// Implementado por notify.Notifier; puede ser nil.
type FailureNotifier interface {
	CleanupFailed(repository string, err error)
}

// Report resume una limpieza ejecutada.
type Report struct {
	Repository    string        `json:"repository"`
	DeletedBlobs  int           `json:"deleted_blobs"`
	FreedBytes    int64         `json:"freed_bytes"`
	OldGeneration int64         `json:"old_generation"`
	NewGeneration int64         `json:"new_generation"`
	Duration      time.Duration `json:"duration"`
}

// Runner ejecuta limpiezas completas: chequeo de generación, admisión en el
// estado replicado, barrido de blobs temporales huérfanos, avance de
// generación y retiro del registro.
type Runner struct {
	resolver    BackendResolver
	guard       *Guard
	staleAge    time.Duration
	concurrency int
	notify      FailureNotifier
	now         func() time.Time
}

// RunnerOptions agrupa dependencias y tuning del runner.
type RunnerOptions struct {
	Resolver BackendResolver
	Guard    *Guard

	// StaleAge es la edad mínima de un blob temporal para considerarlo
	// huérfano. Protege a escrituras en curso de otro proceso.
	StaleAge time.Duration

	// Concurrency acota los borrados en paralelo contra el backend.
	Concurrency int

	Notifier FailureNotifier
}

func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Resolver == nil {
		return nil, fmt.Errorf("cleanup: Resolver requerido")
	}
	if opts.Guard == nil {
		return nil, fmt.Errorf("cleanup: Guard requerido")
	}
	if opts.StaleAge <= 0 {
		opts.StaleAge = defaultStaleAge
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	return &Runner{
		resolver:    opts.Resolver,
		guard:       opts.Guard,
		staleAge:    opts.StaleAge,
		concurrency: opts.Concurrency,
		notify:      opts.Notifier,
		now:         time.Now,
	}, nil
}

// Run ejecuta una limpieza sobre repository.
//
// expectedGen es la generación que el caller espera encontrar; con un valor
// negativo el chequeo se omite. El chequeo ocurre ANTES de pedir la
// admisión: una generación vencida devuelve ErrStaleGeneration sin tocar el
// estado replicado, y el caller refresca y reintenta.
//
// Si el retiro del registro falla, éste queda vivo bloqueando operaciones
// futuras sobre el repositorio hasta un reset; el error lo dice.
func (r *Runner) Run(ctx context.Context, repository string, expectedGen int64) (Report, error) {
	started := r.now()
	lg := logger.From(ctx).With(
		logger.Component("cleanup.runner"),
		logger.Repository(repository),
	)
	rep := Report{Repository: repository}

	be, err := r.resolver.Backend(ctx, repository)
	if err != nil {
		return rep, err
	}

	current, err := be.Generation(ctx)
	if err != nil {
		return rep, fmt.Errorf("leer generación: %w", err)
	}
	rep.OldGeneration = current
	rep.NewGeneration = current

	if expectedGen >= 0 && expectedGen != current {
		appmetrics.CleanupRuns.WithLabelValues("stale").Inc()
		return rep, fmt.Errorf("%w: esperada %d, actual %d", domain.ErrStaleGeneration, expectedGen, current)
	}

	if err := r.guard.TryBegin(ctx, repository, current); err != nil {
		if domain.IsOperationInProgress(err) {
			appmetrics.CleanupRuns.WithLabelValues("blocked").Inc()
		} else {
			appmetrics.CleanupRuns.WithLabelValues("failed").Inc()
		}
		return rep, err
	}
	lg.Info("limpieza admitida", logger.Generation(current))

	workErr := r.sweep(ctx, be, &rep)
	if workErr == nil {
		if err := be.SetGeneration(ctx, current+1); err != nil {
			workErr = fmt.Errorf("avanzar generación: %w", err)
		} else {
			rep.NewGeneration = current + 1
		}
	}

	// El retiro usa contexto propio: aunque el caller se haya ido, hay que
	// intentar liberar la exclusión.
	endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), endTimeout)
	defer cancel()
	if endErr := r.guard.End(endCtx, repository); endErr != nil {
		appmetrics.CleanupRuns.WithLabelValues("failed").Inc()
		lg.Error("el registro de limpieza no se pudo retirar; queda bloqueando", logger.Err(endErr))
		err := fmt.Errorf("limpieza completada pero el registro no se pudo retirar: %w", endErr)
		if workErr != nil {
			err = fmt.Errorf("limpieza falló (%v) y el registro no se pudo retirar: %w", workErr, endErr)
		}
		if r.notify != nil {
			r.notify.CleanupFailed(repository, err)
		}
		return rep, err
	}

	rep.Duration = time.Since(started)
	appmetrics.CleanupDuration.Observe(rep.Duration.Seconds())
	if workErr != nil {
		appmetrics.CleanupRuns.WithLabelValues("failed").Inc()
		if r.notify != nil {
			r.notify.CleanupFailed(repository, workErr)
		}
		return rep, workErr
	}

	appmetrics.CleanupRuns.WithLabelValues("ok").Inc()
	lg.Info("limpieza completada",
		logger.Int("deleted_blobs", rep.DeletedBlobs),
		logger.Int64("freed_bytes", rep.FreedBytes),
		logger.Generation(rep.NewGeneration),
		logger.Duration(rep.Duration),
	)
	return rep, nil
}

// sweep borra los blobs temporales con edad suficiente. Los borrados van en
// paralelo acotado; el primer error corta el grupo pero lo ya borrado queda
// contabilizado en rep.
func (r *Runner) sweep(ctx context.Context, be backend.Backend, rep *Report) error {
	blobs, err := be.List(ctx, backend.TempPrefix)
	if err != nil {
		return fmt.Errorf("listar blobs temporales: %w", err)
	}

	cutoff := r.now().Add(-r.staleAge)
	stale := make([]backend.BlobInfo, 0, len(blobs))
	for _, b := range blobs {
		if b.ModTime.Before(cutoff) {
			stale = append(stale, b)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, b := range stale {
		g.Go(func() error {
			if err := be.Delete(gctx, b.Key); err != nil {
				return fmt.Errorf("borrar %s: %w", b.Key, err)
			}
			appmetrics.CleanupDeletedBlobs.Inc()
			mu.Lock()
			rep.DeletedBlobs++
			rep.FreedBytes += b.Size
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}
