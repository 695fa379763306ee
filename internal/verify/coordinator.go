// Package verify implementa la verificación distribuida de repositorios:
// un coordinador reparte un token de ronda a todos los nodos elegibles,
// cada nodo sondea el repositorio escribiendo y releyendo un blob con ese
// token, y el veredicto es todo-o-nada sobre el conjunto completo.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/snapguard/snapguard/internal/cache"
	"github.com/snapguard/snapguard/internal/domain"
	appmetrics "github.com/snapguard/snapguard/internal/metrics"
	"github.com/snapguard/snapguard/internal/observability/logger"
)

const (
	defaultProbeTimeout = 10 * time.Second
	defaultOutcomeTTL   = 15 * time.Minute
)

// FailureNotifier recibe veredictos desfavorables para alertar al operador.
// Implementado por notify.Notifier; puede ser nil.
type FailureNotifier interface {
	VerificationFailed(outcome domain.VerificationOutcome)
}

// Coordinator dirige rondas de verificación contra el cluster.
type Coordinator struct {
	dir       domain.MembershipDirectory
	responder *Responder
	prober    Prober
	timeout   time.Duration // por sondeo, incluye el hop de red
	outcomes  cache.Client  // último veredicto por repositorio; puede ser nil
	ttl       time.Duration
	notify    FailureNotifier
}

// CoordinatorOptions agrupa las dependencias del coordinador.
type CoordinatorOptions struct {
	Directory    domain.MembershipDirectory
	Responder    *Responder
	Prober       Prober
	ProbeTimeout time.Duration
	Outcomes     cache.Client
	OutcomeTTL   time.Duration
	Notifier     FailureNotifier
}

func NewCoordinator(opts CoordinatorOptions) (*Coordinator, error) {
	if opts.Directory == nil {
		return nil, fmt.Errorf("verify: Directory requerido")
	}
	if opts.Responder == nil {
		return nil, fmt.Errorf("verify: Responder requerido")
	}
	if opts.Prober == nil {
		return nil, fmt.Errorf("verify: Prober requerido")
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	if opts.OutcomeTTL <= 0 {
		opts.OutcomeTTL = defaultOutcomeTTL
	}
	return &Coordinator{
		dir:       opts.Directory,
		responder: opts.Responder,
		prober:    opts.Prober,
		timeout:   opts.ProbeTimeout,
		outcomes:  opts.Outcomes,
		ttl:       opts.OutcomeTTL,
		notify:    opts.Notifier,
	}, nil
}

type probeResult struct {
	nodeID string
	err    error
}

// Verify ejecuta una ronda completa contra el repositorio.
//
// El conjunto de nodos elegibles (data o master, nunca voting-only) se
// congela al inicio de la ronda; cambios de membresía posteriores no la
// afectan. Se lanza exactamente un sondeo por nodo y se recolectan
// exactamente esas respuestas, sin cortocircuito: un fallo temprano no
// evita que el resto del conjunto se siga sondeando. El veredicto es
// favorable sólo si todos confirmaron acceso.
//
// Una ronda iniciada no se cancela: si el caller corta el contexto, los
// sondeos en vuelo siguen hasta su propio timeout y el veredicto igual se
// produce (y se cachea). El error sólo es no-nil si la ronda no pudo
// empezar; un veredicto desfavorable viaja dentro del outcome.
func (c *Coordinator) Verify(ctx context.Context, repository string) (domain.VerificationOutcome, error) {
	started := time.Now()
	token := uuid.NewString()

	lg := logger.From(ctx).With(
		logger.Component("verify.coordinator"),
		logger.Repository(repository),
		logger.Token(token),
	)

	members, err := c.dir.Current(ctx)
	if err != nil {
		return domain.VerificationOutcome{}, fmt.Errorf("%w: membresía no disponible: %v", domain.ErrClusterUnavailable, err)
	}

	eligible := make([]domain.Node, 0, len(members))
	for _, n := range members {
		if n.EligibleForVerification() {
			eligible = append(eligible, n)
		}
	}

	outcome := domain.VerificationOutcome{
		Repository: repository,
		Token:      token,
		StartedAt:  started,
	}

	if len(eligible) == 0 {
		// Cluster sin nodos data/master: no hay a quién sondear.
		outcome.Duration = time.Since(started)
		lg.Warn("ronda sin nodos elegibles")
		return outcome, nil
	}

	lg.Info("ronda de verificación iniciada", logger.Count(len(eligible)))

	// La ronda sobrevive a la cancelación del caller; cada sondeo queda
	// acotado por su propio timeout.
	base := context.WithoutCancel(ctx)
	self := c.dir.Self()

	results := make(chan probeResult, len(eligible))
	for _, n := range eligible {
		go func(n domain.Node) {
			probeCtx, cancel := context.WithTimeout(base, c.timeout)
			defer cancel()

			var err error
			if n.ID == self.ID {
				// El coordinador se sondea a sí mismo in-process.
				err = c.responder.HandleProbe(probeCtx, repository, token)
			} else {
				err = c.prober.Probe(probeCtx, n, repository, token)
			}
			results <- probeResult{nodeID: n.ID, err: err}
		}(n)
	}

	// Recolección: exactamente una respuesta por nodo lanzado, en el orden
	// en que vayan llegando.
	confirmed := make([]string, 0, len(eligible))
	failures := make(map[string]domain.ProbeError)
	for i := 0; i < len(eligible); i++ {
		r := <-results
		if r.err == nil {
			confirmed = append(confirmed, r.nodeID)
			continue
		}
		pe := classify(r.err)
		failures[r.nodeID] = pe
		appmetrics.VerificationProbeFailures.WithLabelValues(string(pe.Kind)).Inc()
	}
	sort.Strings(confirmed)

	outcome.Nodes = confirmed
	if len(failures) > 0 {
		outcome.Failures = failures
	}
	outcome.Duration = time.Since(started)

	appmetrics.VerificationRoundDuration.Observe(outcome.Duration.Seconds())
	if outcome.Success() {
		appmetrics.VerificationRounds.WithLabelValues("ok").Inc()
		lg.Info("ronda completada: todos los nodos confirmaron",
			logger.Count(len(confirmed)),
			logger.Duration(outcome.Duration),
		)
	} else {
		appmetrics.VerificationRounds.WithLabelValues("failed").Inc()
		lg.Warn("ronda completada con fallos",
			logger.Int("confirmed", len(confirmed)),
			logger.Int("failed", len(failures)),
			logger.Duration(outcome.Duration),
		)
		if c.notify != nil {
			c.notify.VerificationFailed(outcome)
		}
	}

	c.storeOutcome(base, outcome)
	return outcome, nil
}

// LastOutcome devuelve el último veredicto cacheado para el repositorio.
// El cache no es autoritativo: expira y no sobrevive necesariamente a un
// failover, así que la ausencia no es un error de verificación.
func (c *Coordinator) LastOutcome(ctx context.Context, repository string) (domain.VerificationOutcome, bool, error) {
	if c.outcomes == nil {
		return domain.VerificationOutcome{}, false, nil
	}
	raw, err := c.outcomes.Get(ctx, outcomeKey(repository))
	if cache.IsNotFound(err) {
		return domain.VerificationOutcome{}, false, nil
	}
	if err != nil {
		return domain.VerificationOutcome{}, false, err
	}
	var out domain.VerificationOutcome
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return domain.VerificationOutcome{}, false, fmt.Errorf("outcome cacheado corrupto: %w", err)
	}
	return out, true, nil
}

func (c *Coordinator) storeOutcome(ctx context.Context, out domain.VerificationOutcome) {
	if c.outcomes == nil {
		return
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.outcomes.Set(cctx, outcomeKey(out.Repository), string(raw), c.ttl); err != nil {
		logger.From(ctx).Warn("no se pudo cachear el veredicto",
			logger.Repository(out.Repository), logger.Err(err))
	}
}

func outcomeKey(repository string) string {
	return "verify:outcome:" + repository
}

// classify traduce el error crudo de un sondeo al error tipado por nodo.
func classify(err error) domain.ProbeError {
	switch {
	case domain.IsRepositoryNotFound(err):
		return domain.ProbeError{Kind: domain.ProbeRepositoryNotFound, Message: err.Error()}
	case isTransport(err):
		return domain.ProbeError{Kind: domain.ProbeNodeUnreachable, Message: err.Error()}
	default:
		return domain.ProbeError{Kind: domain.ProbeRejected, Message: err.Error()}
	}
}

func isTransport(err error) bool {
	var te *transportError
	if errors.As(err, &te) {
		return true
	}
	// Un sondeo que agota su plazo equivale a una respuesta que nunca llegó.
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
