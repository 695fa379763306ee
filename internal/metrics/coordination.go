package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas de las rondas de verificación y de las limpiezas.

var (
	VerificationRounds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "verification_rounds_total",
		Help: "Rondas de verificación por resultado (ok|failed)",
	}, []string{"result"})

	VerificationRoundDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "verification_round_duration_seconds",
		Help:    "Duración de una ronda completa de verificación",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	VerificationProbeFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "verification_probe_failures_total",
		Help: "Sondeos fallidos por tipo de error",
	}, []string{"kind"})

	CleanupRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cleanup_runs_total",
		Help: "Limpiezas por resultado (ok|blocked|stale|failed)",
	}, []string{"result"})

	CleanupDeletedBlobs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cleanup_deleted_blobs_total",
		Help: "Blobs huérfanos eliminados",
	})

	CleanupDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cleanup_duration_seconds",
		Help:    "Duración de una limpieza completa",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	CleanupResets = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cleanup_resets_total",
		Help: "Resets del estado de limpieza (cambio de liderazgo o manual)",
	})
)

// RegisterCoordination registra las métricas de verificación y limpieza.
func RegisterCoordination(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		VerificationRounds,
		VerificationRoundDuration,
		VerificationProbeFailures,
		CleanupRuns,
		CleanupDeletedBlobs,
		CleanupDuration,
		CleanupResets,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
