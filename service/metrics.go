package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "dropgate"

// Metrics holds the Prometheus collectors of the verification pipeline
type Metrics struct {
	verifications  *prometheus.CounterVec
	verifyDuration prometheus.Histogram
	profiles       prometheus.Counter
	profileRaces   prometheus.Counter
}

// NewMetrics registers the collectors with registry.
// A nil registry yields unregistered collectors, which is what tests want.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "verifications_total",
			Help:      "Wallet verifications by outcome code",
		}, []string{"outcome"}),

		verifyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "verify_duration_seconds",
			Help:      "Time spent in the verification pipeline",
			Buckets:   prometheus.DefBuckets,
		}),

		profiles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "profiles_created_total",
			Help:      "Profiles created on first login",
		}),

		profileRaces: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "profile_races_total",
			Help:      "Profile creations that lost a duplicate-key race",
		}),
	}
}
