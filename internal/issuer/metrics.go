package issuer

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "fleet_issuer"

type metrics struct {
	keysGenerated         prometheus.Counter
	keyGenerationFailures prometheus.Counter
	tokensIssued          prometheus.Counter
	keysPruned            prometheus.Counter
	pruneFailures         prometheus.Counter
}

// newMetrics creates the issuer counters and registers them on reg unless
// reg is nil.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		keysGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "keys_generated_total",
			Help:      "Signing keys generated and published by this instance",
		}),
		keyGenerationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "key_generation_failures_total",
			Help:      "Failed signing key generation attempts",
		}),
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tokens_issued_total",
			Help:      "Tokens signed by this instance",
		}),
		keysPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "keys_pruned_total",
			Help:      "Expired public keys removed from the shared store",
		}),
		pruneFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "prune_failures_total",
			Help:      "Failed attempts to remove expired public keys",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.keysGenerated,
			m.keyGenerationFailures,
			m.tokensIssued,
			m.keysPruned,
			m.pruneFailures,
		)
	}
	return m
}
