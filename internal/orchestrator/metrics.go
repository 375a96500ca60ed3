package orchestrator

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the per-session Prometheus instrumentation. Each instance is
// registered with its own session_id label so multiple orchestrator
// sessions sharing a process (and a Prometheus registry) stay distinguishable.
type Metrics struct {
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	BlocksRetrieved   prometheus.Counter
	BytesSublimated   prometheus.Counter
	DecayApplications prometheus.Counter
}

// NewMetrics registers a fresh Metrics set under reg, labeled by sessionID.
// reg may be nil, in which case metrics are created unregistered (useful in
// tests, or hosts that don't want a global registry touched).
func NewMetrics(reg prometheus.Registerer, sessionID string) *Metrics {
	mk := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "zeta",
			Subsystem:   "memory",
			Name:        name,
			Help:        help,
			ConstLabels: prometheus.Labels{"session_id": sessionID},
		})
		if reg != nil {
			reg.MustRegister(c)
		}
		return c
	}
	return &Metrics{
		CacheHits:         mk("cache_hits_total", "Block activations served from the active set."),
		CacheMisses:       mk("cache_misses_total", "Block activations requiring a fresh mmap."),
		BlocksRetrieved:   mk("blocks_retrieved_total", "Blocks admitted by a retrieve call."),
		BytesSublimated:   mk("bytes_sublimated_total", "Key+value bytes written by sublimation."),
		DecayApplications: mk("decay_applications_total", "apply_temporal_decay invocations."),
	}
}
