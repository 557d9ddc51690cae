package optcache

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "optfetch"
	metricsSubsystem = "cache"
)

type metrics struct {
	hits        prometheus.Counter
	mirrorHits  prometheus.Counter
	misses      prometheus.Counter
	joins       prometheus.Counter
	fetches     prometheus.Counter
	fetchErrors prometheus.Counter
	canceled    prometheus.Counter
	expired     prometheus.Counter
	evictions   prometheus.Counter
	inFlight    prometheus.Gauge
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      name,
		Help:      help,
	})
}

// newMetrics creates the cache metrics and registers them with reg, if reg is
// not nil. Metrics that are already registered by another cache are reused.
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		hits:        newCounter("hits_total", "Number of resolves answered from the in-memory store."),
		mirrorHits:  newCounter("mirror_hits_total", "Number of resolves answered from the mirror."),
		misses:      newCounter("misses_total", "Number of resolves that found no valid cached entry."),
		joins:       newCounter("joins_total", "Number of resolves that joined a fetch already in flight."),
		fetches:     newCounter("fetches_total", "Number of fetch operations started."),
		fetchErrors: newCounter("fetch_errors_total", "Number of fetch operations that failed."),
		canceled:    newCounter("canceled_total", "Number of fetch operations abandoned by cancellation."),
		expired:     newCounter("expired_total", "Number of entries removed on read after their TTL elapsed."),
		evictions:   newCounter("evictions_total", "Number of entries evicted because the store was full."),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "in_flight",
			Help:      "Number of fetch operations currently running.",
		}),
	}
	if reg == nil {
		return m, nil
	}

	register := func(c prometheus.Collector) (prometheus.Collector, error) {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				return are.ExistingCollector, nil
			}
			return nil, err
		}
		return c, nil
	}
	for _, c := range []*prometheus.Counter{
		&m.hits, &m.mirrorHits, &m.misses, &m.joins, &m.fetches,
		&m.fetchErrors, &m.canceled, &m.expired, &m.evictions,
	} {
		coll, err := register(*c)
		if err != nil {
			return nil, err
		}
		*c = coll.(prometheus.Counter)
	}
	coll, err := register(m.inFlight)
	if err != nil {
		return nil, err
	}
	m.inFlight = coll.(prometheus.Gauge)
	return m, nil
}
