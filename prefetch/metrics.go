package prefetch

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	skipNoFields         = "no_fields"
	skipProviderDisabled = "provider_disabled"

	modeAwaited    = "awaited"
	modeBackground = "background"
)

type metrics struct {
	skippedNodes     *prometheus.CounterVec
	scheduled        *prometheus.CounterVec
	backgroundErrors prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		skippedNodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optfetch",
			Subsystem: "prefetch",
			Name:      "skipped_nodes_total",
			Help:      "Number of nodes skipped by the planner, by reason.",
		}, []string{"reason"}),
		scheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "optfetch",
			Subsystem: "prefetch",
			Name:      "scheduled_total",
			Help:      "Number of field prefetches scheduled, by mode.",
		}, []string{"mode"}),
		backgroundErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "optfetch",
			Subsystem: "prefetch",
			Name:      "background_errors_total",
			Help:      "Number of background prefetches that failed.",
		}),
	}
	if reg == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{m.skippedNodes, m.scheduled, m.backgroundErrors} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return nil, err
			}
			switch existing := are.ExistingCollector.(type) {
			case *prometheus.CounterVec:
				if c == prometheus.Collector(m.skippedNodes) {
					m.skippedNodes = existing
				} else {
					m.scheduled = existing
				}
			case prometheus.Counter:
				m.backgroundErrors = existing
			}
		}
	}
	return m, nil
}
