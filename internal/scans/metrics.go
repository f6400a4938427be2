package scans

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts what happens to redirect traversals.
type Metrics struct {
	Recorded     prometheus.Counter
	Deduplicated prometheus.Counter
	Failures     prometheus.Counter
}

// NewMetrics registers the scan counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Recorded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "qrlinks",
			Name:      "scans_recorded_total",
			Help:      "Scan events handed to the recorder successfully.",
		}),
		Deduplicated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "qrlinks",
			Name:      "scans_deduplicated_total",
			Help:      "Redirects suppressed as repeats within the dedup window.",
		}),
		Failures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "qrlinks",
			Name:      "scan_record_failures_total",
			Help:      "Scan events lost because the recorder failed.",
		}),
	}
}
