// Package metrics exposes prometheus collectors for an editing session. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	registry *prometheus.Registry

	editsApplied  *prometheus.CounterVec
	reparses      *prometheus.CounterVec
	reparseTime   prometheus.Histogram
	notifications *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	reconnects    prometheus.Counter
	analyzerState *prometheus.GaugeVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		editsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simplide",
			Name:      "edits_applied_total",
			Help:      "Edits accepted by the text store, by origin.",
		}, []string{"origin"}),
		reparses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simplide",
			Name:      "reparses_total",
			Help:      "Syntax tree updates, by kind.",
		}, []string{"kind"}),
		reparseTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "simplide",
			Name:      "reparse_duration_seconds",
			Help:      "Time spent re-parsing after edits.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12), // 0.1ms to ~400ms
		}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simplide",
			Name:      "analyzer_notifications_total",
			Help:      "Notifications sent to the analyzer, by method.",
		}, []string{"method"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simplide",
			Name:      "dropped_results_total",
			Help:      "Analyzer results discarded, by reason.",
		}, []string{"reason"}),
		reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: "simplide",
			Name:      "analyzer_reconnects_total",
			Help:      "Successful analyzer reconnects.",
		}),
		analyzerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "simplide",
			Name:      "analyzer_state",
			Help:      "1 for the current analyzer session state, 0 otherwise.",
		}, []string{"state"}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) EditApplied(origin string) {
	if m == nil {
		return
	}
	m.editsApplied.WithLabelValues(origin).Inc()
}

func (m *Metrics) Reparse(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.reparses.WithLabelValues(kind).Inc()
	m.reparseTime.Observe(seconds)
}

func (m *Metrics) Notification(method string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(method).Inc()
}

func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) Reconnected() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// AnalyzerState sets the gauge for current to 1 and every other known state to 0.
func (m *Metrics) AnalyzerState(current string, all ...string) {
	if m == nil {
		return
	}
	for _, s := range all {
		m.analyzerState.WithLabelValues(s).Set(0)
	}
	m.analyzerState.WithLabelValues(current).Set(1)
}
