// Package metrics provides Prometheus metrics for the automation engine
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// Metrics holds all Prometheus metrics for the engine.
//
// A nil *Metrics is valid and records nothing, so packages can take one
// unconditionally.
type Metrics struct {
	// Invocation metrics
	InvocationsTotal   *prometheus.CounterVec
	InvocationDuration *prometheus.HistogramVec
	QueueDepth         prometheus.Gauge

	// Commit metrics
	OperationsCommittedTotal *prometheus.CounterVec
	CommitDuration           prometheus.Histogram
	CommitFailuresTotal      prometheus.Counter

	// Guard metrics
	CeilingHitsTotal   *prometheus.CounterVec
	CascadesTotal      prometheus.Counter
	CascadeSkipsTotal  *prometheus.CounterVec
	AutoLinkMatchTotal *prometheus.CounterVec
}

// NewMetrics creates the engine metrics and registers them with reg.
// A nil reg uses a private registry, which keeps tests independent.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	m := &Metrics{}

	// Invocation metrics
	m.InvocationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automaton_invocations_total",
			Help: "Total number of processed invocations",
		},
		[]string{"trigger", "status"},
	)

	m.InvocationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "automaton_invocation_duration_seconds",
			Help:    "Duration of one invocation including its commits",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"trigger"},
	)

	m.QueueDepth = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "automaton_queue_depth",
			Help: "Number of invocations waiting in the cascade queue",
		},
	)

	// Commit metrics
	m.OperationsCommittedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automaton_operations_committed_total",
			Help: "Total number of committed operations by kind",
		},
		[]string{"kind"},
	)

	m.CommitDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "automaton_commit_duration_seconds",
			Help:    "Duration of commit pipeline runs",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	m.CommitFailuresTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "automaton_commit_failures_total",
			Help: "Total number of aborted commit pipeline runs",
		},
	)

	// Guard metrics
	m.CeilingHitsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automaton_ceiling_hits_total",
			Help: "Script calls turned into no-ops by a resource ceiling",
		},
		[]string{"ceiling"},
	)

	m.CascadesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "automaton_cascades_total",
			Help: "Total number of derived child invocations",
		},
	)

	m.CascadeSkipsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automaton_cascade_skips_total",
			Help: "Rule firings skipped by the cycle detector or steps quota",
		},
		[]string{"reason"},
	)

	m.AutoLinkMatchTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automaton_autolink_matches_total",
			Help: "Documents matched by auto-link rules",
		},
		[]string{"direction"},
	)

	return m
}

// Invocation records a finished invocation.
func (m *Metrics) Invocation(trigger, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.InvocationsTotal.WithLabelValues(trigger, status).Inc()
	m.InvocationDuration.WithLabelValues(trigger).Observe(d.Seconds())
}

// SetQueueDepth records the current queue length.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// Committed records one committed operation.
func (m *Metrics) Committed(kind string) {
	if m == nil {
		return
	}
	m.OperationsCommittedTotal.WithLabelValues(kind).Inc()
}

// Commit records a pipeline run.
func (m *Metrics) Commit(d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.CommitDuration.Observe(d.Seconds())
	if failed {
		m.CommitFailuresTotal.Inc()
	}
}

// CeilingHit records a call dropped by a resource ceiling.
func (m *Metrics) CeilingHit(ceiling string) {
	if m == nil {
		return
	}
	m.CeilingHitsTotal.WithLabelValues(ceiling).Inc()
}

// Cascade records derived child invocations.
func (m *Metrics) Cascade(n int) {
	if m == nil {
		return
	}
	m.CascadesTotal.Add(float64(n))
}

// CascadeSkipped records a skipped rule firing.
func (m *Metrics) CascadeSkipped(reason string) {
	if m == nil {
		return
	}
	m.CascadeSkipsTotal.WithLabelValues(reason).Inc()
}

// AutoLinkMatched records documents matched for linking or unlinking.
func (m *Metrics) AutoLinkMatched(direction string, n int) {
	if m == nil {
		return
	}
	m.AutoLinkMatchTotal.WithLabelValues(direction).Add(float64(n))
}

// Handler serves the metrics gathered from g in the Prometheus exposition
// format, for mounting on /metrics.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// WriteText writes every metric family gathered from g to w in the text
// exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
