// Package metrics exposes the turn pipeline's prometheus collectors,
// adapted from the teacher's pkg/observability/metrics.go (namespaced
// CounterVec/HistogramVec/GaugeVec groups registered against a private
// registry) but scoped down to what this module's own pipeline needs:
// turn latency and outcome, LATS rollout behavior, and evaluator pass
// rate. The agent/tool/HTTP/RAG collector groups the teacher carries have
// no component in this module to report on and are not reproduced.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Config mirrors the teacher's MetricsConfig shape: a namespace prefix and
// an enabled flag so metrics can be turned off entirely in tests or a
// minimal deployment without special-casing every call site.
type Config struct {
	Namespace string
	Enabled   bool
}

// Metrics holds every collector this module's turn pipeline reports to.
// A nil *Metrics is valid and every method is a no-op against it, mirroring
// the teacher's own "disabled config returns (nil, nil)" convention so
// callers never need a feature-flag branch at the call site.
type Metrics struct {
	registry *prometheus.Registry

	turnsTotal       *prometheus.CounterVec
	turnDuration     *prometheus.HistogramVec
	turnErrorsTotal  *prometheus.CounterVec
	bypassesTotal    *prometheus.CounterVec

	latsRollouts      prometheus.Histogram
	latsEarlyExits    prometheus.Counter
	latsPatchesEmitted prometheus.Counter

	evaluatorPassTotal prometheus.Counter
	evaluatorFailTotal prometheus.Counter
	evaluatorScore     prometheus.Histogram
}

// New builds the collector set. A disabled config returns (nil, nil), same
// as the teacher's NewMetrics, so a caller can do `m, _ := metrics.New(cfg)`
// and pass the possibly-nil *Metrics straight into the orchestrator.
func New(cfg Config) (*Metrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "personacore"
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "turn",
			Name:      "total",
			Help:      "Total number of turns handled, by outcome",
		},
		[]string{"outcome"},
	)

	m.turnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "turn",
			Name:      "duration_seconds",
			Help:      "handle_turn wall-clock duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 13), // 50ms to ~200s
		},
		[]string{"stage"},
	)

	m.turnErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "turn",
			Name:      "errors_total",
			Help:      "Total number of per-stage degradations, by stage and reason",
		},
		[]string{"stage", "reason"},
	)

	m.bypassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "turn",
			Name:      "bypasses_total",
			Help:      "Total number of turns that short-circuited around LATS",
		},
		[]string{"reason"},
	)

	m.latsRollouts = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns,
		Subsystem: "lats",
		Name:      "rollouts_used",
		Help:      "Number of LATS rollouts used per turn",
		Buckets:   prometheus.LinearBuckets(1, 1, 8),
	})

	m.latsEarlyExits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: "lats",
		Name:      "early_exits_total",
		Help:      "Total number of LATS searches that exited early on the gate thresholds",
	})

	m.latsPatchesEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: "lats",
		Name:      "patches_emitted_total",
		Help:      "Total number of reflection patches emitted on recurring failed checks",
	})

	m.evaluatorPassTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: "evaluator",
		Name:      "pass_total",
		Help:      "Total number of candidate plans that passed the hard gate",
	})

	m.evaluatorFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: "evaluator",
		Name:      "fail_total",
		Help:      "Total number of candidate plans rejected by the hard gate",
	})

	m.evaluatorScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns,
		Subsystem: "evaluator",
		Name:      "score",
		Help:      "Weighted evaluator score of the winning plan per turn",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
	})

	m.registry.MustRegister(
		m.turnsTotal, m.turnDuration, m.turnErrorsTotal, m.bypassesTotal,
		m.latsRollouts, m.latsEarlyExits, m.latsPatchesEmitted,
		m.evaluatorPassTotal, m.evaluatorFailTotal, m.evaluatorScore,
	)

	return m, nil
}

// Registry exposes the private registry for an HTTP /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveTurn records a completed turn's outcome and duration.
func (m *Metrics) ObserveTurn(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(outcome).Inc()
	m.turnDuration.WithLabelValues("total").Observe(seconds)
}

// ObserveStageError records a per-stage degradation (section 7's
// fallback-on-failure taxonomy), keyed by stage id and failure reason.
func (m *Metrics) ObserveStageError(stage, reason string) {
	if m == nil {
		return
	}
	m.turnErrorsTotal.WithLabelValues(stage, reason).Inc()
}

// ObserveBypass records a turn that short-circuited before LATS (safety or
// specialized-route bypass).
func (m *Metrics) ObserveBypass(reason string) {
	if m == nil {
		return
	}
	m.bypassesTotal.WithLabelValues(reason).Inc()
}

// ObserveLATS records one LATS search's rollout count and whether it exited
// early on the gate thresholds.
func (m *Metrics) ObserveLATS(rolloutsUsed int, earlyExited bool) {
	if m == nil {
		return
	}
	m.latsRollouts.Observe(float64(rolloutsUsed))
	if earlyExited {
		m.latsEarlyExits.Inc()
	}
}

// ObservePatchEmitted records a reflection patch emission.
func (m *Metrics) ObservePatchEmitted() {
	if m == nil {
		return
	}
	m.latsPatchesEmitted.Inc()
}

// ObserveEvaluation records a candidate plan's hard-gate verdict and, when
// it passed, its weighted score.
func (m *Metrics) ObserveEvaluation(passed bool, score float64) {
	if m == nil {
		return
	}
	if passed {
		m.evaluatorPassTotal.Inc()
		m.evaluatorScore.Observe(score)
		return
	}
	m.evaluatorFailTotal.Inc()
}
