// Package metrics exposes Prometheus instrumentation for the relay: tick
// activity, agent invocations, directive policy decisions and job runs.
// All record methods are nil-safe so callers can run without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ticksTotal         *prometheus.CounterVec
	invocationsTotal   *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
	directivesTotal    *prometheus.CounterVec
	jobRunsTotal       *prometheus.CounterVec
}

// Init registers the relay collectors. A nil registerer falls back to the
// default Prometheus registry.
func Init(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		ticksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ticks_total",
				Help:      "Scheduler ticks by loop and outcome",
			},
			[]string{"loop", "outcome"},
		),
		invocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_invocations_total",
				Help:      "Agent invocations by outcome",
			},
			[]string{"outcome"},
		),
		invocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "agent_invocation_duration_seconds",
				Help:      "Duration of agent invocations",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
			},
			[]string{"outcome"},
		),
		directivesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "directives_total",
				Help:      "Parsed directives by type and policy decision",
			},
			[]string{"type", "decision"},
		),
		jobRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_runs_total",
				Help:      "Scheduled job executions by outcome",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(
		m.ticksTotal,
		m.invocationsTotal,
		m.invocationDuration,
		m.directivesTotal,
		m.jobRunsTotal,
	)

	return m
}

func (m *Metrics) RecordTick(loop, outcome string) {
	if m == nil {
		return
	}
	m.ticksTotal.WithLabelValues(loop, outcome).Inc()
}

func (m *Metrics) RecordInvocation(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.invocationsTotal.WithLabelValues(outcome).Inc()
	m.invocationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *Metrics) RecordDirective(directiveType, decision string) {
	if m == nil {
		return
	}
	m.directivesTotal.WithLabelValues(directiveType, decision).Inc()
}

func (m *Metrics) RecordJobRun(outcome string) {
	if m == nil {
		return
	}
	m.jobRunsTotal.WithLabelValues(outcome).Inc()
}
