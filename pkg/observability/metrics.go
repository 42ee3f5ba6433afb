// Package observability bridges lifecycle hooks to prometheus metrics and structured logs.
package observability

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/callflow/pkg/domain"
)

const namespace = "callflow"

// Metrics holds the call counters. Each instance owns its registry so tests and
// embedded engines do not collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	Transitions   *prometheus.CounterVec
	StageEntered  *prometheus.CounterVec
	StageComplete *prometheus.CounterVec
	Rejected      *prometheus.CounterVec
	Reengagements *prometheus.CounterVec
	IdleSeconds   prometheus.Histogram
}

// NewMetrics creates and registers the call metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Utterances applied by the flow machine.",
		}, []string{"from", "to", "signal"}),
		StageEntered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_entered_total",
			Help:      "Stage activations.",
		}, []string{"stage"}),
		StageComplete: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_completed_total",
			Help:      "Accepted stage completions.",
		}, []string{"group", "stage"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_rejected_total",
			Help:      "Duplicate, conflicting or out-of-turn completions.",
		}, []string{"stage"}),
		Reengagements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reengagements_total",
			Help:      "Re-engagement prompts attempted by the idle watchdog.",
		}, []string{"result"}),
		IdleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reengage_idle_seconds",
			Help:      "Silence measured when the watchdog fired.",
			Buckets:   []float64{5, 10, 15, 20, 30, 60, 120},
		}),
	}
	m.registry.MustRegister(m.Transitions, m.StageEntered, m.StageComplete, m.Rejected, m.Reengagements, m.IdleSeconds)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Hooks returns lifecycle hooks that record metrics.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition: func(_ context.Context, e *domain.TransitionEvent) {
			m.Transitions.WithLabelValues(string(e.From), string(e.To), string(e.Signal)).Inc()
		},
		OnStageEnter: func(_ context.Context, e *domain.StageEvent) {
			m.StageEntered.WithLabelValues(string(e.Stage)).Inc()
		},
		OnStageComplete: func(_ context.Context, e *domain.StageEvent) {
			m.StageComplete.WithLabelValues(e.Group, string(e.Stage)).Inc()
		},
		OnCompletionRejected: func(_ context.Context, e *domain.StageEvent) {
			m.Rejected.WithLabelValues(string(e.Stage)).Inc()
		},
		OnReengage: func(_ context.Context, e *domain.ReengageEvent) {
			result := "ok"
			if e.Err != "" {
				result = "error"
			}
			m.Reengagements.WithLabelValues(result).Inc()
			m.IdleSeconds.Observe(e.Idle.Seconds())
		},
	}
}

// LogHooks returns lifecycle hooks that write one structured line per event.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition: func(ctx context.Context, e *domain.TransitionEvent) {
			logger.InfoContext(ctx, "transition",
				"session_id", e.SessionID, "from", e.From, "to", e.To, "signal", e.Signal, "branch", e.Branch)
		},
		OnStageEnter: func(ctx context.Context, e *domain.StageEvent) {
			logger.InfoContext(ctx, "stage_enter", "session_id", e.SessionID, "group", e.Group, "stage", e.Stage)
		},
		OnStageComplete: func(ctx context.Context, e *domain.StageEvent) {
			logger.InfoContext(ctx, "stage_complete", "session_id", e.SessionID, "group", e.Group, "stage", e.Stage)
		},
		OnCompletionRejected: func(ctx context.Context, e *domain.StageEvent) {
			logger.WarnContext(ctx, "completion_rejected", "session_id", e.SessionID, "stage", e.Stage, "reason", e.Reason)
		},
		OnReengage: func(ctx context.Context, e *domain.ReengageEvent) {
			logger.InfoContext(ctx, "reengage", "session_id", e.SessionID, "idle", e.Idle, "err", e.Err)
		},
	}
}
