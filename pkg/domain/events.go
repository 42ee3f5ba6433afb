package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventTransition         EventType = "transition"
	EventStageEnter         EventType = "stage_enter"
	EventStageComplete      EventType = "stage_complete"
	EventCompletionRejected EventType = "completion_rejected"
	EventReengage           EventType = "reengage"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
}

// TransitionEvent is emitted by the flow machine for every applied turn.
type TransitionEvent struct {
	EventBase
	From   Waypoint `json:"from"`
	To     Waypoint `json:"to"`
	Signal Signal   `json:"signal"`
	Branch string   `json:"branch,omitempty"`
}

// StageEvent is emitted by the orchestrator.
type StageEvent struct {
	EventBase
	Group  string  `json:"group"`
	Stage  StageID `json:"stage"`
	Result any     `json:"result,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

// ReengageEvent is emitted when the watchdog speaks the re-engagement line.
type ReengageEvent struct {
	EventBase
	Idle time.Duration `json:"idle"`
	Err  string        `json:"err,omitempty"`
}

// LifecycleHooks defines callbacks for observability. Nil hooks are skipped.
type LifecycleHooks struct {
	OnTransition         func(context.Context, *TransitionEvent)
	OnStageEnter         func(context.Context, *StageEvent)
	OnStageComplete      func(context.Context, *StageEvent)
	OnCompletionRejected func(context.Context, *StageEvent)
	OnReengage           func(context.Context, *ReengageEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnTransition:         chain(h.OnTransition, other.OnTransition),
		OnStageEnter:         chain(h.OnStageEnter, other.OnStageEnter),
		OnStageComplete:      chain(h.OnStageComplete, other.OnStageComplete),
		OnCompletionRejected: chain(h.OnCompletionRejected, other.OnCompletionRejected),
		OnReengage:           chain(h.OnReengage, other.OnReengage),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
