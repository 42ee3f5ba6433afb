package domain

import "time"

// CallStatus defines whether a call is still being driven.
type CallStatus string

const (
	StatusActive CallStatus = "active" // Normal operation
	StatusDone   CallStatus = "done"   // Absorbing waypoint reached
)

// CallState is the persisted snapshot of a call driven by the flow machine.
type CallState struct {
	// SessionID identifies the call (room name).
	SessionID string `json:"session_id"`

	// Waypoint is the single active topic.
	Waypoint Waypoint `json:"waypoint"`

	// Status is derived from Waypoint; kept for store listings.
	Status CallStatus `json:"status"`

	// Metadata holds caller-supplied data such as the patient name.
	Metadata map[string]any `json:"metadata,omitempty"`

	// History tracks every waypoint entered, starting with the initial one.
	History []Waypoint `json:"history"`

	// Results records answered waypoints in traversal order.
	Results []StageRecord `json:"results,omitempty"`

	// Turns counts applied utterances.
	Turns int `json:"turns"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCallState creates a clean state at the opening waypoint.
func NewCallState(sessionID string) *CallState {
	now := time.Now().UTC()
	return &CallState{
		SessionID: sessionID,
		Waypoint:  WaypointOpening,
		Status:    StatusActive,
		Metadata:  make(map[string]any),
		History:   []Waypoint{WaypointOpening},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Done reports whether the call reached the absorbing waypoint.
func (s *CallState) Done() bool {
	return s.Waypoint.Terminal()
}

// FlowResult returns the recorded answers as a flow result, finalized once done.
func (s *CallState) FlowResult() *FlowResult {
	return FlowResultFromRecords(s.Results, s.Done())
}

// Clone returns a deep-enough copy for stores that must not share slices or maps.
func (s *CallState) Clone() *CallState {
	cp := *s
	cp.Metadata = make(map[string]any, len(s.Metadata))
	for k, v := range s.Metadata {
		cp.Metadata[k] = v
	}
	cp.History = append([]Waypoint(nil), s.History...)
	cp.Results = append([]StageRecord(nil), s.Results...)
	return &cp
}
