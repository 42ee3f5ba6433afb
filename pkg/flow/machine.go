package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/classifier"
	"github.com/aretw0/callflow/pkg/domain"
)

// Branch labels recorded on transitions.
const (
	BranchAffirmative = "affirmative"
	BranchNegative    = "negative"
	BranchDefault     = "default"
)

// Transition is the outcome of one utterance.
type Transition struct {
	From    domain.Waypoint `json:"from"`
	To      domain.Waypoint `json:"to"`
	Signals domain.Signals  `json:"signals"`
	Signal  domain.Signal   `json:"signal"`
	Branch  string          `json:"branch,omitempty"`
}

// Advanced reports whether the transition left its waypoint.
func (t Transition) Advanced() bool {
	return t.From != t.To
}

// Machine is the keyword-driven flow state machine.
// Step and Next are pure; Apply mutates a CallState.
type Machine struct {
	classifier   *classifier.Classifier
	graph        Graph
	instructions Table
	hooks        domain.LifecycleHooks
	logger       *slog.Logger
}

// Option configures the Machine.
type Option func(*Machine)

// WithClassifier sets the utterance classifier.
func WithClassifier(c *classifier.Classifier) Option {
	return func(m *Machine) {
		m.classifier = c
	}
}

// WithGraph replaces the transition table.
func WithGraph(g Graph) Option {
	return func(m *Machine) {
		m.graph = g
	}
}

// WithInstructions replaces the instruction table.
func WithInstructions(t Table) Option {
	return func(m *Machine) {
		m.instructions = t
	}
}

// WithLifecycleHooks registers observability hooks fired by Apply.
func WithLifecycleHooks(h domain.LifecycleHooks) Option {
	return func(m *Machine) {
		m.hooks = h
	}
}

// WithLogger configures a logger for the Machine.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

// New creates a Machine with the default classifier, graph and instructions.
func New(opts ...Option) *Machine {
	m := &Machine{
		graph:        DefaultGraph(),
		instructions: DefaultInstructions(),
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.classifier == nil {
		m.classifier = classifier.Default()
	}
	return m
}

// Next returns the waypoint that follows state after the utterance.
func (m *Machine) Next(state domain.Waypoint, utterance string) domain.Waypoint {
	return m.Step(state, utterance).To
}

// Step evaluates one utterance in priority order:
// empty input stays, absorbing waypoints stay, unconditional edges advance,
// busy goes to callback, an answer advances (branching on polarity), anything else stays.
func (m *Machine) Step(state domain.Waypoint, utterance string) Transition {
	sig := m.classifier.Classify(utterance, state)
	tr := Transition{From: state, To: state, Signals: sig, Signal: sig.Effective()}

	if sig.Empty || state.Terminal() {
		return tr
	}

	edge, ok := m.graph[state]
	if !ok {
		m.logger.Warn("No edge for waypoint, closing the flow", "waypoint", state)
		tr.To = domain.WaypointDone
		return tr
	}

	if edge.Unconditional {
		tr.To = edge.Default
		return tr
	}

	switch tr.Signal {
	case domain.SignalBusy:
		tr.To = domain.WaypointCallback
	case domain.SignalAnswer:
		tr.To, tr.Branch = advance(edge, sig)
	}
	return tr
}

func advance(e Edge, sig domain.Signals) (domain.Waypoint, string) {
	if !e.Branching() {
		return e.Default, ""
	}
	switch {
	case sig.Negative && e.OnNegative != "":
		return e.OnNegative, BranchNegative
	case sig.Affirmative && e.OnAffirmative != "":
		return e.OnAffirmative, BranchAffirmative
	default:
		return e.Default, BranchDefault
	}
}

// Apply runs Step against a CallState and records the answered waypoint.
// Turns on a finished call are accepted and leave it unchanged.
func (m *Machine) Apply(ctx context.Context, st *domain.CallState, utterance string) Transition {
	tr := m.Step(st.Waypoint, utterance)
	st.Turns++
	st.UpdatedAt = time.Now().UTC()

	if tr.Advanced() {
		if stage := tr.From.Stage(); stage != "" && !recorded(st, stage) {
			st.Results = append(st.Results, domain.StageRecord{
				Stage:  stage,
				Result: domain.TurnResult{Utterance: classifier.Normalize(utterance), Branch: tr.Branch},
			})
		}
		st.Waypoint = tr.To
		st.History = append(st.History, tr.To)
		if tr.To.Terminal() {
			st.Status = domain.StatusDone
		}
	}

	m.logger.Debug("Turn applied",
		"session_id", st.SessionID,
		"from", tr.From,
		"to", tr.To,
		"signal", tr.Signal,
	)
	if m.hooks.OnTransition != nil {
		m.hooks.OnTransition(ctx, &domain.TransitionEvent{
			EventBase: domain.EventBase{Timestamp: st.UpdatedAt, Type: domain.EventTransition, SessionID: st.SessionID},
			From:      tr.From,
			To:        tr.To,
			Signal:    tr.Signal,
			Branch:    tr.Branch,
		})
	}
	return tr
}

func recorded(st *domain.CallState, stage domain.StageID) bool {
	for _, r := range st.Results {
		if r.Stage == stage {
			return true
		}
	}
	return false
}

// Instruction returns the payload for a waypoint. Unknown or unmapped
// waypoints fail closed to the terminal instruction.
func (m *Machine) Instruction(state domain.Waypoint) Instruction {
	if ins, ok := m.instructions[state]; ok {
		ins.Waypoint = state
		return ins
	}
	m.logger.Warn("No instruction for waypoint, using terminal instruction", "waypoint", state)
	ins := m.instructions[domain.WaypointDone]
	ins.Waypoint = domain.WaypointDone
	return ins
}

// Graph returns a copy of the transition table.
func (m *Machine) Graph() Graph {
	out := make(Graph, len(m.graph))
	for k, v := range m.graph {
		out[k] = v
	}
	return out
}

// Classifier exposes the classifier used by the machine.
func (m *Machine) Classifier() *classifier.Classifier {
	return m.classifier
}
