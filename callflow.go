package callflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/adapters/memory"
	"github.com/aretw0/callflow/pkg/classifier"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/flow"
	"github.com/aretw0/callflow/pkg/orchestrator"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/aretw0/callflow/pkg/session"
)

// Engine is the high-level entry point of the library.
// It answers the stateless flow questions (next state, instruction, signals),
// drives persisted calls turn by turn, and builds live calls for the stage orchestrator.
type Engine struct {
	classifier *classifier.Classifier
	machine    *flow.Machine
	manager    *session.Manager
	script     orchestrator.Script

	store       ports.StateStore
	locker      ports.DistributedLocker
	lockTTL     time.Duration
	graph       flow.Graph
	instruction flow.Table
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithClassifier replaces the default keyword classifier.
func WithClassifier(c *classifier.Classifier) Option {
	return func(e *Engine) {
		e.classifier = c
	}
}

// WithStore sets the persistence of flow-machine calls. Defaults to memory.
func WithStore(s ports.StateStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithLocker enables distributed locking of calls.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithLockTTL bounds how long a distributed call lock is held.
func WithLockTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		e.lockTTL = ttl
	}
}

// WithScript replaces the default stage script of live calls.
func WithScript(s orchestrator.Script) Option {
	return func(e *Engine) {
		e.script = s
	}
}

// WithGraph replaces the default transition table.
func WithGraph(g flow.Graph) Option {
	return func(e *Engine) {
		e.graph = g
	}
}

// WithInstructions replaces the default instruction table.
func WithInstructions(t flow.Table) Option {
	return func(e *Engine) {
		e.instruction = t
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New initializes an Engine. The graph and script are validated up front.
func New(opts ...Option) (*Engine, error) {
	eng := &Engine{
		script:      orchestrator.DefaultScript(),
		graph:       flow.DefaultGraph(),
		instruction: flow.DefaultInstructions(),
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(eng)
	}

	if err := eng.graph.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	if err := eng.script.Validate(); err != nil {
		return nil, err
	}
	if eng.classifier == nil {
		eng.classifier = classifier.Default()
	}
	if eng.store == nil {
		eng.store = memory.NewStore()
	}

	eng.machine = flow.New(
		flow.WithClassifier(eng.classifier),
		flow.WithGraph(eng.graph),
		flow.WithInstructions(eng.instruction),
		flow.WithLifecycleHooks(eng.hooks),
		flow.WithLogger(eng.logger),
	)

	managerOpts := []session.Option{session.WithLogger(eng.logger)}
	if eng.locker != nil {
		managerOpts = append(managerOpts, session.WithLocker(eng.locker))
	}
	if eng.lockTTL > 0 {
		managerOpts = append(managerOpts, session.WithLockTTL(eng.lockTTL))
	}
	eng.manager = session.NewManager(eng.store, managerOpts...)
	return eng, nil
}

// Classify derives the signals of an utterance for a topic.
func (e *Engine) Classify(text string, topic domain.Waypoint) domain.Signals {
	return e.classifier.Classify(text, topic)
}

// NextState is the pure transition function: given the current waypoint and an utterance,
// it returns the next waypoint with the signals that decided it.
func (e *Engine) NextState(current domain.Waypoint, utterance string) flow.Transition {
	return e.machine.Step(current, utterance)
}

// InstructionFor returns the instruction payload of a waypoint.
// Unknown waypoints fail closed to the terminal instruction.
func (e *Engine) InstructionFor(w domain.Waypoint) flow.Instruction {
	return e.machine.Instruction(w)
}

// Start creates a persisted call at the opening waypoint, or loads it if it exists.
// An empty id gets a random one.
func (e *Engine) Start(ctx context.Context, sessionID string, metadata map[string]any) (*domain.CallState, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	state, _, err := e.manager.LoadOrStart(ctx, sessionID, metadata)
	if err != nil {
		return nil, err
	}
	return state, nil
}

// Load returns a persisted call.
func (e *Engine) Load(ctx context.Context, sessionID string) (*domain.CallState, error) {
	return e.manager.Load(ctx, sessionID)
}

// Turn applies one utterance to a persisted call under its session lock.
func (e *Engine) Turn(ctx context.Context, sessionID, utterance string) (*domain.CallState, flow.Transition, error) {
	var tr flow.Transition
	state, err := e.manager.Update(ctx, sessionID, func(st *domain.CallState) error {
		tr = e.machine.Apply(ctx, st, utterance)
		return nil
	})
	if err != nil {
		return nil, flow.Transition{}, err
	}
	return state, tr, nil
}

// NewLive builds a live call running the engine's script. Unset fields of cfg
// (script, hooks, logger) are filled from the engine.
func (e *Engine) NewLive(cfg session.LiveConfig) (*session.Live, error) {
	if cfg.Script == nil {
		script := e.script
		cfg.Script = &script
	}
	if cfg.Policy == nil {
		cfg.Policy = orchestrator.NewRulePolicy(e.classifier)
	}
	cfg.Hooks = e.hooks.Merge(cfg.Hooks)
	if cfg.Logger == nil {
		cfg.Logger = e.logger
	}
	return session.NewLive(cfg)
}

// Script returns the stage script of live calls.
func (e *Engine) Script() orchestrator.Script {
	return e.script
}

// Machine exposes the flow state machine.
func (e *Engine) Machine() *flow.Machine {
	return e.machine
}

// Manager exposes the session manager of persisted calls.
func (e *Engine) Manager() *session.Manager {
	return e.manager
}
