package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"text/template"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
)

var (
	// ErrAlreadyRunning is returned when Run is called twice on the same Orchestrator.
	ErrAlreadyRunning = errors.New("orchestrator already running")
	// ErrNoSpeaker is returned by New when no speech collaborator is given.
	ErrNoSpeaker = errors.New("orchestrator requires a speaker")
)

// task is one activation of a stage.
type task struct {
	spec      StageSpec
	group     string
	completed bool // guarded by Orchestrator.mu
	done      chan struct{}
	left      chan struct{}
	leaveOnce sync.Once
}

func newTask(group string, spec StageSpec) *task {
	return &task{
		spec:  spec,
		group: group,
		done:  make(chan struct{}),
		left:  make(chan struct{}),
	}
}

func (t *task) leave() {
	t.leaveOnce.Do(func() { close(t.left) })
}

// Orchestrator runs a Script: stage groups in order, one active stage at a time,
// completed only through Complete (directly or via Observe and a Policy).
type Orchestrator struct {
	script    Script
	speaker   ports.Speaker
	policy    Policy
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	vars      map[string]string
	sessionID string
	now       func() time.Time
	templates map[string]*template.Template

	results   *domain.FlowResult
	running   atomic.Bool
	started   chan struct{}
	startOnce sync.Once

	mu     sync.Mutex
	group  string
	active *task
	jump   chan string
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithPolicy sets the turn policy. Defaults to a RulePolicy over the default classifier.
func WithPolicy(p Policy) Option {
	return func(o *Orchestrator) {
		o.policy = p
	}
}

// WithVars sets the call variables visible to entry templates (e.g. patient_name).
func WithVars(vars map[string]string) Option {
	return func(o *Orchestrator) {
		o.vars = make(map[string]string, len(vars))
		for k, v := range vars {
			o.vars[k] = v
		}
	}
}

// WithRecords seeds the flow result, e.g. when resuming a persisted call.
// Recorded stages are skipped by Run.
func WithRecords(records []domain.StageRecord) Option {
	return func(o *Orchestrator) {
		o.results = domain.FlowResultFromRecords(records, false)
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(h domain.LifecycleHooks) Option {
	return func(o *Orchestrator) {
		o.hooks = h
	}
}

// WithSessionID tags events and logs with the call session.
func WithSessionID(id string) Option {
	return func(o *Orchestrator) {
		o.sessionID = id
	}
}

// WithLogger configures a logger for the Orchestrator.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New validates the script, compiles its entry templates and returns an idle Orchestrator.
func New(script Script, speaker ports.Speaker, opts ...Option) (*Orchestrator, error) {
	if speaker == nil {
		return nil, ErrNoSpeaker
	}
	if err := script.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		script:  script,
		speaker: speaker,
		logger:  logging.NewNop(),
		vars:    map[string]string{},
		now:     time.Now,
		results: domain.NewFlowResult(),
		jump:    make(chan string, 1),
		started: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.policy == nil {
		o.policy = NewRulePolicy(nil)
	}
	if o.sessionID != "" {
		o.logger = o.logger.With("session_id", o.sessionID)
	}

	o.templates = make(map[string]*template.Template)
	for _, g := range script.Groups {
		for _, st := range g.Stages {
			if st.Entry.Say == "" {
				continue
			}
			key := templateKey(g.ID, st.ID)
			tmpl, err := template.New(key).Option("missingkey=zero").Parse(st.Entry.Say)
			if err != nil {
				return nil, fmt.Errorf("%w: entry of %s: %w", ErrInvalidScript, key, err)
			}
			o.templates[key] = tmpl
		}
	}
	return o, nil
}

func templateKey(group string, stage domain.StageID) string {
	return group + "/" + string(stage)
}

// Script returns the script being run.
func (o *Orchestrator) Script() Script {
	return o.script
}

// Run activates groups from the script start until a group without a route resolves.
// It returns the finalized FlowResult, or ctx.Err() with uncompleted stages left absent.
func (o *Orchestrator) Run(ctx context.Context) (*domain.FlowResult, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer o.deactivate()
	defer o.markStarted()

	group := o.script.Start
	for group != "" {
		spec, ok := o.script.Group(group)
		if !ok {
			return nil, fmt.Errorf("%w: group %q", ErrInvalidScript, group)
		}
		next, err := o.runGroup(ctx, spec)
		if err != nil {
			o.logger.Info("flow interrupted", "group", group, "err", err)
			return nil, err
		}
		group = next
	}

	o.results.Finalize()
	o.logger.Info("flow finalized", "stages", o.results.Len())
	return o.results.Snapshot(), nil
}

func (o *Orchestrator) runGroup(ctx context.Context, g GroupSpec) (string, error) {
	o.mu.Lock()
	o.group = g.ID
	select {
	case <-o.jump:
	default:
	}
	o.mu.Unlock()
	o.logger.Debug("group entered", "group", g.ID)

	for _, st := range g.Stages {
		if o.results.Has(st.ID) {
			continue
		}
		t, prev := o.activate(ctx, g.ID, st)
		o.enter(ctx, t)
		if prev != nil {
			prev.leave()
		}

		select {
		case <-t.done:
		case reason := <-o.jump:
			o.logger.Info("group abandoned for callback",
				"group", g.ID, "stage", st.ID, "reason", reason)
			return o.script.Callback, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return o.route(g.ID), nil
}

func (o *Orchestrator) activate(ctx context.Context, group string, spec StageSpec) (*task, *task) {
	t := newTask(group, spec)
	o.mu.Lock()
	prev := o.active
	o.active = t
	o.mu.Unlock()

	o.markStarted()
	o.logger.Debug("stage entered", "group", group, "stage", spec.ID)
	if o.hooks.OnStageEnter != nil {
		o.hooks.OnStageEnter(ctx, o.stageEvent(domain.EventStageEnter, group, spec.ID))
	}
	return t, prev
}

func (o *Orchestrator) markStarted() {
	o.startOnce.Do(func() { close(o.started) })
}

// Started is closed once the first stage is active, or when Run returns without one.
func (o *Orchestrator) Started() <-chan struct{} {
	return o.started
}

func (o *Orchestrator) deactivate() {
	o.mu.Lock()
	t := o.active
	o.active = nil
	o.mu.Unlock()
	if t != nil {
		t.leave()
	}
}

// enter runs the stage entry action once. Speech failures are logged only.
func (o *Orchestrator) enter(ctx context.Context, t *task) {
	e := t.spec.Entry
	req := domain.SpeakRequest{AllowInterruptions: e.AllowInterruptions}
	switch {
	case e.Say != "":
		text, err := o.render(t.group, t.spec.ID)
		if err != nil {
			o.logger.Warn("failed to render entry line", "stage", t.spec.ID, "err", err)
			return
		}
		req.Text = text
	case e.Generate != "":
		req.Instructions = e.Generate
	default:
		return
	}

	if err := o.speaker.Say(ctx, req); err != nil {
		o.logger.Warn("entry speech failed", "stage", t.spec.ID, "err", err)
	}
}

func (o *Orchestrator) render(group string, stage domain.StageID) (string, error) {
	tmpl, ok := o.templates[templateKey(group, stage)]
	if !ok {
		return "", fmt.Errorf("no entry template for %s", templateKey(group, stage))
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, o.vars); err != nil {
		return "", err
	}
	return strings.TrimSpace(sb.String()), nil
}

// route resolves the group that follows after, falling back to the route default
// when the branch stage or field is missing.
func (o *Orchestrator) route(after string) string {
	r, ok := o.script.Route(after)
	if !ok {
		return ""
	}
	res, ok := o.results.Get(r.Stage)
	if !ok {
		o.logger.Warn("branch stage missing, using default route",
			"after", after, "stage", r.Stage, "next", r.Default)
		return r.Default
	}
	val, ok := readField(res, r.Field)
	if !ok {
		o.logger.Warn("branch field missing, using default route",
			"after", after, "stage", r.Stage, "field", r.Field, "next", r.Default)
		return r.Default
	}
	if next, ok := r.Cases[fmt.Sprint(val)]; ok {
		return next
	}
	return r.Default
}

func readField(result any, field string) (any, bool) {
	fields := map[string]any{}
	if err := mapstructure.Decode(result, &fields); err != nil {
		return nil, false
	}
	v, ok := fields[field]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Complete records the result of the active stage. The first completion of a stage
// is authoritative: repeated, conflicting or out-of-turn calls are rejected and logged.
// It never blocks on the flow.
func (o *Orchestrator) Complete(ctx context.Context, id domain.StageID, args map[string]any) error {
	o.mu.Lock()
	t := o.active
	group := o.group
	if o.results.Has(id) {
		o.mu.Unlock()
		return o.reject(ctx, group, id, fmt.Errorf("%w: %s", domain.ErrStageAlreadyCompleted, id))
	}
	if t == nil || t.spec.ID != id || t.completed {
		o.mu.Unlock()
		return o.reject(ctx, group, id, fmt.Errorf("%w: %s", domain.ErrStageNotActive, id))
	}

	merged := make(map[string]any, len(t.spec.Defaults)+len(args))
	for k, v := range t.spec.Defaults {
		merged[k] = v
	}
	for k, v := range args {
		merged[k] = v
	}
	result, err := decodeResult(id, merged)
	if err != nil {
		o.mu.Unlock()
		o.logger.Warn("invalid stage result", "stage", id, "err", err)
		return fmt.Errorf("%w: %s: %w", domain.ErrInvalidResult, id, err)
	}
	if err := o.results.Record(id, result); err != nil {
		o.mu.Unlock()
		return o.reject(ctx, group, id, err)
	}
	t.completed = true
	close(t.done)
	o.mu.Unlock()

	o.logger.Info("stage completed", "group", t.group, "stage", id)
	if o.hooks.OnStageComplete != nil {
		evt := o.stageEvent(domain.EventStageComplete, t.group, id)
		evt.Result = domain.CloneResult(result)
		o.hooks.OnStageComplete(ctx, evt)
	}
	return nil
}

func (o *Orchestrator) reject(ctx context.Context, group string, id domain.StageID, cause error) error {
	o.logger.Warn("completion rejected", "group", group, "stage", id, "err", cause)
	if o.hooks.OnCompletionRejected != nil {
		evt := o.stageEvent(domain.EventCompletionRejected, group, id)
		evt.Reason = cause.Error()
		o.hooks.OnCompletionRejected(ctx, evt)
	}
	return cause
}

func decodeResult(id domain.StageID, args map[string]any) (any, error) {
	target := domain.NewResult(id)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(args); err != nil {
		return nil, err
	}
	return reflect.ValueOf(target).Elem().Interface(), nil
}

// RequestCallback abandons the running group and jumps to the callback group.
// It reports false when the script has no callback group, the callback group is
// already running or no stage is active.
func (o *Orchestrator) RequestCallback(_ context.Context, reason string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.script.Callback == "" || o.active == nil || o.group == o.script.Callback {
		return false
	}
	select {
	case o.jump <- reason:
	default:
	}
	return true
}

// Observe hands a user turn to the policy and applies its decision.
// When the decision moves the flow, Observe returns after the next stage has been entered.
func (o *Orchestrator) Observe(ctx context.Context, u domain.Utterance) (Decision, error) {
	o.mu.Lock()
	t := o.active
	o.mu.Unlock()
	if t == nil {
		return Decision{Action: ActionStay, Reason: "no active stage"}, nil
	}

	d, err := o.policy.Decide(ctx, Turn{Group: t.group, Stage: t.spec, Utterance: u})
	if err != nil {
		return d, fmt.Errorf("policy decide failed: %w", err)
	}
	o.logger.Debug("turn decided", "stage", t.spec.ID, "action", d.Action, "reason", d.Reason)

	switch d.Action {
	case ActionComplete:
		if d.Stage == "" {
			d.Stage = t.spec.ID
		}
		if err := o.Complete(ctx, d.Stage, d.Result); err != nil {
			return d, err
		}
		return d, wait(ctx, t)
	case ActionCallback:
		if !o.RequestCallback(ctx, d.Reason) {
			d.Action = ActionStay
			return d, nil
		}
		return d, wait(ctx, t)
	}
	return d, nil
}

func wait(ctx context.Context, t *task) error {
	select {
	case <-t.left:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the running group and stage, if any.
func (o *Orchestrator) Active() (string, StageSpec, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return "", StageSpec{}, false
	}
	return o.active.group, o.active.spec, true
}

// Result returns the flow result once the terminal group has resolved.
func (o *Orchestrator) Result() (*domain.FlowResult, error) {
	if !o.results.Finalized() {
		return nil, domain.ErrFlowNotFinalized
	}
	return o.results.Snapshot(), nil
}

// Partial returns the stages completed so far. Used for reporting at session end.
func (o *Orchestrator) Partial() *domain.FlowResult {
	return o.results.Snapshot()
}

func (o *Orchestrator) stageEvent(typ domain.EventType, group string, id domain.StageID) *domain.StageEvent {
	return &domain.StageEvent{
		EventBase: domain.EventBase{Timestamp: o.now(), Type: typ, SessionID: o.sessionID},
		Group:     group,
		Stage:     id,
	}
}
