package orchestrator_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeSpeaker struct {
	mu   sync.Mutex
	said []domain.SpeakRequest
	err  error
}

func (f *fakeSpeaker) Say(_ context.Context, req domain.SpeakRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.said = append(f.said, req)
	return f.err
}

func (f *fakeSpeaker) Speaking() bool { return false }

func (f *fakeSpeaker) requests() []domain.SpeakRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.SpeakRequest, len(f.said))
	copy(out, f.said)
	return out
}

type runResult struct {
	result *domain.FlowResult
	err    error
}

func start(t *testing.T, ctx context.Context, o *orchestrator.Orchestrator) <-chan runResult {
	t.Helper()
	ch := make(chan runResult, 1)
	go func() {
		res, err := o.Run(ctx)
		ch <- runResult{res, err}
	}()
	return ch
}

func waitStage(t *testing.T, o *orchestrator.Orchestrator, id domain.StageID) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, spec, ok := o.Active()
		return ok && spec.ID == id
	}, time.Second, time.Millisecond, "stage %s never became active", id)
}

func complete(t *testing.T, o *orchestrator.Orchestrator, id domain.StageID, args map[string]any) {
	t.Helper()
	waitStage(t, o, id)
	require.NoError(t, o.Complete(context.Background(), id, args))
}

func finish(t *testing.T, ch <-chan runResult) runResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(time.Second):
		t.Fatal("orchestrator did not finish")
		return runResult{}
	}
}

func newDefault(t *testing.T, opts ...orchestrator.Option) (*orchestrator.Orchestrator, *fakeSpeaker) {
	t.Helper()
	sp := &fakeSpeaker{}
	o, err := orchestrator.New(orchestrator.DefaultScript(), sp, opts...)
	require.NoError(t, err)
	return o, sp
}

func TestRun_TreatmentStartedSkipsTimeline(t *testing.T) {
	o, _ := newDefault(t)
	ch := start(t, context.Background(), o)

	complete(t, o, domain.StageOpening, map[string]any{"good_time": true})
	complete(t, o, domain.StageConfirmation, nil)
	complete(t, o, domain.StageDiagnosis, map[string]any{"cancer_type": "breast", "stage_known": true})
	complete(t, o, domain.StageTreatment, map[string]any{"started": true, "hospital": "city hospital"})
	complete(t, o, domain.StageGeography, map[string]any{"where_from": "pune", "willing_to_travel_answer": "yes"})
	complete(t, o, domain.StageClosing, nil)

	r := finish(t, ch)
	require.NoError(t, r.err)
	assert.Equal(t, []domain.StageID{
		domain.StageOpening, domain.StageConfirmation, domain.StageDiagnosis,
		domain.StageTreatment, domain.StageGeography, domain.StageClosing,
	}, r.result.Keys())
	assert.False(t, r.result.Has(domain.StageTimeline))

	treatment, _ := r.result.Get(domain.StageTreatment)
	assert.Equal(t, domain.TreatmentResult{Started: true, Hospital: "city hospital"}, treatment)
	confirmation, _ := r.result.Get(domain.StageConfirmation)
	assert.Equal(t, domain.ConfirmationResult{Aware: true}, confirmation, "defaults fill missing args")
	closing, _ := r.result.Get(domain.StageClosing)
	assert.Equal(t, domain.ClosingResult{Done: true}, closing)

	final, err := o.Result()
	require.NoError(t, err)
	assert.True(t, final.Finalized())
}

func TestRun_TreatmentNotStartedAsksTimeline(t *testing.T) {
	o, _ := newDefault(t)
	ch := start(t, context.Background(), o)

	complete(t, o, domain.StageOpening, map[string]any{"good_time": "true"})
	complete(t, o, domain.StageConfirmation, nil)
	complete(t, o, domain.StageDiagnosis, nil)
	complete(t, o, domain.StageTreatment, map[string]any{"started": false})
	complete(t, o, domain.StageTimeline, map[string]any{"timeline": "next month"})
	complete(t, o, domain.StageGeography, nil)
	complete(t, o, domain.StageClosing, nil)

	r := finish(t, ch)
	require.NoError(t, r.err)
	timeline, ok := r.result.Get(domain.StageTimeline)
	require.True(t, ok)
	assert.Equal(t, domain.TimelineResult{Timeline: "next month"}, timeline)
	assert.Equal(t, 7, r.result.Len())
}

func TestRun_NotAGoodTimeTakesCallbackGroup(t *testing.T) {
	o, sp := newDefault(t)
	ch := start(t, context.Background(), o)

	complete(t, o, domain.StageOpening, map[string]any{"good_time": false})
	complete(t, o, domain.StageScheduleCallback, map[string]any{"callback_preference": "tomorrow evening"})
	waitStage(t, o, domain.StageClosing)
	group, _, _ := o.Active()
	assert.Equal(t, orchestrator.GroupCallback, group)
	require.NoError(t, o.Complete(context.Background(), domain.StageClosing, nil))

	r := finish(t, ch)
	require.NoError(t, r.err)
	assert.Equal(t, []domain.StageID{
		domain.StageOpening, domain.StageScheduleCallback, domain.StageClosing,
	}, r.result.Keys())

	reqs := sp.requests()
	require.NotEmpty(t, reqs)
	assert.Contains(t, reqs[len(reqs)-1].Instructions, "call back at their preferred time")
}

func TestComplete_FirstResultIsAuthoritative(t *testing.T) {
	var rejected atomic.Int32
	hooks := domain.LifecycleHooks{
		OnCompletionRejected: func(context.Context, *domain.StageEvent) { rejected.Add(1) },
	}
	o, _ := newDefault(t, orchestrator.WithLifecycleHooks(hooks))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := start(t, ctx, o)

	complete(t, o, domain.StageOpening, map[string]any{"good_time": true})
	err := o.Complete(ctx, domain.StageOpening, map[string]any{"good_time": false})
	require.ErrorIs(t, err, domain.ErrStageAlreadyCompleted)

	got, _ := o.Partial().Get(domain.StageOpening)
	assert.Equal(t, domain.OpeningResult{GoodTime: true}, got)
	assert.Equal(t, int32(1), rejected.Load())

	waitStage(t, o, domain.StageConfirmation)
	cancel()
	r := finish(t, ch)
	assert.ErrorIs(t, r.err, context.Canceled)
}

func TestComplete_RecordedResultIsolatedFromHooks(t *testing.T) {
	script := orchestrator.Script{
		Start:  "only",
		Groups: []orchestrator.GroupSpec{{ID: "only", Stages: []orchestrator.StageSpec{{ID: "custom"}}}},
	}
	hooks := domain.LifecycleHooks{
		OnStageComplete: func(_ context.Context, e *domain.StageEvent) {
			if m, ok := e.Result.(map[string]any); ok {
				m["answer"] = "overwritten"
			}
		},
	}
	o, err := orchestrator.New(script, &fakeSpeaker{}, orchestrator.WithLifecycleHooks(hooks))
	require.NoError(t, err)
	ch := start(t, context.Background(), o)

	args := map[string]any{"answer": "first", "extra": map[string]any{"k": "v"}}
	complete(t, o, "custom", args)
	args["answer"] = "caller changed"

	r := finish(t, ch)
	require.NoError(t, r.err)

	partial, _ := o.Partial().Get("custom")
	assert.Equal(t, "first", partial.(map[string]any)["answer"])

	final, _ := r.result.Get("custom")
	final.(map[string]any)["extra"].(map[string]any)["k"] = "changed"
	again, _ := r.result.Get("custom")
	assert.Equal(t, map[string]any{"answer": "first", "extra": map[string]any{"k": "v"}}, again)
}

func TestComplete_InactiveStageRejected(t *testing.T) {
	o, _ := newDefault(t)
	ctx, cancel := context.WithCancel(context.Background())
	ch := start(t, ctx, o)

	waitStage(t, o, domain.StageOpening)
	err := o.Complete(ctx, domain.StageDiagnosis, map[string]any{"summary": "early"})
	require.ErrorIs(t, err, domain.ErrStageNotActive)
	assert.False(t, o.Partial().Has(domain.StageDiagnosis))

	cancel()
	finish(t, ch)
}

func TestComplete_InvalidResultKeepsStageActive(t *testing.T) {
	o, _ := newDefault(t)
	ctx, cancel := context.WithCancel(context.Background())
	ch := start(t, ctx, o)

	waitStage(t, o, domain.StageOpening)
	err := o.Complete(ctx, domain.StageOpening, map[string]any{"good_time": "perhaps"})
	require.ErrorIs(t, err, domain.ErrInvalidResult)

	_, spec, ok := o.Active()
	require.True(t, ok)
	assert.Equal(t, domain.StageOpening, spec.ID)
	require.NoError(t, o.Complete(ctx, domain.StageOpening, map[string]any{"good_time": true}))

	cancel()
	finish(t, ch)
}

func TestRun_EntryRunsOncePerStage(t *testing.T) {
	o, sp := newDefault(t, orchestrator.WithVars(map[string]string{"patient_name": "Asha"}))
	ctx, cancel := context.WithCancel(context.Background())
	ch := start(t, ctx, o)

	complete(t, o, domain.StageOpening, nil)
	complete(t, o, domain.StageConfirmation, nil)
	waitStage(t, o, domain.StageDiagnosis)

	require.Eventually(t, func() bool { return len(sp.requests()) == 3 }, time.Second, time.Millisecond)
	reqs := sp.requests()
	assert.Contains(t, reqs[0].Text, "May I speak with Asha?")
	assert.NotContains(t, reqs[0].Text, "good time")
	assert.True(t, reqs[0].AllowInterruptions)
	assert.Contains(t, reqs[1].Text, "discussed the report with your doctor")
	assert.Empty(t, reqs[2].Text)
	assert.Contains(t, reqs[2].Instructions, "type and stage")

	cancel()
	finish(t, ch)
	assert.Len(t, sp.requests(), 3)
}

func TestRun_OpeningWithoutName(t *testing.T) {
	o, sp := newDefault(t)
	ctx, cancel := context.WithCancel(context.Background())
	ch := start(t, ctx, o)

	waitStage(t, o, domain.StageOpening)
	require.Eventually(t, func() bool { return len(sp.requests()) == 1 }, time.Second, time.Millisecond)
	assert.Contains(t, sp.requests()[0].Text, "Is this a good time to talk?")

	cancel()
	finish(t, ch)
}

func TestRun_SpeechFailureDoesNotStopFlow(t *testing.T) {
	sp := &fakeSpeaker{err: errors.New("tts down")}
	o, err := orchestrator.New(orchestrator.DefaultScript(), sp)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	ch := start(t, ctx, o)

	complete(t, o, domain.StageOpening, nil)
	waitStage(t, o, domain.StageConfirmation)

	cancel()
	finish(t, ch)
}

func TestRequestCallback_AbandonsGroup(t *testing.T) {
	o, _ := newDefault(t)
	ch := start(t, context.Background(), o)

	complete(t, o, domain.StageOpening, nil)
	complete(t, o, domain.StageConfirmation, nil)
	waitStage(t, o, domain.StageDiagnosis)

	require.True(t, o.RequestCallback(context.Background(), "busy"))
	waitStage(t, o, domain.StageScheduleCallback)
	assert.False(t, o.RequestCallback(context.Background(), "busy"), "already in the callback group")

	complete(t, o, domain.StageScheduleCallback, nil)
	complete(t, o, domain.StageClosing, nil)

	r := finish(t, ch)
	require.NoError(t, r.err)
	assert.Equal(t, []domain.StageID{
		domain.StageOpening, domain.StageConfirmation, domain.StageScheduleCallback, domain.StageClosing,
	}, r.result.Keys())
	assert.False(t, r.result.Has(domain.StageDiagnosis))
}

func TestRun_CancelLeavesStagesAbsent(t *testing.T) {
	defer goleak.VerifyNone(t)

	o, _ := newDefault(t)
	ctx, cancel := context.WithCancel(context.Background())
	ch := start(t, ctx, o)

	complete(t, o, domain.StageOpening, nil)
	waitStage(t, o, domain.StageConfirmation)
	cancel()

	r := finish(t, ch)
	require.ErrorIs(t, r.err, context.Canceled)
	assert.Nil(t, r.result)

	partial := o.Partial()
	assert.Equal(t, []domain.StageID{domain.StageOpening}, partial.Keys())
	assert.False(t, partial.Finalized())

	_, err := o.Result()
	assert.ErrorIs(t, err, domain.ErrFlowNotFinalized)
	_, _, active := o.Active()
	assert.False(t, active)
}

func TestRun_Twice(t *testing.T) {
	o, _ := newDefault(t)
	ctx, cancel := context.WithCancel(context.Background())
	ch := start(t, ctx, o)
	waitStage(t, o, domain.StageOpening)

	_, err := o.Run(ctx)
	assert.ErrorIs(t, err, orchestrator.ErrAlreadyRunning)

	cancel()
	finish(t, ch)
}

func TestRun_MissingBranchFieldUsesDefault(t *testing.T) {
	script := orchestrator.Script{
		Start: "ask",
		Groups: []orchestrator.GroupSpec{
			{ID: "ask", Stages: []orchestrator.StageSpec{{ID: "survey"}}},
			{ID: "left", Stages: []orchestrator.StageSpec{{ID: "left_stage"}}},
			{ID: "right", Stages: []orchestrator.StageSpec{{ID: "right_stage"}}},
		},
		Routes: []orchestrator.Route{{
			After:   "ask",
			Stage:   "survey",
			Field:   "choice",
			Cases:   map[string]string{"left": "left"},
			Default: "right",
		}},
	}
	o, err := orchestrator.New(script, &fakeSpeaker{})
	require.NoError(t, err)
	ch := start(t, context.Background(), o)

	complete(t, o, "survey", map[string]any{"note": "no choice given"})
	complete(t, o, "right_stage", nil)

	r := finish(t, ch)
	require.NoError(t, r.err)
	assert.Equal(t, []domain.StageID{"survey", "right_stage"}, r.result.Keys())
	survey, _ := r.result.Get("survey")
	assert.Equal(t, map[string]any{"note": "no choice given"}, survey)
}

func TestWithRecords_SkipsCompletedStages(t *testing.T) {
	o, _ := newDefault(t, orchestrator.WithRecords([]domain.StageRecord{
		{Stage: domain.StageOpening, Result: domain.OpeningResult{GoodTime: true}},
	}))
	ctx, cancel := context.WithCancel(context.Background())
	ch := start(t, ctx, o)

	waitStage(t, o, domain.StageConfirmation)
	group, _, _ := o.Active()
	assert.Equal(t, orchestrator.GroupCollect, group)

	cancel()
	finish(t, ch)
}

func TestObserve_RulePolicyDrivesFlow(t *testing.T) {
	o, _ := newDefault(t)
	ctx := context.Background()
	ch := start(t, ctx, o)
	waitStage(t, o, domain.StageOpening)

	say := func(text string) orchestrator.Decision {
		t.Helper()
		d, err := o.Observe(ctx, domain.Utterance{Text: text, At: time.Now()})
		require.NoError(t, err)
		return d
	}

	d := say("who is this?")
	assert.Equal(t, orchestrator.ActionStay, d.Action)
	assert.Equal(t, string(domain.SignalClarification), d.Reason)

	assert.Equal(t, orchestrator.ActionComplete, say("yes sure, go ahead").Action)
	assert.Equal(t, orchestrator.ActionComplete, say("yes I have discussed it with my doctor").Action)
	assert.Equal(t, orchestrator.ActionComplete, say("it is breast cancer stage 2").Action)
	assert.Equal(t, orchestrator.ActionComplete, say("not yet, we are planning").Action)
	assert.Equal(t, orchestrator.ActionComplete, say("probably next month").Action)
	assert.Equal(t, orchestrator.ActionComplete, say("I am from Pune and yes I can travel").Action)
	assert.Equal(t, orchestrator.ActionComplete, say("thank you").Action)

	r := finish(t, ch)
	require.NoError(t, r.err)

	diagnosis, _ := r.result.Get(domain.StageDiagnosis)
	assert.Equal(t, "breast", diagnosis.(domain.DiagnosisResult).CancerType)
	assert.True(t, diagnosis.(domain.DiagnosisResult).StageKnown)
	treatment, _ := r.result.Get(domain.StageTreatment)
	assert.False(t, treatment.(domain.TreatmentResult).Started)
	assert.True(t, r.result.Has(domain.StageTimeline))

	d = say("hello?")
	assert.Equal(t, orchestrator.ActionStay, d.Action, "nothing is active after the flow ends")
}

func TestObserve_BusyJumpsToCallback(t *testing.T) {
	o, _ := newDefault(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := start(t, ctx, o)

	complete(t, o, domain.StageOpening, nil)
	waitStage(t, o, domain.StageConfirmation)

	d, err := o.Observe(ctx, domain.Utterance{Text: "I am busy, call me back"})
	require.NoError(t, err)
	assert.Equal(t, orchestrator.ActionCallback, d.Action)
	_, spec, _ := o.Active()
	assert.Equal(t, domain.StageScheduleCallback, spec.ID)

	d, err = o.Observe(ctx, domain.Utterance{Text: "tomorrow after 5"})
	require.NoError(t, err)
	assert.Equal(t, orchestrator.ActionComplete, d.Action)

	cancel()
	finish(t, ch)
	got, _ := o.Partial().Get(domain.StageScheduleCallback)
	assert.Equal(t, "tomorrow after 5", got.(domain.ScheduleCallbackResult).CallbackPreference)
}

func TestObserve_ModelPolicyWaitsForCompletion(t *testing.T) {
	o, _ := newDefault(t, orchestrator.WithPolicy(orchestrator.ModelPolicy{}))
	ctx, cancel := context.WithCancel(context.Background())
	ch := start(t, ctx, o)
	waitStage(t, o, domain.StageOpening)

	d, err := o.Observe(ctx, domain.Utterance{Text: "yes"})
	require.NoError(t, err)
	assert.Equal(t, orchestrator.ActionStay, d.Action)
	assert.False(t, o.Partial().Has(domain.StageOpening))

	cancel()
	finish(t, ch)
}

func TestNew_Errors(t *testing.T) {
	_, err := orchestrator.New(orchestrator.DefaultScript(), nil)
	assert.ErrorIs(t, err, orchestrator.ErrNoSpeaker)

	bad := orchestrator.DefaultScript()
	bad.Groups[0].Stages[0].Entry.Say = "{{if .patient_name}"
	_, err = orchestrator.New(bad, &fakeSpeaker{})
	assert.ErrorIs(t, err, orchestrator.ErrInvalidScript)
}

func TestScript_Validate(t *testing.T) {
	require.NoError(t, orchestrator.DefaultScript().Validate())

	tests := []struct {
		name   string
		mutate func(*orchestrator.Script)
	}{
		{"unknown start", func(s *orchestrator.Script) { s.Start = "nowhere" }},
		{"unknown callback", func(s *orchestrator.Script) { s.Callback = "nowhere" }},
		{"duplicate group", func(s *orchestrator.Script) { s.Groups = append(s.Groups, s.Groups[0]) }},
		{"empty group", func(s *orchestrator.Script) { s.Groups[0].Stages = nil }},
		{"route target", func(s *orchestrator.Script) { s.Routes[0].Cases["true"] = "nowhere" }},
		{"route default", func(s *orchestrator.Script) { s.Routes[1].Default = "nowhere" }},
		{"route stage", func(s *orchestrator.Script) { s.Routes[0].Stage = "unknown" }},
		{"two routes", func(s *orchestrator.Script) { s.Routes = append(s.Routes, s.Routes[0]) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := orchestrator.DefaultScript()
			tt.mutate(&s)
			assert.ErrorIs(t, s.Validate(), orchestrator.ErrInvalidScript)
		})
	}
}

func TestStarted_ClosedOnFirstStage(t *testing.T) {
	o, _ := newDefault(t)
	select {
	case <-o.Started():
		t.Fatal("started before Run")
	default:
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch := start(t, ctx, o)
	select {
	case <-o.Started():
	case <-time.After(time.Second):
		t.Fatal("never started")
	}
	_, spec, ok := o.Active()
	require.True(t, ok)
	assert.Equal(t, domain.StageOpening, spec.ID)

	cancel()
	finish(t, ch)
}
