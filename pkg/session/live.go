package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/orchestrator"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/aretw0/callflow/pkg/watchdog"
)

// LiveConfig describes one connected call.
type LiveConfig struct {
	// ID is the call (room) name.
	ID string
	// Metadata is caller-supplied data. String values are visible to entry templates.
	Metadata map[string]any
	// Script defaults to orchestrator.DefaultScript.
	Script *orchestrator.Script
	// Policy defaults to a rule policy over the default classifier.
	Policy orchestrator.Policy
	// Speaker is the speech collaborator. Required.
	Speaker ports.Speaker
	// Reporter receives the session-end report. Optional.
	Reporter ports.Reporter
	// Watchdog timings. Zero fields keep watchdog.DefaultConfig.
	Watchdog watchdog.Config
	// Farewell is the generated-reply instruction spoken once the flow finishes.
	// Defaults to DefaultFarewell.
	Farewell string
	Hooks    domain.LifecycleHooks
	Logger   *slog.Logger
	Clock    func() time.Time
}

// DefaultFarewell is spoken when the stage flow finishes and the caller is still on the line.
const DefaultFarewell = "Flow complete. Respond warmly to anything the caller says and say goodbye."

// Live is the explicit context of one connected call.
type Live struct {
	ID       string
	Metadata map[string]any

	orch     *orchestrator.Orchestrator
	dog      *watchdog.Watchdog
	timer    *watchdog.SilenceTimer
	speaker  *transcribingSpeaker
	reporter ports.Reporter
	farewell string
	finished chan struct{}
	logger   *slog.Logger
	now      func() time.Time

	turnMu sync.Mutex

	mu         sync.Mutex
	transcript []domain.TranscriptLine
	startedAt  time.Time
	endedAt    time.Time
}

// NewLive wires the orchestrator, watchdog and transcript of a call.
func NewLive(cfg LiveConfig) (*Live, error) {
	if cfg.ID == "" {
		return nil, ErrEmptyID
	}
	if cfg.Speaker == nil {
		return nil, orchestrator.ErrNoSpeaker
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	script := orchestrator.DefaultScript()
	if cfg.Script != nil {
		script = *cfg.Script
	}

	l := &Live{
		ID:        cfg.ID,
		Metadata:  make(map[string]any, len(cfg.Metadata)),
		reporter:  cfg.Reporter,
		farewell:  cfg.Farewell,
		finished:  make(chan struct{}),
		logger:    logger.With("session_id", cfg.ID),
		now:       now,
		startedAt: now().UTC(),
	}
	if l.farewell == "" {
		l.farewell = DefaultFarewell
	}
	vars := make(map[string]string)
	for k, v := range cfg.Metadata {
		l.Metadata[k] = v
		if s, ok := v.(string); ok {
			vars[k] = s
		}
	}
	l.timer = watchdog.NewSilenceTimer(now())
	l.speaker = &transcribingSpeaker{inner: cfg.Speaker, live: l}

	opts := []orchestrator.Option{
		orchestrator.WithVars(vars),
		orchestrator.WithLifecycleHooks(cfg.Hooks),
		orchestrator.WithSessionID(cfg.ID),
		orchestrator.WithLogger(logger),
		orchestrator.WithClock(now),
	}
	if cfg.Policy != nil {
		opts = append(opts, orchestrator.WithPolicy(cfg.Policy))
	}
	orch, err := orchestrator.New(script, l.speaker, opts...)
	if err != nil {
		return nil, err
	}
	l.orch = orch

	l.dog = watchdog.New(l.timer, l.speaker,
		watchdog.WithConfig(cfg.Watchdog),
		watchdog.WithLifecycleHooks(cfg.Hooks),
		watchdog.WithSessionID(cfg.ID),
		watchdog.WithLogger(logger),
		watchdog.WithClock(now),
	)
	return l, nil
}

// Run drives the stage flow and the idle watchdog for the life of the call.
// When the flow finalizes the farewell is spoken and the call stays open, watchdog
// included, until ctx is done. A finalized result comes back with a nil error;
// a call cut short returns its partial result and ctx.Err(). The session-end
// report is delivered in both cases.
func (l *Live) Run(ctx context.Context) (*domain.FlowResult, error) {
	g, gctx := errgroup.WithContext(ctx)

	var result *domain.FlowResult
	g.Go(func() error {
		res, err := l.orch.Run(gctx)
		result = res
		if err != nil {
			return err
		}
		close(l.finished)
		l.logger.Info("call flow finished, waiting for hang-up", "stages", res.Len())
		l.sayFarewell(gctx)
		<-gctx.Done()
		return nil
	})
	g.Go(func() error {
		return l.dog.Run(gctx)
	})
	err := g.Wait()
	if result != nil && result.Finalized() {
		err = nil
	}

	l.mu.Lock()
	l.endedAt = l.now().UTC()
	l.mu.Unlock()

	if err != nil {
		l.logger.Info("call ended before the flow finished", "err", err)
	} else {
		l.logger.Info("call ended", "stages", result.Len())
	}
	l.deliver(context.WithoutCancel(ctx))
	return result, err
}

func (l *Live) sayFarewell(ctx context.Context) {
	err := l.speaker.Say(ctx, domain.SpeakRequest{Instructions: l.farewell, AllowInterruptions: true})
	if err != nil && ctx.Err() == nil {
		l.logger.Warn("failed to speak farewell", "err", err)
	}
}

func (l *Live) deliver(ctx context.Context) {
	if l.reporter == nil {
		return
	}
	if err := l.reporter.Report(ctx, l.Report()); err != nil {
		l.logger.Warn("failed to deliver session report", "err", err)
	}
}

// HandleTurn processes one completed user utterance. Turns of the same call are serialized.
func (l *Live) HandleTurn(ctx context.Context, text string) (orchestrator.Decision, error) {
	at := l.now()
	l.timer.Touch(at)
	l.appendLine(domain.RoleUser, text, at)

	l.turnMu.Lock()
	defer l.turnMu.Unlock()
	return l.orch.Observe(ctx, domain.Utterance{Text: text, At: at})
}

// Complete is the completion trigger for the external reasoning collaborator.
func (l *Live) Complete(ctx context.Context, stage domain.StageID, args map[string]any) error {
	return l.orch.Complete(ctx, stage, args)
}

// NoteSpeech records speech activity that did not come through HandleTurn,
// such as the caller starting to talk or a generated agent reply. Text may be empty.
func (l *Live) NoteSpeech(role, text string) {
	at := l.now()
	l.timer.Touch(at)
	if text != "" {
		l.appendLine(role, text, at)
	}
}

// Finished is closed once the stage flow has finalized. The call itself stays
// open until Run's context is done.
func (l *Live) Finished() <-chan struct{} {
	return l.finished
}

// Started is closed once the first stage of the call is active.
func (l *Live) Started() <-chan struct{} {
	return l.orch.Started()
}

// Active returns the running group and stage.
func (l *Live) Active() (string, orchestrator.StageSpec, bool) {
	return l.orch.Active()
}

// Orchestrator exposes the stage flow of the call.
func (l *Live) Orchestrator() *orchestrator.Orchestrator {
	return l.orch
}

// Report builds the session-end report from the transcript and the partial flow result.
func (l *Live) Report() *domain.Report {
	l.mu.Lock()
	defer l.mu.Unlock()

	transcript := make([]domain.TranscriptLine, len(l.transcript))
	copy(transcript, l.transcript)
	metadata := make(map[string]any, len(l.Metadata))
	for k, v := range l.Metadata {
		metadata[k] = v
	}
	ended := l.endedAt
	if ended.IsZero() {
		ended = l.now().UTC()
	}
	return &domain.Report{
		RoomName:    l.ID,
		Transcript:  transcript,
		FlowResults: l.orch.Partial(),
		Metadata:    metadata,
		StartedAt:   l.startedAt,
		EndedAt:     ended,
	}
}

func (l *Live) appendLine(role, text string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transcript = append(l.transcript, domain.TranscriptLine{Role: role, Text: text, At: at.UTC()})
}

// transcribingSpeaker records literal agent lines and counts them as speech activity.
type transcribingSpeaker struct {
	inner ports.Speaker
	live  *Live
}

func (s *transcribingSpeaker) Say(ctx context.Context, req domain.SpeakRequest) error {
	at := s.live.now()
	s.live.timer.Touch(at)
	if req.Text != "" {
		s.live.appendLine(domain.RoleAgent, req.Text, at)
	}
	return s.inner.Say(ctx, req)
}

func (s *transcribingSpeaker) Speaking() bool {
	return s.inner.Speaking()
}
