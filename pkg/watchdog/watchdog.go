package watchdog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
)

// DefaultPrompt is the re-engagement line.
const DefaultPrompt = "Are you still there?"

// Config holds the watchdog timings.
type Config struct {
	Interval  time.Duration `yaml:"interval"`
	Threshold time.Duration `yaml:"threshold"`
	Cooldown  time.Duration `yaml:"cooldown"`
	// NoCooldown makes a zero Cooldown explicit: idle time restarts right after firing.
	NoCooldown bool   `yaml:"no_cooldown"`
	Prompt     string `yaml:"prompt"`
}

// DefaultConfig checks every second, fires after 10s of silence and holds 2s afterwards.
func DefaultConfig() Config {
	return Config{
		Interval:  time.Second,
		Threshold: 10 * time.Second,
		Cooldown:  2 * time.Second,
		Prompt:    DefaultPrompt,
	}
}

// Validate rejects timings that would make the loop spin or never fire.
func (c Config) Validate() error {
	var errs []error
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %s", c.Interval))
	}
	if c.Threshold <= 0 {
		errs = append(errs, fmt.Errorf("threshold must be positive, got %s", c.Threshold))
	}
	if c.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("cooldown must not be negative, got %s", c.Cooldown))
	}
	if c.NoCooldown && c.Cooldown > 0 {
		errs = append(errs, fmt.Errorf("no_cooldown conflicts with cooldown %s", c.Cooldown))
	}
	if c.Prompt == "" {
		errs = append(errs, errors.New("prompt must not be empty"))
	}
	return errors.Join(errs...)
}

// Watchdog is the idle re-engagement loop of one call.
type Watchdog struct {
	cfg     Config
	timer   *SilenceTimer
	speaker ports.Speaker
	hooks   domain.LifecycleHooks
	logger  *slog.Logger
	now     func() time.Time
	session string
}

// Option configures the Watchdog.
type Option func(*Watchdog)

// WithConfig overrides the default timings. Zero fields keep their defaults;
// set NoCooldown to run without a cool-down.
func WithConfig(cfg Config) Option {
	return func(w *Watchdog) {
		if cfg.Interval > 0 {
			w.cfg.Interval = cfg.Interval
		}
		if cfg.Threshold > 0 {
			w.cfg.Threshold = cfg.Threshold
		}
		switch {
		case cfg.NoCooldown:
			w.cfg.Cooldown = 0
			w.cfg.NoCooldown = true
		case cfg.Cooldown > 0:
			w.cfg.Cooldown = cfg.Cooldown
		}
		if cfg.Prompt != "" {
			w.cfg.Prompt = cfg.Prompt
		}
	}
}

// WithLogger configures a logger for the Watchdog.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watchdog) {
		w.logger = logger
	}
}

// WithLifecycleHooks registers the OnReengage hook.
func WithLifecycleHooks(h domain.LifecycleHooks) Option {
	return func(w *Watchdog) {
		w.hooks = h
	}
}

// WithClock overrides the wall clock used by Run.
func WithClock(now func() time.Time) Option {
	return func(w *Watchdog) {
		w.now = now
	}
}

// WithSessionID tags log lines and events.
func WithSessionID(id string) Option {
	return func(w *Watchdog) {
		w.session = id
	}
}

// New creates a Watchdog sharing timer with turn processing.
func New(timer *SilenceTimer, speaker ports.Speaker, opts ...Option) *Watchdog {
	w := &Watchdog{
		cfg:     DefaultConfig(),
		timer:   timer,
		speaker: speaker,
		logger:  logging.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Config returns the effective timings.
func (w *Watchdog) Config() Config {
	return w.cfg
}

// Run ticks until ctx is done. It always returns nil: a stopped watchdog is not a failure.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.logger.Debug("Watchdog started", "session_id", w.session, "threshold", w.cfg.Threshold)
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Watchdog stopped", "session_id", w.session)
			return nil
		case <-ticker.C:
			w.Tick(ctx, w.now())
		}
	}
}

// Tick runs one check at now and reports whether the re-engagement line was attempted.
// Ongoing agent speech counts as speech. After firing, the timer is pushed to
// now+cooldown so idle time restarts from zero once the cool-down ends.
func (w *Watchdog) Tick(ctx context.Context, now time.Time) bool {
	if w.speaker.Speaking() {
		w.timer.Touch(now)
		return false
	}

	idle := w.timer.Idle(now)
	if idle < w.cfg.Threshold {
		return false
	}

	w.timer.Touch(now.Add(w.cfg.Cooldown))

	ev := &domain.ReengageEvent{
		EventBase: domain.EventBase{Timestamp: now, Type: domain.EventReengage, SessionID: w.session},
		Idle:      idle,
	}
	err := w.speaker.Say(ctx, domain.SpeakRequest{Text: w.cfg.Prompt, AllowInterruptions: true})
	if err != nil {
		// Abandon this attempt; the next tick measures again.
		ev.Err = err.Error()
		w.logger.Warn("Re-engagement failed", "session_id", w.session, "idle", idle, "err", err)
	} else {
		w.logger.Info("Re-engaged silent caller", "session_id", w.session, "idle", idle)
	}
	if w.hooks.OnReengage != nil {
		w.hooks.OnReengage(ctx, ev)
	}
	return true
}
