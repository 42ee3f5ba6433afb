package watchdog_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/watchdog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeSpeaker struct {
	mu       sync.Mutex
	said     []domain.SpeakRequest
	speaking atomic.Bool
	err      error
}

func (f *fakeSpeaker) Say(_ context.Context, req domain.SpeakRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.said = append(f.said, req)
	return f.err
}

func (f *fakeSpeaker) Speaking() bool { return f.speaking.Load() }

func (f *fakeSpeaker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.said)
}

var t0 = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return t0.Add(time.Duration(sec * float64(time.Second)))
}

func TestSilenceTimer_RunningMaximum(t *testing.T) {
	timer := watchdog.NewSilenceTimer(at(0))
	timer.Touch(at(5))
	timer.Touch(at(3))
	assert.Equal(t, at(5), timer.Last().UTC())
	assert.Equal(t, 2*time.Second, timer.Idle(at(7)))
	assert.Zero(t, timer.Idle(at(4)), "idle is never negative")
}

func TestSilenceTimer_ConcurrentTouches(t *testing.T) {
	timer := watchdog.NewSilenceTimer(at(0))
	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(sec int) {
			defer wg.Done()
			timer.Touch(at(float64(sec)))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, at(100), timer.Last().UTC())
}

func TestTick_FiresOnceThenHoldsCooldown(t *testing.T) {
	speaker := &fakeSpeaker{}
	timer := watchdog.NewSilenceTimer(at(0))
	w := watchdog.New(timer, speaker)
	ctx := context.Background()

	for sec := 1; sec < 10; sec++ {
		assert.False(t, w.Tick(ctx, at(float64(sec))), "second %d", sec)
	}
	assert.True(t, w.Tick(ctx, at(10)))
	require.Equal(t, 1, speaker.count())
	assert.Equal(t, domain.SpeakRequest{Text: watchdog.DefaultPrompt, AllowInterruptions: true}, speaker.said[0])

	// Idle keeps accumulating but the cool-down holds.
	assert.False(t, w.Tick(ctx, at(11)))
	assert.False(t, w.Tick(ctx, at(12)))
	assert.Equal(t, 1, speaker.count())

	// Measurement resumes after the cool-down: next fire at 10 + 2 + 10.
	assert.False(t, w.Tick(ctx, at(21)))
	assert.True(t, w.Tick(ctx, at(22)))
	assert.Equal(t, 2, speaker.count())
}

func TestTick_SpeechResetsIdle(t *testing.T) {
	speaker := &fakeSpeaker{}
	timer := watchdog.NewSilenceTimer(at(0))
	w := watchdog.New(timer, speaker)
	ctx := context.Background()

	timer.Touch(at(8)) // caller spoke
	assert.False(t, w.Tick(ctx, at(12)))
	assert.True(t, w.Tick(ctx, at(18)))
}

func TestTick_AgentSpeakingNeverFires(t *testing.T) {
	speaker := &fakeSpeaker{}
	speaker.speaking.Store(true)
	timer := watchdog.NewSilenceTimer(at(0))
	w := watchdog.New(timer, speaker)
	ctx := context.Background()

	assert.False(t, w.Tick(ctx, at(30)))
	assert.Equal(t, at(30), timer.Last().UTC(), "agent speech counts as speech")

	speaker.speaking.Store(false)
	assert.False(t, w.Tick(ctx, at(35)))
	assert.True(t, w.Tick(ctx, at(40)))
}

func TestTick_SpeakFailureIsAbandoned(t *testing.T) {
	speaker := &fakeSpeaker{err: errors.New("transport gone")}
	timer := watchdog.NewSilenceTimer(at(0))

	var events []*domain.ReengageEvent
	w := watchdog.New(timer, speaker, watchdog.WithLifecycleHooks(domain.LifecycleHooks{
		OnReengage: func(_ context.Context, e *domain.ReengageEvent) { events = append(events, e) },
	}))
	ctx := context.Background()

	assert.True(t, w.Tick(ctx, at(10)))
	assert.False(t, w.Tick(ctx, at(11)))
	assert.True(t, w.Tick(ctx, at(22)), "loop keeps measuring after a failed attempt")

	require.Len(t, events, 2)
	assert.Equal(t, "transport gone", events[0].Err)
	assert.Equal(t, 10*time.Second, events[0].Idle)
}

func TestWithConfig(t *testing.T) {
	w := watchdog.New(watchdog.NewSilenceTimer(at(0)), &fakeSpeaker{}, watchdog.WithConfig(watchdog.Config{
		Threshold: 3 * time.Second,
		Prompt:    "Hello?",
	}))
	cfg := w.Config()
	assert.Equal(t, time.Second, cfg.Interval)
	assert.Equal(t, 3*time.Second, cfg.Threshold)
	assert.Equal(t, 2*time.Second, cfg.Cooldown)
	assert.Equal(t, "Hello?", cfg.Prompt)
}

func TestWithConfig_NoCooldown(t *testing.T) {
	speaker := &fakeSpeaker{}
	w := watchdog.New(watchdog.NewSilenceTimer(at(0)), speaker, watchdog.WithConfig(watchdog.Config{
		NoCooldown: true,
	}))
	require.Zero(t, w.Config().Cooldown)
	require.NoError(t, w.Config().Validate())

	ctx := context.Background()
	assert.True(t, w.Tick(ctx, at(10)))
	assert.False(t, w.Tick(ctx, at(19)))
	assert.True(t, w.Tick(ctx, at(20)), "idle restarts at the firing time")
	assert.Equal(t, 2, speaker.count())

	err := watchdog.Config{Interval: time.Second, Threshold: time.Second, Cooldown: time.Second, NoCooldown: true, Prompt: "?"}.Validate()
	assert.ErrorContains(t, err, "no_cooldown")
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, watchdog.DefaultConfig().Validate())
	err := watchdog.Config{Interval: 0, Threshold: -1, Cooldown: -1}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interval")
	assert.Contains(t, err.Error(), "prompt")
}

func TestRun_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	speaker := &fakeSpeaker{}
	w := watchdog.New(watchdog.NewSilenceTimer(time.Now()), speaker, watchdog.WithConfig(watchdog.Config{
		Interval:  2 * time.Millisecond,
		Threshold: 10 * time.Millisecond,
		Cooldown:  time.Hour,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return speaker.count() == 1 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, speaker.count(), "cool-down of an hour prevents a second line")
}
