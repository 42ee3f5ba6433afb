package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/aretw0/callflow/pkg/session"
)

// ErrHangup reports that the caller's input closed before the flow finished.
var ErrHangup = errors.New("caller hung up")

// Console is a speaker that can also read caller turns.
type Console interface {
	ports.Speaker
	Input(ctx context.Context) (string, error)
	SystemOutput(ctx context.Context, msg string) error
}

// Runner feeds console input into a live call until the caller hangs up.
type Runner struct {
	logger        *slog.Logger
	showDecisions bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithDecisions prints the policy decision after every turn.
func WithDecisions(show bool) Option {
	return func(r *Runner) {
		r.showDecisions = show
	}
}

// NewRunner creates a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drives live with turns read from console. The live call must have been
// built with console as its speaker.
//
// The call stays open after the flow finalizes, so closing the input is the
// hang-up. A finalized call returns its result with a nil error. When input
// closes first the partial result is returned with ErrHangup; when ctx is
// cancelled first the partial result is returned with ctx.Err().
func (r *Runner) Run(ctx context.Context, live *session.Live, console Console) (*domain.FlowResult, error) {
	callCtx, hangup := context.WithCancel(ctx)
	defer hangup()

	runDone := make(chan struct{})
	var runErr error
	go func() {
		defer close(runDone)
		_, runErr = live.Run(callCtx)
	}()

	// Input stops as soon as the call ends on its own.
	inputCtx, stopInput := context.WithCancel(callCtx)
	defer stopInput()
	go func() {
		select {
		case <-runDone:
			stopInput()
		case <-inputCtx.Done():
		}
	}()

	select {
	case <-live.Started():
	case <-runDone:
		return r.outcome(live, runErr)
	}

	announced := false
	for {
		text, err := console.Input(inputCtx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.logger.Info("console input closed, hanging up", "session_id", live.ID)
			}
			hangup()
			<-runDone
			switch {
			case r.finished(live):
				return r.outcome(live, runErr)
			case errors.Is(err, io.EOF):
				return live.Orchestrator().Partial(), ErrHangup
			case ctx.Err() != nil:
				return live.Orchestrator().Partial(), ctx.Err()
			case inputCtx.Err() != nil:
				return r.outcome(live, runErr)
			}
			return live.Orchestrator().Partial(), fmt.Errorf("read input: %w", err)
		}
		if text == "" {
			continue
		}

		decision, err := live.HandleTurn(inputCtx, text)
		if err != nil {
			if inputCtx.Err() == nil {
				_ = console.SystemOutput(ctx, err.Error())
			}
			continue
		}
		if r.showDecisions {
			_ = console.SystemOutput(ctx, fmt.Sprintf("%s (%s)", decision.Action, decision.Reason))
		}
		if !announced && r.finished(live) {
			announced = true
			_ = console.SystemOutput(ctx, "flow complete, the call stays open until the caller hangs up")
		}
	}
}

func (r *Runner) finished(live *session.Live) bool {
	_, err := live.Orchestrator().Result()
	return err == nil
}

func (r *Runner) outcome(live *session.Live, runErr error) (*domain.FlowResult, error) {
	if res, err := live.Orchestrator().Result(); err == nil {
		return res, nil
	}
	return live.Orchestrator().Partial(), runErr
}
