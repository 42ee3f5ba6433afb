package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/internal/presentation/tui"
	"github.com/aretw0/callflow/pkg/adapters/webhook"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/runner"
	"github.com/aretw0/callflow/pkg/session"
)

// RehearseOptions configures RunRehearsal.
type RehearseOptions struct {
	// CallID defaults to a random rehearsal id.
	CallID string
	// Metadata is the raw JSON object of caller data, e.g. {"patient_name":"Asha"}.
	Metadata string
	// ShowDecisions prints the policy decision after every turn.
	ShowDecisions bool
	// Banner prints the banner before the call starts.
	Banner bool
	// Report prints the session-end report as JSON when the call ends.
	Report bool

	Input  io.Reader
	Output io.Writer
}

// RunRehearsal plays a live call on the console: agent lines are printed and
// every typed line is a caller turn. It returns the flow result, partial when
// the call was hung up or interrupted.
func RunRehearsal(ctx context.Context, app *App, opts RehearseOptions) (*domain.FlowResult, error) {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.CallID == "" {
		opts.CallID = "rehearsal-" + uuid.NewString()[:8]
	}
	var metadata map[string]any
	if opts.Metadata != "" {
		if err := json.Unmarshal([]byte(opts.Metadata), &metadata); err != nil {
			return nil, fmt.Errorf("error parsing --metadata JSON: %w", err)
		}
	}

	console := runner.NewTextHandler(opts.Input, opts.Output)
	cfg := session.LiveConfig{
		ID:       opts.CallID,
		Metadata: metadata,
		Speaker:  console,
		Watchdog: app.Config.WatchdogTimings(),
	}
	if url := app.Config.Webhook.URL; url != "" {
		cfg.Reporter = webhook.NewReporter(url,
			webhook.WithTimeout(app.Config.Webhook.Timeout),
			webhook.WithLogger(app.Logger),
		)
	}
	live, err := app.Engine.NewLive(cfg)
	if err != nil {
		return nil, err
	}

	if opts.Banner {
		tui.PrintBanner(opts.Output, strings.TrimSpace(callflow.Version))
	}
	printSystemMessage(opts.Output, "Call '%s' connected. Type the caller's replies; end input to hang up.", live.ID)

	r := runner.NewRunner(runner.WithLogger(app.Logger), runner.WithDecisions(opts.ShowDecisions))
	res, err := r.Run(ctx, live, console)
	logCompletion(opts.Output, res, err)

	if opts.Report {
		enc := json.NewEncoder(opts.Output)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(live.Report()); encErr != nil {
			return res, fmt.Errorf("failed to encode report: %w", encErr)
		}
	}
	return res, handleExecutionError(err)
}
