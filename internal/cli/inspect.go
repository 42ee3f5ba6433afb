package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aretw0/callflow/internal/presentation/graph"
	"github.com/aretw0/callflow/internal/presentation/tui"
	"github.com/aretw0/callflow/pkg/domain"
)

// ScriptOptions configures RenderScript.
type ScriptOptions struct {
	// Raw prints the markdown source instead of rendering it.
	Raw bool
	// Style is a glamour standard style; empty detects the terminal background.
	Style string
}

// RenderScript prints the stage script and waypoint instructions.
func RenderScript(app *App, w io.Writer, opts ScriptOptions) error {
	md := tui.ScriptMarkdown(app.Bundle.Stages, app.Bundle.Instructions)
	if opts.Raw {
		_, err := io.WriteString(w, md)
		return err
	}

	var rendererOpts []tui.RendererOption
	if opts.Style != "" {
		rendererOpts = append(rendererOpts, tui.WithStyle(opts.Style))
	}
	render, err := tui.NewRenderer(rendererOpts...)
	if err != nil {
		return err
	}
	out, err := render(md)
	if err != nil {
		return fmt.Errorf("failed to render script: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}

// RenderGraph prints the transition graph as Mermaid. With a session id the
// persisted call's path is highlighted.
func RenderGraph(ctx context.Context, app *App, w io.Writer, sessionID string) error {
	var overlay *graph.GraphOverlay
	if sessionID != "" {
		st, err := app.Engine.Load(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("failed to load session %q: %w", sessionID, err)
		}
		overlay = graph.OverlayFor(st)
	}
	_, err := io.WriteString(w, graph.GenerateMermaid(app.Bundle.Graph, overlay))
	return err
}

// ClassifyOutput is what `callflow classify` prints.
type ClassifyOutput struct {
	Signals   domain.Signals  `json:"signals"`
	Effective domain.Signal   `json:"effective"`
	Next      domain.Waypoint `json:"next,omitempty"`
}

// Classify derives the signals of text. With a topic it also reports the
// waypoint the flow would move to.
func Classify(app *App, w io.Writer, text, topic string) error {
	var wp domain.Waypoint
	if topic != "" {
		var err error
		if wp, err = domain.ParseWaypoint(topic); err != nil {
			return err
		}
	}
	sig := app.Engine.Classify(text, wp)
	out := ClassifyOutput{Signals: sig, Effective: sig.Effective()}
	if wp != "" {
		out.Next = app.Engine.NextState(wp, text).To
	}
	return writeJSON(w, out)
}

// ListSessions prints the ids of the persisted calls.
func ListSessions(ctx context.Context, app *App, w io.Writer) error {
	ids, err := app.Engine.Manager().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
	return nil
}

// ShowSession prints a persisted call as JSON.
func ShowSession(ctx context.Context, app *App, w io.Writer, sessionID string) error {
	st, err := app.Engine.Load(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session %q: %w", sessionID, err)
	}
	return writeJSON(w, st)
}

// DeleteSession removes a persisted call.
func DeleteSession(ctx context.Context, app *App, sessionID string) error {
	if err := app.Engine.Manager().Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session %q: %w", sessionID, err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
