package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/flow"
	"github.com/aretw0/callflow/pkg/orchestrator"
)

// RendererOption configures the markdown renderer.
type RendererOption func(*rendererConfig)

type rendererConfig struct {
	style string
	width int
}

// WithStyle selects a standard glamour style ("dark", "light", "notty") instead
// of detecting the terminal background.
func WithStyle(style string) RendererOption {
	return func(c *rendererConfig) {
		c.style = style
	}
}

// WithWordWrap sets the wrap width.
func WithWordWrap(width int) RendererOption {
	return func(c *rendererConfig) {
		c.width = width
	}
}

// NewRenderer returns a function that renders markdown using glamour.
func NewRenderer(opts ...RendererOption) (func(string) (string, error), error) {
	cfg := rendererConfig{width: 100}
	for _, opt := range opts {
		opt(&cfg)
	}

	styleOpt := glamour.WithAutoStyle() // Automatically detect light/dark background
	if cfg.style != "" {
		styleOpt = glamour.WithStandardStyle(cfg.style)
	}
	r, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(cfg.width))
	if err != nil {
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}

	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}, nil
}

// ScriptMarkdown describes the stage script and the waypoint instructions as
// markdown tables.
func ScriptMarkdown(script orchestrator.Script, instructions flow.Table) string {
	var sb strings.Builder
	sb.WriteString("# Stages\n\n")
	fmt.Fprintf(&sb, "Start group: `%s`", script.Start)
	if script.Callback != "" {
		fmt.Fprintf(&sb, ", callback group: `%s`", script.Callback)
	}
	sb.WriteString("\n\n")

	sb.WriteString("| Group | Stage | Entry | Instruction |\n")
	sb.WriteString("|---|---|---|---|\n")
	for _, g := range script.Groups {
		for _, st := range g.Stages {
			fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n",
				cell(g.ID), cell(string(st.ID)), entry(st.Entry), cell(st.Instruction))
		}
	}

	if len(script.Routes) > 0 {
		sb.WriteString("\n## Routes\n\n")
		sb.WriteString("| After | Field | Cases | Default |\n")
		sb.WriteString("|---|---|---|---|\n")
		for _, r := range script.Routes {
			var cases []string
			for k, v := range r.Cases {
				cases = append(cases, k+" → "+v)
			}
			slices.Sort(cases)
			fmt.Fprintf(&sb, "| %s | %s.%s | %s | %s |\n",
				cell(r.After), cell(string(r.Stage)), cell(r.Field), cell(strings.Join(cases, ", ")), cell(r.Default))
		}
	}

	if len(instructions) > 0 {
		sb.WriteString("\n# Waypoints\n\n")
		sb.WriteString("| Waypoint | Guidance | Lines |\n")
		sb.WriteString("|---|---|---|\n")
		for _, wp := range domain.Waypoints() {
			ins, ok := instructions[wp]
			if !ok {
				continue
			}
			fmt.Fprintf(&sb, "| %s | %s | %d |\n", wp, cell(ins.Guidance), len(ins.Lines))
		}
	}
	return sb.String()
}

func entry(e orchestrator.Entry) string {
	switch {
	case e.Say != "":
		return "say: " + cell(e.Say)
	case e.Generate != "":
		return "generate"
	default:
		return "-"
	}
}

// cell flattens s so it fits in a table cell.
func cell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, "|", `\|`)
	if s == "" {
		return "-"
	}
	return s
}
