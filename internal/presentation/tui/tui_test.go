package tui_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/callflow/internal/presentation/tui"
	"github.com/aretw0/callflow/pkg/flow"
	"github.com/aretw0/callflow/pkg/orchestrator"
)

func TestScriptMarkdown(t *testing.T) {
	md := tui.ScriptMarkdown(orchestrator.DefaultScript(), flow.DefaultInstructions())

	assert.Contains(t, md, "Start group: `opening`, callback group: `callback`")
	assert.Contains(t, md, "| opening | opening | say: Hello, I am Maya")
	assert.Contains(t, md, "| collect | treatment |")
	assert.Contains(t, md, "| opening | opening.good_time | false → callback, true → collect | collect |")
	assert.Contains(t, md, "# Waypoints")
	assert.Contains(t, md, "| diagnosis |")

	// Every row has the same column count.
	for _, line := range strings.Split(md, "\n") {
		if strings.HasPrefix(line, "| collect |") {
			assert.Equal(t, 5, strings.Count(strings.ReplaceAll(line, `\|`, ""), "|"), line)
		}
	}
}

func TestScriptMarkdown_NoInstructions(t *testing.T) {
	script := orchestrator.Script{
		Start: "only",
		Groups: []orchestrator.GroupSpec{
			{ID: "only", Stages: []orchestrator.StageSpec{{ID: "q", Instruction: "a | b"}}},
		},
	}
	md := tui.ScriptMarkdown(script, nil)

	assert.Contains(t, md, "| only | q | - | a \\| b |")
	assert.NotContains(t, md, "Routes")
	assert.NotContains(t, md, "Waypoints")
}

func TestRenderer(t *testing.T) {
	render, err := tui.NewRenderer(tui.WithStyle("notty"), tui.WithWordWrap(80))
	require.NoError(t, err)

	out, err := render("# Stages\n\nhello")
	require.NoError(t, err)
	assert.Contains(t, out, "Stages")
	assert.Contains(t, out, "hello")
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	tui.PrintBanner(&buf, "v1.2.3")

	assert.Contains(t, buf.String(), `\___\__,_|_|_|_|`)
	assert.Contains(t, buf.String(), "v1.2.3")
}
