package script_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/flow"
	"github.com/aretw0/callflow/pkg/orchestrator"
	"github.com/aretw0/callflow/pkg/script"
)

const custom = `
stages:
  start: intro
  callback: later
  groups:
    - id: intro
      stages:
        - id: opening
          entry:
            say: "Hi {{.patient_name}}, is now a good time?"
    - id: survey
      stages:
        - id: feedback
          description: free-form feedback
          any_input: true
          defaults:
            rating: 3
    - id: later
      stages:
        - id: schedule_callback
          entry:
            generate: Ask when to call back.
  routes:
    - after: intro
      stage: opening
      field: good_time
      cases:
        "true": survey
        "false": later
      default: later
graph:
  diagnosis:
    default: treatment
instructions:
  opening:
    guidance: Greet the caller briefly.
    lines:
      - lang: en
        text: Hello!
classifier:
  busy:
    keywords: ["not free", "in a meeting"]
thresholds:
  diagnosis: 0
`

func TestParse_MergesOverDefaults(t *testing.T) {
	b, err := script.Parse([]byte(custom))
	require.NoError(t, err)

	assert.Equal(t, "intro", b.Stages.Start)
	require.Len(t, b.Stages.Groups, 3)
	feedback, ok := b.Stages.Stage("feedback")
	require.True(t, ok)
	assert.True(t, feedback.AnyInput)
	assert.Equal(t, 3, feedback.Defaults["rating"])

	assert.Equal(t, flow.Edge{Default: domain.WaypointTreatment}, b.Graph[domain.WaypointDiagnosis])
	assert.Equal(t, flow.DefaultGraph()[domain.WaypointOpening], b.Graph[domain.WaypointOpening], "untouched edges keep defaults")

	opening := b.Instructions[domain.WaypointOpening]
	assert.Equal(t, domain.WaypointOpening, opening.Waypoint)
	assert.Equal(t, "Greet the caller briefly.", opening.Guidance)
	assert.Equal(t, flow.DefaultInstructions()[domain.WaypointClosing], b.Instructions[domain.WaypointClosing])

	c, err := b.Classifier()
	require.NoError(t, err)
	assert.True(t, c.Classify("sorry I am in a meeting", domain.WaypointOpening).BusyOrCallback)
	assert.True(t, c.Classify("who is this", domain.WaypointOpening).Clarification, "other rules keep defaults")
}

func TestEngineOptions_DriveEngine(t *testing.T) {
	b, err := script.Parse([]byte(custom))
	require.NoError(t, err)
	opts, err := b.EngineOptions()
	require.NoError(t, err)

	e, err := callflow.New(opts...)
	require.NoError(t, err)

	assert.Equal(t, "Greet the caller briefly.", e.InstructionFor(domain.WaypointOpening).Guidance)
	assert.Equal(t, domain.WaypointCallback, e.NextState(domain.WaypointOpening, "not free right now").To)
	assert.Equal(t, "intro", e.Script().Start)

	_, err = e.Start(context.Background(), "s1", nil)
	require.NoError(t, err)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"not yaml", "stages: [unterminated"},
		{"unknown section", "voices:\n  en: alloy\n"},
		{"unknown field", "graph:\n  opening:\n    default: diagnosis\n    sometimes: offer\n"},
		{"unknown graph waypoint", "graph:\n  lunch:\n    default: closing\n"},
		{"unknown instruction waypoint", "instructions:\n  lunch:\n    guidance: eat\n"},
		{"invalid stages", "stages:\n  start: nowhere\n  groups: []\n"},
		{"bad pattern", "classifier:\n  objection:\n    pattern: \"([\"\n"},
		{"negative threshold", "thresholds:\n  opening: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := script.Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, script.ErrInvalidFile)
		})
	}
}

func TestParse_InvalidStagesWrapScriptError(t *testing.T) {
	_, err := script.Parse([]byte("stages:\n  start: nowhere\n  groups: []\n"))
	assert.ErrorIs(t, err, orchestrator.ErrInvalidScript)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte(custom), 0o600))

	b, err := script.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "intro", b.Stages.Start)

	_, err = script.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	empty, err := script.Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.DefaultScript(), empty.Stages)
}
