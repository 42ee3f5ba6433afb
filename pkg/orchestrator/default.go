package orchestrator

import "github.com/aretw0/callflow/pkg/domain"

// Group IDs of the default script.
const (
	GroupOpening        = "opening"
	GroupCallback       = "callback"
	GroupCollect        = "collect"
	GroupWrapup         = "wrapup"
	GroupTimelineWrapup = "timeline_wrapup"
)

const speakOnly = "Output only the words to speak (no labels): "

func closingStage(callback bool) StageSpec {
	line := "thank them, say you look forward to helping and wish them a hopeful day."
	if callback {
		line = "thank them, say we will call back at their preferred time, wish them well."
	}
	return StageSpec{
		ID:          domain.StageClosing,
		Description: "Close the call",
		Instruction: "Close warmly. Call step_done when the call can end.",
		Entry:       Entry{Generate: speakOnly + line, AllowInterruptions: true},
		Topic:       domain.WaypointClosing,
		AnyInput:    true,
		Defaults:    map[string]any{"done": true},
	}
}

// DefaultScript is the oncology outreach script:
// opening, then either the callback group or the qualification group,
// then a wrap-up that asks about the decision timeline only when treatment has not started.
func DefaultScript() Script {
	geography := StageSpec{
		ID:          domain.StageGeography,
		Description: "Where the caller is from and whether they can travel",
		Instruction: "Ask where they are from and whether they would travel for treatment.",
		Entry: Entry{
			Generate:           speakOnly + "Ask in a friendly way where they are from, then whether they would be willing to travel for treatment if needed.",
			AllowInterruptions: true,
		},
		Topic: domain.WaypointGeography,
	}

	return Script{
		Start:    GroupOpening,
		Callback: GroupCallback,
		Groups: []GroupSpec{
			{
				ID: GroupOpening,
				Stages: []StageSpec{{
					ID:          domain.StageOpening,
					Description: "Introduce the call and check it is a good time",
					Instruction: "Find out whether it is a good time to talk. Pass good_time true or false.",
					Entry: Entry{
						Say: "Hello, I am Maya from Everhope Oncology calling regarding your recent medical test. " +
							"{{if .patient_name}}May I speak with {{.patient_name}}?{{else}}Is this a good time to talk?{{end}}",
						AllowInterruptions: true,
					},
					Topic:    domain.WaypointOpening,
					Defaults: map[string]any{"good_time": true},
				}},
			},
			{
				ID: GroupCallback,
				Stages: []StageSpec{
					{
						ID:          domain.StageScheduleCallback,
						Description: "Ask when to call back",
						Instruction: "The caller is busy. Ask for a convenient callback time and do not continue the flow.",
						Entry: Entry{
							Generate:           speakOnly + "politely ask when would be a good time to call them back. One question.",
							AllowInterruptions: true,
						},
						Topic:    domain.WaypointCallback,
						AnyInput: true,
					},
					closingStage(true),
				},
			},
			{
				ID: GroupCollect,
				Stages: []StageSpec{
					{
						ID:          domain.StageConfirmation,
						Description: "Check whether the report was discussed with a doctor",
						Instruction: "If they have not discussed the report with their doctor, never say cancer, positive or diagnosis.",
						Entry: Entry{
							Say: "We understand you've had your tests recently. I'll need a few details to better understand your situation. " +
								"Have you discussed the report with your doctor yet?",
							AllowInterruptions: true,
						},
						Defaults: map[string]any{"aware": true},
					},
					{
						ID:          domain.StageDiagnosis,
						Description: "Cancer type, stage, biopsy and spread",
						Instruction: "Ask type and stage, then biopsy and spread. If they are unsure, acknowledge and move on.",
						Entry: Entry{
							Generate:           speakOnly + "Ask type and stage, then biopsy and spread. When done, ask whether they have started treatment yet.",
							AllowInterruptions: true,
						},
						Topic: domain.WaypointDiagnosis,
					},
					{
						ID:          domain.StageTreatment,
						Description: "Whether treatment has started",
						Instruction: "The last message already asked about treatment. Pass started true or false.",
						Topic:       domain.WaypointTreatment,
						Defaults:    map[string]any{"started": false},
					},
				},
			},
			{
				ID:     GroupWrapup,
				Stages: []StageSpec{geography, closingStage(false)},
			},
			{
				ID: GroupTimelineWrapup,
				Stages: []StageSpec{
					{
						ID:          domain.StageTimeline,
						Description: "When they plan to start treatment",
						Instruction: "The last message already asked when they plan to start. Do not ask again.",
						Topic:       domain.WaypointTimeline,
					},
					geography,
					closingStage(false),
				},
			},
		},
		Routes: []Route{
			{
				After:   GroupOpening,
				Stage:   domain.StageOpening,
				Field:   "good_time",
				Cases:   map[string]string{"true": GroupCollect, "false": GroupCallback},
				Default: GroupCollect,
			},
			{
				After:   GroupCollect,
				Stage:   domain.StageTreatment,
				Field:   "started",
				Cases:   map[string]string{"true": GroupWrapup, "false": GroupTimelineWrapup},
				Default: GroupTimelineWrapup,
			},
		},
	}
}
