package flow

import (
	"strings"

	"github.com/aretw0/callflow/pkg/domain"
)

// Line is one scripted line in a given language.
type Line struct {
	Lang string `yaml:"lang" json:"lang" mapstructure:"lang"`
	Text string `yaml:"text" json:"text" mapstructure:"text"`
}

// Instruction is the opaque payload handed to the generation collaborator for a waypoint.
type Instruction struct {
	Waypoint domain.Waypoint `yaml:"waypoint" json:"waypoint" mapstructure:"waypoint"`
	Guidance string          `yaml:"guidance" json:"guidance" mapstructure:"guidance"`
	Lines    []Line          `yaml:"lines" json:"lines" mapstructure:"lines"`
}

// String renders the payload as guidance followed by tagged lines.
func (i Instruction) String() string {
	var sb strings.Builder
	sb.WriteString(i.Guidance)
	for _, l := range i.Lines {
		sb.WriteString("\n<")
		sb.WriteString(l.Lang)
		sb.WriteString("/> ")
		sb.WriteString(l.Text)
	}
	return sb.String()
}

// Table maps waypoints to instructions.
type Table map[domain.Waypoint]Instruction

// DefaultInstructions returns the built-in bilingual script.
func DefaultInstructions() Table {
	return Table{
		domain.WaypointOpening: {
			Guidance: "First message only, in Hinglish. Keep it very short.",
			Lines: []Line{
				{"hinglish", "Hello, main Maya bol rahi hoon Everhope Oncology se, aapke recent medical test ke baare mein. Kya ab baat karne ka time theek hai?"},
			},
		},
		domain.WaypointCallback: {
			Guidance: "User is busy or asked for a callback. Ask for a convenient time and do not continue the flow.",
			Lines: []Line{
				{"english", "No problem. When would be a good time for us to call you back?"},
				{"hinglish", "Theek hai, koi baat nahi. Kab call karein aapko? Koi convenient time bataiye, hum usi time pe call karenge."},
			},
		},
		domain.WaypointDiagnosis: {
			Guidance: "Ask ONE question. If they share type or stage, acknowledge with empathy first. If they ask something else, answer first then return to this.",
			Lines: []Line{
				{"english", "To help me understand better, what type of cancer was detected, and do you know the current stage?"},
				{"hinglish", "Better samajhne ke liye, kis type ka cancer detect hua hai aur stage kya hai agar pata ho?"},
			},
		},
		domain.WaypointBiopsy: {
			Guidance: "Ask ONE question. Acknowledge their answer. If they ask something else, answer first then ask.",
			Lines: []Line{
				{"english", "Has a biopsy been done, or is that still pending?"},
				{"hinglish", "Biopsy ho chuki hai ya abhi pending hai?"},
			},
		},
		domain.WaypointTreatment: {
			Guidance: "Ask about treatment status. If started, ask which hospital. One question at a time.",
			Lines: []Line{
				{"english", "Has your treatment already started? If yes, which hospital are you at?"},
				{"hinglish", "Kya treatment shuru ho chuka hai? Agar haan, toh kaunse hospital mein?"},
			},
		},
		domain.WaypointTimeline: {
			Guidance: "Treatment has not started. Ask when they are planning to decide or start.",
			Lines: []Line{
				{"english", "When are you planning to start your treatment?"},
				{"hinglish", "Treatment kab start karne ki soch rahe hain?"},
			},
		},
		domain.WaypointGeography: {
			Guidance: "Ask which city they are from and whether they would travel. Acknowledge their answer.",
			Lines: []Line{
				{"english", "Which city are you from? And would you be willing to travel for treatment if needed?"},
				{"hinglish", "Aap kis city se hain? Aur kya aap treatment ke liye travel kar sakte hain agar zarurat ho?"},
			},
		},
		domain.WaypointPositioning: {
			Guidance: "Briefly give the Everhope pitch. If they ask something else, answer first.",
			Lines: []Line{
				{"english", "At Everhope, every patient gets a treatment plan designed specifically for them, with advanced technology and personalized care."},
				{"hinglish", "Everhope mein har patient ke liye personalized plan hota hai, advanced care; sab pe same treatment nahi chalta."},
			},
		},
		domain.WaypointOffer: {
			Guidance: "Mention the lead oncologist and offer a consultation. If they ask about cost, answer first then offer.",
			Lines: []Line{
				{"english", "Our lead oncologist, Dr. Sunny Garg, has helped many patients in situations like yours. Would you be interested in a consultation?"},
				{"hinglish", "Hamaare lead oncologist Dr. Sunny Garg ne kaafi patients ki help ki hai. Kya main unse consultation fix karwa doon?"},
			},
		},
		domain.WaypointClosing: {
			Guidance: "Thank them and wish them a hopeful day. If they ask one more thing, answer briefly then close.",
			Lines: []Line{
				{"english", "Thank you for speaking with me today. We look forward to helping you. Have a hopeful day ahead."},
				{"hinglish", "Thank you baat karne ke liye. Hum poori koshish karenge aapki help karne ki. Have a hopeful day ahead!"},
			},
		},
		domain.WaypointDone: {
			Guidance: "Flow complete. Respond warmly and briefly in the user's language to anything they say.",
			Lines: []Line{
				{"english", "Respond in English."},
				{"hinglish", "Respond in Hinglish."},
			},
		},
	}
}
