package domain

import "time"

// Utterance is one completed user turn.
type Utterance struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// SpeakRequest asks the speech collaborator to say something.
// Text is spoken literally; when Text is empty, Instructions drive a generated reply.
type SpeakRequest struct {
	Text               string `json:"text,omitempty"`
	Instructions       string `json:"instructions,omitempty"`
	AllowInterruptions bool   `json:"allow_interruptions"`
}

// Speaker roles used in transcripts.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// TranscriptLine is one line of the call transcript.
type TranscriptLine struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Report is handed to the reporting collaborator at session end.
type Report struct {
	RoomName    string           `json:"roomName"`
	Transcript  []TranscriptLine `json:"transcript"`
	FlowResults *FlowResult      `json:"flowResults"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	StartedAt   time.Time        `json:"startedAt"`
	EndedAt     time.Time        `json:"endedAt"`
}
