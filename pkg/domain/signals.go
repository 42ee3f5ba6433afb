package domain

// Signals are the flags derived from one utterance. They are never stored.
type Signals struct {
	Empty          bool `json:"empty"`
	Clarification  bool `json:"clarification"`
	BusyOrCallback bool `json:"busy_or_callback"`
	Objection      bool `json:"objection"`
	Question       bool `json:"question"`
	Answer         bool `json:"answer"`

	// Answer polarity for the current topic, used by branch points.
	Affirmative bool `json:"affirmative"`
	Negative    bool `json:"negative"`
}

// Signal is the single winning signal after precedence is applied.
type Signal string

const (
	SignalNone          Signal = "none"
	SignalEmpty         Signal = "empty"
	SignalBusy          Signal = "busy"
	SignalClarification Signal = "clarification"
	SignalObjection     Signal = "objection"
	SignalQuestion      Signal = "question"
	SignalAnswer        Signal = "answer"
)

// Effective resolves simultaneous flags with the fixed precedence
// busy > clarification > objection/question > answer > none.
func (s Signals) Effective() Signal {
	switch {
	case s.Empty:
		return SignalEmpty
	case s.BusyOrCallback:
		return SignalBusy
	case s.Clarification:
		return SignalClarification
	case s.Objection:
		return SignalObjection
	case s.Question:
		return SignalQuestion
	case s.Answer:
		return SignalAnswer
	default:
		return SignalNone
	}
}
