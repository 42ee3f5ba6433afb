package classifier

import "github.com/aretw0/callflow/pkg/domain"

// Polarity decides whether an answer is affirmative or negative for a topic.
type Polarity struct {
	Affirmative Rule `yaml:"affirmative" mapstructure:"affirmative"`
	Negative    Rule `yaml:"negative" mapstructure:"negative"`
	// NegativeWins resolves texts matching both sides as negative.
	NegativeWins bool `yaml:"negative_wins,omitempty" mapstructure:"negative_wins"`
}

// RuleSet is the full predicate table.
type RuleSet struct {
	Clarification Rule `yaml:"clarification" mapstructure:"clarification"`
	Busy          Rule `yaml:"busy" mapstructure:"busy"`
	Objection     Rule `yaml:"objection" mapstructure:"objection"`
	Question      Rule `yaml:"question" mapstructure:"question"`

	// Answers holds the topic-specific substantive answer rules.
	Answers map[domain.Waypoint]Rule `yaml:"answers" mapstructure:"answers"`
	// GenericAnswer applies to topics without an entry in Answers.
	GenericAnswer Rule `yaml:"generic_answer" mapstructure:"generic_answer"`

	Polarity        map[domain.Waypoint]Polarity `yaml:"polarity" mapstructure:"polarity"`
	GenericPolarity Polarity                     `yaml:"generic_polarity" mapstructure:"generic_polarity"`
}

// DefaultThresholds are the "longer than N characters counts as an answer" values per topic.
func DefaultThresholds() map[domain.Waypoint]int {
	return map[domain.Waypoint]int{
		domain.WaypointOpening:   5,
		domain.WaypointDiagnosis: 12,
		domain.WaypointBiopsy:    6,
		domain.WaypointTreatment: 8,
		domain.WaypointTimeline:  6,
		domain.WaypointGeography: 4,
	}
}

var (
	yesWords = []string{"yes", "yeah", "yep", "sure", "ok", "okay", "fine", "go ahead", "haan", "han", "ji", "ji haan", "theek", "thik", "bolo", "please"}
	noWords  = []string{"no", "nope", "nahi", "nahin", "not really", "not interested", "no thanks", "mat karo"}
)

// DefaultRules returns the built-in English and Hinglish rule table.
func DefaultRules() RuleSet {
	th := DefaultThresholds()

	return RuleSet{
		Clarification: Rule{
			MinLength: 4,
			Keywords: []string{
				"who are you", "who is this", "who is calling", "where are you calling", "where you calling from",
				"what is this call", "what is this about", "why are you calling", "which company", "which organization",
				"kaun bol raha", "kaun bol rahi", "kaun bol rahe", "kaun hai", "kahan se call", "kis liye call", "kya call hai",
				"kon bol raha", "kis company se", "ye call kyon",
			},
		},
		Busy: Rule{
			MinLength: 2,
			Keywords: []string{
				"busy", "call back", "callback", "call me back", "later", "not now", "no time", "abhi nahi",
				"baad mein", "time nahi", "busy hoon", "call back karo", "baad mein bolo", "in a meeting", "driving",
			},
			Pattern: `\bcall\b.*\bback\b|\bkab\b.*\bbaad\b`,
		},
		Objection: Rule{
			MinLength: 3,
			Keywords: []string{
				"need to think", "let me think", "will think", "not sure", "uncertain", "another doctor",
				"second opinion", "not interested", "too expensive", "soch", "soche", "sochna", "sochenge", "dekhte hain",
			},
		},
		Question: Rule{
			MinLength: 3,
			Leading: []string{
				"how", "what", "when", "where", "who", "why", "which",
				"kya", "kaise", "kitna", "kitne", "kab", "kahan", "kon", "kaun",
			},
			Fragments: []string{"?", " cost", " price", " fee", " charge", "kitna lagega"},
			// A leading auxiliary asks only when a subject follows it: "is it", not "is going on".
			Pattern: `^(?:is|are|do|does|did|can|could|will|would|should)\s+(?:i|you|it|he|she|we|they|this|that|there|my|your|his|her|our|their|the)\b`,
		},
		Answers: map[domain.Waypoint]Rule{
			domain.WaypointOpening: {
				MinLength:  2,
				LongerThan: th[domain.WaypointOpening],
				Keywords:   append(append([]string{"speak", "baat", "go on", "tell me"}, yesWords...), noWords...),
			},
			domain.WaypointDiagnosis: {
				MinLength:  3,
				LongerThan: th[domain.WaypointDiagnosis],
				Keywords: []string{
					"cancer", "stage", "tumor", "tumour", "detect", "detected", "lung", "breast", "blood", "type",
					"one", "two", "three", "four", "ii", "iii", "iv", "carcinoma", "lymphoma", "leukemia",
					"don't know", "pata nahi",
				},
				Pattern: `\b[1-4]\b`,
			},
			domain.WaypointBiopsy: {
				MinLength:  2,
				LongerThan: th[domain.WaypointBiopsy],
				Keywords: []string{
					"yes", "no", "done", "pending", "not yet", "biopsy", "haan", "nahi",
					"ho chuki", "ho chuka", "ho gayi", "report",
				},
			},
			domain.WaypointTreatment: {
				MinLength:  3,
				LongerThan: th[domain.WaypointTreatment],
				Keywords: []string{
					"started", "already", "hospital", "going to", "taking", "treatment", "therapy", "chemo",
					"surgery", "radiation", "not yet", "not started", "planning", "will start", "next", "month",
					"week", "plan", "shuru",
				},
			},
			domain.WaypointTimeline: {
				MinLength:  2,
				LongerThan: th[domain.WaypointTimeline],
				Keywords: []string{
					"week", "weeks", "month", "months", "soon", "next", "days", "tomorrow", "planning",
					"jaldi", "agle", "hafte", "mahine", "don't know", "pata nahi",
				},
			},
			domain.WaypointGeography: {
				MinLength:  2,
				LongerThan: th[domain.WaypointGeography],
				Keywords: []string{
					"yes", "no", "travel", "willing", "can", "sure", "nahi", "haan", "kar sakte", "sakta",
					"sakti", "theek", "from", "city",
				},
			},
			domain.WaypointPositioning: {
				MinLength: 1,
				Pattern:   `\S`,
			},
			// Only an acceptance answers the offer; a decline keeps offering.
			domain.WaypointOffer: {
				MinLength: 2,
				Keywords: append([]string{
					"schedule", "book", "confirm", "karo", "kar do", "kar sakte", "consultation", "interested",
				}, yesWords...),
			},
		},
		GenericAnswer: Rule{
			MinLength:  2,
			LongerThan: 3,
			Keywords:   append(append([]string{}, yesWords...), noWords...),
		},
		Polarity: map[domain.Waypoint]Polarity{
			domain.WaypointTreatment: {
				Affirmative: Rule{Keywords: []string{
					"started", "already", "ongoing", "going on", "hospital", "taking", "therapy", "chemo",
					"surgery done", "radiation", "shuru ho", "chal raha", "chal rahi",
				}},
				Negative: Rule{Keywords: []string{
					"not yet", "not started", "haven't started", "has not started", "hasn't started", "planning",
					"will start", "plan to", "next week", "next month", "abhi nahi", "shuru nahi", "nahi hua",
				}},
				NegativeWins: true,
			},
		},
		GenericPolarity: Polarity{
			Affirmative: Rule{Keywords: yesWords},
			Negative:    Rule{Keywords: noWords},
		},
	}
}
