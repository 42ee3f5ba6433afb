package classifier_test

import (
	"testing"

	"github.com/aretw0/callflow/pkg/classifier"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "who is this", classifier.Normalize("  Who   IS\tthis \n"))
	assert.Equal(t, "", classifier.Normalize(" \t\n"))
}

func TestClassify_Empty(t *testing.T) {
	c := classifier.Default()
	for _, text := range []string{"", "   ", "\n\t"} {
		assert.Equal(t, domain.Signals{Empty: true}, c.Classify(text, domain.WaypointDiagnosis))
	}
}

func TestClassify_Effective(t *testing.T) {
	c := classifier.Default()

	tests := []struct {
		name  string
		text  string
		topic domain.Waypoint
		want  domain.Signal
	}{
		{"busy english", "I am busy right now", domain.WaypointDiagnosis, domain.SignalBusy},
		{"busy hinglish", "abhi nahi, baad mein bolo", domain.WaypointOpening, domain.SignalBusy},
		{"call me back pattern", "can you call me some other day back", domain.WaypointTreatment, domain.SignalBusy},
		{"clarification", "Who is this?", domain.WaypointBiopsy, domain.SignalClarification},
		{"clarification hinglish", "aap kaun bol rahi ho", domain.WaypointOpening, domain.SignalClarification},
		{"objection", "I am not sure about this", domain.WaypointOffer, domain.SignalObjection},
		{"question", "how much does it cost", domain.WaypointPositioning, domain.SignalQuestion},
		{"question mark", "stage two?", domain.WaypointDiagnosis, domain.SignalQuestion},
		{"inverted question", "is it painful", domain.WaypointTreatment, domain.SignalQuestion},
		{"inverted question hospital", "can you tell me about the doctor", domain.WaypointGeography, domain.SignalQuestion},
		{"leading will answers", "will start next month", domain.WaypointTreatment, domain.SignalAnswer},
		{"leading is answers", "is going on at Tata hospital", domain.WaypointTreatment, domain.SignalAnswer},
		{"leading can answers", "can travel, I am from Pune", domain.WaypointGeography, domain.SignalAnswer},
		{"offer decline", "no thanks", domain.WaypointOffer, domain.SignalNone},
		{"offer bare no", "no", domain.WaypointOffer, domain.SignalNone},
		{"opening yes", "yes", domain.WaypointOpening, domain.SignalAnswer},
		{"diagnosis", "breast cancer stage 2", domain.WaypointDiagnosis, domain.SignalAnswer},
		{"diagnosis by length", "the doctors said it is in the liver", domain.WaypointDiagnosis, domain.SignalAnswer},
		{"biopsy", "biopsy is done", domain.WaypointBiopsy, domain.SignalAnswer},
		{"treatment", "treatment already started", domain.WaypointTreatment, domain.SignalAnswer},
		{"geography", "I am from Pune and yes I can travel", domain.WaypointGeography, domain.SignalAnswer},
		{"positioning ack", "okay", domain.WaypointPositioning, domain.SignalAnswer},
		{"generic topic", "yes I know", domain.WaypointCallback, domain.SignalAnswer},
		{"too short", "hm", domain.WaypointDiagnosis, domain.SignalNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.text, tt.topic).Effective())
		})
	}
}

func TestClassify_BusyOverridesOtherSignals(t *testing.T) {
	c := classifier.Default()
	s := c.Classify("who is this? I am busy, call back later", domain.WaypointDiagnosis)

	assert.True(t, s.BusyOrCallback)
	assert.True(t, s.Clarification)
	assert.True(t, s.Question)
	assert.Equal(t, domain.SignalBusy, s.Effective())
}

func TestClassify_WordBoundaries(t *testing.T) {
	c := classifier.Default()
	// "know" contains "no" and "nothing" contains "no" but neither is a negative answer.
	s := c.Classify("yes I know nothing more", domain.WaypointOpening)
	assert.True(t, s.Affirmative)
	assert.False(t, s.Negative)

	// "good time" must not read as an objection.
	assert.Equal(t, domain.SignalAnswer, c.Classify("it is a good time", domain.WaypointOpening).Effective())
}

func TestClassify_Polarity(t *testing.T) {
	c := classifier.Default()

	tests := []struct {
		text        string
		topic       domain.Waypoint
		affirmative bool
		negative    bool
	}{
		{"no", domain.WaypointOpening, false, true},
		{"haan ji", domain.WaypointOpening, true, false},
		{"treatment already started at Tata hospital", domain.WaypointTreatment, true, false},
		{"not yet started, planning next month", domain.WaypointTreatment, false, true},
		{"we are planning it at the hospital", domain.WaypointTreatment, false, true},
		{"I have some reports", domain.WaypointTreatment, false, false},
		{"yes please book it", domain.WaypointOffer, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			s := c.Classify(tt.text, tt.topic)
			require.True(t, s.Answer)
			assert.Equal(t, tt.affirmative, s.Affirmative, "affirmative")
			assert.Equal(t, tt.negative, s.Negative, "negative")
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := classifier.Default()
	first := c.Classify("Kya treatment shuru ho chuka hai? haan", domain.WaypointTreatment)
	for range 50 {
		assert.Equal(t, first, c.Classify("Kya treatment shuru ho chuka hai? haan", domain.WaypointTreatment))
	}
}

func TestWithThresholds(t *testing.T) {
	strict, err := classifier.New(classifier.WithThresholds(map[domain.Waypoint]int{
		domain.WaypointDiagnosis: 100,
	}))
	require.NoError(t, err)

	text := "the doctors said it is in the liver"
	assert.True(t, classifier.Default().Classify(text, domain.WaypointDiagnosis).Answer)
	assert.False(t, strict.Classify(text, domain.WaypointDiagnosis).Answer)
}

func TestWithRules_InvalidPattern(t *testing.T) {
	rules := classifier.DefaultRules()
	rules.Busy.Pattern = "("
	_, err := classifier.New(classifier.WithRules(rules))
	assert.Error(t, err)
}
