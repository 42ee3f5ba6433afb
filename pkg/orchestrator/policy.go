package orchestrator

import (
	"context"
	"regexp"
	"strings"

	"github.com/aretw0/callflow/pkg/classifier"
	"github.com/aretw0/callflow/pkg/domain"
)

// Action is what a Policy wants done with the active stage.
type Action string

const (
	ActionStay     Action = "stay"
	ActionComplete Action = "complete"
	ActionCallback Action = "callback"
)

// Turn is one user utterance seen from the active stage.
type Turn struct {
	Group     string
	Stage     StageSpec
	Utterance domain.Utterance
}

// Decision is the output of a Policy.
type Decision struct {
	Action  Action         `json:"action"`
	Stage   domain.StageID `json:"stage,omitempty"`
	Result  map[string]any `json:"result,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Signals domain.Signals `json:"signals"`
}

// Policy decides the next step for a turn. Implementations must not block on I/O
// they do not own; they never mutate the orchestrator directly.
type Policy interface {
	Decide(ctx context.Context, turn Turn) (Decision, error)
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx context.Context, turn Turn) (Decision, error)

// Decide implements Policy.
func (f PolicyFunc) Decide(ctx context.Context, turn Turn) (Decision, error) {
	return f(ctx, turn)
}

// ModelPolicy leaves completion to an external reasoning collaborator,
// which calls Orchestrator.Complete through its tool interface.
type ModelPolicy struct{}

// Decide always stays.
func (ModelPolicy) Decide(context.Context, Turn) (Decision, error) {
	return Decision{Action: ActionStay, Reason: "awaiting completion from model"}, nil
}

// Extractor builds completion arguments from a classified turn.
type Extractor func(text string, sig domain.Signals) map[string]any

// RulePolicy completes stages with the keyword classifier.
type RulePolicy struct {
	classifier *classifier.Classifier
	extractors map[domain.StageID]Extractor
}

// NewRulePolicy creates a RulePolicy. A nil classifier uses the defaults.
func NewRulePolicy(c *classifier.Classifier) *RulePolicy {
	if c == nil {
		c = classifier.Default()
	}
	return &RulePolicy{classifier: c, extractors: DefaultExtractors()}
}

// WithExtractor overrides the result extraction of one stage.
func (p *RulePolicy) WithExtractor(id domain.StageID, fn Extractor) *RulePolicy {
	p.extractors[id] = fn
	return p
}

// Decide classifies the utterance against the stage topic.
// Precedence: busy asks for the callback group, clarification/objection/question stay,
// a substantive answer completes the stage.
func (p *RulePolicy) Decide(_ context.Context, turn Turn) (Decision, error) {
	text := classifier.Normalize(turn.Utterance.Text)
	sig := p.classifier.Classify(text, turn.Stage.Topic)
	d := Decision{Action: ActionStay, Stage: turn.Stage.ID, Signals: sig}

	if sig.Empty {
		d.Reason = string(domain.SignalEmpty)
		return d, nil
	}
	if turn.Stage.AnyInput {
		d.Action, d.Result, d.Reason = ActionComplete, p.extract(turn.Stage.ID, text, sig), "any input"
		return d, nil
	}

	switch s := sig.Effective(); s {
	case domain.SignalBusy:
		d.Action, d.Reason = ActionCallback, string(s)
	case domain.SignalAnswer:
		d.Action, d.Result, d.Reason = ActionComplete, p.extract(turn.Stage.ID, text, sig), string(s)
	default:
		d.Reason = string(s)
	}
	return d, nil
}

func (p *RulePolicy) extract(id domain.StageID, text string, sig domain.Signals) map[string]any {
	if fn, ok := p.extractors[id]; ok {
		return fn(text, sig)
	}
	return map[string]any{"summary": text}
}

var (
	cancerTypes = regexp.MustCompile(`\b(breast|lung|blood|oral|mouth|throat|cervical|ovarian|prostate|colon|colorectal|liver|stomach|pancreatic|brain|skin|thyroid|kidney|bladder)\b`)
	stageWords  = regexp.MustCompile(`\bstage\s*(?:[1-4]|i{1,3}|iv|one|two|three|four)\b`)
	hospital    = regexp.MustCompile(`\b(?:at|in)\s+([a-z][a-z ]*?hospital)\b`)
)

// DefaultExtractors map the default script stages to their typed result fields.
func DefaultExtractors() map[domain.StageID]Extractor {
	return map[domain.StageID]Extractor{
		domain.StageOpening: func(_ string, sig domain.Signals) map[string]any {
			return map[string]any{"good_time": !sig.Negative}
		},
		domain.StageConfirmation: func(text string, sig domain.Signals) map[string]any {
			return map[string]any{"aware": !sig.Negative, "summary": text}
		},
		domain.StageDiagnosis: func(text string, _ domain.Signals) map[string]any {
			out := map[string]any{
				"summary":     text,
				"stage_known": stageWords.MatchString(text),
				"biopsy_done": strings.Contains(text, "biopsy") && !strings.Contains(text, "pending") && !strings.Contains(text, "not yet"),
			}
			if m := cancerTypes.FindString(text); m != "" {
				out["cancer_type"] = m
			}
			return out
		},
		domain.StageTreatment: func(text string, sig domain.Signals) map[string]any {
			out := map[string]any{
				"started":         sig.Affirmative,
				"summary":         text,
				"surgery_planned": strings.Contains(text, "surgery"),
				"chemo_advised":   strings.Contains(text, "chemo"),
			}
			if m := hospital.FindStringSubmatch(text); m != nil {
				out["hospital"] = m[1]
			}
			return out
		},
		domain.StageTimeline: func(text string, _ domain.Signals) map[string]any {
			return map[string]any{"timeline": text}
		},
		domain.StageGeography: func(text string, sig domain.Signals) map[string]any {
			travel := ""
			switch {
			case sig.Affirmative:
				travel = "yes"
			case sig.Negative:
				travel = "no"
			}
			return map[string]any{"where_from": text, "willing_to_travel_answer": travel}
		},
		domain.StageScheduleCallback: func(text string, _ domain.Signals) map[string]any {
			return map[string]any{"callback_preference": text}
		},
		domain.StageClosing: func(string, domain.Signals) map[string]any {
			return map[string]any{"done": true}
		},
	}
}
