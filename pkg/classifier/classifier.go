package classifier

import (
	"fmt"

	"github.com/aretw0/callflow/pkg/domain"
)

// Classifier evaluates a RuleSet against utterances. It is safe for concurrent use.
type Classifier struct {
	clarification *compiledRule
	busy          *compiledRule
	objection     *compiledRule
	question      *compiledRule

	answers map[domain.Waypoint]*compiledRule
	generic *compiledRule

	polarity        map[domain.Waypoint]*compiledPolarity
	genericPolarity *compiledPolarity
}

type compiledPolarity struct {
	affirmative  *compiledRule
	negative     *compiledRule
	negativeWins bool
}

type options struct {
	rules      RuleSet
	thresholds map[domain.Waypoint]int
}

// Option configures a Classifier.
type Option func(*options)

// WithRules replaces the built-in rule table.
func WithRules(rules RuleSet) Option {
	return func(o *options) {
		o.rules = rules
	}
}

// WithThresholds overrides the answer length thresholds per topic.
// A zero value disables the length shortcut for that topic.
func WithThresholds(thresholds map[domain.Waypoint]int) Option {
	return func(o *options) {
		o.thresholds = thresholds
	}
}

// New compiles the rule table into a Classifier.
func New(opts ...Option) (*Classifier, error) {
	o := &options{rules: DefaultRules()}
	for _, opt := range opts {
		opt(o)
	}

	answers := make(map[domain.Waypoint]Rule, len(o.rules.Answers))
	for w, r := range o.rules.Answers {
		answers[w] = r
	}
	for w, n := range o.thresholds {
		r := answers[w]
		r.LongerThan = n
		answers[w] = r
	}

	c := &Classifier{
		answers:  make(map[domain.Waypoint]*compiledRule, len(answers)),
		polarity: make(map[domain.Waypoint]*compiledPolarity, len(o.rules.Polarity)),
	}

	var err error
	named := []struct {
		name string
		rule Rule
		dst  **compiledRule
	}{
		{"clarification", o.rules.Clarification, &c.clarification},
		{"busy", o.rules.Busy, &c.busy},
		{"objection", o.rules.Objection, &c.objection},
		{"question", o.rules.Question, &c.question},
		{"generic_answer", o.rules.GenericAnswer, &c.generic},
	}
	for _, n := range named {
		if *n.dst, err = compileRule(n.rule); err != nil {
			return nil, fmt.Errorf("invalid %s rule: %w", n.name, err)
		}
	}

	for w, r := range answers {
		if c.answers[w], err = compileRule(r); err != nil {
			return nil, fmt.Errorf("invalid answer rule for %s: %w", w, err)
		}
	}
	for w, p := range o.rules.Polarity {
		if c.polarity[w], err = compilePolarity(p); err != nil {
			return nil, fmt.Errorf("invalid polarity rule for %s: %w", w, err)
		}
	}
	if c.genericPolarity, err = compilePolarity(o.rules.GenericPolarity); err != nil {
		return nil, fmt.Errorf("invalid generic polarity rule: %w", err)
	}
	return c, nil
}

// Default returns a Classifier built from DefaultRules. It panics only if the
// built-in table is broken.
func Default() *Classifier {
	c, err := New()
	if err != nil {
		panic(err)
	}
	return c
}

func compilePolarity(p Polarity) (*compiledPolarity, error) {
	aff, err := compileRule(p.Affirmative)
	if err != nil {
		return nil, err
	}
	neg, err := compileRule(p.Negative)
	if err != nil {
		return nil, err
	}
	return &compiledPolarity{affirmative: aff, negative: neg, negativeWins: p.NegativeWins}, nil
}

// Classify derives the signals of one utterance for the given topic.
// Empty or whitespace-only text yields only Empty.
func (c *Classifier) Classify(text string, topic domain.Waypoint) domain.Signals {
	t := Normalize(text)
	if t == "" {
		return domain.Signals{Empty: true}
	}

	s := domain.Signals{
		Clarification:  c.clarification.match(t),
		BusyOrCallback: c.busy.match(t),
		Objection:      c.objection.match(t),
		Question:       c.question.match(t),
	}

	answer, ok := c.answers[topic]
	if !ok {
		answer = c.generic
	}
	s.Answer = answer.match(t)

	if s.Answer {
		pol, ok := c.polarity[topic]
		if !ok {
			pol = c.genericPolarity
		}
		aff := pol.affirmative.match(t)
		neg := pol.negative.match(t)
		switch {
		case aff && neg && pol.negativeWins:
			s.Negative = true
		case aff:
			s.Affirmative = true
		case neg:
			s.Negative = true
		}
	}
	return s
}
