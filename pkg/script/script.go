// Package script loads call scripts from YAML.
//
// A script file may carry any of the following sections. Missing sections keep
// the built-in defaults; a rule, edge or instruction given in the file replaces
// the built-in one with the same key.
//
//	stages:        # orchestrator.Script for live calls
//	graph:         # waypoint -> flow.Edge
//	instructions:  # waypoint -> flow.Instruction
//	classifier:    # classifier.RuleSet overrides
//	thresholds:    # waypoint -> answer length threshold
package script

import (
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/pkg/classifier"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/flow"
	"github.com/aretw0/callflow/pkg/orchestrator"
)

// ErrInvalidFile is returned for script files that cannot be decoded or validated.
var ErrInvalidFile = errors.New("invalid script file")

// Bundle is a decoded script file merged over the built-in defaults.
type Bundle struct {
	Stages       orchestrator.Script
	Graph        flow.Graph
	Instructions flow.Table
	Rules        classifier.RuleSet
	Thresholds   map[domain.Waypoint]int
}

// Default returns the built-in bundle.
func Default() *Bundle {
	return &Bundle{
		Stages:       orchestrator.DefaultScript(),
		Graph:        flow.DefaultGraph(),
		Instructions: flow.DefaultInstructions(),
		Rules:        classifier.DefaultRules(),
		Thresholds:   map[domain.Waypoint]int{},
	}
}

// Load reads and parses the script file at path.
func Load(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}
	b, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

type sections struct {
	Stages       map[string]any `mapstructure:"stages"`
	Graph        map[string]any `mapstructure:"graph"`
	Instructions map[string]any `mapstructure:"instructions"`
	Classifier   map[string]any `mapstructure:"classifier"`
	Thresholds   map[string]any `mapstructure:"thresholds"`
}

// Parse decodes a YAML script and merges it over Default.
func Parse(data []byte) (*Bundle, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	var sec sections
	if err := decode(raw, &sec); err != nil {
		return nil, err
	}

	b := Default()
	if sec.Stages != nil {
		var s orchestrator.Script
		if err := decode(sec.Stages, &s); err != nil {
			return nil, fmt.Errorf("stages: %w", err)
		}
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("%w: stages: %w", ErrInvalidFile, err)
		}
		b.Stages = s
	}

	if sec.Graph != nil {
		var g flow.Graph
		if err := decode(sec.Graph, &g); err != nil {
			return nil, fmt.Errorf("graph: %w", err)
		}
		for w, e := range g {
			if err := knownWaypoint(w); err != nil {
				return nil, fmt.Errorf("graph: %w", err)
			}
			b.Graph[w] = e
		}
		if err := b.Graph.Validate(); err != nil {
			return nil, fmt.Errorf("%w: graph: %w", ErrInvalidFile, err)
		}
	}

	if sec.Instructions != nil {
		var t flow.Table
		if err := decode(sec.Instructions, &t); err != nil {
			return nil, fmt.Errorf("instructions: %w", err)
		}
		for w, ins := range t {
			if err := knownWaypoint(w); err != nil {
				return nil, fmt.Errorf("instructions: %w", err)
			}
			ins.Waypoint = w
			b.Instructions[w] = ins
		}
	}

	if sec.Classifier != nil {
		var overlay classifier.RuleSet
		if err := decode(sec.Classifier, &overlay); err != nil {
			return nil, fmt.Errorf("classifier: %w", err)
		}
		if err := mergeRules(&b.Rules, overlay); err != nil {
			return nil, fmt.Errorf("classifier: %w", err)
		}
	}

	if sec.Thresholds != nil {
		if err := decode(sec.Thresholds, &b.Thresholds); err != nil {
			return nil, fmt.Errorf("thresholds: %w", err)
		}
		for w, n := range b.Thresholds {
			if err := knownWaypoint(w); err != nil {
				return nil, fmt.Errorf("thresholds: %w", err)
			}
			if n < 0 {
				return nil, fmt.Errorf("%w: thresholds: %s is negative", ErrInvalidFile, w)
			}
		}
	}

	// Compile once so bad patterns surface at load time.
	if _, err := b.Classifier(); err != nil {
		return nil, fmt.Errorf("%w: classifier: %w", ErrInvalidFile, err)
	}
	return b, nil
}

func decode(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	return nil
}

func knownWaypoint(w domain.Waypoint) error {
	if !w.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidFile, domain.ErrUnknownWaypoint, w)
	}
	return nil
}

func mergeRules(dst *classifier.RuleSet, overlay classifier.RuleSet) error {
	named := []struct {
		dst *classifier.Rule
		src classifier.Rule
	}{
		{&dst.Clarification, overlay.Clarification},
		{&dst.Busy, overlay.Busy},
		{&dst.Objection, overlay.Objection},
		{&dst.Question, overlay.Question},
		{&dst.GenericAnswer, overlay.GenericAnswer},
	}
	for _, n := range named {
		if !n.src.IsZero() {
			*n.dst = n.src
		}
	}

	if dst.Answers == nil {
		dst.Answers = map[domain.Waypoint]classifier.Rule{}
	}
	for w, r := range overlay.Answers {
		if err := knownWaypoint(w); err != nil {
			return err
		}
		dst.Answers[w] = r
	}

	if dst.Polarity == nil {
		dst.Polarity = map[domain.Waypoint]classifier.Polarity{}
	}
	for w, p := range overlay.Polarity {
		if err := knownWaypoint(w); err != nil {
			return err
		}
		dst.Polarity[w] = p
	}
	if !overlay.GenericPolarity.Affirmative.IsZero() || !overlay.GenericPolarity.Negative.IsZero() {
		dst.GenericPolarity = overlay.GenericPolarity
	}
	return nil
}

// Classifier compiles the bundle's rule table.
func (b *Bundle) Classifier() (*classifier.Classifier, error) {
	return classifier.New(classifier.WithRules(b.Rules), classifier.WithThresholds(b.Thresholds))
}

// EngineOptions turns the bundle into callflow.Engine options.
func (b *Bundle) EngineOptions() ([]callflow.Option, error) {
	c, err := b.Classifier()
	if err != nil {
		return nil, err
	}
	return []callflow.Option{
		callflow.WithClassifier(c),
		callflow.WithGraph(b.Graph),
		callflow.WithInstructions(b.Instructions),
		callflow.WithScript(b.Stages),
	}, nil
}
