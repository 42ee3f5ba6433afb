package orchestrator

import (
	"errors"
	"fmt"

	"github.com/aretw0/callflow/pkg/domain"
)

// ErrInvalidScript is returned by Script.Validate.
var ErrInvalidScript = errors.New("invalid script")

// Entry is the action run when a stage becomes active.
// Say is a literal line (a text/template over the call variables); Generate asks
// the speech collaborator for a generated reply. Both empty means the previous
// line already asked the question.
type Entry struct {
	Say                string `yaml:"say,omitempty" json:"say,omitempty" mapstructure:"say"`
	Generate           string `yaml:"generate,omitempty" json:"generate,omitempty" mapstructure:"generate"`
	AllowInterruptions bool   `yaml:"allow_interruptions" json:"allow_interruptions" mapstructure:"allow_interruptions"`
}

// StageSpec declares one stage.
type StageSpec struct {
	ID          domain.StageID `yaml:"id" json:"id" mapstructure:"id"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty" mapstructure:"description"`
	Instruction string         `yaml:"instruction,omitempty" json:"instruction,omitempty" mapstructure:"instruction"`
	Entry       Entry          `yaml:"entry" json:"entry" mapstructure:"entry"`
	// Topic selects the classifier answer rule used by RulePolicy.
	Topic domain.Waypoint `yaml:"topic,omitempty" json:"topic,omitempty" mapstructure:"topic"`
	// AnyInput lets RulePolicy complete the stage on any non-empty turn.
	AnyInput bool `yaml:"any_input,omitempty" json:"any_input,omitempty" mapstructure:"any_input"`
	// Defaults are merged under the completion arguments.
	Defaults map[string]any `yaml:"defaults,omitempty" json:"defaults,omitempty" mapstructure:"defaults"`
}

// GroupSpec is an ordered set of stages activated together.
type GroupSpec struct {
	ID     string      `yaml:"id" json:"id" mapstructure:"id"`
	Stages []StageSpec `yaml:"stages" json:"stages" mapstructure:"stages"`
}

// Route picks the group that follows After from a field of a completed stage.
// Missing stages or fields resolve to Default.
type Route struct {
	After   string            `yaml:"after" json:"after" mapstructure:"after"`
	Stage   domain.StageID    `yaml:"stage" json:"stage" mapstructure:"stage"`
	Field   string            `yaml:"field" json:"field" mapstructure:"field"`
	Cases   map[string]string `yaml:"cases" json:"cases" mapstructure:"cases"`
	Default string            `yaml:"default" json:"default" mapstructure:"default"`
}

// Script is the full stage plan. Groups without a route are terminal.
type Script struct {
	Start    string      `yaml:"start" json:"start" mapstructure:"start"`
	Callback string      `yaml:"callback,omitempty" json:"callback,omitempty" mapstructure:"callback"`
	Groups   []GroupSpec `yaml:"groups" json:"groups" mapstructure:"groups"`
	Routes   []Route     `yaml:"routes,omitempty" json:"routes,omitempty" mapstructure:"routes"`
}

// Group returns the group with the given ID.
func (s Script) Group(id string) (GroupSpec, bool) {
	for _, g := range s.Groups {
		if g.ID == id {
			return g, true
		}
	}
	return GroupSpec{}, false
}

// Route returns the route leaving group after.
func (s Script) Route(after string) (Route, bool) {
	for _, r := range s.Routes {
		if r.After == after {
			return r, true
		}
	}
	return Route{}, false
}

// Stage looks a stage up across all groups.
func (s Script) Stage(id domain.StageID) (StageSpec, bool) {
	for _, g := range s.Groups {
		for _, st := range g.Stages {
			if st.ID == id {
				return st, true
			}
		}
	}
	return StageSpec{}, false
}

// Validate checks group references, stage IDs and route targets.
func (s Script) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidScript, fmt.Sprintf(format, args...))
	}

	groups := make(map[string]bool, len(s.Groups))
	for _, g := range s.Groups {
		if g.ID == "" {
			return fail("group without id")
		}
		if groups[g.ID] {
			return fail("duplicate group %q", g.ID)
		}
		groups[g.ID] = true
		if len(g.Stages) == 0 {
			return fail("group %q has no stages", g.ID)
		}
		seen := map[domain.StageID]bool{}
		for _, st := range g.Stages {
			if st.ID == "" {
				return fail("group %q has a stage without id", g.ID)
			}
			if seen[st.ID] {
				return fail("group %q repeats stage %q", g.ID, st.ID)
			}
			seen[st.ID] = true
		}
	}

	if !groups[s.Start] {
		return fail("start group %q not found", s.Start)
	}
	if s.Callback != "" && !groups[s.Callback] {
		return fail("callback group %q not found", s.Callback)
	}

	after := map[string]bool{}
	for _, r := range s.Routes {
		if !groups[r.After] {
			return fail("route after unknown group %q", r.After)
		}
		if after[r.After] {
			return fail("group %q has more than one route", r.After)
		}
		after[r.After] = true
		if r.Stage == "" || r.Field == "" {
			return fail("route after %q needs stage and field", r.After)
		}
		if _, ok := s.Stage(r.Stage); !ok {
			return fail("route after %q reads unknown stage %q", r.After, r.Stage)
		}
		if !groups[r.Default] {
			return fail("route after %q has unknown default %q", r.After, r.Default)
		}
		for k, target := range r.Cases {
			if !groups[target] {
				return fail("route after %q case %q targets unknown group %q", r.After, k, target)
			}
		}
	}
	return nil
}
