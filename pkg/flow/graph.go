package flow

import (
	"fmt"

	"github.com/aretw0/callflow/pkg/domain"
)

// Edge describes where a waypoint leads once it is answered.
type Edge struct {
	// Default is the next waypoint for an answer without a matching branch.
	Default domain.Waypoint `yaml:"default" json:"default" mapstructure:"default"`
	// OnAffirmative and OnNegative select a branch from the answer polarity.
	OnAffirmative domain.Waypoint `yaml:"on_affirmative,omitempty" json:"on_affirmative,omitempty" mapstructure:"on_affirmative"`
	OnNegative    domain.Waypoint `yaml:"on_negative,omitempty" json:"on_negative,omitempty" mapstructure:"on_negative"`
	// Unconditional advances on any non-empty input regardless of signals.
	Unconditional bool `yaml:"unconditional,omitempty" json:"unconditional,omitempty" mapstructure:"unconditional"`
}

// Branching reports whether the edge selects among several targets.
func (e Edge) Branching() bool {
	return e.OnAffirmative != "" || e.OnNegative != ""
}

// Graph is the transition table. Waypoints without an edge are absorbing.
type Graph map[domain.Waypoint]Edge

// DefaultGraph returns the canonical script ordering.
func DefaultGraph() Graph {
	return Graph{
		domain.WaypointOpening:     {Default: domain.WaypointDiagnosis, OnNegative: domain.WaypointCallback},
		domain.WaypointCallback:    {Default: domain.WaypointClosing, Unconditional: true},
		domain.WaypointDiagnosis:   {Default: domain.WaypointBiopsy},
		domain.WaypointBiopsy:      {Default: domain.WaypointTreatment},
		domain.WaypointTreatment:   {Default: domain.WaypointTimeline, OnAffirmative: domain.WaypointGeography, OnNegative: domain.WaypointTimeline},
		domain.WaypointTimeline:    {Default: domain.WaypointGeography},
		domain.WaypointGeography:   {Default: domain.WaypointPositioning},
		domain.WaypointPositioning: {Default: domain.WaypointOffer},
		domain.WaypointOffer:       {Default: domain.WaypointClosing},
		domain.WaypointClosing:     {Default: domain.WaypointDone, Unconditional: true},
	}
}

// Validate checks that every edge points to a known waypoint and that the
// callback escape state is reachable.
func (g Graph) Validate() error {
	for from, e := range g {
		if !from.Valid() {
			return fmt.Errorf("%w: %q", domain.ErrUnknownWaypoint, from)
		}
		if from.Terminal() {
			return fmt.Errorf("terminal waypoint %q cannot have an edge", from)
		}
		for _, to := range []domain.Waypoint{e.Default, e.OnAffirmative, e.OnNegative} {
			if to != "" && !to.Valid() {
				return fmt.Errorf("edge from %q: %w: %q", from, domain.ErrUnknownWaypoint, to)
			}
		}
		if e.Default == "" {
			return fmt.Errorf("edge from %q has no default target", from)
		}
	}
	if _, ok := g[domain.WaypointCallback]; !ok {
		return fmt.Errorf("graph has no edge out of %q", domain.WaypointCallback)
	}
	return nil
}

// Targets lists the distinct targets of an edge in a stable order.
func (e Edge) Targets() []domain.Waypoint {
	var out []domain.Waypoint
	seen := map[domain.Waypoint]bool{}
	for _, w := range []domain.Waypoint{e.Default, e.OnAffirmative, e.OnNegative} {
		if w != "" && !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}
