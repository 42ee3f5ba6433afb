package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/flow"
)

// GraphOverlay contains call state to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []domain.Waypoint
	CurrentNode  domain.Waypoint
}

// OverlayFor builds the overlay of a persisted call.
func OverlayFor(st *domain.CallState) *GraphOverlay {
	if st == nil {
		return nil
	}
	return &GraphOverlay{VisitedNodes: st.History, CurrentNode: st.Waypoint}
}

// GenerateMermaid produces a Mermaid flowchart of the transition graph.
// It applies semantic styling:
// - Opening: ((Circle))
// - Terminal: (((Double circle)))
// - Escape (callback): {{Hexagon}}
// - Default: [Rectangle]
// Branch edges are labelled with the answer polarity and unconditional edges
// are drawn thick. It also applies overlay styles (Visited/Current) if provided.
func GenerateMermaid(g flow.Graph, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, wp := range ordered(g) {
		safeID := sanitizeMermaidID(string(wp))

		opener, closer := "[", "]"
		switch {
		case wp == domain.WaypointOpening:
			opener, closer = "((", "))"
		case wp.Terminal():
			opener, closer = "(((", ")))"
		case wp == domain.WaypointCallback:
			opener, closer = "{{", "}}"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, wp, closer)

		e, ok := g[wp]
		if !ok {
			continue
		}
		arrow := "-->"
		if e.Unconditional {
			arrow = "==>"
		}
		if e.OnAffirmative != "" {
			fmt.Fprintf(&sb, "    %s -- \"yes\" --> %s\n", safeID, sanitizeMermaidID(string(e.OnAffirmative)))
		}
		if e.OnNegative != "" {
			fmt.Fprintf(&sb, "    %s -- \"no\" --> %s\n", safeID, sanitizeMermaidID(string(e.OnNegative)))
		}
		if e.Default != e.OnAffirmative && e.Default != e.OnNegative {
			fmt.Fprintf(&sb, "    %s %s %s\n", safeID, arrow, sanitizeMermaidID(string(e.Default)))
		}
	}

	// Busy callers escape from any open topic.
	if _, ok := g[domain.WaypointCallback]; ok {
		for _, wp := range ordered(g) {
			if wp == domain.WaypointCallback || wp.Terminal() || wp == domain.WaypointClosing {
				continue
			}
			if _, ok := g[wp]; !ok {
				continue
			}
			fmt.Fprintf(&sb, "    %s -. busy .-> %s\n", sanitizeMermaidID(string(wp)), sanitizeMermaidID(string(domain.WaypointCallback)))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, wp := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(string(wp))
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}

		if overlay.CurrentNode != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(string(overlay.CurrentNode)))
		}
	}

	return sb.String()
}

// ordered lists the canonical waypoints that appear in g, as a source or a
// target, so the output is stable.
func ordered(g flow.Graph) []domain.Waypoint {
	present := map[domain.Waypoint]bool{}
	for from, e := range g {
		present[from] = true
		for _, to := range e.Targets() {
			present[to] = true
		}
	}
	var out []domain.Waypoint
	for _, wp := range domain.Waypoints() {
		if present[wp] {
			out = append(out, wp)
		}
	}
	return out
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	// "end" is a reserved word in flowcharts.
	if s == "end" {
		s = "end_"
	}
	return s
}
