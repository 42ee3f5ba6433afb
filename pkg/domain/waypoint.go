package domain

import (
	"fmt"
	"strings"
)

// Waypoint is one scripted topic the call must cover.
type Waypoint string

const (
	WaypointOpening     Waypoint = "opening"
	WaypointCallback    Waypoint = "callback"
	WaypointDiagnosis   Waypoint = "diagnosis"
	WaypointBiopsy      Waypoint = "biopsy"
	WaypointTreatment   Waypoint = "treatment"
	WaypointTimeline    Waypoint = "timeline"
	WaypointGeography   Waypoint = "geography"
	WaypointPositioning Waypoint = "positioning"
	WaypointOffer       Waypoint = "offer"
	WaypointClosing     Waypoint = "closing"
	WaypointDone        Waypoint = "done"
)

// canonical order of the script, escape states included.
var waypoints = []Waypoint{
	WaypointOpening,
	WaypointCallback,
	WaypointDiagnosis,
	WaypointBiopsy,
	WaypointTreatment,
	WaypointTimeline,
	WaypointGeography,
	WaypointPositioning,
	WaypointOffer,
	WaypointClosing,
	WaypointDone,
}

var waypointStages = map[Waypoint]StageID{
	WaypointOpening:     StageOpening,
	WaypointCallback:    StageScheduleCallback,
	WaypointDiagnosis:   StageDiagnosis,
	WaypointBiopsy:      StageBiopsy,
	WaypointTreatment:   StageTreatment,
	WaypointTimeline:    StageTimeline,
	WaypointGeography:   StageGeography,
	WaypointPositioning: StagePositioning,
	WaypointOffer:       StageOffer,
	WaypointClosing:     StageClosing,
}

// aliases accepted by ParseWaypoint.
var waypointAliases = map[string]Waypoint{
	"busy":               WaypointCallback,
	"callback_requested": WaypointCallback,
	"recording_intro":    WaypointOpening,
	"type_and_stage":     WaypointDiagnosis,
	"biopsy_done":        WaypointBiopsy,
	"treatment_status":   WaypointTreatment,
	"city_and_travel":    WaypointGeography,
	"consultation":       WaypointOffer,
}

// Waypoints returns the script waypoints in canonical order.
func Waypoints() []Waypoint {
	out := make([]Waypoint, len(waypoints))
	copy(out, waypoints)
	return out
}

// ParseWaypoint resolves a case-insensitive waypoint name or alias.
func ParseWaypoint(s string) (Waypoint, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	w := Waypoint(key)
	if w.Valid() {
		return w, nil
	}
	if alias, ok := waypointAliases[key]; ok {
		return alias, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownWaypoint, s)
}

// Valid reports whether w belongs to the script.
func (w Waypoint) Valid() bool {
	_, ok := waypointStages[w]
	return ok || w == WaypointDone
}

// Terminal reports whether w is the absorbing state.
func (w Waypoint) Terminal() bool {
	return w == WaypointDone
}

// Stage returns the stage ID recorded when the call leaves w.
// The terminal waypoint has no stage.
func (w Waypoint) Stage() StageID {
	return waypointStages[w]
}

func (w Waypoint) String() string {
	return string(w)
}
