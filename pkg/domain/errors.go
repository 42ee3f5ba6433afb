package domain

import "errors"

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrUnknownWaypoint is returned when a waypoint name is not part of the script.
var ErrUnknownWaypoint = errors.New("unknown waypoint")

// ErrUnknownStage is returned when a stage ID is not part of the script.
var ErrUnknownStage = errors.New("unknown stage")

// ErrStageAlreadyCompleted is returned on a second completion of the same stage.
// The first recorded result stays authoritative.
var ErrStageAlreadyCompleted = errors.New("stage already completed")

// ErrStageNotActive is returned when a completion targets a stage that is not running.
var ErrStageNotActive = errors.New("stage not active")

// ErrInvalidResult is returned when completion arguments cannot be decoded into the stage result.
var ErrInvalidResult = errors.New("invalid stage result")

// ErrFlowNotFinalized is returned when the flow result is read before the terminal group resolved.
var ErrFlowNotFinalized = errors.New("flow result not finalized")

// ErrFlowFinalized is returned when writing to a finalized flow result.
var ErrFlowFinalized = errors.New("flow result already finalized")
