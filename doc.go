/*
Package callflow is the decision and orchestration core of a scripted outbound phone call.

A voice agent calls a patient and walks a fixed script: opening, diagnosis, biopsy,
treatment, timeline, geography, positioning, offer, closing. Speech recognition and
synthesis live elsewhere; callflow decides what happens next.

# Concept

Two cores share one classifier:

  - The flow machine is a pure transition function over waypoints. Given the current
    waypoint and a caller utterance it returns the next waypoint and the instruction
    payload to hand to the language model. Busy callers escape to a callback waypoint
    from anywhere in the script.
  - The stage orchestrator drives a connected call. Stages are grouped; each stage
    speaks an entry line and waits until its structured result is recorded, either by
    a model tool call (the completion trigger) or by the rule policy. Routes pick the
    next group from recorded answers, and the flow result is finalized when a terminal
    group completes.

Persisted calls (Engine.Start, Engine.Turn) store a CallState per session through a
ports.StateStore. Live calls (Engine.NewLive) keep their state in memory and deliver a
session-end report with the transcript and the flow result.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/callflow"
	)

	func main() {
		eng, err := callflow.New()
		if err != nil {
			log.Fatal(err)
		}

		ctx := context.Background()
		if _, err := eng.Start(ctx, "call-123", map[string]any{"patient_name": "Asha"}); err != nil {
			log.Fatal(err)
		}

		// Each completed caller utterance moves the call at most one waypoint.
		state, tr, err := eng.Turn(ctx, "call-123", "yes, this is a good time")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(tr.Signal, state.Waypoint)
		fmt.Println(eng.InstructionFor(state.Waypoint))
	}

The cmd/callflow binary serves the same engine over HTTP and MCP and rehearses calls
in the terminal.
*/
package callflow
