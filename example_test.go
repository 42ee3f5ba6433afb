package callflow_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/pkg/domain"
)

// ExampleEngine_NextState shows the stateless transition function.
func ExampleEngine_NextState() {
	engine, err := callflow.New()
	if err != nil {
		log.Fatal(err)
	}

	// A refusal at the opening goes to the callback waypoint.
	fmt.Println(engine.NextState(domain.WaypointOpening, "no").To)
	// Busy callers escape from any open topic.
	fmt.Println(engine.NextState(domain.WaypointDiagnosis, "I am busy right now").To)
	// Empty input never moves the call.
	fmt.Println(engine.NextState(domain.WaypointBiopsy, "   ").To)

	// Output:
	// callback
	// callback
	// biopsy
}

// ExampleEngine_Turn drives a persisted call turn by turn.
func ExampleEngine_Turn() {
	engine, err := callflow.New()
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if _, err := engine.Start(ctx, "example", nil); err != nil {
		log.Fatal(err)
	}

	for _, utterance := range []string{"yes", "who is this?"} {
		state, tr, err := engine.Turn(ctx, "example", utterance)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%s -> %s (%s)\n", tr.From, state.Waypoint, tr.Signal)
	}

	// Output:
	// opening -> diagnosis (answer)
	// diagnosis -> diagnosis (clarification)
}
