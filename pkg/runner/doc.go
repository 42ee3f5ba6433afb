/*
Package runner rehearses a call in the terminal.

A TextHandler plays both sides of the speech collaborator: agent lines and
generation requests are printed, and each line typed on the console becomes a
completed caller turn. The Runner feeds those turns into a session.Live until
the console input closes: like a real call, the line stays open after the flow
finalizes and closing the input is the hang-up.

# Usage

	console := runner.NewTextHandler(os.Stdin, os.Stdout)
	live, err := session.NewLive(session.LiveConfig{ID: "rehearsal", Speaker: console})
	if err != nil {
		log.Fatal(err)
	}

	sm := runner.NewSignalManager(ctx)
	defer sm.Stop()

	result, err := runner.NewRunner().Run(sm.Context(), live, console)

Input is sanitized before it reaches the policy; see SanitizeInput.
*/
package runner
