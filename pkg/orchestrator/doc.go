/*
Package orchestrator runs a call as ordered groups of stages.

Each stage has an entry action, invoked exactly once when the stage becomes
active, and a completion contract: the first Complete call records a typed
result in the FlowResult, later calls are rejected. The next group is chosen
by a Route reading a field of an already-completed stage. The orchestrator
does no timing of its own; a stage that never completes stays active until
the context is cancelled.

A Policy decides, per user turn, whether the active stage is satisfied.
RulePolicy uses the keyword classifier, ModelPolicy defers to an external
reasoning collaborator that calls Complete itself.
*/
package orchestrator
