/*
Package session owns the per-call context.

Manager serializes turns of persisted calls driven by the flow machine, with
reference-counted local locks and an optional distributed locker for multi-replica
deployments.

Live is the explicit context of one connected call: session id, caller metadata,
transcript, the stage orchestrator and the idle watchdog. Callbacks from the outside
(turns, completions, speech activity) are delivered to a Live value, never looked up
through process-wide state. Directory is an injected index of running Live calls.
*/
package session
