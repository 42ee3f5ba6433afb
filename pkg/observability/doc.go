/*
Package observability provides tools for monitoring calls.

Metrics exposes Prometheus counters for waypoint transitions, stage completions,
rejected completions and watchdog re-engagements, fed by domain.LifecycleHooks.
LogHooks emits the same events as structured log lines for debugging.
*/
package observability
