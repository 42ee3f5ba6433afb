/*
Package domain contains the core models of a scripted call.

It defines the entities shared by the classifier, the flow machine, the stage
orchestrator and the watchdog. The package is kept pure and free of I/O or
persistence concerns, following Hexagonal Architecture principles.

# Key Entities

  - Waypoint: one scripted topic of the call (opening, diagnosis, ..., done).
  - Signals: the flags derived from a single utterance.
  - CallState: the persisted snapshot of a call driven by the flow machine.
  - FlowResult: the ordered, append-only record of completed stages.
*/
package domain
