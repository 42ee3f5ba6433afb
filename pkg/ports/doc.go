// Package ports defines the interfaces between the call core and its adapters.
//
// Driven ports: StateStore and DistributedLocker persist calls driven by the
// flow machine; Speaker is the speech collaborator used by stage entry actions
// and the watchdog; Reporter receives the session-end report.
package ports
