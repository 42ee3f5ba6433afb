// Package watchdog re-engages a silent caller.
//
// A Watchdog runs a fixed-interval check for the life of a call. It shares a
// single SilenceTimer with turn processing; the timer is a running maximum of
// speech timestamps updated with compare-and-swap, so concurrent writers can
// only move it forward and no lock is needed. The watchdog never touches
// conversation state: its only side effect is one interruptible line.
package watchdog
