package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrEmptyID is returned when a call has no id.
	ErrEmptyID = errors.New("call id must not be empty")
	// ErrDuplicateCall is returned when a running call is registered twice.
	ErrDuplicateCall = errors.New("call already registered")
)

// Directory indexes running calls by id. It is created by the host and injected
// into the transports that deliver callbacks.
type Directory struct {
	mu    sync.RWMutex
	calls map[string]*Live
}

// NewDirectory creates an empty Directory.
func NewDirectory() *Directory {
	return &Directory{calls: make(map[string]*Live)}
}

// Add registers a running call.
func (d *Directory) Add(l *Live) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.calls[l.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCall, l.ID)
	}
	d.calls[l.ID] = l
	return nil
}

// Get returns a running call.
func (d *Directory) Get(id string) (*Live, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	l, ok := d.calls[id]
	return l, ok
}

// Remove forgets a call. Removing an unknown id is a no-op.
func (d *Directory) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.calls, id)
}

// IDs returns the sorted ids of running calls.
func (d *Directory) IDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.calls))
	for id := range d.calls {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
