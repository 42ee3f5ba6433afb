package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
)

// StageRecord is one entry of a FlowResult.
type StageRecord struct {
	Stage  StageID `json:"stage"`
	Result any     `json:"result"`
}

// FlowResult is the ordered, append-only mapping of stage ID to result.
// Once finalized it is read-only.
type FlowResult struct {
	mu        sync.RWMutex
	order     []StageID
	results   map[StageID]any
	finalized bool
}

// NewFlowResult creates an empty, open flow result.
func NewFlowResult() *FlowResult {
	return &FlowResult{results: make(map[StageID]any)}
}

// FlowResultFromRecords rebuilds a flow result from persisted records.
// Duplicate stages keep their first occurrence.
func FlowResultFromRecords(records []StageRecord, finalized bool) *FlowResult {
	f := NewFlowResult()
	for _, r := range records {
		_ = f.Record(r.Stage, r.Result)
	}
	f.finalized = finalized
	return f
}

// Record appends the result of a stage.
func (f *FlowResult) Record(id StageID, result any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.finalized {
		return fmt.Errorf("%w: %s", ErrFlowFinalized, id)
	}
	if _, exists := f.results[id]; exists {
		return fmt.Errorf("%w: %s", ErrStageAlreadyCompleted, id)
	}
	f.order = append(f.order, id)
	f.results[id] = CloneResult(result)
	return nil
}

// Get returns the result stored for a stage.
func (f *FlowResult) Get(id StageID) (any, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	r, ok := f.results[id]
	return CloneResult(r), ok
}

// Has reports whether a stage has a recorded result.
func (f *FlowResult) Has(id StageID) bool {
	_, ok := f.Get(id)
	return ok
}

// Keys returns the stage IDs in insertion order.
func (f *FlowResult) Keys() []StageID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]StageID, len(f.order))
	copy(out, f.order)
	return out
}

// Len returns the number of recorded stages.
func (f *FlowResult) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.order)
}

// Records returns the entries in insertion order.
func (f *FlowResult) Records() []StageRecord {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]StageRecord, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, StageRecord{Stage: id, Result: CloneResult(f.results[id])})
	}
	return out
}

// Finalize makes the flow result read-only. It is idempotent.
func (f *FlowResult) Finalize() {
	f.mu.Lock()
	f.finalized = true
	f.mu.Unlock()
}

// Finalized reports whether the terminal group has resolved.
func (f *FlowResult) Finalized() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.finalized
}

// Snapshot returns an independent copy, keeping the finalized flag.
func (f *FlowResult) Snapshot() *FlowResult {
	f.mu.RLock()
	defer f.mu.RUnlock()
	cp := &FlowResult{
		order:     make([]StageID, len(f.order)),
		results:   make(map[StageID]any, len(f.results)),
		finalized: f.finalized,
	}
	copy(cp.order, f.order)
	for k, v := range f.results {
		cp.results[k] = CloneResult(v)
	}
	return cp
}

// CloneResult deep-copies the generic containers of a stage result so callers
// never share them with the recorded entry. Typed results are plain values.
func CloneResult(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return t
		}
		cp := make(map[string]any, len(t))
		for k, e := range t {
			cp[k] = CloneResult(e)
		}
		return cp
	case []any:
		if t == nil {
			return t
		}
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = CloneResult(e)
		}
		return cp
	default:
		return v
	}
}

// MarshalJSON encodes the flow result as a JSON object in insertion order.
func (f *FlowResult) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, rec := range f.Records() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(rec.Stage))
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(rec.Result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result of stage %s: %w", rec.Stage, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
