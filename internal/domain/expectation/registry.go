package expectation

import (
	"fmt"
	"sync"
)

// Registry is the insertion-ordered arena of expectations owned by one
// server. The lock only guards the arena layout; consumption goes through
// each entry's own atomic counter, so requests never serialize on it.
type Registry struct {
	mu      sync.RWMutex
	entries []*Expectation
	nextSeq uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends e. IDs must be unique within the registry.
func (r *Registry) Add(e *Expectation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.entries {
		if existing.id == e.id {
			return fmt.Errorf("duplicate expectation ID: %q", e.id)
		}
	}
	r.nextSeq++
	e.seq = r.nextSeq
	r.entries = append(r.entries, e)
	return nil
}

// Snapshot returns the current entries in registration order. The slice is
// a copy; the expectations are shared.
func (r *Registry) Snapshot() []*Expectation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Expectation, len(r.entries))
	copy(out, r.entries)
	return out
}

// Get finds an expectation by ID.
func (r *Registry) Get(id string) (*Expectation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.id == id {
			return e, true
		}
	}
	return nil, false
}

// Remove deletes an expectation by ID and reports whether it existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.id == id {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

// ReplaceGroup drops every entry tagged group and appends exps in order.
// Entries from other groups keep their positions.
func (r *Registry) ReplaceGroup(group string, exps []*Expectation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := make([]*Expectation, 0, len(r.entries)+len(exps))
	ids := make(map[string]bool, len(r.entries))
	for _, e := range r.entries {
		if e.group != group {
			kept = append(kept, e)
			ids[e.id] = true
		}
	}
	for _, e := range exps {
		if ids[e.id] {
			return fmt.Errorf("duplicate expectation ID: %q", e.id)
		}
		ids[e.id] = true
		e.group = group
		r.nextSeq++
		e.seq = r.nextSeq
		kept = append(kept, e)
	}
	r.entries = kept
	return nil
}

// Clear removes every expectation.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// Len returns the number of registered expectations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Verify checks every registered expectation, see Verify.
func (r *Registry) Verify() error {
	return Verify(r.Snapshot())
}
