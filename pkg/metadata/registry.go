package metadata

import (
	"fmt"
	"sort"
	"sync"
)

// Entry describes how one token behaves: whether it can be read or
// written, and how set payloads are checked. Validate is consulted on
// every set; a nil Validate accepts any byte sequence. Default, when
// non-nil, is the value reported for a settable token that has never been
// written.
type Entry struct {
	Name     string
	Gettable bool
	Settable bool
	Validate func(value []byte) error
	Default  []byte
}

// Registry maps tokens to their entries. New vendor tokens plug in at
// runtime without touching the core dispatch logic.
type Registry struct {
	mu      sync.RWMutex
	entries map[Type]*Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Type]*Entry)}
}

// Register adds a token. It fails on an empty namespace, an unnamed entry
// or a token that is already registered.
func (r *Registry) Register(t Type, e Entry) error {
	if t.Namespace == "" {
		return fmt.Errorf("metadata: empty namespace for code %d", t.Code)
	}
	if e.Name == "" {
		return fmt.Errorf("metadata: unnamed entry for %s", t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[t]; ok {
		return fmt.Errorf("metadata: %s already registered", t)
	}
	cp := e
	r.entries[t] = &cp
	return nil
}

// MustRegister is Register for init-time wiring; it panics on error.
func (r *Registry) MustRegister(t Type, e Entry) {
	if err := r.Register(t, e); err != nil {
		panic(err)
	}
}

// Lookup returns the entry for t, if registered.
func (r *Registry) Lookup(t Type) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[t]
	return e, ok
}

// List enumerates every registered token, ordered by namespace then code.
func (r *Registry) List() []Description {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Description, 0, len(r.entries))
	for t, e := range r.entries {
		out = append(out, Description{
			Type:     t,
			Name:     e.Name,
			Gettable: e.Gettable,
			Settable: e.Settable,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type.Namespace != out[j].Type.Namespace {
			return out[i].Type.Namespace < out[j].Type.Namespace
		}
		return out[i].Type.Code < out[j].Type.Code
	})
	return out
}

// Default is the process-wide registry holding the standard tokens.
// Vendor packages add their own tokens to it at init time.
var Default = NewRegistry()
