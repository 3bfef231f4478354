package ioruntime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/aetherproxy/aetherproxy/internal/flow"
)

// Registry is the external (admin/metrics, interceptor) lookup-by-id surface
// for in-flight flows, realized as a side table rather than a back-reference
// from Flow to its runtime so neither holds a reference cycle on the other.
// Flow.ID itself stays a plain uint64 counter internally (matching
// intercept.FlowInfo across the rest of the proxy); uuid.UUID is used only
// here, as the identifier exposed outside the process, using the real
// github.com/google/uuid library rather than a hand-rolled generator.
type Registry struct {
	flows sync.Map // uuid.UUID -> *flow.Flow
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register assigns a fresh UUID to f and makes it visible to Lookup/Range.
func (r *Registry) Register(f *flow.Flow) uuid.UUID {
	id := uuid.New()
	r.flows.Store(id, f)
	return id
}

// Unregister removes id, called once a flow's Run returns.
func (r *Registry) Unregister(id uuid.UUID) {
	r.flows.Delete(id)
}

// Lookup returns the flow registered under id, if any.
func (r *Registry) Lookup(id uuid.UUID) (*flow.Flow, bool) {
	v, ok := r.flows.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*flow.Flow), true
}

// Range calls fn for every currently registered flow, stopping early if fn
// returns false (same contract as sync.Map.Range).
func (r *Registry) Range(fn func(id uuid.UUID, f *flow.Flow) bool) {
	r.flows.Range(func(k, v interface{}) bool {
		return fn(k.(uuid.UUID), v.(*flow.Flow))
	})
}

// Len reports how many flows are currently registered, for the admin/metrics
// surface.
func (r *Registry) Len() int {
	n := 0
	r.flows.Range(func(_, _ interface{}) bool { n++; return true })
	return n
}
