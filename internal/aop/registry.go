package aop

import (
	"sync"

	"github.com/tinylit/DeltaExpression/internal/ir"
)

// Shape is the invocation shape of a member, decided from its signature.
type Shape int

const (
	// SyncVoid members return nothing.
	SyncVoid Shape = iota
	// SyncValue members return a value.
	SyncValue
	// AsyncVoid members return a valueless pending handle.
	AsyncVoid
	// AsyncValue members return a pending handle producing a value.
	AsyncValue
)

func (s Shape) String() string {
	switch s {
	case SyncValue:
		return "sync-value"
	case AsyncVoid:
		return "async-void"
	case AsyncValue:
		return "async-value"
	}
	return "sync-void"
}

// Async reports whether the shape returns a pending handle.
func (s Shape) Async() bool { return s == AsyncVoid || s == AsyncValue }

// ShapeOf classifies m by its declared return type.
func ShapeOf(m *ir.Method) Shape {
	ret := m.Return
	switch {
	case ret == nil || ret.Kind == ir.KindVoid:
		return SyncVoid
	case ret.Kind == ir.KindPending && ret.Elem == nil:
		return AsyncVoid
	case ret.Kind == ir.KindPending:
		return AsyncValue
	}
	return SyncValue
}

// Registry maps members to their ordered interceptor chains. Members are
// keyed by the key of their generic definition, so every instantiation of
// a generic method shares one chain.
//
// Thread-safety: Registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	chains map[string][]Interceptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{chains: make(map[string][]Interceptor)}
}

// Register appends interceptors to the chain of m.
func (r *Registry) Register(m *ir.Method, interceptors ...Interceptor) {
	r.RegisterKey(m.Definition().Key(), interceptors...)
}

// RegisterKey appends interceptors to the chain of the member with the
// given key.
func (r *Registry) RegisterKey(key string, interceptors ...Interceptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains[key] = append(r.chains[key], interceptors...)
}

// Chain returns a copy of the chain of m, outermost first.
func (r *Registry) Chain(m *ir.Method) []Interceptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Interceptor(nil), r.chains[m.Definition().Key()]...)
}

// Len returns the number of members with a registered chain.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chains)
}
