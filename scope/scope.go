package scope

import (
	"context"
	"sync"
)

// Func is a callable rule bound to the scope it is invoked from.
type Func func(ctx context.Context, s *Scope, args ...any) (any, error)

// Scope is one lexical context. Every scope except the root links to its parent,
// and a child never outlives the parent it points at.
type Scope struct {
	parent *Scope

	mu       sync.RWMutex
	vars     map[string]any
	fns      map[string]Func
	internal map[string]any
}

func New(parent *Scope) *Scope {
	return &Scope{
		parent:   parent,
		vars:     make(map[string]any),
		fns:      make(map[string]Func),
		internal: make(map[string]any),
	}
}

func (s *Scope) Parent() *Scope {
	return s.parent
}

func (s *Scope) Var(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

func (s *Scope) SetVar(name string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = v
}

// Vars returns a copy of the variables defined directly in s.
func (s *Scope) Vars() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}

func (s *Scope) Fn(name string) (Func, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn, ok := s.fns[name]
	return fn, ok
}

func (s *Scope) SetFn(name string, fn Func) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fns[name] = fn
}

func (s *Scope) Internal(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.internal[key]
	return v, ok
}

func (s *Scope) SetInternal(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.internal[key] = v
}
