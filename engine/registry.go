package engine

import (
	"sync"

	"github.com/wenzapen/browse/pattern"
	"github.com/wenzapen/browse/scope"
)

// PageDef binds a compiled pattern to the rule sets declared for it.
type PageDef struct {
	Key      string
	Matcher  *pattern.Pattern
	RuleSets []RuleSet
	// Scope is where the page was declared; its rule sets run beneath it.
	Scope *scope.Scope
}

// Registry holds the page definitions of one browser scope, keyed by canonical
// pattern and ordered by first declaration.
type Registry struct {
	mu    sync.RWMutex
	order []string
	defs  map[string]*PageDef
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*PageDef)}
}

// Put stores def. A definition already stored under the same key is replaced
// and keeps its position.
func (r *Registry) Put(def *PageDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[def.Key]; !ok {
		r.order = append(r.order, def.Key)
	}
	r.defs[def.Key] = def
}

// Match returns the earliest declared definition matching target.
func (r *Registry) Match(target string) (*PageDef, map[string]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, key := range r.order {
		def := r.defs[key]
		if params, ok := def.Matcher.Match(target); ok {
			return def, params, true
		}
	}
	return nil, nil, false
}

func (r *Registry) Defs() []*PageDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]*PageDef, 0, len(r.order))
	for _, key := range r.order {
		defs = append(defs, r.defs[key])
	}
	return defs
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
