package scope

import "fmt"

// Kinds of names reported by UnboundNameError.
const (
	KindVar      = "var"
	KindFn       = "fn"
	KindInternal = "internal"
)

// UnboundNameError is returned when a lookup reaches the root without a match.
type UnboundNameError struct {
	Kind string
	Name string
}

func (e *UnboundNameError) Error() string {
	switch e.Kind {
	case KindVar:
		return fmt.Sprintf("undefined variable: %s", e.Name)
	case KindFn:
		return fmt.Sprintf("undefined function: %s", e.Name)
	default:
		return fmt.Sprintf("no scope defines %s", e.Name)
	}
}

func ResolveVar(name string, s *Scope) (any, error) {
	for cur := s; cur != nil; cur = cur.Parent() {
		if v, ok := cur.Var(name); ok {
			return v, nil
		}
	}
	return nil, &UnboundNameError{Kind: KindVar, Name: name}
}

func ResolveFn(name string, s *Scope) (Func, error) {
	owner, err := ResolveFnScope(name, s)
	if err != nil {
		return nil, err
	}
	fn, _ := owner.Fn(name)
	return fn, nil
}

// ResolveFnScope returns the nearest scope defining the function rather than the
// function itself.
func ResolveFnScope(name string, s *Scope) (*Scope, error) {
	for cur := s; cur != nil; cur = cur.Parent() {
		if _, ok := cur.Fn(name); ok {
			return cur, nil
		}
	}
	return nil, &UnboundNameError{Kind: KindFn, Name: name}
}

// ResolveInternal returns the nearest internal value stored under key. Scopes
// holding the key but failing any of preds are skipped and the walk continues
// upward.
func ResolveInternal(key string, s *Scope, preds ...func(any) bool) (any, error) {
	for cur := s; cur != nil; cur = cur.Parent() {
		v, ok := cur.Internal(key)
		if !ok || !all(v, preds) {
			continue
		}
		return v, nil
	}
	return nil, &UnboundNameError{Kind: KindInternal, Name: key}
}

func ResolveInternalScope(key string, s *Scope) (*Scope, error) {
	for cur := s; cur != nil; cur = cur.Parent() {
		if _, ok := cur.Internal(key); ok {
			return cur, nil
		}
	}
	return nil, &UnboundNameError{Kind: KindInternal, Name: key}
}

// ValidateScope reports whether s or any of its ancestors satisfies pred.
func ValidateScope(pred func(*Scope) bool, s *Scope) bool {
	for cur := s; cur != nil; cur = cur.Parent() {
		if pred(cur) {
			return true
		}
	}
	return false
}

// Walk calls fn for s and each ancestor, nearest first, until fn returns false.
func Walk(s *Scope, fn func(*Scope) bool) {
	for cur := s; cur != nil; cur = cur.Parent() {
		if !fn(cur) {
			return
		}
	}
}

func all(v any, preds []func(any) bool) bool {
	for _, p := range preds {
		if !p(v) {
			return false
		}
	}
	return true
}
