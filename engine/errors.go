package engine

import "fmt"

// ScopeViolationError reports an operation called outside a browser scope.
type ScopeViolationError struct {
	Op string
}

func (e *ScopeViolationError) Error() string {
	return fmt.Sprintf("cannot call %s outside of a browser scope", e.Op)
}

type InvalidPatternError struct {
	Pattern string
	Reason  string
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("'%s' is not a valid URL pattern: %s", e.Pattern, e.Reason)
}
