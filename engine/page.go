package engine

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/wenzapen/browse/pattern"
	"github.com/wenzapen/browse/scope"
	"go.uber.org/zap"
)

// Names that are always injected into a page scope and so cannot be captured.
var reservedCaptures = []string{"url", "query", "hash"}

// DeclarePage binds template to ruleSets in the registry of the nearest browser
// scope. Rule sets later run beneath s, the declaring scope.
func (e *Engine) DeclarePage(s *scope.Scope, template string, ruleSets ...RuleSet) error {
	if !scope.ValidateScope(IsBrowserScope, s) {
		return &ScopeViolationError{Op: "page"}
	}
	if len(ruleSets) == 0 {
		return &InvalidPatternError{Pattern: template, Reason: "no rule set given"}
	}

	key, matcher, err := compilePattern(template)
	if err != nil {
		return err
	}

	v, err := scope.ResolveInternal(KeyPageDefs, s)
	if err != nil {
		return err
	}
	v.(*Registry).Put(&PageDef{
		Key:      key,
		Matcher:  matcher,
		RuleSets: ruleSets,
		Scope:    s,
	})
	e.Logger.Debug("page declared", zap.String("pattern", key), zap.Int("rule_sets", len(ruleSets)))
	return nil
}

// CheckPattern reports whether template would be accepted by DeclarePage.
func CheckPattern(template string) error {
	_, _, err := compilePattern(template)
	return err
}

func compilePattern(template string) (string, *pattern.Pattern, error) {
	key, err := CanonicalPattern(template)
	if err != nil {
		return "", nil, err
	}
	matcher, err := pattern.Compile(key)
	if err != nil {
		return "", nil, &InvalidPatternError{Pattern: template, Reason: err.Error()}
	}
	for _, name := range matcher.Names() {
		for _, reserved := range reservedCaptures {
			if name == reserved {
				return "", nil, &InvalidPatternError{
					Pattern: template,
					Reason:  "the pattern cannot contain :url, :query or :hash; $url, $query and $hash are set automatically",
				}
			}
		}
	}
	return key, matcher, nil
}

// CanonicalPattern rewrites a URL template into the pattern stored in the
// registry: `http(s)\://host[\:port][path]`. The scheme of the template is
// ignored and may be left out. A bare host gets the root path.
func CanonicalPattern(template string) (string, error) {
	raw := template
	if i := strings.Index(raw, "://"); i >= 0 {
		raw = raw[i+len("://"):]
	}
	u, err := url.Parse("//" + raw)
	if err != nil {
		return "", &InvalidPatternError{Pattern: template, Reason: err.Error()}
	}
	if u.Hostname() == "" {
		return "", &InvalidPatternError{Pattern: template, Reason: "missing host"}
	}

	var b strings.Builder
	b.WriteString(`http(s)\://`)
	b.WriteString(u.Hostname())
	if port := u.Port(); port != "" {
		b.WriteString(`\:` + port)
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	b.WriteString(path)
	return b.String(), nil
}

func (e *Engine) pageFn(ctx context.Context, s *scope.Scope, args ...any) (any, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("page: expected a url pattern")
	}
	template, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("page: url pattern must be a string, got %T", args[0])
	}
	ruleSets := make([]RuleSet, 0, len(args)-1)
	for _, a := range args[1:] {
		rs, ok := a.(RuleSet)
		if !ok {
			return nil, fmt.Errorf("page: %T is not a rule set", a)
		}
		ruleSets = append(ruleSets, rs)
	}
	return nil, e.DeclarePage(s, template, ruleSets...)
}
