package spider

import (
	"errors"
	"fmt"
)

// Rule is a named rule set: steps run in order against one page.
type Rule struct {
	RuleName string `toml:"name" yaml:"name"`
	Steps    []Step `toml:"step" yaml:"step"`
}

func (r *Rule) Name() string {
	return r.RuleName
}

// Step holds exactly one statement.
type Step struct {
	Extract *Extract `toml:"extract" yaml:"extract"`
	Set     *Set     `toml:"set" yaml:"set"`
	Follow  *Follow  `toml:"follow" yaml:"follow"`
	Call    *Call    `toml:"call" yaml:"call"`
}

// Extract stores the text, or attribute, of the nodes matching XPath.
type Extract struct {
	Field string `toml:"field" yaml:"field"`
	XPath string `toml:"xpath" yaml:"xpath"`
	Attr  string `toml:"attr" yaml:"attr"`
	All   bool   `toml:"all" yaml:"all"`
}

// Set stores the value of a variable in scope.
type Set struct {
	Field string `toml:"field" yaml:"field"`
	Var   string `toml:"var" yaml:"var"`
}

// Follow visits the links matching XPath.
type Follow struct {
	XPath string `toml:"xpath" yaml:"xpath"`
	Attr  string `toml:"attr" yaml:"attr"`
	Limit int    `toml:"limit" yaml:"limit"`
}

// Call invokes a scope function and optionally stores its result.
type Call struct {
	Fn    string   `toml:"fn" yaml:"fn"`
	Args  []string `toml:"args" yaml:"args"`
	Field string   `toml:"field" yaml:"field"`
}

func (r *Rule) Check() error {
	if r.RuleName == "" {
		return errors.New("rule without a name")
	}
	for i, s := range r.Steps {
		if err := s.check(); err != nil {
			return fmt.Errorf("rule %s step %d: %w", r.RuleName, i+1, err)
		}
	}
	return nil
}

func (s Step) check() error {
	n := 0
	for _, set := range []bool{s.Extract != nil, s.Set != nil, s.Follow != nil, s.Call != nil} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("a step needs exactly one of extract, set, follow or call, got %d", n)
	}
	switch {
	case s.Extract != nil && (s.Extract.Field == "" || s.Extract.XPath == ""):
		return errors.New("extract needs a field and an xpath")
	case s.Set != nil && (s.Set.Field == "" || s.Set.Var == ""):
		return errors.New("set needs a field and a var")
	case s.Follow != nil && s.Follow.XPath == "":
		return errors.New("follow needs an xpath")
	case s.Call != nil && s.Call.Fn == "":
		return errors.New("call needs a fn")
	}
	return nil
}
