// Package script loads declarative crawl scripts and runs them on an engine.
package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/wenzapen/browse/engine"
	"github.com/wenzapen/browse/scope"
	"github.com/wenzapen/browse/spider"
	"gopkg.in/yaml.v3"
)

// Script describes one browser scope: its settings, the pages it declares and
// the URLs it visits. Browsers nest further browser scopes beneath it.
type Script struct {
	Headless *bool          `toml:"headless" yaml:"headless"`
	Output   string         `toml:"output" yaml:"output"`
	Vars     map[string]any `toml:"vars" yaml:"vars"`
	Visit    []string       `toml:"visit" yaml:"visit"`
	Pages    []Page         `toml:"page" yaml:"page"`
	Rules    []*spider.Rule `toml:"rule" yaml:"rule"`
	Browsers []*Script      `toml:"browser" yaml:"browser"`
}

type Page struct {
	Pattern string   `toml:"pattern" yaml:"pattern"`
	Rules   []string `toml:"rules" yaml:"rules"`
}

// Load reads a script, choosing the decoder by file extension.
func Load(path string) (*Script, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc, err := Parse(b, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("load script %s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes b in the format named by ext: .toml, .yaml or .yml.
func Parse(b []byte, ext string) (*Script, error) {
	var sc Script
	switch strings.ToLower(ext) {
	case ".toml":
		if _, err := toml.NewDecoder(bytes.NewReader(b)).Decode(&sc); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&sc); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported script format %q", ext)
	}
	return &sc, nil
}

// Check validates the script without touching a browser. Rules declared by an
// enclosing script are visible to the scripts nested in it.
func (sc *Script) Check() error {
	_, err := sc.check(nil)
	return err
}

func (sc *Script) check(outer map[string]*spider.Rule) (map[string]*spider.Rule, error) {
	rules := make(map[string]*spider.Rule, len(outer)+len(sc.Rules))
	for k, v := range outer {
		rules[k] = v
	}
	local := make(map[string]bool)
	var errs []error
	for _, r := range sc.Rules {
		if err := r.Check(); err != nil {
			errs = append(errs, err)
			continue
		}
		if local[r.RuleName] {
			errs = append(errs, fmt.Errorf("rule %s declared twice", r.RuleName))
			continue
		}
		local[r.RuleName] = true
		rules[r.RuleName] = r
	}
	for _, p := range sc.Pages {
		if err := engine.CheckPattern(p.Pattern); err != nil {
			errs = append(errs, err)
		}
		if len(p.Rules) == 0 {
			errs = append(errs, fmt.Errorf("page %s has no rules", p.Pattern))
		}
		for _, name := range p.Rules {
			if _, ok := rules[name]; !ok {
				errs = append(errs, fmt.Errorf("page %s: unknown rule %s", p.Pattern, name))
			}
		}
	}
	for _, child := range sc.Browsers {
		if _, err := child.check(rules); err != nil {
			errs = append(errs, err)
		}
	}
	return rules, errors.Join(errs...)
}

// Run checks sc, then opens a browser scope beneath parent, declares the
// script's pages and visits its URLs in order before running nested browsers.
func Run(ctx context.Context, e *engine.Engine, parent *scope.Scope, sc *Script) error {
	if err := sc.Check(); err != nil {
		return err
	}
	return run(ctx, e, parent, sc, nil)
}

func run(ctx context.Context, e *engine.Engine, parent *scope.Scope, sc *Script, outer map[string]*spider.Rule) error {
	rules, err := sc.check(outer)
	if err != nil {
		return err
	}

	b := e.NewBrowserScope(parent)
	for k, v := range sc.Vars {
		b.SetVar(k, v)
	}
	if sc.Headless != nil {
		b.SetVar("headless", *sc.Headless)
	}
	if sc.Output != "" {
		e.SetOutput(b, sc.Output)
	}

	for _, p := range sc.Pages {
		ruleSets := make([]engine.RuleSet, 0, len(p.Rules))
		for _, name := range p.Rules {
			ruleSets = append(ruleSets, rules[name])
		}
		if err := e.DeclarePage(b, p.Pattern, ruleSets...); err != nil {
			return err
		}
	}

	for _, href := range sc.Visit {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := e.Visit(ctx, b, href); err != nil {
			return err
		}
	}

	for _, child := range sc.Browsers {
		if err := run(ctx, e, b, child, rules); err != nil {
			return err
		}
	}
	return nil
}
