package engine

import (
	"context"
	"fmt"
	"net/url"

	"github.com/wenzapen/browse/browser"
	"github.com/wenzapen/browse/scope"
	"github.com/wenzapen/browse/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Match is the page definition selected for a visited URL.
type Match struct {
	Def        *PageDef
	PathParams map[string]string
	// Query is the raw query string, nil when the URL has none.
	Query any
	// Hash is the fragment including its leading '#', nil when absent.
	Hash any
}

// FindMatch searches the page registries from s outward. The nearest registry
// with a matching definition wins; inside a registry the earliest declared
// pattern wins. Finding nothing is not an error.
func FindMatch(s *scope.Scope, u *url.URL) *Match {
	target := *u
	target.RawQuery, target.ForceQuery = "", false
	target.Fragment, target.RawFragment = "", ""
	if target.Path == "" && target.RawPath == "" {
		target.Path = "/"
	}
	path := target.String()

	var m *Match
	scope.Walk(s, func(cur *scope.Scope) bool {
		v, ok := cur.Internal(KeyPageDefs)
		if !ok {
			return true
		}
		def, params, ok := v.(*Registry).Match(path)
		if !ok {
			return true
		}
		m = &Match{Def: def, PathParams: params}
		return false
	})
	if m == nil {
		return nil
	}
	if u.RawQuery != "" {
		m.Query = u.RawQuery
	}
	if u.Fragment != "" {
		m.Hash = "#" + u.EscapedFragment()
	}
	return m
}

// Visit opens href beneath the nearest browser scope. When a declared page
// matches, each of its rule sets runs concurrently in its own tab and page
// scope and the tabs are closed afterwards. Otherwise one tab is opened in the
// browser scope's session and left open.
func (e *Engine) Visit(ctx context.Context, s *scope.Scope, href string) (string, error) {
	if !scope.ValidateScope(IsBrowserScope, s) {
		return "", &ScopeViolationError{Op: "visit"}
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("visit %s: %w", href, err)
	}

	match := FindMatch(s, u)

	owner, err := scope.ResolveInternalScope(KeyBrowser, s)
	if err != nil {
		return "", err
	}
	v, _ := owner.Internal(KeyBrowser)
	m := v.(*browser.Manager)

	session, err := m.Session(ctx, headless(s))
	if err != nil {
		return "", err
	}
	e.visits.Add(1)

	if match == nil {
		e.Logger.Debug("no page matches", zap.String("url", href))
		// the tab stays open and tracked by the manager until Close
		if _, err := m.OpenTab(ctx, session, href); err != nil {
			return "", err
		}
		return href, nil
	}

	e.matches.Add(1)
	e.Logger.Info("page matched",
		zap.String("url", href),
		zap.String("pattern", match.Def.Key),
		zap.Any("params", match.PathParams))

	g, gctx := errgroup.WithContext(ctx)
	for _, rs := range match.Def.RuleSets {
		rs := rs
		g.Go(func() error {
			return e.runRuleSet(gctx, m, session, match, rs, href)
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return href, nil
}

func (e *Engine) runRuleSet(ctx context.Context, m *browser.Manager, session browser.Session, match *Match, rs RuleSet, href string) error {
	page, err := m.OpenTab(ctx, session, href)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.CloseTab(page); err != nil {
			e.Logger.Warn("close tab failed", zap.String("tab", page.ID), zap.Error(err))
		}
	}()

	ps := newPageScope(match.Def.Scope, page)
	for k, v := range match.PathParams {
		ps.SetVar(k, v)
	}
	ps.SetVar("url", href)
	ps.SetVar("hash", match.Hash)
	ps.SetVar("query", match.Query)

	if err := e.Interpreter.Eval(ctx, rs, ps); err != nil {
		return fmt.Errorf("rule set %s on %s: %w", rs.Name(), href, err)
	}

	data, _ := Data(ps)
	if len(data) == 0 {
		return nil
	}
	if prev, ok := data["url"]; ok && prev != href {
		e.Logger.Warn("the key 'url' is always overridden by the visited url",
			zap.String("rule_set", rs.Name()),
			zap.Any("discarded", prev),
			zap.String("url", href))
	}
	fields := make(map[string]any, len(data))
	for k, v := range data {
		if k != "url" {
			fields[k] = v
		}
	}
	return e.emit(ps, &storage.Record{URL: href, Fields: fields})
}

// emit writes r to the nearest scope with an output configured, or to the
// diagnostic stream when there is none.
func (e *Engine) emit(s *scope.Scope, r *storage.Record) error {
	out := e.fallback
	if v, err := scope.ResolveInternal(KeyConfig, s, storage.HasOutput); err == nil {
		st, err := v.(*storage.Config).Storage()
		if err != nil {
			return err
		}
		out = st
	}
	if err := out.Save(r); err != nil {
		return fmt.Errorf("save record for %s: %w", r.URL, err)
	}
	e.records.Add(1)
	return nil
}

func headless(s *scope.Scope) bool {
	v, err := scope.ResolveVar("headless", s)
	if err != nil {
		return true
	}
	b, ok := v.(bool)
	return !ok || b
}

func (e *Engine) visitFn(ctx context.Context, s *scope.Scope, args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("visit: expected 1 url, got %d arguments", len(args))
	}
	href, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("visit: url must be a string, got %T", args[0])
	}
	return e.Visit(ctx, s, href)
}
