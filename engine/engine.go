// Package engine binds URL patterns to rule sets and dispatches visited URLs to
// them. Scripts declare pages and visit URLs inside browser scopes; every
// browser scope owns one lazily launched browser session and a page registry.
package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/wenzapen/browse/browser"
	"github.com/wenzapen/browse/scope"
	"github.com/wenzapen/browse/storage"
	"github.com/wenzapen/browse/storage/jsonstorage"
	"github.com/wenzapen/browse/storage/sqlstorage"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Internal keys of the engine's scope state.
const (
	KeyIsBrowser = "isBrowser"
	KeyBrowser   = "browser"
	KeyPageDefs  = "pageDefs"
	KeyConfig    = "config"
	KeyPage      = "page"
	KeyData      = "data"
	KeyHelp      = "help"
)

// RuleSet is a sequence of statements evaluated against a page scope.
type RuleSet interface {
	Name() string
}

// Interpreter evaluates rule sets. Extracted data is accumulated in the map
// returned by Data for the scope it is handed.
type Interpreter interface {
	Eval(ctx context.Context, rs RuleSet, s *scope.Scope) error
}

type InterpreterFunc func(ctx context.Context, rs RuleSet, s *scope.Scope) error

func (f InterpreterFunc) Eval(ctx context.Context, rs RuleSet, s *scope.Scope) error {
	return f(ctx, rs, s)
}

type Stats struct {
	Visits  int64
	Matches int64
	Records int64
}

type Engine struct {
	root     *scope.Scope
	limiter  *rate.Limiter
	fallback storage.Storage

	mu       sync.Mutex
	managers []*browser.Manager
	configs  []*storage.Config

	visits  atomic.Int64
	matches atomic.Int64
	records atomic.Int64

	options
}

func NewEngine(opts ...Option) *Engine {
	options := DefaultOptions
	for _, opt := range opts {
		opt(&options)
	}

	e := &Engine{options: options}
	if e.Rate > 0 {
		burst := e.Burst
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(e.Rate), burst)
	}
	e.fallback = jsonstorage.NewWriter(e.Diagnostic, jsonstorage.WithLogger(e.Logger))

	e.root = scope.New(nil)
	e.root.SetInternal(KeyHelp, rootHelp)
	e.root.SetFn("help", e.helpFn)
	if e.Output != "" {
		e.SetOutput(e.root, e.Output)
	}
	return e
}

// Root is the outermost scope. It is not browser-capable.
func (e *Engine) Root() *scope.Scope {
	return e.root
}

// NewBrowserScope opens a browser-capable scope beneath parent with its own
// session and page registry.
func (e *Engine) NewBrowserScope(parent *scope.Scope) *scope.Scope {
	opts := []browser.Option{
		browser.WithLogger(e.Logger),
		browser.WithTimeout(e.Timeout),
		browser.WithProxy(e.Proxy),
	}
	if e.limiter != nil {
		opts = append(opts, browser.WithLimiter(e.limiter))
	}
	m := browser.NewManager(e.Provider, opts...)

	s := scope.New(parent)
	s.SetVar("headless", true)
	s.SetInternal(KeyIsBrowser, true)
	s.SetInternal(KeyBrowser, m)
	s.SetInternal(KeyPageDefs, NewRegistry())
	s.SetInternal(KeyHelp, browserHelp)
	s.SetFn("help", e.helpFn)
	s.SetFn("page", e.pageFn)
	s.SetFn("visit", e.visitFn)

	e.mu.Lock()
	e.managers = append(e.managers, m)
	e.mu.Unlock()
	return s
}

// SetOutput makes s carry an output destination. Records produced beneath s
// go there unless a nearer scope configures another one.
func (e *Engine) SetOutput(s *scope.Scope, output string) {
	c := storage.NewConfig(output, e.openStorage)
	s.SetInternal(KeyConfig, c)

	e.mu.Lock()
	e.configs = append(e.configs, c)
	e.mu.Unlock()
}

func (e *Engine) openStorage(output string) (storage.Storage, error) {
	if sqlstorage.IsURL(output) {
		return sqlstorage.New(sqlstorage.WithSQLURL(output), sqlstorage.WithLogger(e.Logger))
	}
	return jsonstorage.New(output, jsonstorage.WithLogger(e.Logger))
}

func (e *Engine) Stats() Stats {
	return Stats{
		Visits:  e.visits.Load(),
		Matches: e.matches.Load(),
		Records: e.records.Load(),
	}
}

// Close shuts every browser down and closes every opened output.
func (e *Engine) Close() error {
	e.mu.Lock()
	managers, configs := e.managers, e.configs
	e.managers, e.configs = nil, nil
	e.mu.Unlock()

	var errs []error
	for _, m := range managers {
		if err := m.Shutdown(); err != nil {
			e.Logger.Error("browser shutdown failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	for _, c := range configs {
		if err := c.Close(); err != nil {
			e.Logger.Error("close output failed", zap.String("output", c.Output), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IsBrowserScope reports whether s is the browser-capable scope itself.
func IsBrowserScope(s *scope.Scope) bool {
	v, ok := s.Internal(KeyIsBrowser)
	return ok && v == true
}

// Page returns the tab of the nearest page scope.
func Page(s *scope.Scope) (*browser.Page, error) {
	v, err := scope.ResolveInternal(KeyPage, s)
	if err != nil {
		return nil, err
	}
	return v.(*browser.Page), nil
}

// Data returns the extraction record of the nearest page scope.
func Data(s *scope.Scope) (map[string]any, error) {
	v, err := scope.ResolveInternal(KeyData, s)
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

func newPageScope(parent *scope.Scope, page *browser.Page) *scope.Scope {
	s := scope.New(parent)
	s.SetInternal(KeyPage, page)
	s.SetInternal(KeyData, map[string]any{})
	return s
}
