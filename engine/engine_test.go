package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wenzapen/browse/browser"
	"github.com/wenzapen/browse/browser/browsertest"
	"github.com/wenzapen/browse/scope"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type ruleSet string

func (r ruleSet) Name() string { return string(r) }

// recorder is an interpreter remembering the scope each rule set ran in.
type recorder struct {
	mu     sync.Mutex
	scopes map[string]*scope.Scope
	fn     func(ctx context.Context, rs RuleSet, s *scope.Scope) error
}

func (r *recorder) Eval(ctx context.Context, rs RuleSet, s *scope.Scope) error {
	r.mu.Lock()
	if r.scopes == nil {
		r.scopes = make(map[string]*scope.Scope)
	}
	r.scopes[rs.Name()] = s
	r.mu.Unlock()
	if r.fn != nil {
		return r.fn(ctx, rs, s)
	}
	return nil
}

func (r *recorder) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scopes)
}

func newTestEngine(t *testing.T, interp Interpreter, opts ...Option) (*Engine, *browsertest.Provider, *bytes.Buffer) {
	t.Helper()
	p := &browsertest.Provider{}
	diag := &bytes.Buffer{}
	opts = append([]Option{
		WithProvider(p),
		WithInterpreter(interp),
		WithDiagnostic(diag),
	}, opts...)
	e := NewEngine(opts...)
	t.Cleanup(func() { _ = e.Close() })
	return e, p, diag
}

func TestDeclarePageReservedCaptures(t *testing.T) {
	e, _, _ := newTestEngine(t, &recorder{})
	b := e.NewBrowserScope(e.Root())

	for _, name := range []string{"url", "query", "hash"} {
		err := e.DeclarePage(b, "http(s)://example.com/item/:"+name, ruleSet("r"))
		var invalid *InvalidPatternError
		require.ErrorAs(t, err, &invalid, name)
		assert.Contains(t, err.Error(), ":url, :query or :hash")
	}

	require.NoError(t, e.DeclarePage(b, "http(s)://example.com/item/:id", ruleSet("r")))
	require.NoError(t, e.DeclarePage(b, "example.com/user/:urlName", ruleSet("r")))

	v, _ := b.Internal(KeyPageDefs)
	assert.Equal(t, 2, v.(*Registry).Len())
}

func TestDeclarePageErrors(t *testing.T) {
	e, _, _ := newTestEngine(t, &recorder{})
	b := e.NewBrowserScope(e.Root())

	err := e.DeclarePage(e.Root(), "example.com/", ruleSet("r"))
	var violation *ScopeViolationError
	require.ErrorAs(t, err, &violation)
	assert.EqualError(t, err, "cannot call page outside of a browser scope")

	for _, template := range []string{"/only/a/path", "", "http:///x"} {
		err = e.DeclarePage(b, template, ruleSet("r"))
		var invalid *InvalidPatternError
		assert.ErrorAs(t, err, &invalid, template)
	}

	err = e.DeclarePage(b, "example.com/list(/:page", ruleSet("r"))
	var invalid *InvalidPatternError
	assert.ErrorAs(t, err, &invalid)

	err = e.DeclarePage(b, "example.com/")
	assert.ErrorAs(t, err, &invalid)
}

func TestDeclarePageFromNestedScope(t *testing.T) {
	e, _, _ := newTestEngine(t, &recorder{})
	b := e.NewBrowserScope(e.Root())
	inner := scope.New(b)

	require.NoError(t, e.DeclarePage(inner, "example.com/a", ruleSet("r")))
	v, _ := b.Internal(KeyPageDefs)
	defs := v.(*Registry).Defs()
	require.Len(t, defs, 1)
	assert.Same(t, inner, defs[0].Scope, "the declaring scope is kept, the registry is the browser scope's")
}

func TestCanonicalPattern(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http(s)://example.com/item/:id", `http(s)\://example.com/item/:id`},
		{"https://example.com/item/:id", `http(s)\://example.com/item/:id`},
		{"example.com", `http(s)\://example.com/`},
		{"https://example.com", `http(s)\://example.com/`},
		{"localhost:8080/blog/:slug", `http(s)\://localhost\:8080/blog/:slug`},
		{"example.com/search?q=:q", `http(s)\://example.com/search`},
	}
	for _, tt := range tests {
		got, err := CanonicalPattern(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestFindMatchCaptures(t *testing.T) {
	e, _, _ := newTestEngine(t, &recorder{})
	b := e.NewBrowserScope(e.Root())
	require.NoError(t, e.DeclarePage(b, "http(s)://example.com/item/:id", ruleSet("item")))

	u, err := url.Parse("https://example.com/item/42?x=1#top")
	require.NoError(t, err)
	m := FindMatch(b, u)
	require.NotNil(t, m)
	assert.Equal(t, map[string]string{"id": "42"}, m.PathParams)
	assert.Equal(t, "x=1", m.Query)
	assert.Equal(t, "#top", m.Hash)

	u, _ = url.Parse("https://example.com/item/42")
	m = FindMatch(b, u)
	require.NotNil(t, m)
	assert.Nil(t, m.Query)
	assert.Nil(t, m.Hash)

	u, _ = url.Parse("https://example.com/other")
	assert.Nil(t, FindMatch(b, u))
}

func TestFindMatchOrder(t *testing.T) {
	e, _, _ := newTestEngine(t, &recorder{})
	outer := e.NewBrowserScope(e.Root())
	inner := e.NewBrowserScope(outer)

	require.NoError(t, e.DeclarePage(outer, "example.com/item/:id", ruleSet("outer")))
	require.NoError(t, e.DeclarePage(inner, "example.com/*", ruleSet("wild")))
	require.NoError(t, e.DeclarePage(inner, "example.com/item/:id", ruleSet("inner")))

	u, _ := url.Parse("https://example.com/item/1")
	m := FindMatch(inner, u)
	require.NotNil(t, m)
	assert.Equal(t, ruleSet("wild"), m.Def.RuleSets[0], "earliest declaration in the nearest registry")

	m = FindMatch(outer, u)
	require.NotNil(t, m)
	assert.Equal(t, ruleSet("outer"), m.Def.RuleSets[0], "registries below the visiting scope are not searched")

	require.NoError(t, e.DeclarePage(inner, "example.com/*", ruleSet("wild2")))
	m = FindMatch(inner, u)
	require.NotNil(t, m)
	assert.Equal(t, ruleSet("wild2"), m.Def.RuleSets[0], "redeclaring a pattern replaces it")
}

func TestVisitOutsideBrowserScope(t *testing.T) {
	e, p, _ := newTestEngine(t, &recorder{})
	_, err := e.Visit(context.Background(), e.Root(), "https://example.com/")
	var violation *ScopeViolationError
	require.ErrorAs(t, err, &violation)
	assert.Empty(t, p.Launches())
}

func TestVisitWithoutMatch(t *testing.T) {
	interp := &recorder{}
	e, p, diag := newTestEngine(t, interp)
	b := e.NewBrowserScope(e.Root())
	require.NoError(t, e.DeclarePage(b, "example.com/item/:id", ruleSet("item")))

	got, err := e.Visit(context.Background(), b, "https://example.com/about")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/about", got)

	tabs := p.Session.Tabs()
	require.Len(t, tabs, 1)
	assert.False(t, tabs[0].Closed(), "the tab stays open")
	assert.Equal(t, "https://example.com/about", tabs[0].URL())
	v, _ := b.Internal(KeyBrowser)
	assert.Equal(t, 1, v.(*browser.Manager).OpenTabs(), "the manager tracks the open tab")
	assert.Equal(t, 0, interp.calls())
	assert.Empty(t, diag.String())
	assert.Equal(t, Stats{Visits: 1}, e.Stats())
}

func TestVisitRunsEveryRuleSetConcurrently(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	interp := &recorder{fn: func(ctx context.Context, rs RuleSet, s *scope.Scope) error {
		started <- struct{}{}
		select {
		case <-release:
		case <-time.After(5 * time.Second):
			return errors.New("sibling rule set never started")
		}
		data, err := Data(s)
		if err != nil {
			return err
		}
		data["rule"] = rs.Name()
		return nil
	}}
	e, p, diag := newTestEngine(t, interp)
	b := e.NewBrowserScope(e.Root())
	declaring := scope.New(b)
	require.NoError(t, e.DeclarePage(declaring, "example.com/item/:id", ruleSet("a"), ruleSet("b")))

	go func() {
		<-started
		<-started
		close(release)
	}()

	href := "https://example.com/item/42?x=1#top"
	got, err := e.Visit(context.Background(), b, href)
	require.NoError(t, err)
	assert.Equal(t, href, got)

	require.Equal(t, 2, interp.calls())
	sa, sb := interp.scopes["a"], interp.scopes["b"]
	assert.NotSame(t, sa, sb)
	for _, s := range []*scope.Scope{sa, sb} {
		assert.Same(t, declaring, s.Parent())
		assert.Equal(t, map[string]any{"id": "42", "url": href, "query": "x=1", "hash": "#top"}, s.Vars())
	}

	for _, tab := range p.Session.Tabs() {
		assert.True(t, tab.Closed())
	}
	assert.Len(t, p.Session.Tabs(), 2)
	assert.Len(t, p.Launches(), 1)

	lines := strings.Split(strings.TrimSpace(diag.String()), "\n")
	assert.ElementsMatch(t, []string{
		`{"rule":"a","url":"` + href + `"}`,
		`{"rule":"b","url":"` + href + `"}`,
	}, lines)
	assert.Equal(t, Stats{Visits: 1, Matches: 1, Records: 2}, e.Stats())
}

func TestVisitStampsURL(t *testing.T) {
	interp := &recorder{fn: func(ctx context.Context, rs RuleSet, s *scope.Scope) error {
		data, _ := Data(s)
		data["url"] = "https://user.example.com/"
		data["title"] = "Widget"
		return nil
	}}
	e, _, diag := newTestEngine(t, interp)
	b := e.NewBrowserScope(e.Root())
	require.NoError(t, e.DeclarePage(b, "example.com/item/:id", ruleSet("item")))

	_, err := e.Visit(context.Background(), b, "http://example.com/item/7")
	require.NoError(t, err)
	assert.Equal(t, `{"title":"Widget","url":"http://example.com/item/7"}`+"\n", diag.String())
}

func TestVisitWithoutDataWritesNothing(t *testing.T) {
	e, _, diag := newTestEngine(t, &recorder{})
	b := e.NewBrowserScope(e.Root())
	require.NoError(t, e.DeclarePage(b, "example.com/", ruleSet("noop")))

	_, err := e.Visit(context.Background(), b, "https://example.com/")
	require.NoError(t, err)
	assert.Empty(t, diag.String())
	assert.Equal(t, int64(0), e.Stats().Records)
}

func TestVisitOutputNearestConfigured(t *testing.T) {
	dir := t.TempDir()
	interp := &recorder{fn: func(ctx context.Context, rs RuleSet, s *scope.Scope) error {
		data, _ := Data(s)
		data["n"] = 1
		return nil
	}}
	e, _, diag := newTestEngine(t, interp, WithOutput(filepath.Join(dir, "root.jsonl")))
	b := e.NewBrowserScope(e.Root())
	e.SetOutput(b, "")
	require.NoError(t, e.DeclarePage(b, "example.com/:n", ruleSet("r")))

	for _, href := range []string{"https://example.com/1", "https://example.com/2"} {
		_, err := e.Visit(context.Background(), b, href)
		require.NoError(t, err)
	}
	require.NoError(t, e.Close())

	out, err := os.ReadFile(filepath.Join(dir, "root.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, `{"n":1,"url":"https://example.com/1"}`+"\n"+`{"n":1,"url":"https://example.com/2"}`+"\n", string(out))
	assert.Empty(t, diag.String())
}

func TestVisitNavigationTimeout(t *testing.T) {
	interp := &recorder{}
	e, p, _ := newTestEngine(t, interp, WithTimeout(20*time.Millisecond))
	p.Session = &browsertest.Session{Navigate: browsertest.Hang}
	b := e.NewBrowserScope(e.Root())

	for _, href := range []string{"https://slow.example.com/", "https://slow.example.com/item/1"} {
		if strings.HasSuffix(href, "/1") {
			require.NoError(t, e.DeclarePage(b, "slow.example.com/item/:id", ruleSet("r")))
		}
		_, err := e.Visit(context.Background(), b, href)
		var navErr *browser.NavigationError
		require.ErrorAs(t, err, &navErr, href)
		assert.Equal(t, href, navErr.URL)
	}
	assert.Equal(t, 0, interp.calls())
	assert.Equal(t, 0, p.Session.OpenTabs())
}

func TestVisitRuleSetFailure(t *testing.T) {
	interp := &recorder{fn: func(ctx context.Context, rs RuleSet, s *scope.Scope) error {
		if rs.Name() == "bad" {
			return errors.New("boom")
		}
		<-ctx.Done()
		return ctx.Err()
	}}
	e, p, _ := newTestEngine(t, interp)
	b := e.NewBrowserScope(e.Root())
	require.NoError(t, e.DeclarePage(b, "example.com/", ruleSet("good"), ruleSet("bad")))

	_, err := e.Visit(context.Background(), b, "https://example.com/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule set bad on https://example.com/: boom")
	assert.Equal(t, 0, p.Session.OpenTabs(), "every tab is closed before the error surfaces")
}

func TestVisitSessionSharedAndHeadless(t *testing.T) {
	e, p, _ := newTestEngine(t, &recorder{})
	b := e.NewBrowserScope(e.Root())
	b.SetVar("headless", false)
	nested := e.NewBrowserScope(b)
	nested.SetVar("headless", nil)

	for i := 0; i < 3; i++ {
		_, err := e.Visit(context.Background(), b, "https://example.com/")
		require.NoError(t, err)
	}
	_, err := e.Visit(context.Background(), nested, "https://example.com/")
	require.NoError(t, err)

	assert.Equal(t, []browser.LaunchOptions{{Headless: false}, {Headless: true}}, p.Launches(),
		"one session per browser scope; a non-boolean headless falls back to true")
}

func TestVisitFromRuleSet(t *testing.T) {
	interp := &recorder{}
	interp.fn = func(ctx context.Context, rs RuleSet, s *scope.Scope) error {
		data, _ := Data(s)
		if rs.Name() == "list" {
			visit, err := scope.ResolveFn("visit", s)
			if err != nil {
				return err
			}
			_, err = visit(ctx, s, "https://example.com/item/9")
			data["followed"] = err == nil
			return err
		}
		id, err := scope.ResolveVar("id", s)
		if err != nil {
			return err
		}
		data["id"] = id
		_, err = scope.ResolveVar("id", interp.scopes["list"])
		if err == nil {
			return errors.New("captures leaked into the list page scope")
		}
		return nil
	}
	e, _, diag := newTestEngine(t, interp)
	b := e.NewBrowserScope(e.Root())
	require.NoError(t, e.DeclarePage(b, "example.com/list", ruleSet("list")))
	require.NoError(t, e.DeclarePage(b, "example.com/item/:id", ruleSet("item")))

	_, err := e.Visit(context.Background(), b, "https://example.com/list")
	require.NoError(t, err)

	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(diag.String()), "\n") {
		var r map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &r))
		records = append(records, r)
	}
	assert.Equal(t, []map[string]any{
		{"id": "9", "url": "https://example.com/item/9"},
		{"followed": true, "url": "https://example.com/list"},
	}, records)
}

func TestPageAndVisitFunctions(t *testing.T) {
	e, p, _ := newTestEngine(t, &recorder{})
	b := e.NewBrowserScope(e.Root())

	page, err := scope.ResolveFn("page", b)
	require.NoError(t, err)
	_, err = page(context.Background(), b, "example.com/:id", ruleSet("r"))
	require.NoError(t, err)
	_, err = page(context.Background(), b, "example.com/:id", "not a rule set")
	assert.Error(t, err)

	visit, err := scope.ResolveFn("visit", b)
	require.NoError(t, err)
	got, err := visit(context.Background(), b, "https://example.com/1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/1", got)
	_, err = visit(context.Background(), b)
	assert.Error(t, err)

	_, err = scope.ResolveFn("visit", e.Root())
	assert.Error(t, err, "visit is only bound in browser scopes")
	assert.Len(t, p.Launches(), 1)
}

func TestHelp(t *testing.T) {
	e, _, _ := newTestEngine(t, &recorder{})
	b := e.NewBrowserScope(e.Root())
	inner := scope.New(b)

	assert.Equal(t, browserHelp["page"], e.Help(inner, "page"))
	assert.Equal(t, rootHelp["help"], e.Help(inner, "help"))
	assert.Equal(t, `no help for "nope"`, e.Help(inner, "nope"))
	assert.Equal(t, `no help for "visit"`, e.Help(e.Root(), "visit"))

	all := e.Help(b, "")
	assert.True(t, strings.HasPrefix(all, "help: "), all)
	assert.Contains(t, all, "\npage: ")
	assert.Contains(t, all, "\nvisit: ")

	help, err := scope.ResolveFn("help", inner)
	require.NoError(t, err)
	got, err := help(context.Background(), inner, "visit")
	require.NoError(t, err)
	assert.Equal(t, browserHelp["visit"], got)
}

func TestCloseShutsBrowsersDown(t *testing.T) {
	p := &browsertest.Provider{}
	e := NewEngine(WithProvider(p), WithDiagnostic(&bytes.Buffer{}))
	b := e.NewBrowserScope(e.Root())
	_, err := e.Visit(context.Background(), b, "https://example.com/")
	require.NoError(t, err)

	require.NoError(t, e.Close())
	assert.True(t, p.Session.Closed())
	assert.Equal(t, 0, p.Session.OpenTabs())
}

func TestCheckPattern(t *testing.T) {
	require.NoError(t, CheckPattern("example.com/item/:id"))

	var invalid *InvalidPatternError
	require.ErrorAs(t, CheckPattern("http(s)://example.com/:query"), &invalid)
	require.ErrorAs(t, CheckPattern("http(s):///item"), &invalid)
	require.ErrorAs(t, CheckPattern("http(s)://example.com/(open"), &invalid)
}

func TestFindMatchBareHost(t *testing.T) {
	e, _, _ := newTestEngine(t, &recorder{})
	b := e.NewBrowserScope(e.Root())
	require.NoError(t, e.DeclarePage(b, "https://example.com", ruleSet("home")))

	for _, href := range []string{"https://example.com/", "https://example.com", "http://example.com/?tab=new#top"} {
		u, err := url.Parse(href)
		require.NoError(t, err)
		m := FindMatch(b, u)
		require.NotNil(t, m, href)
		assert.Equal(t, "home", m.Def.RuleSets[0].Name())
	}

	u, _ := url.Parse("https://example.com/about")
	assert.Nil(t, FindMatch(b, u))
}

func TestVisitMalformedURL(t *testing.T) {
	e, p, _ := newTestEngine(t, &recorder{})
	b := e.NewBrowserScope(e.Root())

	_, err := e.Visit(context.Background(), b, "http://[::1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "visit http://[::1")
	var navErr *browser.NavigationError
	assert.False(t, errors.As(err, &navErr))
	assert.Empty(t, p.Launches())
}
