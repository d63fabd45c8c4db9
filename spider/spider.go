package spider

import (
	"context"
	"fmt"
	"net/url"

	"github.com/wenzapen/browse/engine"
	"github.com/wenzapen/browse/scope"
	"go.uber.org/zap"
)

// Interpreter runs the steps of a Rule against the page bound to a page scope.
type Interpreter struct {
	options
}

func NewInterpreter(opts ...Option) *Interpreter {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	return &Interpreter{options: options}
}

func (i *Interpreter) Eval(ctx context.Context, rs engine.RuleSet, s *scope.Scope) error {
	r, ok := rs.(*Rule)
	if !ok {
		return fmt.Errorf("unsupported rule set %T", rs)
	}
	c := &Context{Context: ctx, Scope: s, Rule: r}
	for idx, step := range r.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := i.exec(c, step); err != nil {
			return fmt.Errorf("step %d: %w", idx+1, err)
		}
	}
	return nil
}

func (i *Interpreter) exec(c *Context, step Step) error {
	switch {
	case step.Extract != nil:
		return i.extract(c, step.Extract)
	case step.Set != nil:
		v, err := scope.ResolveVar(step.Set.Var, c.Scope)
		if err != nil {
			return err
		}
		return c.Output(step.Set.Field, v)
	case step.Follow != nil:
		return i.follow(c, step.Follow)
	case step.Call != nil:
		return i.call(c, step.Call)
	}
	return fmt.Errorf("empty step in rule %s", c.Rule.Name())
}

func (i *Interpreter) extract(c *Context, x *Extract) error {
	nodes, err := c.Query(x.XPath)
	if err != nil {
		return err
	}
	if x.All {
		values := make([]string, 0, len(nodes))
		for _, n := range nodes {
			values = append(values, nodeValue(n, x.Attr))
		}
		return c.Output(x.Field, values)
	}
	if len(nodes) == 0 {
		i.logger.Debug("extract matched nothing",
			zap.String("rule", c.Rule.Name()),
			zap.String("xpath", x.XPath))
		return nil
	}
	return c.Output(x.Field, nodeValue(nodes[0], x.Attr))
}

func (i *Interpreter) follow(c *Context, f *Follow) error {
	nodes, err := c.Query(f.XPath)
	if err != nil {
		return err
	}
	page, err := c.Page()
	if err != nil {
		return err
	}
	base, err := url.Parse(page.URL())
	if err != nil {
		return err
	}
	visit, err := scope.ResolveFn("visit", c.Scope)
	if err != nil {
		return err
	}

	attr := f.Attr
	if attr == "" {
		attr = "href"
	}
	limit := f.Limit
	if limit <= 0 {
		limit = i.maxFollow
	}

	seen := make(map[string]bool)
	for _, n := range nodes {
		if len(seen) >= limit {
			break
		}
		link, ok := resolveLink(base, nodeValue(n, attr))
		if !ok || seen[link] {
			continue
		}
		seen[link] = true
		i.logger.Debug("follow", zap.String("from", base.String()), zap.String("url", link))
		if _, err := visit(c, c.Scope, link); err != nil {
			return err
		}
	}
	return nil
}

func (i *Interpreter) call(c *Context, cl *Call) error {
	fn, err := scope.ResolveFn(cl.Fn, c.Scope)
	if err != nil {
		return err
	}
	args := make([]any, 0, len(cl.Args))
	for _, a := range cl.Args {
		args = append(args, a)
	}
	result, err := fn(c, c.Scope, args...)
	if err != nil {
		return fmt.Errorf("call %s: %w", cl.Fn, err)
	}
	if cl.Field != "" {
		return c.Output(cl.Field, result)
	}
	return nil
}

// resolveLink makes ref absolute against base and keeps only web links.
func resolveLink(base *url.URL, ref string) (string, bool) {
	if ref == "" {
		return "", false
	}
	u, err := base.Parse(ref)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	u.Fragment, u.RawFragment = "", ""
	return u.String(), true
}
