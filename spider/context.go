package spider

import (
	"context"
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/wenzapen/browse/browser"
	"github.com/wenzapen/browse/engine"
	"github.com/wenzapen/browse/scope"
	"golang.org/x/net/html"
)

// Context is the state of one rule set evaluation.
type Context struct {
	context.Context
	Scope *scope.Scope
	Rule  *Rule

	page *browser.Page
	doc  *html.Node
}

func (c *Context) Page() (*browser.Page, error) {
	if c.page == nil {
		p, err := engine.Page(c.Scope)
		if err != nil {
			return nil, err
		}
		c.page = p
	}
	return c.page, nil
}

// Document parses the tab's HTML once per evaluation.
func (c *Context) Document() (*html.Node, error) {
	if c.doc != nil {
		return c.doc, nil
	}
	p, err := c.Page()
	if err != nil {
		return nil, err
	}
	src, err := p.HTML(c)
	if err != nil {
		return nil, fmt.Errorf("read page html: %w", err)
	}
	doc, err := htmlquery.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}
	c.doc = doc
	return doc, nil
}

// Query returns the nodes matching expr.
func (c *Context) Query(expr string) ([]*html.Node, error) {
	doc, err := c.Document()
	if err != nil {
		return nil, err
	}
	nodes, err := htmlquery.QueryAll(doc, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath %q: %w", expr, err)
	}
	return nodes, nil
}

// Output stores value under field in the page's record.
func (c *Context) Output(field string, value any) error {
	data, err := engine.Data(c.Scope)
	if err != nil {
		return err
	}
	data[field] = value
	return nil
}

func nodeValue(n *html.Node, attr string) string {
	if attr != "" {
		return htmlquery.SelectAttr(n, attr)
	}
	return strings.Join(strings.Fields(htmlquery.InnerText(n)), " ")
}
