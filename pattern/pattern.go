// Package pattern compiles URL templates such as
// `http(s)\://example.com/item/:id` into matchers with named captures.
//
// Template syntax:
//
//	:name  a named segment, matching one or more of [a-zA-Z0-9-_~ %]
//	*      a wildcard matching anything, captured as "_" (then "_2", "_3", ...)
//	(...)  an optional group
//	\c     the literal character c
package pattern

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var ErrSyntax = errors.New("invalid url pattern")

const segmentClass = `[a-zA-Z0-9\-_~ %]+`

type Pattern struct {
	src   string
	re    *regexp.Regexp
	names []string
}

func Compile(template string) (*Pattern, error) {
	var (
		b     strings.Builder
		names []string
		depth int
		wild  int
	)
	b.WriteString("^")
	rs := []rune(template)
	for i := 0; i < len(rs); i++ {
		switch r := rs[i]; {
		case r == '\\':
			if i+1 == len(rs) {
				return nil, fmt.Errorf("%w: %q ends with an escape", ErrSyntax, template)
			}
			i++
			b.WriteString(regexp.QuoteMeta(string(rs[i])))
		case r == '(':
			depth++
			b.WriteString("(?:")
		case r == ')':
			if depth == 0 {
				return nil, fmt.Errorf("%w: %q has an unmatched ')'", ErrSyntax, template)
			}
			depth--
			b.WriteString(")?")
		case r == '*':
			wild++
			name := "_"
			if wild > 1 {
				name += strconv.Itoa(wild)
			}
			names = append(names, name)
			b.WriteString("(.*?)")
		case r == ':':
			j := i + 1
			for j < len(rs) && isNameRune(rs[j]) {
				j++
			}
			if j == i+1 {
				return nil, fmt.Errorf("%w: %q has a ':' without a name", ErrSyntax, template)
			}
			name := string(rs[i+1 : j])
			for _, n := range names {
				if n == name {
					return nil, fmt.Errorf("%w: %q declares :%s twice", ErrSyntax, template, name)
				}
			}
			names = append(names, name)
			b.WriteString("(" + segmentClass + ")")
			i = j - 1
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("%w: %q has an unclosed '('", ErrSyntax, template)
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	return &Pattern{src: template, re: re, names: names}, nil
}

// Match tests s against the pattern. Captures inside optional groups that did
// not take part in the match are left out of the result.
func (p *Pattern) Match(s string) (map[string]string, bool) {
	idx := p.re.FindStringSubmatchIndex(s)
	if idx == nil {
		return nil, false
	}
	captures := make(map[string]string, len(p.names))
	for i, name := range p.names {
		start, end := idx[2*(i+1)], idx[2*(i+1)+1]
		if start < 0 {
			continue
		}
		v := s[start:end]
		if u, err := url.PathUnescape(v); err == nil {
			v = u
		}
		captures[name] = v
	}
	return captures, true
}

// Names lists the capture names in template order.
func (p *Pattern) Names() []string {
	return append([]string(nil), p.names...)
}

func (p *Pattern) String() string {
	return p.src
}

func isNameRune(r rune) bool {
	return r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}
