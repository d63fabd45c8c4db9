package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/wenzapen/browse/scope"
)

var rootHelp = map[string]string{
	"help": "Describes the capability named by its argument, or lists every capability when called without one",
}

var browserHelp = map[string]string{
	"page":  "Instantiates a page definition which matches on the url-pattern passed in as the first argument, and which executes the rule sets passed in as the remaining arguments on every matching page",
	"visit": "Opens a new tab with the given url and checks for matches on that url. If there are matches the corresponding rule sets are run. If there is no match the new tab is opened in the browser scope and no actions are taken",
}

// Help describes a capability visible from s. An empty key lists them all.
func (e *Engine) Help(s *scope.Scope, key string) string {
	from, err := scope.ResolveFnScope("help", s)
	if err != nil {
		from = s
	}

	entries := make(map[string]string)
	scope.Walk(from, func(cur *scope.Scope) bool {
		v, ok := cur.Internal(KeyHelp)
		if !ok {
			return true
		}
		for k, text := range v.(map[string]string) {
			if _, seen := entries[k]; !seen {
				entries[k] = text
			}
		}
		return true
	})

	if key == "" {
		names := make([]string, 0, len(entries))
		for k := range entries {
			names = append(names, k)
		}
		sort.Strings(names)
		var b strings.Builder
		for _, k := range names {
			fmt.Fprintf(&b, "%s: %s\n", k, entries[k])
		}
		return b.String()
	}
	if text, ok := entries[key]; ok {
		return text
	}
	return fmt.Sprintf("no help for %q", key)
}

func (e *Engine) helpFn(ctx context.Context, s *scope.Scope, args ...any) (any, error) {
	key := ""
	if len(args) > 0 {
		key = fmt.Sprint(args[0])
	}
	return e.Help(s, key), nil
}
