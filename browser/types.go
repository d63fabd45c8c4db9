// Package browser owns the browser sessions that visits run in. A Manager lazily
// launches one Session through a Provider and opens, navigates and closes its tabs.
package browser

import (
	"context"
	"fmt"
	"time"
)

// DefaultNavigationTimeout bounds a single navigation.
const DefaultNavigationTimeout = 25 * time.Second

type LaunchOptions struct {
	Headless bool
	// Proxy is passed to the browser as its proxy server, empty for none.
	Proxy string
}

// Provider launches browser engines.
type Provider interface {
	Launch(ctx context.Context, opts LaunchOptions) (Session, error)
}

// Session is a running browser. OpenTab must be safe for concurrent use.
type Session interface {
	OpenTab(ctx context.Context) (Tab, error)
	Close() error
}

type Tab interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// HTML returns the serialized document currently loaded in the tab.
	HTML(ctx context.Context) (string, error)
	URL() string
	Close() error
}

// NavigationError reports a tab that failed to reach URL.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("failed to goto url %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}
