// Package browsertest provides an in-memory browser.Provider for tests.
package browsertest

import (
	"context"
	"sync"
	"time"

	"github.com/wenzapen/browse/browser"
)

// Provider hands out one shared Session and counts launches.
type Provider struct {
	// Session is returned by every launch; a new one is created when nil.
	Session     *Session
	LaunchErr   error
	LaunchDelay time.Duration

	mu       sync.Mutex
	launches []browser.LaunchOptions
}

func (p *Provider) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Session, error) {
	if p.LaunchDelay > 0 {
		time.Sleep(p.LaunchDelay)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.launches = append(p.launches, opts)
	if p.LaunchErr != nil {
		return nil, p.LaunchErr
	}
	if p.Session == nil {
		p.Session = &Session{}
	}
	return p.Session, nil
}

// Launches returns the options of every launch so far.
func (p *Provider) Launches() []browser.LaunchOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]browser.LaunchOptions(nil), p.launches...)
}

type Session struct {
	// Pages maps a URL to the HTML its tab serves.
	Pages map[string]string
	// Navigate, when set, decides the outcome of every navigation.
	Navigate func(ctx context.Context, url string) error

	mu     sync.Mutex
	tabs   []*Tab
	closed bool
}

func (s *Session) OpenTab(ctx context.Context) (browser.Tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &Tab{session: s}
	s.tabs = append(s.tabs, t)
	return t, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) Tabs() []*Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Tab(nil), s.tabs...)
}

// OpenTabs counts tabs that have not been closed.
func (s *Session) OpenTabs() int {
	n := 0
	for _, t := range s.Tabs() {
		if !t.Closed() {
			n++
		}
	}
	return n
}

type Tab struct {
	session *Session

	mu     sync.Mutex
	url    string
	closed bool
}

func (t *Tab) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if t.session.Navigate != nil {
		if err := t.session.Navigate(ctx, url); err != nil {
			return err
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.url = url
	return nil
}

func (t *Tab) HTML(ctx context.Context) (string, error) {
	t.session.mu.Lock()
	defer t.session.mu.Unlock()
	return t.session.Pages[t.URL()], nil
}

func (t *Tab) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url
}

func (t *Tab) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *Tab) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Hang blocks every navigation until its context is done.
func Hang(ctx context.Context, url string) error {
	<-ctx.Done()
	return ctx.Err()
}
