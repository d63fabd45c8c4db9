package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Page is a tab tracked by a Manager.
type Page struct {
	ID string
	Tab
}

// Manager owns the single session of one browser-capable scope. The session is
// launched on first use and shared by every later visit beneath that scope.
type Manager struct {
	provider Provider

	initMu  sync.Mutex
	session Session

	mu    sync.Mutex
	pages map[string]*Page

	options
}

func NewManager(provider Provider, opts ...Option) *Manager {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	return &Manager{
		provider: provider,
		pages:    make(map[string]*Page),
		options:  options,
	}
}

// Session returns the shared session, launching it if this is the first call.
// Concurrent first calls launch exactly once.
func (m *Manager) Session(ctx context.Context, headless bool) (Session, error) {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	if m.session != nil {
		return m.session, nil
	}

	opts := LaunchOptions{Headless: headless}
	if m.proxy != nil {
		u, err := m.proxy()
		if err != nil {
			return nil, fmt.Errorf("pick proxy: %w", err)
		}
		opts.Proxy = u.String()
	}

	s, err := m.provider.Launch(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	m.logger.Info("browser launched", zap.Bool("headless", headless), zap.String("proxy", opts.Proxy))
	m.session = s
	return s, nil
}

// Launched reports whether the session exists.
func (m *Manager) Launched() bool {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	return m.session != nil
}

// OpenTab opens a tab in s and navigates it to href. A tab that fails to
// navigate is closed and reported as a *NavigationError; it is never retried.
func (m *Manager) OpenTab(ctx context.Context, s Session, href string) (*Page, error) {
	tab, err := s.OpenTab(ctx)
	if err != nil {
		return nil, &NavigationError{URL: href, Err: fmt.Errorf("open tab: %w", err)}
	}
	page := &Page{ID: uuid.NewString(), Tab: tab}

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			_ = tab.Close()
			return nil, &NavigationError{URL: href, Err: err}
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := tab.Navigate(navCtx, href, m.timeout); err != nil {
		m.logger.Error("navigation failed", zap.String("url", href), zap.Error(err))
		_ = tab.Close()
		return nil, &NavigationError{URL: href, Err: err}
	}

	m.mu.Lock()
	m.pages[page.ID] = page
	m.mu.Unlock()

	m.logger.Debug("tab opened", zap.String("tab", page.ID), zap.String("url", href))
	return page, nil
}

func (m *Manager) CloseTab(p *Page) error {
	m.mu.Lock()
	_, ok := m.pages[p.ID]
	delete(m.pages, p.ID)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	m.logger.Debug("tab closed", zap.String("tab", p.ID))
	return p.Close()
}

// OpenTabs counts tabs that are open and not yet closed.
func (m *Manager) OpenTabs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pages)
}

// Shutdown closes every tracked tab and then the session.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	pages := m.pages
	m.pages = make(map[string]*Page)
	m.mu.Unlock()

	var errs []error
	for _, p := range pages {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	m.initMu.Lock()
	defer m.initMu.Unlock()
	if m.session != nil {
		if err := m.session.Close(); err != nil {
			errs = append(errs, err)
		}
		m.session = nil
	}
	return errors.Join(errs...)
}
