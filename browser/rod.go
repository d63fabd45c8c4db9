package browser

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// RodProvider launches Chromium through go-rod.
type RodProvider struct {
	// Bin is the browser executable; empty lets the launcher find or download one.
	Bin string
}

func (p RodProvider) Launch(ctx context.Context, opts LaunchOptions) (Session, error) {
	l := launcher.New().Headless(opts.Headless)
	if p.Bin != "" {
		l = l.Bin(p.Bin)
	}
	if opts.Proxy != "" {
		l = l.Proxy(opts.Proxy)
	}
	if inContainer() {
		// /dev/shm is 64MB in a default container
		l = l.NoSandbox(true).Set(flags.Flag("disable-dev-shm-usage"))
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	return &rodSession{browser: b, launcher: l}, nil
}

type rodSession struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
}

func (s *rodSession) OpenTab(ctx context.Context) (Tab, error) {
	page, err := s.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, err
	}
	// detach from ctx so the tab outlives the call that opened it
	return &rodTab{page: page.Context(context.Background())}, nil
}

func (s *rodSession) Close() error {
	err := s.browser.Close()
	s.launcher.Cleanup()
	return err
}

type rodTab struct {
	page *rod.Page
}

func (t *rodTab) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	p := t.page.Context(ctx).Timeout(timeout)
	defer p.CancelTimeout()
	if err := p.Navigate(url); err != nil {
		return err
	}
	return p.WaitLoad()
}

func (t *rodTab) HTML(ctx context.Context) (string, error) {
	return t.page.Context(ctx).HTML()
}

func (t *rodTab) URL() string {
	info, err := t.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (t *rodTab) Close() error {
	return t.page.Close()
}

func inContainer() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
}
