package engine

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/wenzapen/browse/browser"
	"github.com/wenzapen/browse/proxy"
	"github.com/wenzapen/browse/scope"
	"go.uber.org/zap"
)

type Option func(opts *options)

type options struct {
	Logger      *zap.Logger
	Provider    browser.Provider
	Interpreter Interpreter
	Output      string
	Timeout     time.Duration
	Rate        float64
	Burst       int
	Proxy       proxy.ProxyFunc
	Diagnostic  io.Writer
}

var DefaultOptions = options{
	Logger:   zap.NewNop(),
	Provider: browser.RodProvider{},
	Interpreter: InterpreterFunc(func(ctx context.Context, rs RuleSet, s *scope.Scope) error {
		return nil
	}),
	Timeout:    browser.DefaultNavigationTimeout,
	Diagnostic: os.Stderr,
}

func WithLogger(logger *zap.Logger) Option {
	return func(opts *options) {
		opts.Logger = logger
	}
}

func WithProvider(p browser.Provider) Option {
	return func(opts *options) {
		opts.Provider = p
	}
}

func WithInterpreter(i Interpreter) Option {
	return func(opts *options) {
		opts.Interpreter = i
	}
}

// WithOutput configures the root scope's output destination.
func WithOutput(output string) Option {
	return func(opts *options) {
		opts.Output = output
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(opts *options) {
		opts.Timeout = timeout
	}
}

// WithRateLimit caps navigations per second across every browser of the engine.
func WithRateLimit(rate float64, burst int) Option {
	return func(opts *options) {
		opts.Rate = rate
		opts.Burst = burst
	}
}

func WithProxy(p proxy.ProxyFunc) Option {
	return func(opts *options) {
		opts.Proxy = p
	}
}

// WithDiagnostic sets where records go when no scope configures an output.
func WithDiagnostic(w io.Writer) Option {
	return func(opts *options) {
		opts.Diagnostic = w
	}
}
