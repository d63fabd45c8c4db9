package browser

import (
	"time"

	"github.com/wenzapen/browse/proxy"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type options struct {
	logger  *zap.Logger
	timeout time.Duration
	limiter *rate.Limiter
	proxy   proxy.ProxyFunc
}

var defaultOptions = options{
	logger:  zap.NewNop(),
	timeout: DefaultNavigationTimeout,
}

type Option func(opts *options)

func WithLogger(logger *zap.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(opts *options) {
		if timeout > 0 {
			opts.timeout = timeout
		}
	}
}

// WithRateLimit paces navigations; every is the events per second, zero for no limit.
func WithRateLimit(every float64, burst int) Option {
	return func(opts *options) {
		if every <= 0 {
			opts.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		opts.limiter = rate.NewLimiter(rate.Limit(every), burst)
	}
}

// WithLimiter shares one limiter between several managers.
func WithLimiter(l *rate.Limiter) Option {
	return func(opts *options) {
		opts.limiter = l
	}
}

func WithProxy(p proxy.ProxyFunc) Option {
	return func(opts *options) {
		opts.proxy = p
	}
}
