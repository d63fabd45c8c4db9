package spider

import (
	"go.uber.org/zap"
)

type options struct {
	logger *zap.Logger
	// maxFollow caps the links a single follow step visits when the step sets no limit.
	maxFollow int
}

var defaultOptions = options{
	logger:    zap.NewNop(),
	maxFollow: 50,
}

type Option func(opts *options)

func WithLogger(logger *zap.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

func WithMaxFollow(n int) Option {
	return func(opts *options) {
		if n > 0 {
			opts.maxFollow = n
		}
	}
}
