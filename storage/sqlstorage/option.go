package sqlstorage

import "go.uber.org/zap"

type options struct {
	logger     *zap.Logger
	sqlURL     string
	tableName  string
	BatchCount int
}

var defaultOptions = options{
	logger:     zap.NewNop(),
	tableName:  "records",
	BatchCount: 1,
}

type Option func(opts *options)

func WithLogger(logger *zap.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

func WithSQLURL(sqlURL string) Option {
	return func(opts *options) {
		opts.sqlURL = sqlURL
	}
}

func WithTableName(name string) Option {
	return func(opts *options) {
		opts.tableName = name
	}
}

func WithBatchCount(batchCount int) Option {
	return func(opts *options) {
		if batchCount > 0 {
			opts.BatchCount = batchCount
		}
	}
}
