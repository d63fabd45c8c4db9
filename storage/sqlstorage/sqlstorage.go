// Package sqlstorage keeps records in a sqlite table, one row per record with
// the fields stored as a JSON document.
package sqlstorage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/wenzapen/browse/sqldb"
	"github.com/wenzapen/browse/storage"
	"go.uber.org/zap"
)

// Scheme prefixes an output destination that should be stored in sqlite.
const Scheme = "sqlite://"

var columns = []sqldb.Field{
	{Title: "url", Type: "TEXT"},
	{Title: "data", Type: "TEXT"},
	{Title: "created_at", Type: "TEXT"},
}

type SQLStorage struct {
	mu         sync.Mutex
	dataDocker []*storage.Record
	db         sqldb.DBer
	options
}

// IsURL reports whether output names a sqlite destination.
func IsURL(output string) bool {
	return strings.HasPrefix(output, Scheme)
}

func New(opts ...Option) (*SQLStorage, error) {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}

	path := strings.TrimPrefix(options.sqlURL, Scheme)
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sqldb.New(
		sqldb.WithConnURL(path),
		sqldb.WithLogger(options.logger),
	)
	if err != nil {
		return nil, err
	}
	return newWithDB(db, options)
}

func newWithDB(db sqldb.DBer, options options) (*SQLStorage, error) {
	s := &SQLStorage{db: db, options: options}
	if err := db.CreateTable(sqldb.TableData{
		TableName:   s.tableName,
		ColumnNames: columns,
		AutoKey:     true,
	}); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStorage) Save(records ...*storage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataDocker = append(s.dataDocker, records...)
	if len(s.dataDocker) >= s.BatchCount {
		return s.flush()
	}
	return nil
}

func (s *SQLStorage) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

func (s *SQLStorage) flush() error {
	if len(s.dataDocker) == 0 {
		return nil
	}
	defer func() {
		s.dataDocker = nil
	}()

	now := time.Now().Format("2006-01-02 15:04:05")
	args := make([]interface{}, 0, len(s.dataDocker)*len(columns))
	for _, r := range s.dataDocker {
		data, err := json.Marshal(r)
		if err != nil {
			s.logger.Error("encode record failed", zap.String("url", r.URL), zap.Error(err))
			return err
		}
		args = append(args, r.URL, string(data), now)
	}
	err := s.db.Insert(sqldb.TableData{
		TableName:   s.tableName,
		ColumnNames: columns,
		Args:        args,
		DataCount:   len(s.dataDocker),
	})
	if err != nil {
		s.logger.Error("insert data failed", zap.Error(err))
	}
	return err
}

// Close flushes buffered records and closes the database.
func (s *SQLStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ferr := s.flush()
	if err := s.db.Close(); err != nil {
		return err
	}
	return ferr
}
