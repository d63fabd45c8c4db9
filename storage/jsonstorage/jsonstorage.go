// Package jsonstorage appends records to a stream as newline-delimited JSON.
package jsonstorage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/wenzapen/browse/storage"
	"go.uber.org/zap"
)

type JSONStorage struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	name   string
	options
}

// New opens path for appending, creating it and its directory when missing.
func New(path string, opts ...Option) (*JSONStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	s := NewWriter(f, opts...)
	s.closer = f
	s.name = path
	s.logger.Info("output opened", zap.String("path", path))
	return s, nil
}

// NewWriter writes to w and never closes it.
func NewWriter(w io.Writer, opts ...Option) *JSONStorage {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	return &JSONStorage{w: w, options: options}
}

// Save writes one line per record. Each line is written whole, so concurrent
// savers never interleave.
func (s *JSONStorage) Save(records ...*storage.Record) error {
	for _, r := range records {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode record for %s: %w", r.URL, err)
		}

		s.mu.Lock()
		_, err := s.w.Write(buf.Bytes())
		s.mu.Unlock()
		if err != nil {
			s.logger.Error("write record failed", zap.String("output", s.name), zap.Error(err))
			return err
		}
	}
	return nil
}

func (s *JSONStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}
