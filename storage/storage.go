// Package storage defines the sink that extracted records are written to.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Record is the data one rule set extracted from one visited page.
type Record struct {
	URL    string
	Fields map[string]any
}

// MarshalJSON writes the fields in key order followed by url, which always
// overrides a "url" field.
func (r *Record) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		if k != "url" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for _, k := range keys {
		kb, _ := marshal(k)
		vb, err := marshal(r.Fields[k])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
		buf.WriteByte(',')
	}
	ub, _ := marshal(r.URL)
	buf.WriteString(`"url":`)
	buf.Write(ub)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

type Storage interface {
	Save(records ...*Record) error
	Close() error
}

// Opener creates the storage behind an output destination.
type Opener func(output string) (Storage, error)

// Config is the output configuration a scope carries. Its storage is opened on
// the first record and kept open until Close.
type Config struct {
	Output string

	open    Opener
	mu      sync.Mutex
	storage Storage
}

func NewConfig(output string, open Opener) *Config {
	return &Config{Output: output, open: open}
}

func (c *Config) Storage() (Storage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.storage != nil {
		return c.storage, nil
	}
	s, err := c.open(c.Output)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", c.Output, err)
	}
	c.storage = s
	return s, nil
}

func (c *Config) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.storage == nil {
		return nil
	}
	err := c.storage.Close()
	c.storage = nil
	return err
}

// HasOutput is the predicate used to find the nearest configuration with a
// destination set.
func HasOutput(v any) bool {
	c, ok := v.(*Config)
	return ok && c != nil && c.Output != ""
}
