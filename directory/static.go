// Package directory provides Directory implementations for the mailrule
// engine: an in-memory static directory for small lists and tests, and a
// SQL-backed directory with per-list lookup queries.
package directory

import (
	"context"

	"github.com/mailrule/mailrule"
)

// Static is an immutable in-memory directory. Keys map to their
// associated values; for plain membership lists the value is the key
// itself.
type Static struct {
	entries map[string]string
}

var _ mailrule.Directory = (*Static)(nil)

// NewStatic builds a directory from a key-to-value map. The map is
// copied.
func NewStatic(entries map[string]string) *Static {
	s := &Static{entries: make(map[string]string, len(entries))}
	for k, v := range entries {
		s.entries[k] = v
	}
	return s
}

// NewStaticList builds a membership directory from a list of keys; each
// key resolves to itself.
func NewStaticList(keys ...string) *Static {
	s := &Static{entries: make(map[string]string, len(keys))}
	for _, k := range keys {
		s.entries[k] = k
	}
	return s
}

// Contains reports whether the key is present.
func (s *Static) Contains(_ context.Context, key string) (bool, error) {
	_, ok := s.entries[key]
	return ok, nil
}

// Resolve returns the value associated with the key.
func (s *Static) Resolve(_ context.Context, key string) (string, bool, error) {
	v, ok := s.entries[key]
	return v, ok, nil
}
