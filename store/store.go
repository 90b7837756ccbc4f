// Package store provides record sources for pipeline runs. A source maps
// collection names to record sequences; runs only ever read from it.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/razeghi71/streamagg/record"
)

// ErrUnknownCollection is wrapped when a name is not in the catalog.
var ErrUnknownCollection = errors.New("unknown collection")

// Source is the record store adapter consumed by the engine.
type Source interface {
	// Fetch opens a cursor over every record of the named collection.
	Fetch(ctx context.Context, name string) (record.Cursor, error)
	// Collections lists the names Fetch accepts.
	Collections(ctx context.Context) ([]string, error)
}

// Writer is implemented by stores that can persist records.
type Writer interface {
	// Replace stores recs as the full contents of the named collection.
	Replace(ctx context.Context, name string, recs []*record.Record) error
}

// SourceError reports a store failure: unreachable backend, failed query, or
// a cursor that broke during iteration.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %q unavailable: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Memory is an in-process store, safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]*record.Record
}

// NewMemory returns a store holding the given collections.
func NewMemory(collections map[string][]*record.Record) *Memory {
	m := &Memory{data: make(map[string][]*record.Record, len(collections))}
	for name, recs := range collections {
		m.data[name] = recs
	}
	return m
}

func (m *Memory) Fetch(_ context.Context, name string) (record.Cursor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs, ok := m.data[name]
	if !ok {
		return nil, &SourceError{Source: name, Err: ErrUnknownCollection}
	}
	return record.SliceCursor(recs), nil
}

func (m *Memory) Collections(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.data))
	for name := range m.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) Replace(_ context.Context, name string, recs []*record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[name] = recs
	return nil
}

func (m *Memory) Close() error { return nil }

// errCursor wraps a cursor so iteration failures surface as SourceError.
type errCursor struct {
	record.Cursor
	source string
}

func (c *errCursor) Err() error {
	if err := c.Cursor.Err(); err != nil {
		var se *SourceError
		if errors.As(err, &se) {
			return err
		}
		return &SourceError{Source: c.source, Err: err}
	}
	return nil
}

// WrapCursor makes iteration errors of c report as a SourceError for source.
func WrapCursor(source string, c record.Cursor) record.Cursor {
	return &errCursor{Cursor: c, source: source}
}
