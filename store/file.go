package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/razeghi71/streamagg/loader"
	"github.com/razeghi71/streamagg/record"
)

// Files serves collections from data files, one file per collection. Files
// are read on every Fetch so edits are picked up between runs.
type Files struct {
	mu    sync.RWMutex
	dir   string
	paths map[string]string
}

// NewFiles maps collection names to file paths. dir is where Replace writes
// new collections; it may be empty for a read-only store.
func NewFiles(dir string, paths map[string]string) *Files {
	f := &Files{dir: dir, paths: make(map[string]string, len(paths))}
	for name, path := range paths {
		f.paths[name] = path
	}
	return f
}

// OpenDir registers every supported file in dir under its base name, so
// movies.parquet becomes collection "movies".
func OpenDir(dir string) (*Files, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot read data directory: %w", err)
	}
	paths := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || !loader.Supported(e.Name()) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if prev, dup := paths[name]; dup {
			return nil, fmt.Errorf("collection %q is defined by both %s and %s", name, filepath.Base(prev), e.Name())
		}
		paths[name] = filepath.Join(dir, e.Name())
	}
	return NewFiles(dir, paths), nil
}

func (f *Files) Fetch(_ context.Context, name string) (record.Cursor, error) {
	f.mu.RLock()
	path, ok := f.paths[name]
	f.mu.RUnlock()
	if !ok {
		return nil, &SourceError{Source: name, Err: ErrUnknownCollection}
	}
	recs, err := loader.Load(path)
	if err != nil {
		return nil, &SourceError{Source: name, Err: err}
	}
	return record.SliceCursor(recs), nil
}

func (f *Files) Collections(_ context.Context) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.paths))
	for name := range f.paths {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Replace writes recs as a JSON array to <dir>/<name>.json.
func (f *Files) Replace(_ context.Context, name string, recs []*record.Record) error {
	if f.dir == "" {
		return fmt.Errorf("file store has no directory to write %q to", name)
	}
	data, err := marshalRecords(recs)
	if err != nil {
		return err
	}
	path := filepath.Join(f.dir, name+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}

	f.mu.Lock()
	f.paths[name] = path
	f.mu.Unlock()
	return nil
}

func (f *Files) Close() error { return nil }

func marshalRecords(recs []*record.Record) ([]byte, error) {
	var b strings.Builder
	b.WriteString("[\n")
	for i, r := range recs {
		doc, err := r.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("failed to encode document %d: %w", i, err)
		}
		b.WriteString("  ")
		b.Write(doc)
		if i < len(recs)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString("]\n")
	return []byte(b.String()), nil
}
