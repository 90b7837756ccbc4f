package store

import (
	"context"
	"fmt"
)

// Store is a source that can also be written to and must be closed.
type Store interface {
	Source
	Writer
	Close() error
}

// Options selects and configures a backend for Open.
type Options struct {
	Driver   string // file, sqlite, postgres or mongo
	DSN      string
	Database string
	Dir      string
	Files    map[string]string
}

// Open connects to the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", "file":
		if opts.Dir != "" && len(opts.Files) == 0 {
			return OpenDir(opts.Dir)
		}
		return NewFiles(opts.Dir, opts.Files), nil
	case "memory":
		return NewMemory(nil), nil
	case "sqlite":
		return OpenSQL(ctx, SQLite, opts.DSN)
	case "postgres":
		return OpenSQL(ctx, Postgres, opts.DSN)
	case "mongo":
		return OpenMongo(ctx, opts.DSN, opts.Database)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
