package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/razeghi71/streamagg/record"
)

const connectPingTimeout = 5 * time.Second

// Dialect holds the driver name and statements for one SQL backend. Documents
// are kept as JSON text so field order survives the round trip.
type Dialect struct {
	Name        string
	Driver      string
	SelectDocs  string
	Collections string
	DeleteDocs  string
	InsertDoc   string
}

var SQLite = Dialect{
	Name:        "sqlite",
	Driver:      "sqlite",
	SelectDocs:  `SELECT doc FROM documents WHERE collection = ? ORDER BY seq`,
	Collections: `SELECT DISTINCT collection FROM documents ORDER BY collection`,
	DeleteDocs:  `DELETE FROM documents WHERE collection = ?`,
	InsertDoc:   `INSERT INTO documents (collection, seq, doc) VALUES (?, ?, ?)`,
}

var Postgres = Dialect{
	Name:        "postgres",
	Driver:      "postgres",
	SelectDocs:  `SELECT doc FROM documents WHERE collection = $1 ORDER BY seq`,
	Collections: `SELECT DISTINCT collection FROM documents ORDER BY collection`,
	DeleteDocs:  `DELETE FROM documents WHERE collection = $1`,
	InsertDoc:   `INSERT INTO documents (collection, seq, doc) VALUES ($1, $2, $3)`,
}

// SQL is a document store over database/sql.
type SQL struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQL wraps an open database whose schema is already migrated.
func NewSQL(db *sql.DB, dialect Dialect) *SQL {
	return &SQL{db: db, dialect: dialect}
}

// OpenSQL connects to dsn, verifies the connection and migrates the documents
// table to the current schema.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string) (*SQL, error) {
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dialect.Name, err)
	}

	if dialect.Name == Postgres.Name {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", dialect.Name, err)
	}

	if dialect.Name == SQLite.Name {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}
	if err := migrateSchema(db, dialect); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("document store connected", "driver", dialect.Name)
	return NewSQL(db, dialect), nil
}

func (s *SQL) Fetch(ctx context.Context, name string) (record.Cursor, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.SelectDocs, name)
	if err != nil {
		return nil, &SourceError{Source: name, Err: err}
	}
	return &rowsCursor{rows: rows}, nil
}

func (s *SQL) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Collections)
	if err != nil {
		return nil, &SourceError{Source: s.dialect.Name, Err: err}
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &SourceError{Source: s.dialect.Name, Err: err}
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &SourceError{Source: s.dialect.Name, Err: err}
	}
	return names, nil
}

// Replace swaps the collection's documents inside one transaction.
func (s *SQL) Replace(ctx context.Context, name string, recs []*record.Record) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, s.dialect.DeleteDocs, name); err != nil {
		return fmt.Errorf("failed to clear collection %q: %w", name, err)
	}
	for i, r := range recs {
		var doc []byte
		doc, err = r.MarshalJSON()
		if err != nil {
			return fmt.Errorf("failed to encode document %d: %w", i, err)
		}
		if _, err = tx.ExecContext(ctx, s.dialect.InsertDoc, name, int64(i), string(doc)); err != nil {
			return fmt.Errorf("failed to insert document %d into %q: %w", i, name, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit collection %q: %w", name, err)
	}
	return nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}

type rowsCursor struct {
	rows *sql.Rows
	cur  *record.Record
	err  error
}

func (c *rowsCursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	var doc string
	if err := c.rows.Scan(&doc); err != nil {
		c.err = err
		return false
	}
	r, err := record.ParseJSONRecord([]byte(doc))
	if err != nil {
		c.err = fmt.Errorf("corrupt document: %w", err)
		return false
	}
	c.cur = r
	return true
}

func (c *rowsCursor) Record() *record.Record { return c.cur }

func (c *rowsCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *rowsCursor) Close() error { return c.rows.Close() }
