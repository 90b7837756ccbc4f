package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationFiles embed.FS

// migrateSchema applies the embedded migrations for dialect. The driver is
// not closed afterwards since that would close db.
func migrateSchema(db *sql.DB, dialect Dialect) error {
	src, err := iofs.New(migrationFiles, "migrations/"+dialect.Name)
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	var drv database.Driver
	switch dialect.Name {
	case Postgres.Name:
		drv, err = postgres.WithInstance(db, &postgres.Config{})
	case SQLite.Name:
		drv, err = sqlite.WithInstance(db, &sqlite.Config{})
	default:
		return fmt.Errorf("no migrations for dialect %q", dialect.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dialect.Name, drv)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		slog.Warn("document store schema is dirty, forcing version", "version", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to recover dirty migration at version %d: %w", version, err)
		}
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("document store schema migrated", "driver", dialect.Name, "from_version", version)
	return nil
}
