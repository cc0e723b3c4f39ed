// Package db carries the embedded schema migrations and applies them at
// startup.
package db

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies all pending migrations against the given database URL.
func Migrate(databaseURL string) error {
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("db: load embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, pgxScheme(databaseURL))
	if err != nil {
		return fmt.Errorf("db: open migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("db: apply migrations: %w", err)
	}
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		return fmt.Errorf("db: close migration source: %w", srcErr)
	}
	if dbErr != nil {
		return fmt.Errorf("db: close migration connection: %w", dbErr)
	}
	return nil
}

// pgxScheme rewrites a standard postgres URL so migrate picks its pgx/v5
// driver instead of lib/pq.
func pgxScheme(databaseURL string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix)
		}
	}
	return databaseURL
}
