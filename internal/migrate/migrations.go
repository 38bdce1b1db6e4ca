package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"

	"compliancekit/internal/db"
)

//go:embed sql/sqlite/*.sql sql/postgres/*.sql
var migrationsFS embed.FS

func dialectFor(driver string) (goose.Dialect, string, error) {
	switch driver {
	case "", db.DriverSQLite:
		return goose.DialectSQLite3, "sql/sqlite", nil
	case db.DriverPostgres:
		return goose.DialectPostgres, "sql/postgres", nil
	}
	return "", "", fmt.Errorf("unsupported driver %q", driver)
}

// Migrate applies the embedded migrations for driver and returns the resulting schema version.
func Migrate(ctx context.Context, conn *sql.DB, driver string) (int64, error) {
	dialect, dir, err := dialectFor(driver)
	if err != nil {
		return 0, err
	}
	fsys, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return 0, err
	}
	provider, err := goose.NewProvider(dialect, conn, fsys)
	if err != nil {
		return 0, fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return 0, fmt.Errorf("goose up: %w", err)
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("schema version: %w", err)
	}
	return version, nil
}
