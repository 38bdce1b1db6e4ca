package repo

import (
	"context"
	"database/sql"
	"errors"

	"compliancekit/internal/db"
)

// Repo is the SQL store behind the engine. Queries are written with '?' placeholders and rebound
// for the configured driver.
type Repo struct {
	DB     *sql.DB
	Driver string
}

var ErrNotFound = errors.New("not found")

// New returns a Repo for conn. An empty driver means SQLite.
func New(conn *sql.DB, driver string) Repo {
	if driver == "" {
		driver = db.DriverSQLite
	}
	return Repo{DB: conn, Driver: driver}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// on returns tx when set, otherwise the pool.
func (r Repo) on(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

func (r Repo) rebind(query string) string {
	return db.Rebind(r.Driver, query)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
