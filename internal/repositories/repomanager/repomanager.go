// Package repomanager vends dialect-specific repositories and runs the
// embedded goose migrations for the chosen database.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/authconnector/internal/dbx"
	"github.com/dmitrijs2005/authconnector/internal/repositories/users"
	"github.com/pressly/goose/v3"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Driver() string
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// ForDriver returns the manager for a database/sql driver name.
func ForDriver(driver string) (RepositoryManager, error) {
	switch strings.ToLower(driver) {
	case DriverSQLite, "sqlite3":
		return &SQLiteRepositoryManager{}, nil
	case DriverPostgres, "postgres", "postgresql":
		return &PostgresRepositoryManager{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Open connects to the database, verifies the connection and returns the
// matching manager. Migrations are not applied.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, RepositoryManager, error) {
	m, err := ForDriver(driver)
	if err != nil {
		return nil, nil, err
	}

	db, err := sql.Open(m.Driver(), dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if m.Driver() == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	return db, m, nil
}
