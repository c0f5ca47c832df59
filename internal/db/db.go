// Package db provides the transactional store handle used by the importer.
// Postgres goes through pgxpool; MySQL, SQLite and MSSQL go through
// database/sql. Callers only see the DB and Tx interfaces.
package db

import (
	"context"
	"fmt"
)

// DB is an explicitly opened handle to the destination store. Open it once at
// pipeline start and Close it when the run ends.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) error
	BeginTx(ctx context.Context) (Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
	Dialect() Dialect
	Close(ctx context.Context) error
}

// Tx is one open transaction pinned to one connection. Commit or Rollback
// closes it and returns the connection to its pool; calling either after the
// transaction is closed is harmless.
type Tx interface {
	// InsertRows writes rows in one statement or bulk operation and reports
	// how many rows the backend accepted.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Row is the single-row result of QueryRow. Both pgx.Row and *sql.Row
// satisfy it.
type Row interface {
	Scan(dest ...any) error
}

// Supported driver names.
const (
	DriverPostgres = "postgres"
	DriverMSSQL    = "mssql"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// Postgres insert modes.
const (
	InsertModeValues = "insert"
	InsertModeCopy   = "copy"
)

// Options tunes backend specifics. The zero value is usable.
type Options struct {
	// PGInsertMode selects multi-row INSERT (default) or COPY for Postgres.
	PGInsertMode string
	// JSONColumns are cast to jsonb in Postgres INSERT statements.
	JSONColumns []string
	// MaxConns caps the pool size; zero keeps the driver default.
	MaxConns int
}

// Open connects to the store behind driver and verifies connectivity.
func Open(ctx context.Context, driver, dsn string, opts Options) (DB, error) {
	switch driver {
	case DriverPostgres:
		return NewPgDB(ctx, dsn, opts)
	case DriverMSSQL:
		return NewSQLDB(ctx, "sqlserver", dsn, DialectFor(DriverMSSQL), opts)
	case DriverMySQL:
		return NewSQLDB(ctx, "mysql", dsn, DialectFor(DriverMySQL), opts)
	case DriverSQLite:
		return NewSQLDB(ctx, "sqlite", dsn, DialectFor(DriverSQLite), opts)
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", driver)
	}
}
