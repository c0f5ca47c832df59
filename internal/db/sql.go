package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	_ "github.com/go-sql-driver/mysql"
	mssql "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

//
// =======================
//  Testability-first seams
// =======================
//
// The adapter talks to database/sql through three small interfaces so unit
// tests can inject fakes without a socket. realSQLDB/realSQLTx/realStmt wrap
// the real types in production.
//

type stmtCore interface {
	ExecContext(ctx context.Context, args ...any) (sql.Result, error)
	Close() error
}

type sqlTxCore interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (stmtCore, error)
	Commit() error
	Rollback() error
}

type sqlDBCore interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (sqlTxCore, error)
	Close() error
}

type realStmt struct{ s *sql.Stmt }

func (r realStmt) ExecContext(ctx context.Context, args ...any) (sql.Result, error) {
	return r.s.ExecContext(ctx, args...)
}
func (r realStmt) Close() error { return r.s.Close() }

type realSQLTx struct{ tx *sql.Tx }

func (r realSQLTx) ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return r.tx.ExecContext(ctx, q, args...)
}
func (r realSQLTx) PrepareContext(ctx context.Context, q string) (stmtCore, error) {
	st, err := r.tx.PrepareContext(ctx, q)
	if err != nil {
		return nil, err
	}
	return realStmt{st}, nil
}
func (r realSQLTx) Commit() error   { return r.tx.Commit() }
func (r realSQLTx) Rollback() error { return r.tx.Rollback() }

type realSQLDB struct{ db *sql.DB }

func (r realSQLDB) ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return r.db.ExecContext(ctx, q, args...)
}
func (r realSQLDB) QueryRowContext(ctx context.Context, q string, args ...any) Row {
	return r.db.QueryRowContext(ctx, q, args...)
}
func (r realSQLDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (sqlTxCore, error) {
	tx, err := r.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return realSQLTx{tx: tx}, nil
}
func (r realSQLDB) Close() error { return r.db.Close() }

//
// ===================
//  sqlDB (DB adapter)
// ===================
//

type sqlDB struct {
	db      sqlDBCore
	dialect Dialect
}

// NewSQLDB opens driverName through database/sql and pings it. SQLite is
// limited to one open connection unless opts.MaxConns says otherwise, so an
// in-memory database is shared by every caller of the handle.
func NewSQLDB(ctx context.Context, driverName, dsn string, dialect Dialect, opts Options) (DB, error) {
	d, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", dialect.Name, err)
	}
	switch {
	case opts.MaxConns > 0:
		d.SetMaxOpenConns(opts.MaxConns)
	case dialect.Name == DriverSQLite:
		d.SetMaxOpenConns(1)
	}
	if err := d.PingContext(ctx); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("%s: ping: %w", dialect.Name, err)
	}
	return &sqlDB{db: realSQLDB{db: d}, dialect: dialect}, nil
}

func (s *sqlDB) Exec(ctx context.Context, q string, args ...any) error {
	_, err := s.db.ExecContext(ctx, q, args...)
	return err
}

func (s *sqlDB) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: begin: %w", s.dialect.Name, err)
	}
	return &sqlTx{tx: tx, dialect: s.dialect}, nil
}

func (s *sqlDB) QueryRow(ctx context.Context, q string, args ...any) Row {
	return s.db.QueryRowContext(ctx, q, args...)
}

func (s *sqlDB) Dialect() Dialect { return s.dialect }

func (s *sqlDB) Close(ctx context.Context) error { return s.db.Close() }

//
// ==================
//  sqlTx (Tx adapter)
// ==================
//

type sqlTx struct {
	tx      sqlTxCore
	dialect Dialect
}

// InsertRows issues one multi-row INSERT. On SQL Server it streams the rows
// through a single bulk-copy statement instead.
func (t *sqlTx) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if t.dialect.Name == DriverMSSQL {
		return t.bulkCopy(ctx, table, columns, rows)
	}

	if limit := t.dialect.MaxRows(len(columns)); limit > 0 && len(rows) > limit {
		return 0, fmt.Errorf("%s insert %s: %d rows exceed the %d bind parameter limit; lower the batch size",
			t.dialect.Name, table, len(rows), t.dialect.MaxParams)
	}
	args, err := flatten(columns, rows)
	if err != nil {
		return 0, fmt.Errorf("%s insert %s: %w", t.dialect.Name, table, err)
	}
	res, err := t.tx.ExecContext(ctx, t.dialect.InsertSQL(table, columns, len(rows), nil), args...)
	if err != nil {
		return 0, fmt.Errorf("%s insert %s: %w", t.dialect.Name, table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return int64(len(rows)), nil
	}
	return n, nil
}

// bulkCopy sends rows through mssql.CopyIn: every Exec buffers a row and the
// final argument-less Exec flushes the batch in one bulk operation.
func (t *sqlTx) bulkCopy(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	stmt, err := t.tx.PrepareContext(ctx, mssql.CopyIn(table, mssql.BulkOptions{}, columns...))
	if err != nil {
		return 0, fmt.Errorf("mssql CopyIn prepare %s: %w", table, err)
	}
	defer stmt.Close()

	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("mssql CopyIn %s: row %d has %d values, want %d", table, i, len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, fmt.Errorf("mssql CopyIn exec %s: %w", table, err)
		}
	}
	res, err := stmt.ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("mssql CopyIn finalize %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return int64(len(rows)), nil
	}
	if n != int64(len(rows)) {
		log.Printf("⚠️  mssql CopyIn(%s): inserted %d of %d rows", table, n, len(rows))
	}
	return n, nil
}

func (t *sqlTx) Commit(ctx context.Context) error { return t.tx.Commit() }

// Rollback on an already committed transaction is a no-op.
func (t *sqlTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
