package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//
// ===========================
//  Interface seams for testing
// ===========================
//
// pgPoolLike is the subset of *pgxpool.Pool the adapter uses. Acquire is
// narrowed to pgConnLike so tests can hand back a fake pooled connection.
//

type pgConnLike interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Release()
}

type pgPoolLike interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Acquire(ctx context.Context) (pgConnLike, error)
	Close()
}

// realPool adapts *pgxpool.Pool to pgPoolLike.
type realPool struct{ p *pgxpool.Pool }

func (r realPool) Exec(ctx context.Context, q string, args ...any) (pgconn.CommandTag, error) {
	return r.p.Exec(ctx, q, args...)
}
func (r realPool) QueryRow(ctx context.Context, q string, args ...any) pgx.Row {
	return r.p.QueryRow(ctx, q, args...)
}
func (r realPool) Acquire(ctx context.Context) (pgConnLike, error) {
	c, err := r.p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}
func (r realPool) Close() { r.p.Close() }

//
// ===============
//  pgDB (DB adapter)
// ===============
//

type pgDB struct {
	pool    pgPoolLike
	copy    bool
	casts   map[string]string
	dialect Dialect
}

// NewPgDB opens a pgxpool for dsn and pings it.
func NewPgDB(ctx context.Context, dsn string, opts Options) (DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = int32(opts.MaxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return newPgDB(realPool{p: pool}, opts), nil
}

func newPgDB(pool pgPoolLike, opts Options) *pgDB {
	casts := make(map[string]string, len(opts.JSONColumns))
	for _, c := range opts.JSONColumns {
		casts[c] = "::jsonb"
	}
	return &pgDB{
		pool:    pool,
		copy:    opts.PGInsertMode == InsertModeCopy,
		casts:   casts,
		dialect: DialectFor(DriverPostgres),
	}
}

func (p *pgDB) Exec(ctx context.Context, q string, args ...any) error {
	_, err := p.pool.Exec(ctx, q, args...)
	return err
}

// BeginTx pins one pooled connection for the life of the transaction. The
// connection goes back to the pool when the transaction is committed or
// rolled back, or right away if Begin fails.
func (p *pgDB) BeginTx(ctx context.Context) (Tx, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: acquire: %w", err)
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		conn.Release()
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	return &pgTx{tx: tx, conn: conn, db: p}, nil
}

func (p *pgDB) QueryRow(ctx context.Context, q string, args ...any) Row {
	return p.pool.QueryRow(ctx, q, args...)
}

func (p *pgDB) Dialect() Dialect { return p.dialect }

func (p *pgDB) Close(ctx context.Context) error {
	p.pool.Close()
	return nil
}

//
// =====================
//  Transaction wrapper
// =====================
//

type pgTx struct {
	tx      pgx.Tx
	conn    pgConnLike
	db      *pgDB
	release sync.Once
}

// InsertRows writes rows as one multi-row INSERT, or through COPY when the
// store was opened in copy mode.
func (t *pgTx) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if t.db.copy {
		n, err := t.tx.CopyFrom(ctx, pgx.Identifier(strings.Split(table, ".")), columns, pgx.CopyFromRows(rows))
		if err != nil {
			return n, fmt.Errorf("postgres CopyFrom %s: %w", table, err)
		}
		if n != int64(len(rows)) {
			log.Printf("⚠️  postgres CopyFrom(%s): inserted %d of %d rows", table, n, len(rows))
		}
		return n, nil
	}

	args, err := flatten(columns, rows)
	if err != nil {
		return 0, fmt.Errorf("postgres insert %s: %w", table, err)
	}
	tag, err := t.tx.Exec(ctx, t.db.dialect.InsertSQL(table, columns, len(rows), t.db.casts), args...)
	if err != nil {
		return 0, fmt.Errorf("postgres insert %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	defer t.done()
	return t.tx.Commit(ctx)
}

// Rollback on an already committed transaction is a no-op.
func (t *pgTx) Rollback(ctx context.Context) error {
	defer t.done()
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

func (t *pgTx) done() { t.release.Do(t.conn.Release) }
