package db

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//
// ==============================
//  FAKES (Test Doubles for pgx)
// ==============================
//

// fakePool implements pgPoolLike and hands out fakeConn from Acquire.
type fakePool struct {
	conn       *fakeConn
	acquireErr error
	closed     bool
}

func (p *fakePool) Exec(ctx context.Context, q string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (p *fakePool) QueryRow(ctx context.Context, q string, args ...any) pgx.Row { return nil }
func (p *fakePool) Acquire(ctx context.Context) (pgConnLike, error) {
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	return p.conn, nil
}
func (p *fakePool) Close() { p.closed = true }

// fakeConn implements pgConnLike and counts releases.
type fakeConn struct {
	tx       *fakePgTx
	beginErr error
	releases int
}

func (c *fakeConn) Begin(ctx context.Context) (pgx.Tx, error) {
	if c.beginErr != nil {
		return nil, c.beginErr
	}
	return c.tx, nil
}
func (c *fakeConn) Release() { c.releases++ }

// fakePgTx implements pgx.Tx, instrumenting Exec, CopyFrom, Commit and
// Rollback; the rest are stubs.
type fakePgTx struct {
	execSQL     []string
	execArgs    [][]any
	execErr     error
	copyTable   pgx.Identifier
	copyCount   int64
	copyErr     error
	commitErr   error
	rollbackErr error
	committed   bool
	rolledBack  bool
}

func (t *fakePgTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *fakePgTx) Exec(ctx context.Context, q string, args ...any) (pgconn.CommandTag, error) {
	t.execSQL = append(t.execSQL, q)
	t.execArgs = append(t.execArgs, args)
	if t.execErr != nil {
		return pgconn.CommandTag{}, t.execErr
	}
	return pgconn.NewCommandTag("INSERT 0 " + strconv.Itoa(len(args)/4)), nil
}
func (t *fakePgTx) Query(ctx context.Context, q string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *fakePgTx) QueryRow(ctx context.Context, q string, args ...any) pgx.Row { return nil }
func (t *fakePgTx) CopyFrom(ctx context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	t.copyTable = table
	if t.copyErr != nil {
		return 0, t.copyErr
	}
	var n int64
	for src.Next() {
		if _, err := src.Values(); err != nil {
			return n, err
		}
		n++
	}
	t.copyCount = n
	return n, src.Err()
}
func (t *fakePgTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *fakePgTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *fakePgTx) Conn() *pgx.Conn                                              { return nil }
func (t *fakePgTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *fakePgTx) Deallocate(ctx context.Context, name string) error { return nil }
func (t *fakePgTx) Commit(ctx context.Context) error {
	t.committed = true
	return t.commitErr
}
func (t *fakePgTx) Rollback(ctx context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return t.rollbackErr
}

var testRows = [][]any{
	{"A B", 30, `{"city":"X"}`, nil},
	{"C D", 41, nil, `{"k":"v"}`},
}

//
// =====================
//  ADAPTER TESTS (pgx)
// =====================
//

// Test_pgDB_BeginTx_AcquireAndBeginErrors verifies that no transaction is
// fabricated on failure and that a connection acquired for a failed Begin is
// released.
func Test_pgDB_BeginTx_AcquireAndBeginErrors(t *testing.T) {
	ctx := context.Background()

	p := newPgDB(&fakePool{acquireErr: errors.New("pool exhausted")}, Options{})
	if tx, err := p.BeginTx(ctx); err == nil || tx != nil {
		t.Fatalf("want acquire error, got tx=%v err=%v", tx, err)
	}

	conn := &fakeConn{beginErr: errors.New("boom")}
	p = newPgDB(&fakePool{conn: conn}, Options{})
	if tx, err := p.BeginTx(ctx); err == nil || tx != nil {
		t.Fatalf("want begin error, got tx=%v err=%v", tx, err)
	}
	if conn.releases != 1 {
		t.Fatalf("connection must be released after failed Begin, releases=%d", conn.releases)
	}
}

// Test_pgTx_InsertRows_MultiRowValues checks that one batch becomes one
// INSERT with numbered placeholders and jsonb casts on JSON columns.
func Test_pgTx_InsertRows_MultiRowValues(t *testing.T) {
	ctx := context.Background()
	ftx := &fakePgTx{}
	conn := &fakeConn{tx: ftx}
	p := newPgDB(&fakePool{conn: conn}, Options{JSONColumns: []string{"address", "additional_info"}})

	tx, err := p.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	cols := []string{"name", "age", "address", "additional_info"}
	n, err := tx.InsertRows(ctx, "users", cols, testRows)
	if err != nil {
		t.Fatalf("InsertRows: %v", err)
	}
	if n != 2 {
		t.Fatalf("rows affected=%d want 2", n)
	}
	if len(ftx.execSQL) != 1 {
		t.Fatalf("want exactly one statement, got %d", len(ftx.execSQL))
	}
	want := `INSERT INTO "users" ("name", "age", "address", "additional_info") VALUES ($1,$2,$3::jsonb,$4::jsonb),($5,$6,$7::jsonb,$8::jsonb)`
	if ftx.execSQL[0] != want {
		t.Fatalf("sql=%s\nwant %s", ftx.execSQL[0], want)
	}
	if len(ftx.execArgs[0]) != 8 {
		t.Fatalf("args=%v", ftx.execArgs[0])
	}
}

// Test_pgTx_InsertRows_CopyMode routes the batch through CopyFrom and splits
// schema-qualified table names into identifier parts.
func Test_pgTx_InsertRows_CopyMode(t *testing.T) {
	ctx := context.Background()
	ftx := &fakePgTx{}
	p := newPgDB(&fakePool{conn: &fakeConn{tx: ftx}}, Options{PGInsertMode: InsertModeCopy})

	tx, err := p.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	n, err := tx.InsertRows(ctx, "public.users", []string{"name", "age", "address", "additional_info"}, testRows)
	if err != nil || n != 2 {
		t.Fatalf("InsertRows n=%d err=%v", n, err)
	}
	if len(ftx.execSQL) != 0 {
		t.Fatalf("copy mode must not Exec, got %v", ftx.execSQL)
	}
	if len(ftx.copyTable) != 2 || ftx.copyTable[0] != "public" || ftx.copyTable[1] != "users" {
		t.Fatalf("copy table=%v", ftx.copyTable)
	}
}

func Test_pgTx_InsertRows_ErrorWrapped(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("unique violation")
	ftx := &fakePgTx{execErr: boom}
	p := newPgDB(&fakePool{conn: &fakeConn{tx: ftx}}, Options{})
	tx, _ := p.BeginTx(ctx)
	if _, err := tx.InsertRows(ctx, "users", []string{"a", "b", "c", "d"}, testRows); !errors.Is(err, boom) {
		t.Fatalf("want wrapped driver error, got %v", err)
	}
}

// Test_pgTx_ReleaseOnceOnEveryPath commits, then rolls back; the connection is
// released exactly once and the late Rollback is a no-op.
func Test_pgTx_ReleaseOnceOnEveryPath(t *testing.T) {
	ctx := context.Background()

	ftx := &fakePgTx{}
	conn := &fakeConn{tx: ftx}
	p := newPgDB(&fakePool{conn: conn}, Options{})
	tx, _ := p.BeginTx(ctx)
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback after Commit should be nil, got %v", err)
	}
	if conn.releases != 1 {
		t.Fatalf("releases=%d want 1", conn.releases)
	}

	// Rollback path, with a failing rollback still releasing.
	ftx2 := &fakePgTx{rollbackErr: errors.New("conn lost")}
	conn2 := &fakeConn{tx: ftx2}
	p2 := newPgDB(&fakePool{conn: conn2}, Options{})
	tx2, _ := p2.BeginTx(ctx)
	if err := tx2.Rollback(ctx); err == nil {
		t.Fatal("want rollback error")
	}
	if !ftx2.rolledBack || conn2.releases != 1 {
		t.Fatalf("rolledBack=%v releases=%d", ftx2.rolledBack, conn2.releases)
	}
}

func Test_pgDB_CloseAndDialect(t *testing.T) {
	pool := &fakePool{}
	p := newPgDB(pool, Options{})
	if p.Dialect().Name != DriverPostgres {
		t.Fatalf("dialect=%+v", p.Dialect())
	}
	if err := p.Close(context.Background()); err != nil || !pool.closed {
		t.Fatalf("close err=%v closed=%v", err, pool.closed)
	}
}
