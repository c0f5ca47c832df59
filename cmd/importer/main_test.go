package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"userimport/internal/config"
	"userimport/internal/datasource/file"
	"userimport/internal/db"
	"userimport/internal/metrics"
	"userimport/internal/skiplog"
)

//
// ======================
//  Test fakes (no I/O)
// ======================
//

const usersDDL = `CREATE TABLE users (
	name TEXT NOT NULL,
	age INTEGER NOT NULL,
	address TEXT,
	additional_info TEXT
)`

const inputCSV = "name.firstName,name.lastName,age,address.city\nA,B,30,X\n,C,40,Y\nE,F,65,Z\n"

// openSQLite returns an OpenDB that hands out an in-memory SQLite store
// with the users table created.
func openSQLite(t *testing.T, opened *db.Options) func(context.Context, string, string, db.Options) (db.DB, error) {
	return func(ctx context.Context, driver, dsn string, opts db.Options) (db.DB, error) {
		if opened != nil {
			*opened = opts
		}
		d, err := db.Open(ctx, db.DriverSQLite, ":memory:", db.Options{})
		if err != nil {
			return nil, err
		}
		if err := d.Exec(ctx, usersDDL); err != nil {
			t.Fatalf("create table: %v", err)
		}
		return d, nil
	}
}

func readText(text string) func(context.Context, string) (file.Source, error) {
	return func(ctx context.Context, path string) (file.Source, error) {
		return file.Source{Path: path, Text: text, Size: int64(len(text))}, nil
	}
}

// failingReportDB breaks every query so the reporter fails after a
// successful import.
type failingReportDB struct{ db.DB }

type errRow struct{}

func (errRow) Scan(...any) error { return errors.New("no such function: COUNT") }

func (f failingReportDB) QueryRow(ctx context.Context, q string, args ...any) db.Row { return errRow{} }

type fakeServer struct {
	mu    sync.Mutex
	addrs []string
}

func (s *fakeServer) serve(ctx context.Context, addr string, h http.Handler) error {
	s.mu.Lock()
	s.addrs = append(s.addrs, addr)
	s.mu.Unlock()
	<-ctx.Done()
	return nil
}

func testCfg() *config.Config {
	return &config.Config{
		InputCSV:       "users.csv",
		DBDriver:       "sqlite",
		DSN:            ":memory:",
		Table:          "users",
		BatchSize:      2,
		Workers:        2,
		PGInsertMode:   "insert",
		MetricsBackend: config.MetricsNone,
		Job:            "test",
	}
}

func testDeps(t *testing.T, out *bytes.Buffer) Deps {
	return Deps{
		OpenDB:       openSQLite(t, nil),
		ReadInput:    readText(inputCSV),
		NewLedger:    skiplog.New,
		NewMetrics:   func(*config.Config) (metrics.Backend, error) { return nil, nil },
		ServeHealth:  (&fakeServer{}).serve,
		ReportWriter: out,
	}
}

// TestDefaultDeps_ProvidesNonNilProductionWiring checks the production
// wiring exists without executing it.
func TestDefaultDeps_ProvidesNonNilProductionWiring(t *testing.T) {
	d := defaultDeps()
	if d.OpenDB == nil || d.ReadInput == nil || d.NewLedger == nil || d.NewMetrics == nil || d.ServeHealth == nil || d.ReportWriter == nil {
		t.Fatalf("defaultDeps has nil fields: %+v", d)
	}
}

func TestRun_ImportsAndPrintsReport(t *testing.T) {
	var out bytes.Buffer
	var opts db.Options
	deps := testDeps(t, &out)
	deps.OpenDB = openSQLite(t, &opts)

	if err := run(context.Background(), testCfg(), deps); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(opts.JSONColumns) != 2 || opts.PGInsertMode != "insert" {
		t.Fatalf("db options=%+v", opts)
	}
	got := out.String()
	for _, want := range []string{"<20", "20-40   50%", ">60     50%"} {
		if !strings.Contains(got, want) {
			t.Fatalf("report missing %q:\n%s", want, got)
		}
	}
}

func TestRun_InvalidConfigOpensNothing(t *testing.T) {
	deps := testDeps(t, &bytes.Buffer{})
	deps.OpenDB = func(context.Context, string, string, db.Options) (db.DB, error) {
		t.Fatalf("OpenDB must not be called")
		return nil, nil
	}
	cfg := testCfg()
	cfg.BatchSize = 0
	if err := run(context.Background(), cfg, deps); err == nil {
		t.Fatal("want configuration error")
	}
}

func TestRun_ReadInputErrorPropagates(t *testing.T) {
	boom := errors.New("permission denied")
	deps := testDeps(t, &bytes.Buffer{})
	deps.ReadInput = func(context.Context, string) (file.Source, error) { return file.Source{}, boom }
	if err := run(context.Background(), testCfg(), deps); !errors.Is(err, boom) {
		t.Fatalf("want wrapped read error, got %v", err)
	}
}

func TestRun_MalformedInputIsFatal(t *testing.T) {
	deps := testDeps(t, &bytes.Buffer{})
	deps.ReadInput = readText("")
	if err := run(context.Background(), testCfg(), deps); err == nil {
		t.Fatal("want malformed input error")
	}
}

func TestRun_ReportFailureIsNotFatal(t *testing.T) {
	var out bytes.Buffer
	deps := testDeps(t, &out)
	open := openSQLite(t, nil)
	deps.OpenDB = func(ctx context.Context, driver, dsn string, opts db.Options) (db.DB, error) {
		d, err := open(ctx, driver, dsn, opts)
		if err != nil {
			return nil, err
		}
		return failingReportDB{DB: d}, nil
	}
	if err := run(context.Background(), testCfg(), deps); err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("nothing should be rendered, got %q", out.String())
	}
}

func TestRun_StartsAndStopsHealthServer(t *testing.T) {
	srv := &fakeServer{}
	deps := testDeps(t, &bytes.Buffer{})
	deps.ServeHealth = srv.serve
	cfg := testCfg()
	cfg.HTTPAddr = "127.0.0.1:0"

	if err := run(context.Background(), cfg, deps); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(srv.addrs) != 1 || srv.addrs[0] != cfg.HTTPAddr {
		t.Fatalf("served addrs=%v", srv.addrs)
	}
}

func TestRun_KeepServingWaitsForShutdown(t *testing.T) {
	deps := testDeps(t, &bytes.Buffer{})
	cfg := testCfg()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.KeepServing = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, deps) }()

	select {
	case err := <-done:
		t.Fatalf("run returned before shutdown: %v", err)
	default:
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}
