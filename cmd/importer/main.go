// Command importer loads a users CSV into the configured store and prints the
// age distribution of the target table. main stays tiny; run does the work
// with every side effect injected through Deps so it can be tested without
// sockets.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"userimport/internal/config"
	"userimport/internal/datasource/file"
	"userimport/internal/db"
	"userimport/internal/health"
	"userimport/internal/importer"
	"userimport/internal/metrics"
	"userimport/internal/metrics/datadog"
	"userimport/internal/metrics/prompush"
	"userimport/internal/report"
	"userimport/internal/skiplog"
)

// jsonColumns are stored as jsonb on Postgres.
var jsonColumns = []string{"address", "additional_info"}

// Deps holds the boundaries run would otherwise hard-code.
type Deps struct {
	OpenDB       func(ctx context.Context, driver, dsn string, opts db.Options) (db.DB, error)
	ReadInput    func(ctx context.Context, path string) (file.Source, error)
	NewLedger    func(path string) (*skiplog.Ledger, error)
	NewMetrics   func(cfg *config.Config) (metrics.Backend, error)
	ServeHealth  func(ctx context.Context, addr string, h http.Handler) error
	ReportWriter io.Writer
}

func defaultDeps() Deps {
	return Deps{
		OpenDB:       db.Open,
		ReadInput:    file.ReadAll,
		NewLedger:    skiplog.New,
		NewMetrics:   newMetricsBackend,
		ServeHealth:  health.Serve,
		ReportWriter: os.Stdout,
	}
}

// newMetricsBackend builds the backend named by cfg.MetricsBackend; "none"
// returns nil and leaves the nop default in place.
func newMetricsBackend(cfg *config.Config) (metrics.Backend, error) {
	switch cfg.MetricsBackend {
	case config.MetricsPushgateway:
		return prompush.NewBackend(cfg.Job, cfg.PushgatewayURL)
	case config.MetricsDatadog:
		return datadog.NewBackend(datadog.Config{
			Addr:      cfg.DatadogAddr,
			Namespace: "userimport.",
			Tags:      []string{"job:" + cfg.Job},
		})
	default:
		return nil, nil
	}
}

// run executes one import:
//
//  1. Validates cfg and installs the metrics backend.
//  2. Starts the health endpoint, if configured.
//  3. Reads the input, opens the store and runs the importer.
//  4. Prints the age distribution; a reporting failure is logged, not fatal.
//  5. Flushes metrics and, with KeepServing, waits for ctx to end.
func run(ctx context.Context, cfg *config.Config, deps Deps) (err error) {
	issues := config.Validate(cfg)
	for _, iss := range issues {
		log.Printf("config: %v", iss)
	}
	if config.HasErrors(issues) {
		return errors.New("invalid configuration")
	}

	backend, err := deps.NewMetrics(cfg)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if backend != nil {
		metrics.SetBackend(backend)
		defer func() {
			if ferr := metrics.Flush(); ferr != nil {
				log.Printf("⚠️  metrics flush: %v", ferr)
			}
			if c, ok := backend.(io.Closer); ok {
				_ = c.Close()
			}
		}()
	}

	state := health.NewState()
	if cfg.HTTPAddr != "" {
		serveCtx, stop := context.WithCancel(ctx)
		served := make(chan struct{})
		go func() {
			defer close(served)
			if serr := deps.ServeHealth(serveCtx, cfg.HTTPAddr, health.NewRouter(state)); serr != nil {
				log.Printf("⚠️  health server: %v", serr)
			}
		}()
		defer func() {
			if cfg.KeepServing && err == nil {
				log.Printf("import finished; serving %s until shutdown", cfg.HTTPAddr)
				<-ctx.Done()
			}
			stop()
			<-served
		}()
	}

	state.Set(health.PhaseImporting)
	if err := importOnce(ctx, cfg, deps); err != nil {
		state.Set(health.PhaseFailed)
		return err
	}
	state.Set(health.PhaseDone)
	return nil
}

func importOnce(ctx context.Context, cfg *config.Config, deps Deps) error {
	src, err := deps.ReadInput(ctx, cfg.InputCSV)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	log.Printf("input: %s size=%d xxh3=%s", src.Path, src.Size, src.HashHex())

	store, err := deps.OpenDB(ctx, cfg.DBDriver, cfg.ResolveDSN(), db.Options{
		PGInsertMode: cfg.PGInsertMode,
		JSONColumns:  jsonColumns,
	})
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.DBDriver, err)
	}
	defer func() {
		if cerr := store.Close(context.WithoutCancel(ctx)); cerr != nil {
			log.Printf("⚠️  close %s: %v", cfg.DBDriver, cerr)
		}
	}()

	ledger, err := deps.NewLedger(cfg.SkippedCSV)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ledger.Close(); cerr != nil {
			log.Printf("⚠️  skiplog close: %v", cerr)
		}
	}()

	im := &importer.Importer{
		DB:        store,
		Table:     cfg.Table,
		BatchSize: cfg.BatchSize,
		Workers:   cfg.Workers,
		Job:       cfg.Job,
		InputHash: src.HashHex(),
		Skips:     ledger,
	}
	sum, err := im.Run(ctx, src.Text)
	if err != nil {
		return fmt.Errorf("import run %s (input xxh3=%s): %w", sum.RunID, sum.InputHash, err)
	}
	log.Printf("import run %s done: input=%s xxh3=%s parsed=%d valid=%d skipped=%d inserted=%d batches=%d reasons=[%s] elapsed=%s",
		sum.RunID, src.Path, sum.InputHash, sum.Parsed, sum.Valid, sum.Skipped, sum.Inserted, sum.Batches, ledger.Summary(), sum.Duration)

	rep, err := report.Distribution(ctx, store, cfg.Table)
	if err != nil {
		log.Printf("⚠️  report: %v", err)
		return nil
	}
	if err := rep.Render(deps.ReportWriter); err != nil {
		log.Printf("⚠️  report render: %v", err)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	if err := run(ctx, cfg, defaultDeps()); err != nil {
		log.Fatal(err)
	}
}
