// Package config centralizes importer configuration. Every tunable is a
// command-line flag whose default is seeded from an environment variable,
// so `-help` lists all knobs and containers can be driven by env alone.
//
// Typical usage:
//
//	cfg := config.Load() // reads os.Args and os.Environ
//
// For tests, prefer LoadFromArgs to keep them hermetic:
//
//	fs := flag.NewFlagSet("test", flag.ContinueOnError)
//	getenv := func(k string) string { return testEnv[k] }
//	cfg := config.LoadFromArgs(fs, getenv, []string{"-batch_size=50"})
package config

import (
	"flag"
	"os"
	"strconv"
	"strings"

	"userimport/internal/db"
)

// Metrics backends accepted by MetricsBackend.
const (
	MetricsNone        = "none"
	MetricsPushgateway = "pushgateway"
	MetricsDatadog     = "datadog"
)

// Config holds all process configuration derived from flags and
// environment variables. It is a plain value and safe to copy.
type Config struct {
	// IO
	InputCSV   string // Path to the users CSV.
	SkippedCSV string // Optional path for the rejected-row ledger; empty keeps counts only.

	// DB describes the target database. MSSQL, MySQL and SQLite need a full
	// DSN; Postgres can build one from the discrete parts.
	DBDriver   string
	DSN        string
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string
	DBSSLMode  string
	Table      string

	// Import tunables.
	BatchSize    int
	Workers      int
	PGInsertMode string // "insert" (multi-row VALUES) or "copy" (COPY FROM).

	// Surfaces.
	HTTPAddr    string // Health endpoint address; empty disables it.
	KeepServing bool   // Keep the health endpoint up after the import finishes.

	// Metrics.
	MetricsBackend string
	PushgatewayURL string
	DatadogAddr    string
	Job            string
}

// LoadFromArgs builds a Config by defining flags on fs, seeding each flag's
// default from getenv, and then parsing args.
//
// Precedence:
//  1. Environment values seed each flag's default.
//  2. Explicit CLI flags (in args) override the seeded defaults.
func LoadFromArgs(fs *flag.FlagSet, getenv func(string) string, args []string) *Config {
	cfg := &Config{}

	envOrDefaultFn := func(k, d string) string {
		if v := getenv(k); v != "" {
			return v
		}
		return d
	}
	intEnvOrDefaultFn := func(k string, d int) int {
		if v := getenv(k); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				return i
			}
		}
		return d
	}
	boolEnvOrDefaultFn := func(k string, d bool) bool {
		if v := strings.ToLower(getenv(k)); v != "" {
			switch v {
			case "1", "true", "yes", "on":
				return true
			case "0", "false", "no", "off":
				return false
			}
		}
		return d
	}

	// IO paths
	fs.StringVar(&cfg.InputCSV, "input_csv", envOrDefaultFn("INPUT_CSV", "users.csv"), "Path to the users CSV")
	fs.StringVar(&cfg.SkippedCSV, "skipped_csv", getenv("SKIPPED_CSV"), "Optional CSV file for rejected rows")

	// DB connectivity
	fs.StringVar(&cfg.DBDriver, "db_driver", envOrDefaultFn("DB_DRIVER", db.DriverPostgres), "Database driver: postgres, mssql, mysql or sqlite")
	fs.StringVar(&cfg.DSN, "dsn", getenv("DB_DSN"), "Full DSN (required for mssql, mysql and sqlite)")
	fs.StringVar(&cfg.DBUser, "db_user", getenv("DB_USER"), "DB user (postgres)")
	fs.StringVar(&cfg.DBPassword, "db_password", getenv("DB_PASSWORD"), "DB password (postgres)")
	fs.StringVar(&cfg.DBHost, "db_host", getenv("DB_HOST"), "DB host (postgres)")
	fs.StringVar(&cfg.DBPort, "db_port", getenv("DB_PORT"), "DB port (postgres)")
	fs.StringVar(&cfg.DBName, "db_name", getenv("DB_NAME"), "DB name (postgres)")
	fs.StringVar(&cfg.DBSSLMode, "db_sslmode", getenv("DB_SSLMODE"), "sslmode (postgres)")
	fs.StringVar(&cfg.Table, "table", envOrDefaultFn("DB_TABLE", "users"), "Target table, optionally schema-qualified")

	// Throughput & toggles
	fs.IntVar(&cfg.BatchSize, "batch_size", intEnvOrDefaultFn("BATCH_SIZE", 1000), "Number of rows per INSERT batch")
	fs.IntVar(&cfg.Workers, "workers", intEnvOrDefaultFn("WORKERS", 4), "Number of mapping workers")
	fs.StringVar(&cfg.PGInsertMode, "pg_insert_mode", envOrDefaultFn("PG_INSERT_MODE", db.InsertModeValues), "Postgres only: insert or copy")

	// HTTP
	fs.StringVar(&cfg.HTTPAddr, "http_addr", envOrDefaultFn("HTTP_ADDR", ":3000"), "Health endpoint address; empty disables it")
	fs.BoolVar(&cfg.KeepServing, "keep_serving", boolEnvOrDefaultFn("KEEP_SERVING", false), "Keep serving /health after the import")

	// Metrics
	fs.StringVar(&cfg.MetricsBackend, "metrics_backend", envOrDefaultFn("METRICS_BACKEND", MetricsNone), "Metrics backend: none, pushgateway or datadog")
	fs.StringVar(&cfg.PushgatewayURL, "pushgateway_url", getenv("PUSHGATEWAY_URL"), "Prometheus Pushgateway URL")
	fs.StringVar(&cfg.DatadogAddr, "datadog_addr", envOrDefaultFn("DD_AGENT_ADDR", "127.0.0.1:8125"), "DogStatsD address")
	fs.StringVar(&cfg.Job, "job", envOrDefaultFn("JOB", "userimport"), "Job name used for metrics labels")

	if args == nil {
		args = []string{}
	}
	_ = fs.Parse(args)
	return cfg
}

// LoadFrom is LoadFromArgs without extra args.
func LoadFrom(fs *flag.FlagSet, getenv func(string) string) *Config {
	return LoadFromArgs(fs, getenv, nil)
}

// Load is the production entry point: process flag set, os.Getenv and
// os.Args[1:].
func Load() *Config {
	return LoadFromArgs(flag.CommandLine, os.Getenv, os.Args[1:])
}

// ResolveDSN returns the explicit DSN when set. For postgres it otherwise
// builds one from the discrete parts; for every other driver it returns "".
func (c *Config) ResolveDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	if c.DBDriver != db.DriverPostgres || c.DBHost == "" {
		return ""
	}
	return db.BuildPostgresDSN(db.PostgresParts{
		User:     c.DBUser,
		Password: c.DBPassword,
		Host:     c.DBHost,
		Port:     c.DBPort,
		Name:     c.DBName,
		SSLMode:  c.DBSSLMode,
	})
}
