package config

import (
	"fmt"
	"strings"

	"userimport/internal/db"
	"userimport/internal/domain"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks the run.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path names the flag it concerns.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

var knownDrivers = map[string]struct{}{
	db.DriverPostgres: {},
	db.DriverMSSQL:    {},
	db.DriverMySQL:    {},
	db.DriverSQLite:   {},
}

// Validate lints cfg without mutating it. Callers decide whether warnings
// are fatal.
func Validate(cfg *Config) []Issue {
	var issues []Issue
	errf := func(path, format string, args ...any) {
		issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, args...)})
	}
	warnf := func(path, format string, args ...any) {
		issues = append(issues, Issue{Severity: SeverityWarning, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(cfg.InputCSV) == "" {
		errf("input_csv", "input path must not be empty")
	}
	if strings.TrimSpace(cfg.Table) == "" {
		errf("table", "table must not be empty")
	}

	_, knownDriver := knownDrivers[cfg.DBDriver]
	if !knownDriver {
		errf("db_driver", "unknown driver %q; want postgres, mssql, mysql or sqlite", cfg.DBDriver)
	}

	if cfg.BatchSize <= 0 {
		errf("batch_size", "batch size must be > 0, got %d", cfg.BatchSize)
	} else if knownDriver {
		if limit := db.DialectFor(cfg.DBDriver).MaxRows(len(domain.Columns)); limit > 0 && cfg.BatchSize > limit {
			errf("batch_size", "%s accepts at most %d rows per statement (%d columns); got %d",
				cfg.DBDriver, limit, len(domain.Columns), cfg.BatchSize)
		}
	}
	if cfg.Workers <= 0 {
		errf("workers", "workers must be > 0, got %d", cfg.Workers)
	}

	if knownDriver && cfg.ResolveDSN() == "" {
		if cfg.DBDriver == db.DriverPostgres {
			errf("dsn", "set DB_DSN or at least DB_HOST for postgres")
		} else {
			errf("dsn", "%s requires a full DSN", cfg.DBDriver)
		}
	}

	switch cfg.PGInsertMode {
	case db.InsertModeValues, db.InsertModeCopy:
		if cfg.PGInsertMode == db.InsertModeCopy && cfg.DBDriver != db.DriverPostgres {
			warnf("pg_insert_mode", "copy mode only applies to postgres; ignored for %s", cfg.DBDriver)
		}
	default:
		errf("pg_insert_mode", "unknown insert mode %q; want insert or copy", cfg.PGInsertMode)
	}

	switch cfg.MetricsBackend {
	case MetricsNone, "":
	case MetricsPushgateway:
		if cfg.PushgatewayURL == "" {
			errf("pushgateway_url", "pushgateway backend requires a URL")
		}
	case MetricsDatadog:
		if cfg.DatadogAddr == "" {
			errf("datadog_addr", "datadog backend requires an agent address")
		}
	default:
		errf("metrics_backend", "unknown metrics backend %q", cfg.MetricsBackend)
	}

	if cfg.KeepServing && cfg.HTTPAddr == "" {
		warnf("keep_serving", "keep_serving has no effect with an empty http_addr")
	}
	return issues
}
