package db

import (
	"fmt"
	"strings"
)

// Placeholder is a bind-parameter syntax.
type Placeholder int

const (
	PlaceholderQuestion Placeholder = iota // ?
	PlaceholderDollar                      // $1
	PlaceholderAtP                         // @p1
)

// Dialect captures the SQL differences the importer cares about.
type Dialect struct {
	Name        string
	Placeholder Placeholder
	// QuoteOpen and QuoteClose wrap identifiers.
	QuoteOpen, QuoteClose string
	// MaxParams is the bind-parameter limit of one statement; zero means the
	// insert path does not bind per-value parameters.
	MaxParams int
}

// DialectFor returns the dialect of a supported driver. Unknown drivers get
// an ANSI dialect with ? placeholders.
func DialectFor(driver string) Dialect {
	switch driver {
	case DriverPostgres:
		return Dialect{Name: DriverPostgres, Placeholder: PlaceholderDollar, QuoteOpen: `"`, QuoteClose: `"`, MaxParams: 65535}
	case DriverMSSQL:
		// Inserts go through the TDS bulk-copy path, which does not bind
		// parameters per value, so the 2100 limit does not apply.
		return Dialect{Name: DriverMSSQL, Placeholder: PlaceholderAtP, QuoteOpen: "[", QuoteClose: "]"}
	case DriverMySQL:
		return Dialect{Name: DriverMySQL, Placeholder: PlaceholderQuestion, QuoteOpen: "`", QuoteClose: "`", MaxParams: 65535}
	case DriverSQLite:
		return Dialect{Name: DriverSQLite, Placeholder: PlaceholderQuestion, QuoteOpen: `"`, QuoteClose: `"`, MaxParams: 32766}
	default:
		return Dialect{Name: driver, Placeholder: PlaceholderQuestion, QuoteOpen: `"`, QuoteClose: `"`}
	}
}

// Bind returns the n-th (1-based) placeholder.
func (d Dialect) Bind(n int) string {
	switch d.Placeholder {
	case PlaceholderDollar:
		return fmt.Sprintf("$%d", n)
	case PlaceholderAtP:
		return fmt.Sprintf("@p%d", n)
	default:
		return "?"
	}
}

// Ident quotes one identifier segment, doubling any embedded close quote.
func (d Dialect) Ident(id string) string {
	return d.QuoteOpen + strings.ReplaceAll(id, d.QuoteClose, d.QuoteClose+d.QuoteClose) + d.QuoteClose
}

// Table quotes a possibly schema-qualified name such as "public.users".
func (d Dialect) Table(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = d.Ident(p)
	}
	return strings.Join(parts, ".")
}

// MaxRows is the largest number of rows a single multi-row INSERT over
// columns can carry; zero means no limit.
func (d Dialect) MaxRows(columns int) int {
	if d.MaxParams == 0 || columns == 0 {
		return 0
	}
	return d.MaxParams / columns
}

// InsertSQL renders INSERT INTO table (cols) VALUES (...),(...) for nrows
// rows. casts maps a column to a suffix appended to its placeholder, such as
// "::jsonb".
func (d Dialect) InsertSQL(table string, columns []string, nrows int, casts map[string]string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.Table(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Ident(c))
	}
	b.WriteString(") VALUES ")
	n := 1
	for r := 0; r < nrows; r++ {
		if r > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('(')
		for i, c := range columns {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(d.Bind(n))
			b.WriteString(casts[c])
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

// flatten lays rows out as one argument list matching InsertSQL.
func flatten(columns []string, rows [][]any) ([]any, error) {
	args := make([]any, 0, len(columns)*len(rows))
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, want %d", i, len(row), len(columns))
		}
		args = append(args, row...)
	}
	return args, nil
}
