// Package report computes the post-import age distribution.
package report

import (
	"context"
	"fmt"
	"io"

	"userimport/internal/db"
)

// Querier is the read side of a store handle; db.DB satisfies it.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) db.Row
	Dialect() db.Dialect
}

// ReportingError wraps a failed aggregate query. Data committed before the
// report ran is unaffected.
type ReportingError struct {
	Query string
	Err   error
}

func (e *ReportingError) Error() string {
	return fmt.Sprintf("report %s: %v", e.Query, e.Err)
}

func (e *ReportingError) Unwrap() error { return e.Err }

// Bucket labels, in output order.
var Labels = [4]string{"<20", "20-40", "40-60", ">60"}

// Report is a snapshot of the age distribution. Counts follow Labels order:
// age < 20, 20 <= age <= 40, 40 < age <= 60, age > 60.
type Report struct {
	Total  int64
	Counts [4]int64
}

// Bucket is one labelled percentage.
type Bucket struct {
	Label   string
	Count   int64
	Percent int64
}

// Empty reports whether the table had no rows.
func (r Report) Empty() bool { return r.Total == 0 }

// Buckets returns the four buckets in fixed order. Percentages round half up
// independently, so they need not sum to 100.
func (r Report) Buckets() []Bucket {
	out := make([]Bucket, len(Labels))
	for i, l := range Labels {
		out[i] = Bucket{Label: l, Count: r.Counts[i], Percent: Percent(r.Counts[i], r.Total)}
	}
	return out
}

// Percent is count/total as a whole percentage rounded half up, computed in
// integers. It is 0 when total is 0.
func Percent(count, total int64) int64 {
	if total <= 0 {
		return 0
	}
	return (200*count + total) / (2 * total)
}

// Render writes the report, or a single "no data" line for an empty table.
func (r Report) Render(w io.Writer) error {
	if r.Empty() {
		_, err := fmt.Fprintln(w, "age distribution: no data")
		return err
	}
	if _, err := fmt.Fprintf(w, "age distribution (%d rows):\n", r.Total); err != nil {
		return err
	}
	for _, b := range r.Buckets() {
		if _, err := fmt.Fprintf(w, "  %-6s %3d%%\n", b.Label, b.Percent); err != nil {
			return err
		}
	}
	return nil
}

// Distribution counts the rows of table and, when there are any, buckets
// them by age in a single aggregate query. It only reads.
func Distribution(ctx context.Context, q Querier, table string) (Report, error) {
	d := q.Dialect()
	tbl := d.Table(table)
	age := d.Ident("age")

	var r Report
	if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM "+tbl).Scan(&r.Total); err != nil {
		return Report{}, &ReportingError{Query: "count", Err: err}
	}
	if r.Total == 0 {
		return r, nil
	}

	sql := fmt.Sprintf(`SELECT
	COALESCE(SUM(CASE WHEN %[1]s < 20 THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN %[1]s >= 20 AND %[1]s <= 40 THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN %[1]s > 40 AND %[1]s <= 60 THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN %[1]s > 60 THEN 1 ELSE 0 END), 0)
FROM %[2]s`, age, tbl)
	if err := q.QueryRow(ctx, sql).Scan(&r.Counts[0], &r.Counts[1], &r.Counts[2], &r.Counts[3]); err != nil {
		return Report{}, &ReportingError{Query: "buckets", Err: err}
	}
	return r, nil
}
