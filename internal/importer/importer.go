// Package importer wires the pipeline: parse, map, filter, load, commit.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"userimport/internal/csvutil"
	"userimport/internal/db"
	"userimport/internal/domain"
	"userimport/internal/mapper"
	"userimport/internal/metrics"
	"userimport/internal/skiplog"
	"userimport/internal/storage"
)

// Step names reported to metrics.
const (
	StepParse = "parse"
	StepMap   = "map"
	StepLoad  = "load"
)

// Importer runs one CSV text through the pipeline into Table. DB must be
// open; Skips is optional. InputHash identifies the input (the hex xxh3 of
// the raw file) and is copied into the Summary.
type Importer struct {
	DB        db.DB
	Table     string
	BatchSize int
	Workers   int
	Job       string
	InputHash string
	Skips     *skiplog.Ledger
}

// Summary describes one completed or failed run.
type Summary struct {
	RunID     string
	InputHash string
	Parsed    int
	Valid     int
	Skipped   int
	Inserted  int64
	Batches   int
	Reasons   map[string]int
	Duration  time.Duration
}

// Run imports text. Malformed input aborts before the store is touched.
// Rows that fail validation are logged and skipped. All valid rows are
// written in one transaction: any load failure or cancellation rolls the
// whole run back and returns the error, with the partial Summary.
func (im *Importer) Run(ctx context.Context, text string) (sum Summary, err error) {
	sum = Summary{RunID: uuid.NewString(), InputHash: im.InputHash, Reasons: map[string]int{}}
	start := time.Now()
	defer func() { sum.Duration = time.Since(start) }()

	batchSize := im.BatchSize
	if batchSize == 0 {
		batchSize = storage.DefaultBatchSize
	}

	// ---- parse ----
	t0 := time.Now()
	recs, err := csvutil.Parse(text)
	metrics.RecordStep(im.Job, StepParse, err, time.Since(t0))
	if err != nil {
		return sum, fmt.Errorf("parse: %w", err)
	}
	sum.Parsed = len(recs)
	metrics.RecordRow(im.Job, "parsed", int64(len(recs)))

	// ---- map ----
	t0 = time.Now()
	results, err := mapper.MapAll(ctx, recs, im.Workers)
	metrics.RecordStep(im.Job, StepMap, err, time.Since(t0))
	if err != nil {
		return sum, fmt.Errorf("map: %w", err)
	}

	docs := make([]domain.Document, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			im.skip(&sum, r, recs[r.Row-1])
			continue
		}
		docs = append(docs, r.Document)
	}
	sum.Valid = len(docs)
	metrics.RecordRow(im.Job, "skipped", int64(sum.Skipped))

	// ---- load ----
	t0 = time.Now()
	err = im.load(ctx, docs, batchSize, &sum)
	metrics.RecordStep(im.Job, StepLoad, err, time.Since(t0))
	if err != nil {
		return sum, err
	}
	metrics.RecordRow(im.Job, "inserted", sum.Inserted)
	return sum, nil
}

func (im *Importer) skip(sum *Summary, r mapper.Result, rec csvutil.FlatRecord) {
	reason, fields := "invalid", []string(nil)
	var ve *mapper.ValidationError
	if errors.As(r.Err, &ve) {
		reason, fields = ve.Reason, ve.Fields
	}
	sum.Skipped++
	sum.Reasons[reason]++
	log.Printf("⚠️  row %d skipped: %v", r.Row, r.Err)
	if im.Skips != nil {
		im.Skips.Add(reason, r.Row, fields, rawLine(rec))
	}
}

// load owns the transaction. Rollback runs on a context detached from ctx so
// a cancelled run still releases its connection cleanly.
func (im *Importer) load(ctx context.Context, docs []domain.Document, batchSize int, sum *Summary) (err error) {
	if im.DB == nil {
		return errors.New("load: no database handle")
	}
	tx, err := im.DB.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("load: begin: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			log.Printf("⚠️  rollback after %v failed: %v", err, rbErr)
		}
		sum.Inserted = 0
	}()

	sum.Inserted, sum.Batches, err = storage.LoadDocuments(ctx, tx, im.Table, docs, storage.Options{
		BatchSize: batchSize,
		Job:       im.Job,
	})
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("load: commit: %w", err)
	}
	return nil
}

func rawLine(rec csvutil.FlatRecord) string {
	vals := make([]string, 0, rec.Len())
	for _, k := range rec.Keys() {
		v, _ := rec.Get(k)
		vals = append(vals, v)
	}
	return strings.Join(vals, ",")
}
