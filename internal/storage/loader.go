// Package storage persists mapped documents in fixed-size batches inside one
// caller-owned transaction.
//
// Logging: after every batch a progress line is emitted with the running
// total and the rows/sec since the previous batch.
package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"userimport/internal/db"
	"userimport/internal/domain"
	"userimport/internal/metrics"
)

// DefaultBatchSize is used when the configuration does not override it.
const DefaultBatchSize = 1000

// Columns are the persisted columns, in domain.Document.Row order.
var Columns = domain.Columns

// PersistenceError reports a batch the store refused. The transaction that
// carried it must be rolled back.
type PersistenceError struct {
	Batch int // 1-based batch number
	Rows  int // rows in the failing batch
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist batch #%d (%d rows): %v", e.Batch, e.Rows, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Options tunes LoadDocuments. Job labels metrics.
type Options struct {
	BatchSize int
	Job       string
}

// LoadDocuments writes docs to table through tx, one InsertRows call per
// batch: ceil(len(docs)/BatchSize) calls in total. ctx is checked before each
// batch, so cancellation stops the load before the next batch is sent. On any
// error the caller owns rolling tx back; LoadDocuments never commits.
//
// It returns the number of rows the store reported as inserted and the number
// of batches sent.
func LoadDocuments(ctx context.Context, tx db.Tx, table string, docs []domain.Document, opts Options) (inserted int64, batches int, err error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		return 0, 0, fmt.Errorf("batch size must be > 0, got %d", batchSize)
	}
	if tx == nil {
		return 0, 0, fmt.Errorf("tx must not be nil")
	}

	var (
		start     = time.Now()
		lastFlush = start
		rows      = make([][]any, 0, min(batchSize, len(docs)))
	)

	for lo := 0; lo < len(docs); lo += batchSize {
		if err := ctx.Err(); err != nil {
			log.Printf("loader: canceled before batch #%d total_inserted=%d", batches+1, inserted)
			return inserted, batches, err
		}

		hi := min(lo+batchSize, len(docs))
		rows = rows[:0]
		for i := lo; i < hi; i++ {
			row, err := docs[i].Row()
			if err != nil {
				return inserted, batches, &PersistenceError{Batch: batches + 1, Rows: hi - lo, Err: err}
			}
			rows = append(rows, row)
		}

		n, err := tx.InsertRows(ctx, table, Columns, rows)
		if err != nil {
			log.Printf("loader: batch #%d failed rows=%d total_inserted=%d err=%v", batches+1, hi-lo, inserted, err)
			return inserted, batches, &PersistenceError{Batch: batches + 1, Rows: hi - lo, Err: err}
		}
		inserted += n
		batches++
		metrics.RecordBatches(opts.Job, 1)

		now := time.Now()
		sinceLast := now.Sub(lastFlush)
		rps := float64(0)
		if sinceLast > 0 {
			rps = float64(n) / sinceLast.Seconds()
		}
		log.Printf(
			"batch #%d: rps=%.0f inserted=%d total_inserted=%d elapsed=%s since_last=%s",
			batches, rps, n, inserted,
			now.Sub(start).Truncate(time.Millisecond),
			sinceLast.Truncate(time.Millisecond),
		)
		lastFlush = now
	}
	return inserted, batches, nil
}
