package mapper

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"userimport/internal/csvutil"
	"userimport/internal/domain"
)

// Result is the outcome of mapping one record. Row is the 1-based data row
// (the header is not counted). Exactly one of Document or Err is meaningful.
type Result struct {
	Row      int
	Document domain.Document
	Err      error
}

// MapAll maps recs concurrently. Each worker owns a disjoint slice of the
// output, so results come back in input order without locking. Workers <= 0
// means GOMAXPROCS. The only error returned is ctx's, when it ends first.
func MapAll(ctx context.Context, recs []csvutil.FlatRecord, workers int) ([]Result, error) {
	out := make([]Result, len(recs))
	if len(recs) == 0 {
		return out, nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(recs) {
		workers = len(recs)
	}

	g, ctx := errgroup.WithContext(ctx)
	chunk := (len(recs) + workers - 1) / workers
	for lo := 0; lo < len(recs); lo += chunk {
		lo := lo
		hi := min(lo+chunk, len(recs))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if i%1024 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				doc, err := Map(recs[i])
				out[i] = Result{Row: i + 1, Document: doc, Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
