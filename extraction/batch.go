package extraction

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Result pairs a record with the diagnostics of its row.
type Result struct {
	Row         int
	Record      CaseRecord
	Diagnostics Diagnostics
}

// ProcessRows assembles every row with up to concurrency workers. Results are in input
// order. Only context cancellation fails the batch; bad rows come back as partial records.
func ProcessRows(ctx context.Context, rows []Row, asm *Assembler, concurrency int) ([]Result, error) {
	if ctx == nil {
		return nil, errors.New("ProcessRows: ctx is nil")
	}
	if asm == nil {
		asm = NewAssembler(nil, nil)
	}
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}

	results := make([]Result, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i := range rows {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			row := rows[i]
			id := row.CaseID
			if id == "" {
				id = fmt.Sprintf("row-%d", i+1)
			}
			rec, diag := asm.Assemble(id, row.Content, row.Params)
			results[i] = Result{Row: i, Record: rec, Diagnostics: diag}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ProcessRows: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ProcessRows: %w", err)
	}
	return results, nil
}

// Records extracts the records from results, keeping order.
func Records(results []Result) []CaseRecord {
	out := make([]CaseRecord, 0, len(results))
	for _, r := range results {
		out = append(out, r.Record)
	}
	return out
}
