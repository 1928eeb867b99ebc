// Phase 2, INDEXING: scan every resolved chunk from phase 1 in parallel,
// producing one per-chunk-per-partition index file each (internal/
// indexing), and fold the per-chunk results into the set of partitions
// phase 3 needs to import. See spec.md §4.2.
package coordinator

import (
	"context"

	"github.com/pkg/errors"

	"github.com/csvbulk/csvbulk/internal/boundary"
	"github.com/csvbulk/csvbulk/internal/importjob"
	"github.com/csvbulk/csvbulk/internal/indexing"
	"github.com/csvbulk/csvbulk/internal/workerpool"
)

// indexingSummary aggregates phase 2's per-chunk results across the whole
// source file.
type indexingSummary struct {
	Partitions    map[importjob.PartitionKey]bool
	RowsIndexed   int64
	RowsSkipped   int64
	MaxLineLength int
}

func runIndexing(ctx context.Context, job *importjob.Job, pool *workerpool.Pool, importRoot string, resolved []boundary.Resolved) (indexingSummary, error) {
	summary := indexingSummary{Partitions: map[importjob.PartitionKey]bool{}}
	if len(resolved) == 0 {
		return summary, nil
	}

	results := make([]indexing.Result, len(resolved))
	br := newBreaker(ctx)
	var tasks []func() error
	for i, r := range resolved {
		if r.Empty {
			continue
		}
		i, r := i, r
		tasks = append(tasks, func() error {
			if br.cancelled() {
				return nil
			}
			res, err := indexing.IndexChunk(job, importRoot, r.Index, r.Start, r.End, r.Index == 0)
			if err != nil {
				br.record(err)
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := pool.Batch(tasks); err != nil {
		return summary, errors.Wrap(err, "coordinator: indexing")
	}

	for _, res := range results {
		summary.RowsIndexed += res.RowsIndexed
		summary.RowsSkipped += res.RowsSkipped
		if res.MaxLineLength > summary.MaxLineLength {
			summary.MaxLineLength = res.MaxLineLength
		}
		for key := range res.TouchedPartitions {
			summary.Partitions[key] = true
		}
	}
	return summary, nil
}
