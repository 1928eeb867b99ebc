// Phase 1, BOUNDARY_CHECK: plan tentative byte chunks across the source
// file, scan each chunk's quote parity in parallel, then stitch the
// censuses into safe line-start boundaries. See spec.md §4.1.
package coordinator

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/csvbulk/csvbulk/internal/boundary"
	"github.com/csvbulk/csvbulk/internal/importjob"
	"github.com/csvbulk/csvbulk/internal/workerpool"
)

// runBoundaryCheck implements phase 1 end to end, returning one Resolved
// range per chunk in chunk-index order.
func runBoundaryCheck(ctx context.Context, job *importjob.Job, pool *workerpool.Pool) ([]boundary.Resolved, error) {
	stat, err := os.Stat(job.SourcePath)
	if err != nil {
		return nil, errors.Wrapf(err, "coordinator: stat %s", job.SourcePath)
	}
	fileSize := stat.Size()

	chunks := boundary.Plan(fileSize, job.WorkerCount)
	if len(chunks) == 0 {
		return nil, nil
	}

	censuses := make([]boundary.Census, len(chunks))
	br := newBreaker(ctx)
	tasks := make([]func() error, len(chunks))
	for i, c := range chunks {
		i, c := i, c
		tasks[i] = func() error {
			if br.cancelled() {
				return nil
			}
			census, err := boundary.Scan(job.SourcePath, c, job.ReadBufferSize)
			if err != nil {
				br.record(err)
				return err
			}
			censuses[i] = census
			return nil
		}
	}
	if err := pool.Batch(tasks); err != nil {
		return nil, errors.Wrap(err, "coordinator: boundary check")
	}

	resolved, err := boundary.Stitch(chunks, censuses, fileSize)
	if err != nil {
		return nil, errors.Wrap(err, "coordinator: stitch boundaries")
	}
	return resolved, nil
}
