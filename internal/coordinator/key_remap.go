// Phase 5, UPDATE_SYMBOL_KEYS: rewrite every partition's symbol-key
// column files in place using the KeyRemap phase 4 wrote for it. See
// spec.md §4.4 and SPEC_FULL.md §12.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/csvbulk/csvbulk/internal/dictionary"
	"github.com/csvbulk/csvbulk/internal/importjob"
	"github.com/csvbulk/csvbulk/internal/remap"
	"github.com/csvbulk/csvbulk/internal/workerpool"
)

func shadowColumnFile(shadowRoot string, key importjob.PartitionKey, col int) string {
	return filepath.Join(shadowRoot, string(key), fmt.Sprintf("col_%d.dat", col))
}

// applyKeyRemaps runs phase 5 for every (partition, symbol column) pair
// that phase 4 produced a remap file for. A partition whose local
// dictionary for a column was empty has no remap file and is skipped:
// every value in that column is NULL, so there is nothing to rewrite.
func applyKeyRemaps(ctx context.Context, job *importjob.Job, pool *workerpool.Pool, workRoot, shadowRoot string, states map[importjob.PartitionKey]*partitionState) error {
	symbolCols := job.SymbolColumns()
	if len(symbolCols) == 0 {
		return nil
	}

	br := newBreaker(ctx)
	var tasks []func() error
	for key := range states {
		for _, col := range symbolCols {
			key, col := key, col
			path := remapFile(workRoot, key, col)
			if _, err := os.Stat(path); err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return errors.Wrapf(err, "coordinator: stat remap file %s", path)
			}
			tasks = append(tasks, func() error {
				if br.cancelled() {
					return nil
				}
				km, err := dictionary.ReadKeyRemap(path)
				if err != nil {
					br.record(err)
					return err
				}
				if err := remap.ApplyColumn(shadowColumnFile(shadowRoot, key, col), km); err != nil {
					br.record(err)
					return errors.Wrapf(err, "coordinator: apply remap partition %s col %d", key, col)
				}
				return nil
			})
		}
	}
	if err := pool.Batch(tasks); err != nil {
		return errors.Wrap(err, "coordinator: update symbol keys")
	}
	return nil
}
