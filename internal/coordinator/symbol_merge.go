// Phase 4, SYMBOL_TABLE_MERGE: union every partition's per-symbol-column
// local dictionary into one final-table dictionary per column, and
// persist the KeyRemap each partition needs for phase 5. See spec.md
// §4.4.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/csvbulk/csvbulk/internal/dictionary"
	"github.com/csvbulk/csvbulk/internal/importjob"
)

func remapDir(workRoot string) string { return filepath.Join(workRoot, "remap") }

func remapFile(workRoot string, key importjob.PartitionKey, col int) string {
	return filepath.Join(remapDir(workRoot), string(key), fmt.Sprintf("col_%d.remap", col))
}

// mergeSymbols runs phase 4 for every symbol column, one Final dictionary
// per column shared across all partitions. Partitions are visited in
// sorted key order so repeated runs over the same input assign the same
// final keys; the merge itself is sequential; spec §4.4 doesn't call for
// per-column parallelism, and a shared Final dictionary rules it out
// without adding a lock per putSymbol call.
//
// ctx is checked cooperatively once per symbol column, the same
// granularity the breaker-driven phases check at (spec §4.7 "checked at
// the start of run()"), since this phase has no per-task pool.Batch call
// of its own to hook into.
func mergeSymbols(ctx context.Context, job *importjob.Job, workRoot string, states map[importjob.PartitionKey]*partitionState) error {
	symbolCols := job.SymbolColumns()
	if len(symbolCols) == 0 {
		return nil
	}

	keys := make([]importjob.PartitionKey, 0, len(states))
	for k := range states {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, col := range symbolCols {
		if err := ctx.Err(); err != nil {
			return err
		}
		final := dictionary.NewFinal(1024)
		for _, key := range keys {
			st := states[key]
			if st.Table == nil {
				continue
			}
			local := st.Table.Dictionary(col)
			if local == nil || local.Len() == 0 {
				continue
			}
			remap := final.Merge(local)

			dir := filepath.Join(remapDir(workRoot), string(key))
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return errors.Wrapf(err, "coordinator: create remap dir %s", dir)
			}
			if err := remap.WriteFile(remapFile(workRoot, key, col)); err != nil {
				return errors.Wrapf(err, "coordinator: write remap for partition %s col %d", key, col)
			}
		}
	}
	return nil
}
