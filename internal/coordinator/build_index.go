// Phase 6, BUILD_INDEX: for every column flagged Indexed, build a
// key/value posting-list index (internal/cidx) over its final,
// remapped column file. See spec.md §4.6.
package coordinator

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/csvbulk/csvbulk/internal/cidx"
	"github.com/csvbulk/csvbulk/internal/importjob"
	"github.com/csvbulk/csvbulk/internal/workerpool"
)

// buildIndexes runs phase 6 for every (partition, indexed column) pair.
func buildIndexes(ctx context.Context, job *importjob.Job, pool *workerpool.Pool, shadowRoot string, states map[importjob.PartitionKey]*partitionState) error {
	indexedCols := job.IndexedColumns()
	if len(indexedCols) == 0 {
		return nil
	}

	br := newBreaker(ctx)
	var tasks []func() error
	for key, st := range states {
		key, st := key, st
		if st.Table == nil || st.RowsImported == 0 {
			continue
		}
		for _, col := range indexedCols {
			col := col
			column := job.Schema[col]
			tasks = append(tasks, func() error {
				if br.cancelled() {
					return nil
				}
				if err := buildColumnIndex(shadowRoot, key, col, column.IndexValueBlockCapacity, st.RowsImported); err != nil {
					br.record(err)
					return err
				}
				return nil
			})
		}
	}
	if err := pool.Batch(tasks); err != nil {
		return errors.Wrap(err, "coordinator: build index")
	}
	return nil
}

// buildColumnIndex reads one partition's already-remapped fixed column
// file plus its NULL bitmap and emits a .k/.v posting-list pair, skipping
// NULL rows entirely: a NULL value has no key to index under.
func buildColumnIndex(shadowRoot string, key importjob.PartitionKey, col int, capacity int, rows int64) error {
	dir := filepath.Join(shadowRoot, string(key))
	datPath := filepath.Join(dir, fmt.Sprintf("col_%d.dat", col))
	nullPath := filepath.Join(dir, fmt.Sprintf("col_%d.null", col))

	data, err := os.ReadFile(datPath)
	if err != nil {
		return errors.Wrapf(err, "coordinator: read column file %s", datPath)
	}
	nullBits, err := os.ReadFile(nullPath)
	if err != nil {
		return errors.Wrapf(err, "coordinator: read null bitmap %s", nullPath)
	}

	builder := cidx.NewBuilder(capacity)
	for row := int64(0); row < rows; row++ {
		byteIdx := int(row / 8)
		if byteIdx < len(nullBits) && nullBits[byteIdx]&(1<<uint(row%8)) != 0 {
			continue
		}
		off := row * 8
		if off+8 > int64(len(data)) {
			return errors.Errorf("coordinator: column file %s too short for row %d", datPath, row)
		}
		value := int64(binary.BigEndian.Uint64(data[off : off+8]))
		builder.Add(value, row)
	}

	keyPath := filepath.Join(dir, fmt.Sprintf("col_%d.k", col))
	valuePath := filepath.Join(dir, fmt.Sprintf("col_%d.v", col))
	return builder.Write(keyPath, valuePath)
}
