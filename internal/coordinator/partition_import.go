// Partition import: phase 3, PARTITION_IMPORT. Merges a partition's
// per-chunk index files into timestamp order (internal/extsort), then
// replays each row from the source file into a per-worker shadow table
// (internal/shadow), dispatching fields through the job's TypeAdapters
// per spec.md §4.3.
package coordinator

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/csvbulk/csvbulk/internal/extsort"
	"github.com/csvbulk/csvbulk/internal/importjob"
	"github.com/csvbulk/csvbulk/internal/indexing"
	"github.com/csvbulk/csvbulk/internal/lexer"
	"github.com/csvbulk/csvbulk/internal/shadow"
	"github.com/csvbulk/csvbulk/internal/workerpool"
)

// PartitionImportResult is one worker's outcome for one partition,
// consumed by phase 4 (the worker's local symbol dictionaries live on the
// returned *shadow.Table until the caller extracts them).
type PartitionImportResult struct {
	Partition    importjob.PartitionKey
	WorkerIndex  int
	RowsImported int64
	RowsSkipped  int64
	Table        *shadow.Table
}

// ImportPartition implements spec §4.3 end to end for one partition: it
// discovers that partition's per-chunk index files, merges them via
// internal/extsort, and replays each row into a fresh shadow table under
// shadowRoot.
func ImportPartition(job *importjob.Job, importRoot, shadowRoot string, key importjob.PartitionKey, workerIndex, rowBufSize int) (PartitionImportResult, error) {
	res := PartitionImportResult{Partition: key, WorkerIndex: workerIndex}

	chunkPaths, err := listChunkFiles(indexing.PartitionDir(importRoot, key))
	if err != nil {
		return res, err
	}
	if len(chunkPaths) == 0 {
		return res, nil
	}

	table, err := shadow.Open(job, filepath.Join(shadowRoot, string(key)))
	if err != nil {
		return res, err
	}
	res.Table = table

	tmpDir := filepath.Join(importRoot, ".sort", string(key))
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		table.Rollback()
		return res, errors.Wrapf(err, "coordinator: create sort tmp dir for partition %s", key)
	}
	defer os.RemoveAll(tmpDir)

	srcF, err := os.Open(job.SourcePath)
	if err != nil {
		table.Rollback()
		return res, errors.Wrapf(err, "coordinator: open source %s", job.SourcePath)
	}
	defer srcF.Close()

	if rowBufSize < 4096 {
		rowBufSize = 4096
	}
	rowBuf := make([]byte, rowBufSize)
	var utf8Sink []byte

	mergeErr := extsort.MergePartition(chunkPaths, tmpDir, 1<<18, func(e extsort.Entry) error {
		ok, err := importRow(job, srcF, e.Offset, e.Timestamp, &rowBuf, &utf8Sink, table)
		if err != nil {
			return err
		}
		if ok {
			res.RowsImported++
		} else {
			res.RowsSkipped++
		}
		return nil
	})
	if mergeErr != nil {
		table.Rollback()
		return res, errors.Wrapf(mergeErr, "coordinator: merge partition %s", key)
	}

	if err := table.Commit(); err != nil {
		table.Rollback()
		return res, errors.Wrapf(err, "coordinator: commit shadow table for partition %s", key)
	}
	return res, nil
}

// runPartitionImport fans phase 3 out across every partition phase 2
// touched, one task per partition, returning one partitionState per key
// keyed by its PartitionKey. Worker indices are assigned in the order
// partitions are handed out, matching spec §4.3's "one worker, one
// partition, one shadow table" shape.
func runPartitionImport(ctx context.Context, job *importjob.Job, pool *workerpool.Pool, importRoot, shadowRoot string, partitions []importjob.PartitionKey, rowBufSize int) (map[importjob.PartitionKey]*partitionState, error) {
	results := make([]PartitionImportResult, len(partitions))

	br := newBreaker(ctx)
	tasks := make([]func() error, len(partitions))
	for i, key := range partitions {
		i, key := i, key
		tasks[i] = func() error {
			if br.cancelled() {
				return nil
			}
			res, err := ImportPartition(job, importRoot, shadowRoot, key, i, rowBufSize)
			if err != nil {
				br.record(err)
				return err
			}
			results[i] = res
			return nil
		}
	}
	if err := pool.Batch(tasks); err != nil {
		return nil, errors.Wrap(err, "coordinator: partition import")
	}

	states := make(map[importjob.PartitionKey]*partitionState, len(partitions))
	for i, res := range results {
		states[partitions[i]] = &partitionState{
			Key:          res.Partition,
			Table:        res.Table,
			RowsImported: res.RowsImported,
			RowsSkipped:  res.RowsSkipped,
		}
	}
	return states, nil
}

func listChunkFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "coordinator: list chunk files in %s", dir)
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	// Files are named by decimal chunk index; order them numerically
	// ("2" before "10"), the order extsort.MergePartition expects.
	sort.Slice(paths, func(i, j int) bool {
		a, b := filepath.Base(paths[i]), filepath.Base(paths[j])
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})
	return paths, nil
}

// importRow reads one row's bytes from src at offset, splits it, and
// dispatches every field into table, returning false if the row was
// cancelled under SKIP_ROW. ts is the timestamp already parsed by phase 2
// and carried in the index entry; it is not re-parsed from the field.
func importRow(job *importjob.Job, src *os.File, offset int64, ts int64, rowBuf *[]byte, utf8Sink *[]byte, table *shadow.Table) (bool, error) {
	line, err := readLogicalRecord(src, offset, rowBuf)
	if err != nil {
		return false, errors.Wrapf(err, "coordinator: read row at offset %d", offset)
	}

	fields, err := lexer.SplitRecord(line, job.Delimiter)
	if err != nil {
		if job.Atomicity == importjob.SkipAll {
			return false, errors.Wrapf(err, "coordinator: split row at offset %d", offset)
		}
		return false, nil
	}

	table.BeginRow()
	for col, column := range job.Schema {
		if col == job.TimestampIndex {
			continue
		}
		if col >= len(fields) {
			table.SetNull(col)
			continue
		}
		raw := fields[col]
		if len(raw) == 0 {
			table.SetNull(col)
			continue
		}

		adapter := importjob.AdapterFor(column.Type)
		if err := adapter.Write(table, col, raw, utf8Sink); err != nil {
			switch job.Atomicity {
			case importjob.SkipAll:
				return false, errors.Wrapf(err, "coordinator: field %d at offset %d", col, offset)
			case importjob.SkipRow:
				table.CancelRow()
				return false, nil
			default: // SkipColumn
				table.SetNull(col)
			}
		}
	}
	// The timestamp column is consumed from the index entry, not
	// re-parsed, but it still occupies a column slot in the shadow table.
	table.SetInt64(job.TimestampIndex, ts)
	if err := table.EndRow(); err != nil {
		return false, err
	}
	return true, nil
}

// readLogicalRecord reads one row from src at offset into a buffer sized
// per spec §4.3 ("max(2·maxLineLength, configuredBufferLen)"), growing
// *buf if the row doesn't fit, and returns exactly the row's bytes.
//
// A full buffer with no unquoted newline in it is ambiguous on its own:
// it's either a genuinely unterminated quote, or an ordinary long row that
// simply didn't fit. Both must grow and retry rather than return a
// silently truncated row — the only case that's safe to return as-is is
// one where the source is actually exhausted (err == io.EOF), since
// growing the buffer and rereading from the same offset cannot produce
// more bytes than the source has.
func readLogicalRecord(src *os.File, offset int64, buf *[]byte) ([]byte, error) {
	for {
		n, err := src.ReadAt(*buf, offset)
		if err != nil && err != io.EOF {
			return nil, err
		}
		if n == 0 && err != nil {
			return nil, err
		}
		data := (*buf)[:n]
		end, unterminated := lexer.FindRecordEnd(data)
		bufferExhausted := end == len(data) && n == len(*buf)
		if err == nil && (unterminated || bufferExhausted) {
			// Row didn't fit in the buffer; grow and retry.
			*buf = make([]byte, len(*buf)*2)
			continue
		}
		return data[:end], nil
	}
}
