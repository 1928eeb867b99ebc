// Package shadow implements phase 3's per-worker "shadow table": one
// columnar file per destination column plus a NULL bitmap, written while
// a worker replays a partition's sorted index entries against the source
// CSV (spec.md §4.3, "PARTITION_IMPORT").
//
// Grounded on entreya-csvquery/go/internal/writer/writer.go's lock-then-
// validate-then-append discipline (lockFile/unlockFile, now
// internal/mmapfile's unix.Flock wrapper), generalized from "append CSV
// rows to one file" to "append typed column values to one file per
// column," and on spec §4.3's TypeAdapter.Write(sink, col, raw, scratch)
// dispatch contract.
package shadow

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/csvbulk/csvbulk/internal/dictionary"
	"github.com/csvbulk/csvbulk/internal/importjob"
	"github.com/csvbulk/csvbulk/internal/mmapfile"
)

// fixedWidth is the on-disk record size for every non-string column:
// numeric and boolean values are stored widened to int64/float64 (8
// bytes), symbol columns store a local uint32 key padded to 8 bytes so
// every fixed column file can be indexed the same way.
const fixedWidth = 8

// Table is one worker's columnar shadow table for one partition. Column i
// corresponds to job.Schema[i].
//
// Field writes are staged into a one-row pending buffer and only applied
// to the column files by EndRow: spec §4.3's SKIP_ROW contract requires
// that a cancelled row leave no partial trace, which is only possible if
// nothing has reached disk yet when the row is cancelled.
type Table struct {
	job  *importjob.Job
	dir  string
	cols []columnWriter
	dict map[int]*dictionary.Local // symbol column index -> local dictionary

	nullBits [][]byte // per-column NULL bitmap, one bit per row
	row      int64

	pendingSet    []bool
	pendingNull   []bool
	pendingFixed  []uint64
	pendingString []string
}

// columnWriter buffers and flushes one column's values.
type columnWriter struct {
	kind       importjob.ColumnType
	fixedFile  *os.File
	fixedW     *bufio.Writer
	stringFile *os.File
	stringW    *bufio.Writer
	offsets    []int64 // string columns: start offset of each row's bytes
	total      int64   // string columns: cumulative bytes written so far
}

// Open creates (or reopens for append) the column files for one
// partition's shadow table under dir. dir is created if missing.
func Open(job *importjob.Job, dir string) (*Table, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "shadow: create dir %s", dir)
	}

	t := &Table{
		job:           job,
		dir:           dir,
		cols:          make([]columnWriter, len(job.Schema)),
		dict:          map[int]*dictionary.Local{},
		nullBits:      make([][]byte, len(job.Schema)),
		pendingSet:    make([]bool, len(job.Schema)),
		pendingNull:   make([]bool, len(job.Schema)),
		pendingFixed:  make([]uint64, len(job.Schema)),
		pendingString: make([]string, len(job.Schema)),
	}

	for i, col := range job.Schema {
		cw := columnWriter{kind: col.Type}
		path := filepath.Join(dir, fmt.Sprintf("col_%d.dat", i))

		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
		if err != nil {
			return nil, errors.Wrapf(err, "shadow: open column file %s", path)
		}
		if err := mmapfile.Lock(f); err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "shadow: lock column file %s", path)
		}

		if col.Type == importjob.ColString {
			cw.stringFile = f
			cw.stringW = bufio.NewWriterSize(f, 64*1024)
		} else {
			cw.fixedFile = f
			cw.fixedW = bufio.NewWriterSize(f, 64*1024)
		}
		t.cols[i] = cw

		if col.IsSymbol() {
			t.dict[i] = dictionary.NewLocal(1024)
		}
	}

	return t, nil
}

// BeginRow must be called before writing a new row's fields. It clears
// the pending one-row buffer left by any previous EndRow/CancelRow.
func (t *Table) BeginRow() {
	for i := range t.pendingSet {
		t.pendingSet[i] = false
		t.pendingNull[i] = false
	}
}

// CancelRow discards everything staged for the current row without
// writing anything to a column file, implementing spec §4.3's SKIP_ROW
// contract ("the offending row is cancelled; no partial row persists").
func (t *Table) CancelRow() {
	for i := range t.pendingSet {
		t.pendingSet[i] = false
		t.pendingNull[i] = false
	}
}

// EndRow commits the pending row: any column not explicitly set (via
// SetNull or one of the Set* methods) is recorded NULL, matching spec
// §4.3's "an unset field at end-of-row is an implicit NULL." Only here do
// values actually reach the column files.
func (t *Table) EndRow() error {
	for col := range t.cols {
		isNull := t.pendingNull[col] || !t.pendingSet[col]
		if err := t.flushColumn(col, isNull); err != nil {
			return err
		}
	}
	t.row++
	return nil
}

func (t *Table) markBit(col int, isNull bool) {
	byteIdx := int(t.row) / 8
	for len(t.nullBits[col]) <= byteIdx {
		t.nullBits[col] = append(t.nullBits[col], 0)
	}
	if isNull {
		t.nullBits[col][byteIdx] |= 1 << uint(t.row%8)
	}
}

func (t *Table) flushColumn(col int, isNull bool) error {
	t.markBit(col, isNull)
	cw := &t.cols[col]
	if cw.stringW != nil {
		cw.offsets = append(cw.offsets, cw.total)
		if isNull {
			return nil
		}
		n, err := cw.stringW.WriteString(t.pendingString[col])
		cw.total += int64(n)
		return err
	}
	if isNull {
		return writeFixed(cw.fixedW, 0)
	}
	return writeFixed(cw.fixedW, t.pendingFixed[col])
}

// SetNull implements importjob.RowSink.
func (t *Table) SetNull(col int) {
	t.pendingSet[col] = true
	t.pendingNull[col] = true
}

// SetInt64 implements importjob.RowSink.
func (t *Table) SetInt64(col int, v int64) {
	t.pendingSet[col] = true
	t.pendingFixed[col] = uint64(v)
}

// SetFloat64 implements importjob.RowSink.
func (t *Table) SetFloat64(col int, v float64) {
	t.pendingSet[col] = true
	t.pendingFixed[col] = math.Float64bits(v)
}

// SetBool implements importjob.RowSink.
func (t *Table) SetBool(col int, v bool) {
	t.pendingSet[col] = true
	var b uint64
	if v {
		b = 1
	}
	t.pendingFixed[col] = b
}

// SetString implements importjob.RowSink.
func (t *Table) SetString(col int, v string) {
	t.pendingSet[col] = true
	t.pendingString[col] = v
}

// SetSymbol implements importjob.RowSink: interns v into this column's
// local dictionary and stores the resulting local key.
func (t *Table) SetSymbol(col int, v string) {
	t.pendingSet[col] = true
	t.pendingFixed[col] = uint64(t.dict[col].Put(v))
}

// Dictionary returns the local symbol dictionary for a symbol column, or
// nil if col is not a symbol column.
func (t *Table) Dictionary(col int) *dictionary.Local { return t.dict[col] }

// RowCount returns the number of rows committed so far.
func (t *Table) RowCount() int64 { return t.row }

// Commit flushes every column's buffered writer, writes the NULL bitmaps,
// and releases the file locks taken by Open. Matches spec §4.3's "sync
// commit at task end."
func (t *Table) Commit() error {
	for i, cw := range t.cols {
		var w *bufio.Writer
		var f *os.File
		if cw.stringW != nil {
			w, f = cw.stringW, cw.stringFile
			if err := t.writeOffsets(i); err != nil {
				return err
			}
		} else {
			w, f = cw.fixedW, cw.fixedFile
		}
		if err := w.Flush(); err != nil {
			return errors.Wrapf(err, "shadow: flush column %d", i)
		}
		if err := f.Sync(); err != nil {
			return errors.Wrapf(err, "shadow: sync column %d", i)
		}
		if err := t.writeNullBitmap(i); err != nil {
			return err
		}
		if err := mmapfile.Unlock(f); err != nil {
			return errors.Wrapf(err, "shadow: unlock column %d", i)
		}
		if err := f.Close(); err != nil {
			return errors.Wrapf(err, "shadow: close column %d", i)
		}
	}
	return nil
}

// Rollback discards a failed task's partial output: unlocks and removes
// the whole shadow directory rather than leaving a half-written table
// behind (spec §4.3, "on task failure, discard the shadow table").
func (t *Table) Rollback() error {
	for _, cw := range t.cols {
		if cw.fixedFile != nil {
			mmapfile.Unlock(cw.fixedFile)
			cw.fixedFile.Close()
		}
		if cw.stringFile != nil {
			mmapfile.Unlock(cw.stringFile)
			cw.stringFile.Close()
		}
	}
	return os.RemoveAll(t.dir)
}

func (t *Table) writeOffsets(col int) error {
	path := filepath.Join(t.dir, fmt.Sprintf("col_%d.off", col))
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "shadow: create offsets file %s", path)
	}
	defer f.Close()
	w := bufio.NewWriterSize(f, 64*1024)
	var buf [8]byte
	for _, off := range t.cols[col].offsets {
		binary.BigEndian.PutUint64(buf[:], uint64(off))
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return w.Flush()
}

func (t *Table) writeNullBitmap(col int) error {
	path := filepath.Join(t.dir, fmt.Sprintf("col_%d.null", col))
	return os.WriteFile(path, t.nullBits[col], 0o644)
}

func writeFixed(w *bufio.Writer, v uint64) error {
	var buf [fixedWidth]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}
