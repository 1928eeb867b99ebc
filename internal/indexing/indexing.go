// Package indexing implements phase 2, INDEXING: scanning one resolved
// byte chunk (spec.md §4.1's output), splitting it into logical rows with
// internal/lexer, extracting each row's designated timestamp column, and
// appending a 16-byte IndexEntry to the per-chunk-per-partition index file
// for that row's partition (spec.md §4.2).
//
// Grounded on entreya-csvquery/go/internal/indexer/indexer.go#Run's
// scan-callback-to-per-destination-writer fan-out shape, repurposed from
// "route a key to its per-column sorter" to "route a row to its
// per-partition index chunk writer."
package indexing

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/csvbulk/csvbulk/internal/extsort"
	"github.com/csvbulk/csvbulk/internal/importjob"
	"github.com/csvbulk/csvbulk/internal/lexer"
	"github.com/csvbulk/csvbulk/internal/logging"
	"github.com/csvbulk/csvbulk/internal/mmapfile"
)

// Result summarizes one chunk's indexing pass, consumed by the coordinator
// to size phase 3's buffers and report overall stats (spec §3 "ChunkIndexResult").
type Result struct {
	ChunkIndex      int
	RowsIndexed     int64
	RowsSkipped     int64
	MaxLineLength   int
	TouchedPartitions map[importjob.PartitionKey]bool
}

// PartitionDir returns "<importRoot>/<partitionKey>" per spec §4.2's
// on-disk layout for per-chunk index files.
func PartitionDir(importRoot string, key importjob.PartitionKey) string {
	return filepath.Join(importRoot, string(key))
}

// partitionFile returns the path of the per-chunk-per-partition index
// file: "<importRoot>/<partitionKey>/<chunkIndex>".
func partitionFile(importRoot string, chunkIndex int, key importjob.PartitionKey) string {
	return filepath.Join(PartitionDir(importRoot, key), fmt.Sprintf("%d", chunkIndex))
}

// IndexChunk scans one resolved byte range [start, end) of job.SourcePath,
// splitting it into rows and appending one IndexEntry per successfully
// timestamped row to that row's partition's chunk index file.
//
// isFirstChunk controls whether IgnoreHeader discards the chunk's first
// record (spec §4.2: "IgnoreHeader only ever discards chunk 0's first
// record").
func IndexChunk(job *importjob.Job, importRoot string, chunkIndex int, start, end int64, isFirstChunk bool) (Result, error) {
	res := Result{ChunkIndex: chunkIndex, TouchedPartitions: map[importjob.PartitionKey]bool{}}

	if start >= end {
		return res, nil
	}

	f, err := os.Open(job.SourcePath)
	if err != nil {
		return res, errors.Wrapf(err, "indexing: open %s", job.SourcePath)
	}
	defer f.Close()

	m, err := mmapfile.MapReadOnly(f)
	if err != nil {
		return res, errors.Wrapf(err, "indexing: mmap %s", job.SourcePath)
	}
	defer m.Unmap()

	if end > int64(len(m.Data)) {
		end = int64(len(m.Data))
	}
	data := m.Data[start:end]

	writers := map[importjob.PartitionKey]*extsort.ChunkWriter{}
	defer func() {
		for _, w := range writers {
			w.Close()
		}
	}()

	tsAdapter := job.TimestampParser
	skipColumn := job.Atomicity == importjob.SkipColumn

	first := isFirstChunk && job.IgnoreHeader
	var pos int64
	for pos < int64(len(data)) {
		relEnd, unterminated := lexer.FindRecordEnd(data[pos:])
		if unterminated {
			// An open quote that runs to the end of the file falls
			// through to SplitRecord below, which reports it as a row
			// error under the job's atomicity; a mid-file unterminated
			// quote means the boundary stitching
			// upstream failed to find a safe start, which is a bug in
			// phase 1, not a data problem this phase can recover from.
			if end != int64(len(m.Data)) {
				return res, errors.Errorf("indexing: chunk %d has an unterminated quoted field at file offset %d", chunkIndex, start+pos)
			}
		}
		line := data[pos : pos+int64(relEnd)]
		absOffset := start + pos
		advance := int64(relEnd) + 1 // skip the newline itself
		pos += advance

		if len(line) > res.MaxLineLength {
			res.MaxLineLength = len(line)
		}
		if len(line) == 0 {
			continue
		}
		if first {
			first = false
			continue
		}

		fields, ferr := lexer.SplitRecord(line, job.Delimiter)
		if ferr != nil {
			if !handleRowError(job, chunkIndex, absOffset, "row", ferr.Error()) {
				return res, errors.Wrapf(ferr, "indexing: chunk %d offset %d", chunkIndex, absOffset)
			}
			res.RowsSkipped++
			continue
		}
		if job.TimestampIndex >= len(fields) {
			if !handleRowError(job, chunkIndex, absOffset, "timestamp", "missing timestamp column") {
				return res, errors.Errorf("indexing: chunk %d offset %d: missing timestamp column", chunkIndex, absOffset)
			}
			res.RowsSkipped++
			continue
		}

		ts, terr := tsAdapter.Parse(fields[job.TimestampIndex])
		if terr != nil {
			if skipColumn {
				// A bad timestamp has nowhere to fall back to: the
				// partitioning key depends on it. SKIP_COLUMN degrades to
				// SKIP_ROW for this one field.
				logging.ParseError(job.TimestampIndex, absOffset, "TIMESTAMP", string(fields[job.TimestampIndex]))
				res.RowsSkipped++
				continue
			}
			if !handleRowError(job, chunkIndex, absOffset, "timestamp", terr.Error()) {
				return res, errors.Wrapf(terr, "indexing: chunk %d offset %d", chunkIndex, absOffset)
			}
			res.RowsSkipped++
			continue
		}

		key := importjob.DerivePartitionKey(job.Partitioning, ts)
		w, ok := writers[key]
		if !ok {
			if err := os.MkdirAll(PartitionDir(importRoot, key), 0o755); err != nil {
				return res, errors.Wrapf(err, "indexing: create partition dir %s", key)
			}
			w, err = extsort.CreateChunkWriter(partitionFile(importRoot, chunkIndex, key))
			if err != nil {
				return res, err
			}
			writers[key] = w
		}
		if err := w.Write(extsort.Entry{Timestamp: ts, Offset: absOffset}); err != nil {
			return res, errors.Wrapf(err, "indexing: write entry chunk %d partition %s", chunkIndex, key)
		}

		res.TouchedPartitions[key] = true
		res.RowsIndexed++
	}

	return res, nil
}

// handleRowError applies the job's atomicity policy to a row-level parse
// failure, logging via internal/logging and returning false when the
// whole task must abort (SKIP_ALL).
func handleRowError(job *importjob.Job, chunkIndex int, offset int64, field, msg string) bool {
	logging.Log.WithFields(map[string]interface{}{
		"chunk":  chunkIndex,
		"offset": offset,
		"field":  field,
	}).Warn(msg)
	return job.Atomicity != importjob.SkipAll
}
