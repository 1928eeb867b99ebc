package indexing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/csvbulk/csvbulk/internal/extsort"
	"github.com/csvbulk/csvbulk/internal/importjob"
)

func sensorSchema() []importjob.Column {
	return []importjob.Column{
		{Name: "ts", Type: importjob.ColTimestamp},
		{Name: "sensor_id", Type: importjob.ColSymbol, Indexed: true},
		{Name: "temperature", Type: importjob.ColLong},
	}
}

func writeSource(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.csv")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func readChunkFile(t *testing.T, path string) []extsort.Entry {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var out []extsort.Entry
	for off := 0; off+extsort.EntrySize <= len(data); off += extsort.EntrySize {
		out = append(out, extsort.Decode(data[off:off+extsort.EntrySize], 0))
	}
	return out
}

func TestIndexChunkSkipsHeaderOnFirstChunkOnly(t *testing.T) {
	content := "ts,sensor_id,temperature\n" +
		"1970-01-01T00:00:00.000000Z,A,10\n" +
		"1970-01-01T00:00:01.000000Z,B,20\n"
	path := writeSource(t, content)
	job := &importjob.Job{
		SourcePath:      path,
		Schema:          sensorSchema(),
		TimestampIndex:  0,
		Delimiter:       ',',
		IgnoreHeader:    true,
		Atomicity:       importjob.SkipRow,
		TimestampParser: importjob.MicrosISO8601{},
	}
	importRoot := t.TempDir()

	res, err := IndexChunk(job, importRoot, 0, 0, int64(len(content)), true)
	if err != nil {
		t.Fatalf("IndexChunk: %v", err)
	}
	if res.RowsIndexed != 2 {
		t.Errorf("expected 2 rows indexed (header skipped), got %d", res.RowsIndexed)
	}
	if len(res.TouchedPartitions) != 1 {
		t.Errorf("expected 1 touched partition (PartitionNone default), got %d", len(res.TouchedPartitions))
	}

	file := partitionFile(importRoot, 0, importjob.PartitionKey("default"))
	entries := readChunkFile(t, file)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries in chunk file, got %d", len(entries))
	}
	if entries[0].Timestamp != 0 || entries[1].Timestamp != 1_000_000 {
		t.Errorf("unexpected timestamps: %+v", entries)
	}
}

// TestIndexChunkHonorsIgnoreHeaderOnlyOnChunkZero confirms that a later
// chunk's first record is data, not a header, even with IgnoreHeader set.
func TestIndexChunkHonorsIgnoreHeaderOnlyOnChunkZero(t *testing.T) {
	content := "1970-01-01T00:00:02.000000Z,C,30\n"
	path := writeSource(t, content)
	job := &importjob.Job{
		SourcePath:      path,
		Schema:          sensorSchema(),
		TimestampIndex:  0,
		Delimiter:       ',',
		IgnoreHeader:    true,
		Atomicity:       importjob.SkipRow,
		TimestampParser: importjob.MicrosISO8601{},
	}
	importRoot := t.TempDir()

	res, err := IndexChunk(job, importRoot, 1, 0, int64(len(content)), false)
	if err != nil {
		t.Fatalf("IndexChunk: %v", err)
	}
	if res.RowsIndexed != 1 {
		t.Errorf("expected the only row in a non-first chunk to be indexed, not treated as a header, got RowsIndexed=%d", res.RowsIndexed)
	}
}

// TestIndexChunkSkipRowOnBadTimestamp implements spec.md §8 scenario S4 at
// the indexing-phase level: a row with an unparseable timestamp is
// skipped, not fatal, under SkipRow.
func TestIndexChunkSkipRowOnBadTimestamp(t *testing.T) {
	content := "1970-01-01T00:00:00.000000Z,A,10\n" +
		"not-a-timestamp,B,20\n" +
		"1970-01-01T00:00:02.000000Z,C,30\n"
	path := writeSource(t, content)
	job := &importjob.Job{
		SourcePath:      path,
		Schema:          sensorSchema(),
		TimestampIndex:  0,
		Delimiter:       ',',
		IgnoreHeader:    false,
		Atomicity:       importjob.SkipRow,
		TimestampParser: importjob.MicrosISO8601{},
	}
	importRoot := t.TempDir()

	res, err := IndexChunk(job, importRoot, 0, 0, int64(len(content)), false)
	if err != nil {
		t.Fatalf("IndexChunk: %v", err)
	}
	if res.RowsIndexed != 2 {
		t.Errorf("expected 2 rows indexed, got %d", res.RowsIndexed)
	}
	if res.RowsSkipped != 1 {
		t.Errorf("expected 1 row skipped, got %d", res.RowsSkipped)
	}
}

// TestIndexChunkSkipAllAbortsOnBadTimestamp implements spec.md §8 scenario
// S5 at the indexing-phase level: under SkipAll, the same malformed row
// aborts the whole chunk instead of being counted as skipped.
func TestIndexChunkSkipAllAbortsOnBadTimestamp(t *testing.T) {
	content := "1970-01-01T00:00:00.000000Z,A,10\n" +
		"not-a-timestamp,B,20\n"
	path := writeSource(t, content)
	job := &importjob.Job{
		SourcePath:      path,
		Schema:          sensorSchema(),
		TimestampIndex:  0,
		Delimiter:       ',',
		IgnoreHeader:    false,
		Atomicity:       importjob.SkipAll,
		TimestampParser: importjob.MicrosISO8601{},
	}
	importRoot := t.TempDir()

	_, err := IndexChunk(job, importRoot, 0, 0, int64(len(content)), false)
	if err == nil {
		t.Fatal("expected IndexChunk to return an error under SkipAll")
	}
}

// TestIndexChunkSkipColumnDegradesTimestampToSkipRow confirms a bad
// timestamp under SkipColumn still drops the row, since there's no
// column to null in place of the value the partition key depends on.
func TestIndexChunkSkipColumnDegradesTimestampToSkipRow(t *testing.T) {
	content := "not-a-timestamp,B,20\n" +
		"1970-01-01T00:00:02.000000Z,C,30\n"
	path := writeSource(t, content)
	job := &importjob.Job{
		SourcePath:      path,
		Schema:          sensorSchema(),
		TimestampIndex:  0,
		Delimiter:       ',',
		IgnoreHeader:    false,
		Atomicity:       importjob.SkipColumn,
		TimestampParser: importjob.MicrosISO8601{},
	}
	importRoot := t.TempDir()

	res, err := IndexChunk(job, importRoot, 0, 0, int64(len(content)), false)
	if err != nil {
		t.Fatalf("IndexChunk: %v", err)
	}
	if res.RowsIndexed != 1 || res.RowsSkipped != 1 {
		t.Errorf("expected 1 indexed and 1 skipped, got indexed=%d skipped=%d", res.RowsIndexed, res.RowsSkipped)
	}
}

func TestIndexChunkEmptyRangeIsNoop(t *testing.T) {
	path := writeSource(t, "1970-01-01T00:00:00.000000Z,A,10\n")
	job := &importjob.Job{
		SourcePath:      path,
		Schema:          sensorSchema(),
		TimestampIndex:  0,
		Delimiter:       ',',
		TimestampParser: importjob.MicrosISO8601{},
	}
	res, err := IndexChunk(job, t.TempDir(), 0, 5, 5, false)
	if err != nil {
		t.Fatalf("IndexChunk: %v", err)
	}
	if res.RowsIndexed != 0 || res.RowsSkipped != 0 {
		t.Errorf("expected a no-op result for an empty [start,end) range, got %+v", res)
	}
}
