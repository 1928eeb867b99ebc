package shadow

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/csvbulk/csvbulk/internal/importjob"
)

func testSchema() []importjob.Column {
	return []importjob.Column{
		{Name: "a", Type: importjob.ColLong},
		{Name: "b", Type: importjob.ColString},
	}
}

// TestCancelRowLeavesNoPartialRow exercises spec §4.3's SKIP_ROW contract
// directly against the shadow table: a row cancelled partway through
// field dispatch must not shift every later row's position in any
// column, even though one column (a) was already set before the row was
// cancelled.
func TestCancelRowLeavesNoPartialRow(t *testing.T) {
	job := &importjob.Job{Schema: testSchema()}
	table, err := Open(job, t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Row 0: fully written.
	table.BeginRow()
	table.SetInt64(0, 100)
	table.SetString(1, "first")
	if err := table.EndRow(); err != nil {
		t.Fatalf("EndRow row 0: %v", err)
	}

	// Row 1: column a is set, then the row is cancelled before column b
	// is ever touched — simulating a SKIP_ROW field error midway through
	// dispatch.
	table.BeginRow()
	table.SetInt64(0, 999)
	table.CancelRow()

	// Row 2 (the surviving second row): fully written.
	table.BeginRow()
	table.SetInt64(0, 200)
	table.SetString(1, "second")
	if err := table.EndRow(); err != nil {
		t.Fatalf("EndRow row 2: %v", err)
	}

	if table.RowCount() != 2 {
		t.Fatalf("expected 2 committed rows, got %d", table.RowCount())
	}

	if err := table.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	dir := table.dir
	aData, err := os.ReadFile(filepath.Join(dir, "col_0.dat"))
	if err != nil {
		t.Fatalf("read col_0.dat: %v", err)
	}
	if len(aData) != 2*fixedWidth {
		t.Fatalf("expected %d bytes in col_0.dat, got %d", 2*fixedWidth, len(aData))
	}
	got0 := int64(binary.BigEndian.Uint64(aData[0:8]))
	got1 := int64(binary.BigEndian.Uint64(aData[8:16]))
	if got0 != 100 || got1 != 200 {
		t.Errorf("expected column a = [100, 200], got [%d, %d] — the cancelled row's 999 must not appear", got0, got1)
	}

	offData, err := os.ReadFile(filepath.Join(dir, "col_1.off"))
	if err != nil {
		t.Fatalf("read col_1.off: %v", err)
	}
	if len(offData) != 2*8 {
		t.Fatalf("expected 2 offsets for column b, got %d bytes", len(offData))
	}

	bData, err := os.ReadFile(filepath.Join(dir, "col_1.dat"))
	if err != nil {
		t.Fatalf("read col_1.dat: %v", err)
	}
	if string(bData) != "firstsecond" {
		t.Errorf("expected column b bytes %q, got %q — a cancelled row must not have appended any string bytes", "firstsecond", string(bData))
	}
}

// TestRollbackRemovesDir ensures a failed task's shadow directory doesn't
// linger for the next job to trip over.
func TestRollbackRemovesDir(t *testing.T) {
	job := &importjob.Job{Schema: testSchema()}
	dir := filepath.Join(t.TempDir(), "partition")
	table, err := Open(job, dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := table.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("expected shadow dir to be removed, stat err=%v", err)
	}
}
