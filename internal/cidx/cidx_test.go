package cidx

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuilderWriteOpenReaderRoundTrip(t *testing.T) {
	b := NewBuilder(1024)
	b.Add(100, 0)
	b.Add(200, 1)
	b.Add(100, 2)
	b.Add(100, 3)

	dir := t.TempDir()
	keyPath := filepath.Join(dir, "col.k")
	valuePath := filepath.Join(dir, "col.v")
	if err := b.Write(keyPath, valuePath); err != nil {
		t.Fatalf("Write: %v", err)
	}

	r, err := OpenReader(valuePath)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	if len(r.Footer.Blocks) != 2 {
		t.Fatalf("expected 2 blocks (one per distinct key), got %d", len(r.Footer.Blocks))
	}

	byKey := map[int64]BlockMeta{}
	for _, m := range r.Footer.Blocks {
		byKey[m.Key] = m
	}

	rows100, err := r.ReadBlock(byKey[100])
	if err != nil {
		t.Fatalf("ReadBlock(100): %v", err)
	}
	if got := rows100; len(got) != 3 || got[0] != 0 || got[1] != 2 || got[2] != 3 {
		t.Errorf("expected key 100's postings = [0,2,3], got %v", got)
	}

	rows200, err := r.ReadBlock(byKey[200])
	if err != nil {
		t.Fatalf("ReadBlock(200): %v", err)
	}
	if len(rows200) != 1 || rows200[0] != 1 {
		t.Errorf("expected key 200's postings = [1], got %v", rows200)
	}
}

// TestBuilderSplitsPostingsAcrossCapacityBoundedBlocks confirms a single
// key's posting list larger than capacity is split into multiple blocks
// rather than one unbounded block.
func TestBuilderSplitsPostingsAcrossCapacityBoundedBlocks(t *testing.T) {
	b := NewBuilder(2)
	for row := int64(0); row < 5; row++ {
		b.Add(42, row)
	}

	dir := t.TempDir()
	keyPath := filepath.Join(dir, "col.k")
	valuePath := filepath.Join(dir, "col.v")
	if err := b.Write(keyPath, valuePath); err != nil {
		t.Fatalf("Write: %v", err)
	}

	r, err := OpenReader(valuePath)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	if len(r.Footer.Blocks) != 3 {
		t.Fatalf("expected 5 rows split into ceil(5/2)=3 blocks, got %d", len(r.Footer.Blocks))
	}

	var allRows []int64
	for _, m := range r.Footer.Blocks {
		if m.Key != 42 {
			t.Errorf("expected every block to belong to key 42, got %d", m.Key)
		}
		rows, err := r.ReadBlock(m)
		if err != nil {
			t.Fatalf("ReadBlock: %v", err)
		}
		if int64(len(rows)) != m.RecordCount {
			t.Errorf("block RecordCount=%d but decoded %d rows", m.RecordCount, len(rows))
		}
		allRows = append(allRows, rows...)
	}
	if len(allRows) != 5 {
		t.Fatalf("expected 5 total postings across blocks, got %d", len(allRows))
	}
	for i, row := range allRows {
		if row != int64(i) {
			t.Errorf("expected postings in insertion order, index %d = %d, want %d", i, row, i)
		}
	}
}

func TestOpenReaderRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.v")
	if err := os.WriteFile(path, []byte("NOTCIDXdata"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := OpenReader(path); err == nil {
		t.Fatal("expected an error for a value file with a bad magic header")
	}
}
