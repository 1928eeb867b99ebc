package remap

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/csvbulk/csvbulk/internal/dictionary"
)

func writeColumnFile(t *testing.T, localKeys []uint64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "col_0.dat")
	buf := make([]byte, len(localKeys)*keyWidth)
	for i, k := range localKeys {
		binary.BigEndian.PutUint64(buf[i*keyWidth:(i+1)*keyWidth], k)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func readColumnFile(t *testing.T, path string) []uint64 {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	out := make([]uint64, len(data)/keyWidth)
	for i := range out {
		out[i] = binary.BigEndian.Uint64(data[i*keyWidth : (i+1)*keyWidth])
	}
	return out
}

func TestApplyColumnRewritesLocalKeysToFinalKeys(t *testing.T) {
	path := writeColumnFile(t, []uint64{0, 1, 0})
	remap := dictionary.KeyRemap{10, 20}

	if err := ApplyColumn(path, remap); err != nil {
		t.Fatalf("ApplyColumn: %v", err)
	}

	got := readColumnFile(t, path)
	want := []uint64{10, 20, 10}
	if len(got) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

// TestApplyColumnEmptyPartitionIsNoop covers the resolved Open Question:
// a column file under 4 bytes (no rows were ever written for that
// partition's local dictionary) is a no-op, not an error.
func TestApplyColumnEmptyPartitionIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "col_0.dat")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := ApplyColumn(path, dictionary.KeyRemap{10, 20}); err != nil {
		t.Fatalf("expected ApplyColumn to no-op on an empty file, got %v", err)
	}
}

func TestApplyColumnRejectsUndersizedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "col_0.dat")
	// 5 bytes: at least 4 (not the empty-partition case) but not a
	// multiple of keyWidth (8).
	if err := os.WriteFile(path, []byte{1, 2, 3, 4, 5}, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	err := ApplyColumn(path, dictionary.KeyRemap{10})
	if err == nil {
		t.Fatal("expected an error for a column file size that isn't a multiple of keyWidth")
	}
}

func TestApplyColumnRejectsOutOfRangeLocalKey(t *testing.T) {
	path := writeColumnFile(t, []uint64{5})
	err := ApplyColumn(path, dictionary.KeyRemap{10})
	if err == nil {
		t.Fatal("expected an error when a local key has no entry in the remap")
	}
}
