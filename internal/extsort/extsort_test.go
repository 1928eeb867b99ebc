package extsort

import (
	"testing"
)

func collect(t *testing.T, s *Sorter) []Entry {
	t.Helper()
	var out []Entry
	if err := s.Finalize(func(e Entry) error {
		out = append(out, e)
		return nil
	}); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return out
}

func TestSorterInMemoryOrdering(t *testing.T) {
	s := NewSorter(t.TempDir(), 1024)
	entries := []Entry{
		{Timestamp: 30, Offset: 1, Chunk: 0},
		{Timestamp: 10, Offset: 2, Chunk: 0},
		{Timestamp: 20, Offset: 3, Chunk: 0},
	}
	for _, e := range entries {
		if err := s.Add(e); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	out := collect(t, s)
	want := []int64{10, 20, 30}
	if len(out) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(out))
	}
	for i, ts := range want {
		if out[i].Timestamp != ts {
			t.Errorf("index %d: expected timestamp %d, got %d", i, ts, out[i].Timestamp)
		}
	}
}

// TestSorterSpillsAndMerges forces several spill files (memLimit=2) and
// checks the k-way merge reassembles global ascending order.
func TestSorterSpillsAndMerges(t *testing.T) {
	s := NewSorter(t.TempDir(), 2)
	timestamps := []int64{50, 10, 40, 20, 60, 30, 5, 70}
	for i, ts := range timestamps {
		if err := s.Add(Entry{Timestamp: ts, Offset: int64(i), Chunk: i % 3}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	out := collect(t, s)
	if len(out) != len(timestamps) {
		t.Fatalf("expected %d entries, got %d", len(timestamps), len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].Timestamp < out[i-1].Timestamp {
			t.Fatalf("entries out of order at index %d: %d before %d", i, out[i-1].Timestamp, out[i].Timestamp)
		}
	}
}

// TestEntryLessTieBreak confirms the (Timestamp, Chunk, Offset) ordering
// spec.md §4.3 requires when two entries share a timestamp.
func TestEntryLessTieBreak(t *testing.T) {
	a := Entry{Timestamp: 10, Chunk: 0, Offset: 100}
	b := Entry{Timestamp: 10, Chunk: 1, Offset: 0}
	if !a.Less(b) {
		t.Error("expected lower chunk index to sort first on a timestamp tie")
	}

	c := Entry{Timestamp: 10, Chunk: 0, Offset: 0}
	d := Entry{Timestamp: 10, Chunk: 0, Offset: 1}
	if !c.Less(d) {
		t.Error("expected lower offset to sort first on a (timestamp, chunk) tie")
	}
}

func TestEntryEncodeDecodeRoundTrip(t *testing.T) {
	e := Entry{Timestamp: 123456789, Offset: 987654321}
	var buf [EntrySize]byte
	Encode(buf[:], e)
	got := Decode(buf[:], 7)
	if got.Timestamp != e.Timestamp || got.Offset != e.Offset {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, e)
	}
	if got.Chunk != 7 {
		t.Errorf("expected Decode to stamp the passed chunk index, got %d", got.Chunk)
	}
}
