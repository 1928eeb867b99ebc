// Package extsort implements the 16-byte IndexEntry on-disk format (spec
// §3 "IndexEntry") and the external merge sort phase 3 uses to turn the
// unsorted-by-timestamp per-chunk index files of one partition into a
// single ascending-by-timestamp stream of entries. The merged stream is
// handed to a callback; no merged index file is written.
//
// Grounded on entreya-csvquery/internal/indexer/sorter.go's Sorter: the
// same buffer-then-spill-then-k-way-merge shape, with IndexEntry shrunk
// from the teacher's 80-byte (Key[64]byte, Offset, Line) record to the
// spec's 16-byte (timestamp int64, offset int64), and spill chunks
// LZ4-compressed exactly as Sorter.flushChunk does.
package extsort

import (
	"encoding/binary"
	"io"
)

// EntrySize is the fixed on-disk size of an IndexEntry: two big-endian
// int64s (spec §3 "sizeof(IndexEntry) = 16").
const EntrySize = 16

// Entry is a (timestamp, fileOffset) pair. Chunk is not persisted; it is
// carried only in memory during the merge to implement the tie-break rule
// from spec §4.3 ("ties in timestamp are broken by input-chunk index, then
// by source byte offset").
type Entry struct {
	Timestamp int64
	Offset    int64
	Chunk     int
}

// Less orders entries by (Timestamp, Chunk, Offset) ascending, the stable
// order spec §4.3 calls "equivalent to source order within a single
// timestamp."
func (e Entry) Less(o Entry) bool {
	if e.Timestamp != o.Timestamp {
		return e.Timestamp < o.Timestamp
	}
	if e.Chunk != o.Chunk {
		return e.Chunk < o.Chunk
	}
	return e.Offset < o.Offset
}

// Encode writes e's on-disk 16-byte form (timestamp, offset) into buf,
// which must be at least EntrySize long.
func Encode(buf []byte, e Entry) {
	binary.BigEndian.PutUint64(buf[0:8], uint64(e.Timestamp))
	binary.BigEndian.PutUint64(buf[8:16], uint64(e.Offset))
}

// Decode reads a 16-byte on-disk record into an Entry with Chunk set to
// chunk (the caller knows which file it read from; it is not stored).
func Decode(buf []byte, chunk int) Entry {
	return Entry{
		Timestamp: int64(binary.BigEndian.Uint64(buf[0:8])),
		Offset:    int64(binary.BigEndian.Uint64(buf[8:16])),
		Chunk:     chunk,
	}
}

// WriteEntry appends one entry's on-disk form to w.
func WriteEntry(w io.Writer, e Entry) error {
	var buf [EntrySize]byte
	Encode(buf[:], e)
	_, err := w.Write(buf[:])
	return err
}

// ReadEntry reads one on-disk record from r, tagging it with chunk.
// Returns io.EOF when the stream is exhausted.
func ReadEntry(r io.Reader, chunk int) (Entry, error) {
	var buf [EntrySize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Entry{}, err
	}
	return Decode(buf[:], chunk), nil
}
