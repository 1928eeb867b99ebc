package extsort

import (
	"encoding/binary"
	"os"

	"github.com/pkg/errors"

	"github.com/csvbulk/csvbulk/internal/mmapfile"
)

// MergePartition implements the index-merge step of phase 3: it
// memory-maps every per-chunk index file belonging to one partition,
// feeds every record through an external sort keyed by (Timestamp, Chunk,
// Offset), and passes every entry to emit in that order.
//
// chunkPaths must be ordered by chunk index; that index is what breaks
// timestamp ties per spec §4.3.
func MergePartition(chunkPaths []string, tmpDir string, memLimit int, emit func(Entry) error) error {
	sorter := NewSorter(tmpDir, memLimit)

	for chunkIdx, path := range chunkPaths {
		if err := feedChunkFile(sorter, path, chunkIdx); err != nil {
			return errors.Wrapf(err, "extsort: merge partition, chunk file %s", path)
		}
	}
	return sorter.Finalize(emit)
}

// feedChunkFile mmaps one per-chunk index file and adds every 16-byte
// record it holds to sorter, tagging each with chunkIdx.
func feedChunkFile(sorter *Sorter, path string, chunkIdx int) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "extsort: open chunk file %s", path)
	}
	defer f.Close()

	m, err := mmapfile.MapReadOnly(f)
	if err != nil {
		return err
	}
	defer m.Unmap()

	data := m.Data
	if len(data)%EntrySize != 0 {
		return errors.Errorf("extsort: chunk file %s has size %d, not a multiple of %d", path, len(data), EntrySize)
	}
	for off := 0; off+EntrySize <= len(data); off += EntrySize {
		e := Entry{
			Timestamp: int64(binary.BigEndian.Uint64(data[off : off+8])),
			Offset:    int64(binary.BigEndian.Uint64(data[off+8 : off+16])),
			Chunk:     chunkIdx,
		}
		if err := sorter.Add(e); err != nil {
			return err
		}
	}
	return nil
}
