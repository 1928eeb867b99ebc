// Package remap implements phase 5, UPDATE_SYMBOL_KEYS: rewriting a
// shadow table's symbol-key column in place, mapping each worker-local
// key to its final-table key via the KeyRemap phase 4 produced. See
// spec.md §4.4 and SPEC_FULL.md §12's resolution of the "undersized remap
// file" Open Question.
//
// Grounded on entreya-csvquery/src/go/internal/common/cidx.go's
// NewBlockReaderMmap "map then parse directly in mapped memory" technique,
// applied here read-write instead of read-only via internal/mmapfile.
package remap

import (
	"encoding/binary"
	"os"

	"github.com/pkg/errors"

	"github.com/csvbulk/csvbulk/internal/dictionary"
	"github.com/csvbulk/csvbulk/internal/mmapfile"
)

// ErrRemapUndersized is returned when a symbol-key column file's size is
// inconsistent with its row count in a way that cannot be explained by
// the "empty partition" no-op case.
var ErrRemapUndersized = errors.New("remap: column file undersized for row count")

const keyWidth = 8 // shadow tables store every fixed column widened to 8 bytes

// ApplyColumn rewrites colPath's 8-byte local symbol keys to their final
// keys using remap, in place, via a read-write mmap.
//
// A colPath shorter than 4 bytes is treated as an empty partition — a
// no-op, not an error, per the resolved Open Question. Any other size
// that isn't a multiple of keyWidth is a fatal ErrRemapUndersized.
func ApplyColumn(colPath string, remap dictionary.KeyRemap) error {
	f, err := os.OpenFile(colPath, os.O_RDWR, 0)
	if err != nil {
		return errors.Wrapf(err, "remap: open column file %s", colPath)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return errors.Wrapf(err, "remap: stat column file %s", colPath)
	}
	if stat.Size() < 4 {
		return nil
	}
	if stat.Size()%keyWidth != 0 {
		return errors.Wrapf(ErrRemapUndersized, "%s: size %d not a multiple of %d", colPath, stat.Size(), keyWidth)
	}

	m, err := mmapfile.Map(f)
	if err != nil {
		return errors.Wrapf(err, "remap: mmap column file %s", colPath)
	}
	defer m.Unmap()

	for off := 0; off+keyWidth <= len(m.Data); off += keyWidth {
		local := binary.BigEndian.Uint64(m.Data[off : off+keyWidth])
		if int(local) >= len(remap) {
			return errors.Errorf("remap: local key %d out of range (remap has %d entries) in %s at offset %d", local, len(remap), colPath, off)
		}
		binary.BigEndian.PutUint64(m.Data[off:off+keyWidth], uint64(remap[local]))
	}
	return nil
}
