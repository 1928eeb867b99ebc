// Package dictionary implements the symbol (dictionary-encoded string)
// machinery shared by phase 3's per-worker shadow tables and phase 4's
// SYMBOL_TABLE_MERGE. A Local dictionary assigns dense local keys as a
// worker discovers distinct strings; Merge unions any number of Locals
// into one final-table dictionary and records the local-to-final key
// remap each Local needs for phase 5.
//
// Grounded on entreya-csvquery/go/internal/common/bloom.go's BloomFilter
// (here internal/bloomset) used as a cheap pre-check before the
// authoritative map lookup, the idempotent-insert shape spec.md §4.4
// calls "putSymbol."
package dictionary

import (
	"bufio"
	"encoding/binary"
	"os"

	"github.com/pkg/errors"

	"github.com/csvbulk/csvbulk/internal/bloomset"
)

// Local is one worker's append-only string -> local key table for a
// single symbol column. Keys are assigned densely starting at 0 in first-
// seen order (spec §3 "SymbolDictionary.localKey").
type Local struct {
	bloom  *bloomset.Filter
	byKey  []string
	byStr  map[string]uint32
}

// NewLocal creates an empty local dictionary sized for an expected number
// of distinct values.
func NewLocal(expectedDistinct int) *Local {
	if expectedDistinct < 16 {
		expectedDistinct = 16
	}
	return &Local{
		bloom: bloomset.New(expectedDistinct, 0.01),
		byStr: make(map[string]uint32, expectedDistinct),
	}
}

// Put returns s's local key, assigning a new one if s has not been seen
// before by this dictionary.
func (l *Local) Put(s string) uint32 {
	if l.bloom.MightContain(s) {
		if k, ok := l.byStr[s]; ok {
			return k
		}
	}
	k := uint32(len(l.byKey))
	l.byKey = append(l.byKey, s)
	l.byStr[s] = k
	l.bloom.Add(s)
	return k
}

// Len returns the number of distinct strings interned so far.
func (l *Local) Len() int { return len(l.byKey) }

// String returns the string assigned to local key k.
func (l *Local) String(k uint32) string { return l.byKey[k] }

// Final is the destination table's union dictionary across every worker
// that wrote a symbol column, built incrementally by Merge as each
// worker's Local becomes available (spec §4.4 "union merge").
type Final struct {
	bloom *bloomset.Filter
	byKey []string
	byStr map[string]uint32
}

// NewFinal creates an empty final-table dictionary.
func NewFinal(expectedDistinct int) *Final {
	if expectedDistinct < 16 {
		expectedDistinct = 16
	}
	return &Final{
		bloom: bloomset.New(expectedDistinct, 0.01),
		byStr: make(map[string]uint32, expectedDistinct),
	}
}

// putSymbol idempotently inserts s into the final dictionary, returning
// its final key. Matches spec §4.4's contract verbatim: repeated inserts
// of the same string are no-ops beyond the first.
func (f *Final) putSymbol(s string) uint32 {
	if f.bloom.MightContain(s) {
		if k, ok := f.byStr[s]; ok {
			return k
		}
	}
	k := uint32(len(f.byKey))
	f.byKey = append(f.byKey, s)
	f.byStr[s] = k
	f.bloom.Add(s)
	return k
}

// Len returns the number of distinct strings in the final dictionary.
func (f *Final) Len() int { return len(f.byKey) }

// String returns the string assigned to final key k.
func (f *Final) String(k uint32) string { return f.byKey[k] }

// Merge unions one worker's Local into f, returning a KeyRemap mapping
// every local key in l to its final key (spec §3 "KeyRemap").
func (f *Final) Merge(l *Local) KeyRemap {
	remap := make(KeyRemap, l.Len())
	for localKey, s := range l.byKey {
		remap[localKey] = f.putSymbol(s)
	}
	return remap
}

// KeyRemap maps a worker's local symbol keys to the final table's keys,
// indexed by local key (spec §3: "a dense i32 array indexed by local
// key"). It is written to disk between phase 4 and phase 5.
type KeyRemap []uint32

// WriteFile persists a KeyRemap as a sequence of big-endian uint32s.
func (r KeyRemap) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "dictionary: create remap file %s", path)
	}
	defer f.Close()

	w := bufio.NewWriterSize(f, 64*1024)
	var buf [4]byte
	for _, k := range r {
		binary.BigEndian.PutUint32(buf[:], k)
		if _, err := w.Write(buf[:]); err != nil {
			return errors.Wrapf(err, "dictionary: write remap file %s", path)
		}
	}
	return w.Flush()
}

// ReadKeyRemap loads a KeyRemap written by WriteFile. A file smaller than
// 4 bytes is treated as an empty partition no-op per the resolved Open
// Question in SPEC_FULL.md §12; anything else malformed is an error.
func ReadKeyRemap(path string) (KeyRemap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "dictionary: read remap file %s", path)
	}
	if len(data) < 4 {
		return KeyRemap{}, nil
	}
	if len(data)%4 != 0 {
		return nil, errors.Errorf("dictionary: remap file %s has size %d, not a multiple of 4", path, len(data))
	}
	out := make(KeyRemap, len(data)/4)
	for i := range out {
		out[i] = binary.BigEndian.Uint32(data[i*4 : i*4+4])
	}
	return out, nil
}
