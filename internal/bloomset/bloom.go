// Package bloomset is a space-efficient probabilistic set used by phase 4
// (SYMBOL_TABLE_MERGE) to short-circuit the common case — a worker's
// symbol string is not yet present in the final dictionary — before paying
// for the authoritative map lookup.
//
// Adapted from entreya-csvquery/internal/common/bloom.go: same CRC32
// double-hashing scheme, same serialization format. Kept close to the
// teacher because the math is already correct and not specific to the
// original tool's indexing use case.
package bloomset

import (
	"encoding/binary"
	"hash/crc32"
	"math"
)

// Filter implements a space-efficient probabilistic set.
type Filter struct {
	bits      []byte
	size      int
	hashCount int
	count     int
}

// New creates a filter sized for n expected elements at the given false
// positive rate.
func New(n int, fpRate float64) *Filter {
	if n < 1 {
		n = 1
	}
	if fpRate <= 0 {
		fpRate = 0.01
	}

	m := int(-float64(n) * math.Log(fpRate) / (math.Ln2 * math.Ln2))
	if m < 1024 {
		m = 1024
	}
	m = ((m + 7) / 8) * 8

	k := int(float64(m) / float64(n) * math.Ln2)
	if k < 1 {
		k = 1
	}
	if k > 10 {
		k = 10
	}

	return &Filter{
		bits:      make([]byte, m/8),
		size:      m,
		hashCount: k,
	}
}

func (f *Filter) positions(key string) (h1, h2 uint32) {
	keyBytes := []byte(key)
	h1 = crc32.ChecksumIEEE(keyBytes)

	var buf [256]byte
	reversed := appendReversed(buf[:0], keyBytes)
	reversed = append(reversed, "salt"...)
	h2 = crc32.ChecksumIEEE(reversed)
	return
}

// Add inserts key into the filter.
func (f *Filter) Add(key string) {
	h1, h2 := f.positions(key)
	for i := 0; i < f.hashCount; i++ {
		pos := combine(h1, h2, i, f.size)
		f.bits[pos/8] |= 1 << uint(pos%8)
	}
	f.count++
}

// MightContain reports whether key might be in the set. false is a
// definite answer; true only means "possibly."
func (f *Filter) MightContain(key string) bool {
	h1, h2 := f.positions(key)
	for i := 0; i < f.hashCount; i++ {
		pos := combine(h1, h2, i, f.size)
		if f.bits[pos/8]&(1<<uint(pos%8)) == 0 {
			return false
		}
	}
	return true
}

func combine(h1, h2 uint32, i, size int) int {
	c := int(h1) + i*int(h2)
	if c < 0 {
		c = -c
	}
	return c % size
}

func appendReversed(dst, s []byte) []byte {
	start := len(dst)
	dst = append(dst, s...)
	for i, j := start, len(dst)-1; i < j; i, j = i+1, j-1 {
		dst[i], dst[j] = dst[j], dst[i]
	}
	return dst
}

// Serialize converts the filter to bytes for storage: 24 byte header
// (size, hashCount, count as big-endian int64) followed by the bit array.
func (f *Filter) Serialize() []byte {
	header := make([]byte, 24)
	binary.BigEndian.PutUint64(header[0:8], uint64(f.size))
	binary.BigEndian.PutUint64(header[8:16], uint64(f.hashCount))
	binary.BigEndian.PutUint64(header[16:24], uint64(f.count))
	return append(header, f.bits...)
}

// Deserialize reconstructs a filter from bytes produced by Serialize.
func Deserialize(data []byte) *Filter {
	if len(data) < 24 {
		return nil
	}
	return &Filter{
		size:      int(binary.BigEndian.Uint64(data[0:8])),
		hashCount: int(binary.BigEndian.Uint64(data[8:16])),
		count:     int(binary.BigEndian.Uint64(data[16:24])),
		bits:      data[24:],
	}
}
