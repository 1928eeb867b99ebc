// Package boundary implements phase 1, BOUNDARY_CHECK: locating safe line
// starts inside quote-aware byte chunks so phase 2 can parse each chunk
// independently without ever straddling a logical row. See spec.md §4.1.
package boundary

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Chunk is a half-open [Lo, Hi) tentative byte range of the source file
// assigned to one worker (spec §3 "ByteChunk").
type Chunk struct {
	Index int
	Lo    int64
	Hi    int64
}

// noNewline is the sentinel used for "no newline of this parity seen."
const noNewline = -1

// Census is the per-chunk output of phase 1 (spec §3 "QuoteCensus"): the
// total quote count, plus per newline-parity the count and first offset.
type Census struct {
	QuoteCount int64

	EvenCount       int64
	EvenFirstOffset int64

	OddCount       int64
	OddFirstOffset int64
}

// Plan splits [0, fileSize) into n tentative equal-length chunks. The
// caller scans each with Scan, then calls Stitch to resolve safe starts.
func Plan(fileSize int64, n int) []Chunk {
	if n < 1 {
		n = 1
	}
	if fileSize == 0 {
		return nil
	}
	chunkSize := fileSize / int64(n)
	if chunkSize == 0 {
		chunkSize = 1
	}
	chunks := make([]Chunk, 0, n)
	var lo int64
	for i := 0; i < n && lo < fileSize; i++ {
		hi := lo + chunkSize
		if i == n-1 || hi > fileSize {
			hi = fileSize
		}
		chunks = append(chunks, Chunk{Index: i, Lo: lo, Hi: hi})
		lo = hi
	}
	return chunks
}

// Scan reads chunk sequentially through a fixed-size buffer, tracking a
// running quote counter and, on every '\n', recording it into the even or
// odd parity slot of the census according to quotes&1 at that point (spec
// §4.1 "Algorithm").
func Scan(path string, chunk Chunk, bufSize int) (Census, error) {
	f, err := os.Open(path)
	if err != nil {
		return Census{}, errors.Wrapf(err, "boundary scan: open %s", path)
	}
	defer f.Close()

	if _, err := f.Seek(chunk.Lo, io.SeekStart); err != nil {
		return Census{}, errors.Wrapf(err, "boundary scan: seek chunk %d", chunk.Index)
	}

	census := Census{EvenFirstOffset: noNewline, OddFirstOffset: noNewline}

	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	buf := make([]byte, bufSize)
	remaining := chunk.Hi - chunk.Lo
	var pos int64 = chunk.Lo
	var quotes int64

	for remaining > 0 {
		want := int64(len(buf))
		if want > remaining {
			want = remaining
		}
		n, err := f.Read(buf[:want])
		if n > 0 {
			for i := 0; i < n; i++ {
				b := buf[i]
				switch b {
				case '"':
					quotes++
				case '\n':
					offset := pos + int64(i)
					if quotes&1 == 0 {
						if census.EvenFirstOffset == noNewline {
							census.EvenFirstOffset = offset
						}
						census.EvenCount++
					} else {
						if census.OddFirstOffset == noNewline {
							census.OddFirstOffset = offset
						}
						census.OddCount++
					}
				}
			}
			pos += int64(n)
			remaining -= int64(n)
		}
		if err != nil {
			if err == io.EOF {
				if remaining > 0 {
					return Census{}, errors.Errorf("boundary scan: short read before chunk end, offset=%d errno=%v", pos, err)
				}
				break
			}
			return Census{}, errors.Wrapf(err, "boundary scan: read failed at offset %d", pos)
		}
		if n == 0 {
			break
		}
	}

	census.QuoteCount = quotes
	return census, nil
}

// Resolved is a chunk whose Start has been established as a safe line
// start by Stitch, ready for phase 2.
type Resolved struct {
	Index int
	Start int64
	End   int64
	// Empty is true when the resolved range contains no row to parse.
	Empty bool
}

// Stitch computes, for each tentative chunk, the true first safe line
// start using the even/odd parity relation from spec §4.1: P(0) = 0,
// P(k+1) = P(k) XOR (chunk[k].QuoteCount & 1); chunk k's safe start is the
// first newline of parity P(k), plus one.
//
// A chunk with no newline of the required parity resolves to an empty
// range (its row straddles the boundary and is parsed by the preceding
// chunk, whose range runs to the next safe start, or to fileSize when the
// empty chunk is the last one). The last chunk's end is always fileSize.
func Stitch(chunks []Chunk, censuses []Census, fileSize int64) ([]Resolved, error) {
	if len(chunks) != len(censuses) {
		return nil, fmt.Errorf("boundary stitch: %d chunks but %d censuses", len(chunks), len(censuses))
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	starts := make([]int64, len(chunks))
	parity := int64(0)
	for k, c := range chunks {
		census := censuses[k]
		var firstAtParity int64
		if parity == 0 {
			firstAtParity = census.EvenFirstOffset
		} else {
			firstAtParity = census.OddFirstOffset
		}
		if k == 0 {
			starts[0] = chunks[0].Lo
		} else if firstAtParity == noNewline {
			// No newline of the required parity: this chunk's row
			// straddles into the next chunk. Its effective start is
			// pushed to the next chunk's eventual start (resolved below
			// once we know it), signalled here with -1.
			starts[k] = -1
		} else {
			starts[k] = firstAtParity + 1
		}
		parity ^= census.QuoteCount & 1
	}

	// Propagate forward: a chunk with no safe start of its own inherits
	// the next resolved chunk's start, collapsing into an empty range. The
	// last chunk has no next chunk, so it collapses at fileSize.
	if last := len(starts) - 1; last >= 1 && starts[last] == -1 {
		starts[last] = fileSize
	}
	for k := len(starts) - 2; k >= 1; k-- {
		if starts[k] == -1 {
			starts[k] = starts[k+1]
		}
	}
	if len(starts) > 1 && starts[0] == -1 {
		starts[0] = chunks[0].Lo
	}

	resolved := make([]Resolved, len(chunks))
	for k := range chunks {
		start := starts[k]
		var end int64
		if k == len(chunks)-1 {
			end = fileSize
		} else {
			end = starts[k+1]
		}
		resolved[k] = Resolved{
			Index: chunks[k].Index,
			Start: start,
			End:   end,
			Empty: start >= end,
		}
	}
	return resolved, nil
}
