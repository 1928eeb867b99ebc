package extsort

import (
	"bufio"
	"container/heap"
	"io"
	"os"
	"sort"

	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// ChunkWriter appends IndexEntry records to one per-chunk-per-partition
// index file in insertion order, the format phase 2 produces (spec §3
// "Ordering within a single index chunk file: insertion order"). It is
// intentionally dumb: a 64KB write buffer flushed on Close, no sorting.
type ChunkWriter struct {
	f *os.File
	w *bufio.Writer
}

// CreateChunkWriter opens path for appending (creating it if necessary).
func CreateChunkWriter(path string) (*ChunkWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "extsort: open chunk file %s", path)
	}
	return &ChunkWriter{f: f, w: bufio.NewWriterSize(f, 64*1024)}, nil
}

func (c *ChunkWriter) Write(e Entry) error {
	return WriteEntry(c.w, e)
}

func (c *ChunkWriter) Close() error {
	if err := c.w.Flush(); err != nil {
		c.f.Close()
		return errors.Wrap(err, "extsort: flush chunk file")
	}
	return c.f.Close()
}

// Sorter is the phase 3 external merge sort: entries from every per-chunk
// index file of one partition come in via Add, get buffered in memory up
// to memLimit records, spilled to LZ4-compressed temp files when the
// buffer fills, and finally drained in ascending (Timestamp, Chunk,
// Offset) order by Finalize's k-way merge.
//
// Grounded on entreya-csvquery/internal/indexer/sorter.go's Sorter: same
// buffer/flushChunk/kWayMerge shape, spill chunks LZ4-compressed exactly
// as Sorter.flushChunk does, record type narrowed to the 16-byte Entry
// plus a 4-byte chunk tag (needed so ties can still be broken by source
// chunk index once several chunks' entries share one spill file).
type Sorter struct {
	memLimit int
	buf      []Entry
	spills   []string
	tmpDir   string
}

// NewSorter creates a Sorter that spills to tmpDir once its in-memory
// buffer reaches memLimit entries.
func NewSorter(tmpDir string, memLimit int) *Sorter {
	if memLimit <= 0 {
		memLimit = 1 << 20
	}
	return &Sorter{memLimit: memLimit, tmpDir: tmpDir, buf: make([]Entry, 0, memLimit)}
}

// Add buffers one entry, spilling to disk if the buffer is full.
func (s *Sorter) Add(e Entry) error {
	s.buf = append(s.buf, e)
	if len(s.buf) >= s.memLimit {
		return s.spill()
	}
	return nil
}

func (s *Sorter) spill() error {
	if len(s.buf) == 0 {
		return nil
	}
	sort.Slice(s.buf, func(i, j int) bool { return s.buf[i].Less(s.buf[j]) })

	f, err := os.CreateTemp(s.tmpDir, "extsort-spill-*.lz4")
	if err != nil {
		return errors.Wrap(err, "extsort: create spill file")
	}
	defer f.Close()

	zw := lz4.NewWriter(f)
	bw := bufio.NewWriterSize(zw, 64*1024)
	for _, e := range s.buf {
		if err := writeSpillEntry(bw, e); err != nil {
			return errors.Wrap(err, "extsort: write spill record")
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "extsort: flush spill writer")
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "extsort: close lz4 spill writer")
	}

	s.spills = append(s.spills, f.Name())
	s.buf = s.buf[:0]
	return nil
}

// Finalize drains every buffered and spilled entry in ascending order into
// emit, then removes any spill files it created.
func (s *Sorter) Finalize(emit func(Entry) error) error {
	defer s.cleanup()

	if len(s.spills) == 0 {
		sort.Slice(s.buf, func(i, j int) bool { return s.buf[i].Less(s.buf[j]) })
		for _, e := range s.buf {
			if err := emit(e); err != nil {
				return err
			}
		}
		return nil
	}

	if err := s.spill(); err != nil {
		return err
	}
	return s.kWayMerge(emit)
}

func (s *Sorter) cleanup() {
	for _, p := range s.spills {
		os.Remove(p)
	}
}

// spillSource reads back one LZ4 spill chunk written by spill(), one
// chunk-tagged Entry at a time.
type spillSource struct {
	r    *bufio.Reader
	f    *os.File
	next Entry
	done bool
}

func openSpillSource(path string) (*spillSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "extsort: open spill %s", path)
	}
	zr := lz4.NewReader(f)
	s := &spillSource{r: bufio.NewReaderSize(zr, 64*1024), f: f}
	if err := s.advance(); err != nil && err != io.EOF {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *spillSource) advance() error {
	e, err := readSpillEntry(s.r)
	if err != nil {
		s.done = true
		return err
	}
	s.next = e
	return nil
}

func (s *spillSource) close() { s.f.Close() }

// Spill records are the 16-byte on-disk Entry form plus a trailing 4-byte
// chunk tag, so a merge over many spill files can still break timestamp
// ties by original chunk index once entries from different chunks share a
// single spill file.
func readSpillEntry(r io.Reader) (Entry, error) {
	var buf [EntrySize + 4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return Entry{}, err
	}
	e := Decode(buf[:EntrySize], 0)
	c := uint32(buf[EntrySize])<<24 | uint32(buf[EntrySize+1])<<16 | uint32(buf[EntrySize+2])<<8 | uint32(buf[EntrySize+3])
	e.Chunk = int(int32(c))
	return e, nil
}

func writeSpillEntry(w io.Writer, e Entry) error {
	var buf [EntrySize + 4]byte
	Encode(buf[:EntrySize], e)
	c := uint32(e.Chunk)
	buf[EntrySize] = byte(c >> 24)
	buf[EntrySize+1] = byte(c >> 16)
	buf[EntrySize+2] = byte(c >> 8)
	buf[EntrySize+3] = byte(c)
	_, err := w.Write(buf[:])
	return err
}

// heapItem pairs a pending entry with the index of the spillSource it came
// from, for manualHeap's pop-refill cycle.
type heapItem struct {
	entry Entry
	src   int
}

// manualHeap is a small container/heap.Interface adapter, grounded on the
// teacher's hand-rolled manualHeap in sorter.go.
type manualHeap []heapItem

func (h manualHeap) Len() int            { return len(h) }
func (h manualHeap) Less(i, j int) bool  { return h[i].entry.Less(h[j].entry) }
func (h manualHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *manualHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *manualHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// kWayMerge merges every spill file via a min-heap keyed by Entry.Less,
// grounded on the teacher's Sorter.kWayMerge.
func (s *Sorter) kWayMerge(emit func(Entry) error) error {
	sources := make([]*spillSource, 0, len(s.spills))
	for _, p := range s.spills {
		src, err := openSpillSource(p)
		if err != nil {
			for _, o := range sources {
				o.close()
			}
			return err
		}
		sources = append(sources, src)
	}
	defer func() {
		for _, src := range sources {
			src.close()
		}
	}()

	h := make(manualHeap, 0, len(sources))
	for i, src := range sources {
		if !src.done {
			h = append(h, heapItem{entry: src.next, src: i})
		}
	}
	heap.Init(&h)

	for h.Len() > 0 {
		top := heap.Pop(&h).(heapItem)
		if err := emit(top.entry); err != nil {
			return err
		}
		src := sources[top.src]
		if err := src.advance(); err == nil {
			heap.Push(&h, heapItem{entry: src.next, src: top.src})
		} else if err != io.EOF {
			return err
		}
	}
	return nil
}
