// Package mmapfile provides scoped, owned memory mappings and advisory file
// locks. Every task in the pipeline that maps a file is responsible for
// unmapping it on every exit path (spec §5 "native memory discipline");
// Mapping.Unmap makes that a single deferred call instead of a raw
// mmap/munmap pair.
package mmapfile

import "os"

// Mapping is an owned, memory-mapped view of a file. The zero value is not
// usable; obtain one from Map.
type Mapping struct {
	Data []byte
}

// Map memory-maps the full extent of f for reading and writing. f must be
// open O_RDWR: a MAP_SHARED mapping with PROT_WRITE over a read-only
// descriptor fails with EACCES on Linux and macOS. The caller must call
// Unmap exactly once, on every code path, including error paths that run
// after a successful Map.
func Map(f *os.File) (Mapping, error) {
	return mapFile(f)
}

// MapReadOnly memory-maps the full extent of f for reading only. Unlike
// Map, f may be opened O_RDONLY: the mapping is PROT_READ/MAP_PRIVATE, so
// no write permission on the descriptor is required. Use this for any
// source file this process never intends to mutate through the mapping.
func MapReadOnly(f *os.File) (Mapping, error) {
	return mapFileReadOnly(f)
}

// MapSize maps exactly n bytes of f read-write, growing the underlying file
// to n bytes first if it is shorter.
func MapSize(f *os.File, n int64) (Mapping, error) {
	return mapFileSize(f, n)
}

// Unmap releases the mapping. Safe to call once; calling it twice is a bug
// in the caller, matching the teacher's MunmapFile contract.
func (m Mapping) Unmap() error {
	if len(m.Data) == 0 {
		return nil
	}
	return unmapFile(m.Data)
}

// Lock acquires an exclusive advisory lock on f, blocking until available.
func Lock(f *os.File) error {
	return lockFile(f)
}

// Unlock releases a lock taken with Lock.
func Unlock(f *os.File) error {
	return unlockFile(f)
}
