//go:build windows

package mmapfile

import (
	"io"
	"os"
)

// mapFile falls back to reading the whole file into memory on Windows, same
// trade-off the teacher's common.MmapFile made ("Fallback to ReadAll on
// Windows for now to avoid unsafe pointer arithmetic complexity without
// external lib"). Writes made through Data are not reflected back to disk;
// callers on Windows that need read-write mapping semantics are out of
// scope for this fallback, same as upstream.
func mapFile(f *os.File) (Mapping, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Mapping{}, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return Mapping{}, err
	}
	return Mapping{Data: data}, nil
}

// mapFileReadOnly shares the same ReadAll fallback as mapFile: the
// fallback never writes back to disk regardless of intent, so the
// read-only and read-write paths coincide on this platform.
func mapFileReadOnly(f *os.File) (Mapping, error) {
	return mapFile(f)
}

func mapFileSize(f *os.File, n int64) (Mapping, error) {
	stat, err := f.Stat()
	if err != nil {
		return Mapping{}, err
	}
	if stat.Size() < n {
		if err := f.Truncate(n); err != nil {
			return Mapping{}, err
		}
	}
	return mapFile(f)
}

func unmapFile(data []byte) error {
	return nil
}

// lockFile/unlockFile are no-ops on Windows, matching the teacher's
// writer/lock_windows.go stub.
func lockFile(f *os.File) error   { return nil }
func unlockFile(f *os.File) error { return nil }
