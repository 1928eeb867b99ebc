//go:build !windows

package mmapfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func mapFile(f *os.File) (Mapping, error) {
	stat, err := f.Stat()
	if err != nil {
		return Mapping{}, fmt.Errorf("stat for mmap: %w", err)
	}
	size := stat.Size()
	if size == 0 {
		return Mapping{}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return Mapping{}, fmt.Errorf("mmap: %w", err)
	}
	return Mapping{Data: data}, nil
}

func mapFileReadOnly(f *os.File) (Mapping, error) {
	stat, err := f.Stat()
	if err != nil {
		return Mapping{}, fmt.Errorf("stat for mmap: %w", err)
	}
	size := stat.Size()
	if size == 0 {
		return Mapping{}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return Mapping{}, fmt.Errorf("mmap: %w", err)
	}
	return Mapping{Data: data}, nil
}

func mapFileSize(f *os.File, n int64) (Mapping, error) {
	if n == 0 {
		return Mapping{}, nil
	}
	stat, err := f.Stat()
	if err != nil {
		return Mapping{}, fmt.Errorf("stat for mmap: %w", err)
	}
	if stat.Size() < n {
		if err := f.Truncate(n); err != nil {
			return Mapping{}, fmt.Errorf("truncate for mmap: %w", err)
		}
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(n), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return Mapping{}, fmt.Errorf("mmap: %w", err)
	}
	return Mapping{Data: data}, nil
}

func unmapFile(data []byte) error {
	return unix.Munmap(data)
}

func lockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX)
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
