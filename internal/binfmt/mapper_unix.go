//go:build unix

package binfmt

import (
	"os"
	"syscall"
)

// mapFile memory-maps f read-only for its whole size, so parsing works
// directly against mapped bytes rather than streaming reads.
func mapFile(f *os.File, size int64) ([]byte, func() error, error) {
	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}
	unmap := func() error { return syscall.Munmap(data) }
	return data, unmap, nil
}
