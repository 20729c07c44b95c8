//go:build !unix

package binfmt

import (
	"errors"
	"os"
)

// mapFile has no portable mmap on non-unix build targets; Open falls back
// to a bounded read, per §4.1 "on map failure fall back to a bounded read."
func mapFile(f *os.File, size int64) ([]byte, func() error, error) {
	return nil, nil, errors.New("memory mapping unsupported on this platform")
}
