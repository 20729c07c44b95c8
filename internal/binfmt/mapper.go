package binfmt

import (
	"io"
	"os"

	"github.com/19h/symwalker/internal/scanerr"
)

// Mapping is a read-only, bounded view over a candidate file. Its backing
// memory map (or fallback buffer) is scoped to a single parse: callers must
// Close it before handing BinaryFacts to the Resolver (§9 memory-mapping
// ownership).
type Mapping struct {
	data   []byte
	file   *os.File
	size   int64
	unmap  func() error
	closed bool
}

// Open opens path read-only and memory-maps it, falling back to a bounded
// read when mapping isn't possible. Permission errors, non-regular files and
// zero-length files are reported as *scanerr.Unreadable so the Scanner can
// skip them without treating them as fatal.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &scanerr.Unreadable{Path: path, Reason: err.Error()}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &scanerr.Unreadable{Path: path, Reason: err.Error()}
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, &scanerr.Unreadable{Path: path, Reason: "not a regular file"}
	}
	if info.Size() == 0 {
		f.Close()
		return nil, &scanerr.Unreadable{Path: path, Reason: "zero-length file"}
	}

	data, unmap, err := mapFile(f, info.Size())
	if err != nil {
		data, err = readAllBounded(f, info.Size())
		if err != nil {
			f.Close()
			return nil, &scanerr.Unreadable{Path: path, Reason: err.Error()}
		}
		unmap = func() error { return nil }
	}

	return &Mapping{data: data, file: f, size: info.Size(), unmap: unmap}, nil
}

// Bytes returns the full mapped window. Callers must not retain it after
// Close.
func (m *Mapping) Bytes() []byte { return m.data }

// Size returns the mapped file's size in bytes.
func (m *Mapping) Size() int64 { return m.size }

// Close releases the mapping and the underlying file descriptor.
func (m *Mapping) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	err := m.unmap()
	if cerr := m.file.Close(); err == nil {
		err = cerr
	}
	return err
}

func readAllBounded(f *os.File, size int64) ([]byte, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
