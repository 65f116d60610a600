package rsyncchecksum

import (
	"io"
	"os"
)

// mapFileWindow is the size of the sliding window MapFile keeps
// resident from the basis file (spec §3, §9: "MapFile windows own a
// memory region and seek position per basis file; not shared across
// files").
const mapFileWindow = 256 * 1024

// MapFile is a read-only sliding-window reader over a basis file that
// serves ReadAt-style block reads without holding the whole file in
// memory. The receiver does not use it: it reads basis blocks directly
// with os.File.ReadAt.
type MapFile struct {
	f        *os.File
	winStart int64
	win      []byte
}

// NewMapFile wraps f for windowed access.
func NewMapFile(f *os.File) *MapFile {
	return &MapFile{f: f, winStart: -1}
}

// ReadAt returns length bytes starting at offset, refilling the
// internal window as needed. The returned slice is only valid until
// the next call to ReadAt.
func (m *MapFile) ReadAt(offset int64, length int32) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	if m.winStart < 0 || offset < m.winStart || offset+int64(length) > m.winStart+int64(len(m.win)) {
		if err := m.fill(offset, length); err != nil {
			return nil, err
		}
	}
	start := offset - m.winStart
	return m.win[start : start+int64(length)], nil
}

func (m *MapFile) fill(offset int64, length int32) error {
	size := int64(mapFileWindow)
	if int64(length) > size {
		size = int64(length)
	}
	buf := make([]byte, size)
	n, err := m.f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return err
	}
	m.win = buf[:n]
	m.winStart = offset
	if int64(n) < int64(length) {
		return io.ErrUnexpectedEOF
	}
	return nil
}

// Close releases the underlying file handle.
func (m *MapFile) Close() error {
	return m.f.Close()
}
