package receiver

import "io"

// sparseWriter defers runs of zero bytes to logical seeks instead of
// writing them, producing holes on filesystems that support sparse
// files (spec §2, §4.11 step 6). rsync/receiver.c:write_sparse /
// sparse_end.
type sparseWriter struct {
	w       io.WriteSeeker
	pending int64
}

func newSparseWriter(w io.WriteSeeker) *sparseWriter {
	return &sparseWriter{w: w}
}

// Write always reports len(p) bytes consumed; data is the logical
// content, some of which may be realized as a hole rather than an
// actual write.
func (s *sparseWriter) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		z := 0
		for z < len(p) && p[z] == 0 {
			z++
		}
		if z > 0 {
			s.pending += int64(z)
			p = p[z:]
			continue
		}

		nz := 0
		for nz < len(p) && p[nz] != 0 {
			nz++
		}
		if s.pending > 0 {
			if _, err := s.w.Seek(s.pending, io.SeekCurrent); err != nil {
				return 0, err
			}
			s.pending = 0
		}
		if _, err := s.w.Write(p[:nz]); err != nil {
			return 0, err
		}
		p = p[nz:]
	}
	return total, nil
}

// Close realizes any trailing zero run by extending the file length
// without writing the hole's bytes, preserving the file's logical
// size.
func (s *sparseWriter) Close() error {
	if s.pending == 0 {
		return nil
	}
	cur, err := s.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if t, ok := s.w.(interface{ Truncate(int64) error }); ok {
		err = t.Truncate(cur + s.pending)
	} else {
		if _, serr := s.w.Seek(s.pending-1, io.SeekCurrent); serr != nil {
			return serr
		}
		_, err = s.w.Write([]byte{0})
	}
	s.pending = 0
	return err
}
