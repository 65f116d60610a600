package rsyncwire

import "io"

// CountingReader wraps an io.Reader and accumulates the number of bytes
// read, feeding TransferStats.Read.
type CountingReader struct {
	R         io.Reader
	BytesRead int64
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.R.Read(p)
	c.BytesRead += int64(n)
	return n, err
}

// CountingWriter wraps an io.Writer and accumulates the number of bytes
// written, feeding TransferStats.Written.
type CountingWriter struct {
	W            io.Writer
	BytesWritten int64
}

func (c *CountingWriter) Write(p []byte) (int, error) {
	n, err := c.W.Write(p)
	c.BytesWritten += int64(n)
	return n, err
}

// CounterPair wraps a bidirectional stream (e.g. a net.Conn, or two
// halves of a pair of os.Pipe()s) with a CountingReader/CountingWriter
// pair, matching the teacher's rsyncwire.CounterPair helper; it is
// used by rsyncd.go.
func CounterPair(r io.Reader, w io.Writer) (*CountingReader, *CountingWriter) {
	return &CountingReader{R: r}, &CountingWriter{W: w}
}
