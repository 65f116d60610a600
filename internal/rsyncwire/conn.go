// Package rsyncwire implements the byte-level plumbing shared by the
// sender and receiver roles: the Conn read/write primitives used before
// and after multiplex activation, the counting reader/writer pair used
// to report TransferStats.Read/Written, and (in separate files) the
// multiplex framer and the varint/varlong/NDX codec.
package rsyncwire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Conn bundles the reader and writer sides of a connection. Both sides
// are swapped out independently at multiplex-activation time (see
// MultiplexReader and MultiplexWriter), which is why they are plain
// interfaces rather than a single net.Conn.
type Conn struct {
	Reader io.Reader
	Writer io.Writer

	// prevNdxRead/prevNdxWrite hold the per-direction "previous
	// positive" NDX register used by the delta-encoded NDX codec for
	// protocol >= 30 (spec §4.7). Both registers start at their zero
	// value, 0, not -1, so the first positive NDX is delta-encoded
	// against 0. ndxInit is not read.
	prevNdxRead  int32
	prevNdxWrite int32
	ndxInit      bool
}

// ReadByte reads a single byte.
func (c *Conn) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(c.Reader, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// WriteByte writes a single byte.
func (c *Conn) WriteByte(b byte) error {
	_, err := c.Writer.Write([]byte{b})
	return err
}

// ReadInt32 reads a little-endian signed 32-bit integer, the base unit
// of the unmultiplexed handshake and most scalar protocol fields.
func (c *Conn) ReadInt32() (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(c.Reader, b[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b[:])), nil
}

// WriteInt32 writes a little-endian signed 32-bit integer.
func (c *Conn) WriteInt32(v int32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	_, err := c.Writer.Write(b[:])
	return err
}

// ReadInt64 reads the long-integer encoding used by upstream for
// values that may exceed 32 bits: a 4-byte value, where -1 signals that
// an 8-byte little-endian value follows.
func (c *Conn) ReadInt64() (int64, error) {
	v, err := c.ReadInt32()
	if err != nil {
		return 0, err
	}
	if v != -1 {
		return int64(v), nil
	}
	var b [8]byte
	if _, err := io.ReadFull(c.Reader, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// WriteInt64 writes the same encoding ReadInt64 understands.
func (c *Conn) WriteInt64(v int64) error {
	if v <= 0x7FFFFFFF && v >= 0 {
		return c.WriteInt32(int32(v))
	}
	if err := c.WriteInt32(-1); err != nil {
		return err
	}
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	_, err := c.Writer.Write(b[:])
	return err
}

// ReadN reads exactly n bytes.
func (c *Conn) ReadN(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(c.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}

// WriteString writes a length-prefixed (int32) string, used for a few
// legacy vstring-less fields retained from the prototype daemon path.
func (c *Conn) WriteString(s string) error {
	if err := c.WriteInt32(int32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(c.Writer, s)
	return err
}

func (c *Conn) ReadString() (string, error) {
	n, err := c.ReadInt32()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", fmt.Errorf("rsyncwire: negative string length %d", n)
	}
	b, err := c.ReadN(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
