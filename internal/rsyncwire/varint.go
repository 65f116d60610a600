package rsyncwire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ReadVarint reads the compact non-negative integer encoding used
// throughout the file-list codec for protocol >= 30 (spec §4.7): the
// first byte's high bits encode how many extra continuation bytes
// follow, mirroring upstream's read_varint30.
func (c *Conn) ReadVarint() (int32, error) {
	first, err := c.ReadByte()
	if err != nil {
		return 0, err
	}
	return c.readVarintFrom(first)
}

func (c *Conn) readVarintFrom(first byte) (int32, error) {
	// Count leading 1-bits in the first byte to determine how many
	// extra bytes extend the value, matching upstream's bit-packing:
	// values 0..0x7F fit in the first byte alone.
	extra := 0
	b := first
	for i := 0; i < 4; i++ {
		if b&0x80 == 0 {
			break
		}
		extra++
		b <<= 1
	}
	if extra == 0 {
		return int32(first), nil
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(c.Reader, buf[:extra]); err != nil {
		return 0, err
	}
	// The low (8-extra) bits of the first byte are the most
	// significant bits of the value; the extra bytes that follow are
	// little-endian continuation bytes.
	mask := byte(0xFF >> uint(extra+1))
	var v uint32
	for i := extra - 1; i >= 0; i-- {
		v = v<<8 | uint32(buf[i])
	}
	v |= uint32(first&mask) << uint(extra*8)
	return int32(v), nil
}

// WriteVarint writes the encoding ReadVarint understands.
func (c *Conn) WriteVarint(v int32) error {
	if v < 0 {
		return fmt.Errorf("rsyncwire: WriteVarint of negative value %d", v)
	}
	u := uint32(v)
	switch {
	case u < 1<<7:
		return c.WriteByte(byte(u))
	case u < 1<<14:
		if err := c.WriteByte(byte(0x80 | (u >> 8))); err != nil {
			return err
		}
		return c.WriteByte(byte(u))
	case u < 1<<21:
		if err := c.WriteByte(byte(0xC0 | (u >> 16))); err != nil {
			return err
		}
		var b [2]byte
		b[0] = byte(u)
		b[1] = byte(u >> 8)
		_, err := c.Writer.Write(b[:])
		return err
	case u < 1<<28:
		if err := c.WriteByte(byte(0xE0 | (u >> 24))); err != nil {
			return err
		}
		var b [3]byte
		b[0] = byte(u)
		b[1] = byte(u >> 8)
		b[2] = byte(u >> 16)
		_, err := c.Writer.Write(b[:])
		return err
	default:
		if err := c.WriteByte(0xF0); err != nil {
			return err
		}
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], u)
		_, err := c.Writer.Write(b[:])
		return err
	}
}

// ReadVarlong reads a signed long integer using a "granularity" minimum
// byte width (spec §4.7): values that fit in minBytes plain bytes are
// stored directly, the most significant of those bytes first and the
// rest little-endian; a sentinel all-1-bits prefix escapes to a wider
// encoding for larger magnitudes.
func (c *Conn) ReadVarlong(minBytes int) (int64, error) {
	first, err := c.ReadByte()
	if err != nil {
		return 0, err
	}
	sentinel := byte(0xFF) << uint(8-minBytes)
	if first&sentinel != sentinel {
		// Value fits directly: read minBytes-1 more bytes, little
		// endian, with `first` as the most significant byte.
		if minBytes == 1 {
			return int64(int8(first)), nil
		}
		buf := make([]byte, minBytes)
		buf[minBytes-1] = first
		if _, err := io.ReadFull(c.Reader, buf[:minBytes-1]); err != nil {
			return 0, err
		}
		var v uint64
		for i := minBytes - 1; i >= 0; i-- {
			v = v<<8 | uint64(buf[i])
		}
		// Sign-extend from minBytes*8 bits.
		shift := uint(64 - minBytes*8)
		return int64(v<<shift) >> shift, nil
	}
	// Escape: a full 8-byte little-endian value follows. The low bits
	// of first are not used as a length; exactly 8 bytes are read.
	extra := int(first &^ sentinel)
	_ = extra
	var b [8]byte
	if _, err := io.ReadFull(c.Reader, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// WriteVarlong writes the encoding ReadVarlong understands.
func (c *Conn) WriteVarlong(v int64, minBytes int) error {
	if v >= 0 {
		limit := int64(1) << uint(minBytes*8-1)
		if v < limit {
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], uint64(v))
			// Write the top byte first, then the minBytes-1 low bytes,
			// matching ReadVarlong's expectation that `first` is the
			// most significant byte and carries no sentinel bits set.
			if minBytes == 1 {
				return c.WriteByte(b[0])
			}
			if err := c.WriteByte(b[minBytes-1]); err != nil {
				return err
			}
			_, err := c.Writer.Write(b[:minBytes-1])
			return err
		}
	} else {
		limit := -(int64(1) << uint(minBytes*8-1))
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(v))
		// A top byte with all sentinel bits set would read back as the
		// escape, so such values take the wide form below.
		sentinel := byte(0xFF) << uint(8-minBytes)
		if v >= limit && b[minBytes-1]&sentinel != sentinel {
			if err := c.WriteByte(b[minBytes-1]); err != nil {
				return err
			}
			_, err := c.Writer.Write(b[:minBytes-1])
			return err
		}
	}
	sentinel := byte(0xFF) << uint(8-minBytes)
	if err := c.WriteByte(sentinel); err != nil {
		return err
	}
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	_, err := c.Writer.Write(b[:])
	return err
}

// NDX read/write: file index encoding (spec §4.7). For protocol < 30 a
// plain 4-byte little-endian int32 is used; for protocol >= 30 the
// value is delta-encoded against the per-direction previous-positive
// register.
func (c *Conn) ReadNdx(protocolVersion int) (int32, error) {
	if protocolVersion < 30 {
		return c.ReadInt32()
	}
	b, err := c.ReadByte()
	if err != nil {
		return 0, err
	}
	switch b {
	case 0x00:
		return -1, nil // NDX_DONE
	case 0xFE:
		var hi, lo byte
		hi, err = c.ReadByte()
		if err != nil {
			return 0, err
		}
		if hi&0x80 != 0 {
			var b3 [3]byte
			b3[0] = hi &^ 0x80
			lo, err = c.ReadByte()
			if err != nil {
				return 0, err
			}
			b3[1] = lo
			b3[2], err = c.ReadByte()
			if err != nil {
				return 0, err
			}
			delta := int32(b3[0])<<16 | int32(b3[1])<<8 | int32(b3[2])
			v := c.prevNdxRead + delta
			c.prevNdxRead = v
			return v, nil
		}
		lo, err = c.ReadByte()
		if err != nil {
			return 0, err
		}
		delta := int32(hi)<<8 | int32(lo)
		v := c.prevNdxRead + delta
		c.prevNdxRead = v
		return v, nil
	case 0xFF:
		v, err := c.ReadInt32()
		if err != nil {
			return 0, err
		}
		return -v - 2, nil
	default:
		v := c.prevNdxRead + int32(b)
		c.prevNdxRead = v
		return v, nil
	}
}

func (c *Conn) WriteNdx(protocolVersion int, ndx int32) error {
	if protocolVersion < 30 {
		return c.WriteInt32(ndx)
	}
	if ndx == -1 {
		return c.WriteByte(0x00)
	}
	if ndx < -1 {
		if err := c.WriteByte(0xFF); err != nil {
			return err
		}
		return c.WriteInt32(-(ndx + 2))
	}
	delta := ndx - c.prevNdxWrite
	c.prevNdxWrite = ndx
	// NDX deltas are assumed non-negative: NDX values address
	// positions in a file list that the generator and receiver walk
	// forward through, so the previous-positive register only ever
	// needs to grow between consecutive positive NDX reads/writes.
	switch {
	case delta >= 1 && delta <= 253:
		return c.WriteByte(byte(delta))
	case delta >= 0 && delta <= 0x7FFF:
		if err := c.WriteByte(0xFE); err != nil {
			return err
		}
		if err := c.WriteByte(byte(delta >> 8)); err != nil {
			return err
		}
		return c.WriteByte(byte(delta))
	default:
		if err := c.WriteByte(0xFE); err != nil {
			return err
		}
		if err := c.WriteByte(byte(delta>>16) | 0x80); err != nil {
			return err
		}
		if err := c.WriteByte(byte(delta >> 8)); err != nil {
			return err
		}
		return c.WriteByte(byte(delta))
	}
}
