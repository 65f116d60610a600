package rsync

import (
	"encoding/binary"
	"fmt"
	"io"
)

// SumHead is the signature header sent ahead of a block of per-block
// (rolling, strong) tuples (spec §6.3). Field presence is protocol
// dependent: strong_sum_length and remainder were added in protocol 27,
// which is the floor this module supports, so both fields are always
// present on the wire here.
type SumHead struct {
	ChecksumCount   int32 // number of blocks in the signature
	BlockLength     int32 // block_length
	ChecksumLength  int32 // strong_sum_length, truncated digest length
	RemainderLength int32 // size of the final, possibly-short block
}

// int32Reader is the minimal interface SumHead needs to read four LE
// int32 values; rsyncwire.Conn satisfies it via ReadInt32.
type int32Reader interface {
	ReadInt32() (int32, error)
}

type int32Writer interface {
	WriteInt32(int32) error
}

// ReadFrom decodes a SumHead using a connection that exposes ReadInt32,
// matching the rest of the wire protocol's framing (possibly multiplexed).
func (sh *SumHead) ReadFrom(c int32Reader) error {
	var err error
	if sh.ChecksumCount, err = c.ReadInt32(); err != nil {
		return fmt.Errorf("reading checksum count: %w", err)
	}
	if sh.BlockLength, err = c.ReadInt32(); err != nil {
		return fmt.Errorf("reading block length: %w", err)
	}
	if sh.ChecksumLength, err = c.ReadInt32(); err != nil {
		return fmt.Errorf("reading checksum length: %w", err)
	}
	if sh.RemainderLength, err = c.ReadInt32(); err != nil {
		return fmt.Errorf("reading remainder length: %w", err)
	}
	if sh.ChecksumCount < 0 || sh.BlockLength < 0 || sh.ChecksumLength < 0 || sh.RemainderLength < 0 {
		return fmt.Errorf("malformed sum head: %+v", sh)
	}
	return nil
}

// WriteTo encodes a SumHead using a connection that exposes WriteInt32.
func (sh *SumHead) WriteTo(c int32Writer) error {
	if err := c.WriteInt32(sh.ChecksumCount); err != nil {
		return err
	}
	if err := c.WriteInt32(sh.BlockLength); err != nil {
		return err
	}
	if err := c.WriteInt32(sh.ChecksumLength); err != nil {
		return err
	}
	return c.WriteInt32(sh.RemainderLength)
}

// MarshalBinary is provided so tests can round-trip a SumHead through the
// raw 16-byte wire layout (spec §6.3) without a Conn.
func (sh SumHead) MarshalBinary() ([]byte, error) {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint32(b[0:4], uint32(sh.ChecksumCount))
	binary.LittleEndian.PutUint32(b[4:8], uint32(sh.BlockLength))
	binary.LittleEndian.PutUint32(b[8:12], uint32(sh.ChecksumLength))
	binary.LittleEndian.PutUint32(b[12:16], uint32(sh.RemainderLength))
	return b, nil
}

func (sh *SumHead) UnmarshalBinary(b []byte) error {
	if len(b) != 16 {
		return io.ErrUnexpectedEOF
	}
	sh.ChecksumCount = int32(binary.LittleEndian.Uint32(b[0:4]))
	sh.BlockLength = int32(binary.LittleEndian.Uint32(b[4:8]))
	sh.ChecksumLength = int32(binary.LittleEndian.Uint32(b[8:12]))
	sh.RemainderLength = int32(binary.LittleEndian.Uint32(b[12:16]))
	return nil
}
