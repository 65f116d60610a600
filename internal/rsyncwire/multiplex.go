package rsyncwire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Multiplex tags (spec §6.1). MsgData carries in-band stream bytes;
// everything else is a control channel surfaced to an observer instead
// of being returned from Read.
const (
	MsgData      = 7
	MsgErrorXfer = 1
	MsgInfo      = 2
	MsgError     = 3
	MsgWarning   = 4
	MsgRedo      = 8
	MsgStats     = 9
	MsgFlist     = 10
	MsgNoSend    = 12

	maxMultiplexPayload = 1<<24 - 1
)

// MessageHandler is invoked for every non-DATA frame encountered while
// reading. The handler must not retain payload beyond the call.
type MessageHandler func(tag byte, payload []byte) error

// MultiplexReader turns a raw stream into the logical DATA-only stream,
// dispatching non-DATA frames to OnMessage as they are encountered. It
// implements io.Reader so callers can wrap it in a bufio.Reader exactly
// as the teacher's clientmaincmd.go does
// (`rd := bufio.NewReaderSize(mrd, 256*1024)`).
type MultiplexReader struct {
	Reader    io.Reader
	OnMessage MessageHandler

	remaining int // bytes left in the current DATA frame
}

func (m *MultiplexReader) nextFrame() error {
	var hdr [4]byte
	for {
		if _, err := io.ReadFull(m.Reader, hdr[:]); err != nil {
			return err
		}
		// Header is tag<<24 | length24, but stored little-endian on
		// the wire as a 4-byte value whose most significant byte (in
		// host order) is the tag -- i.e. reading it as a little-endian
		// uint32 and shifting down by 24 recovers the tag placed in
		// the top byte by the writer below.
		v := binary.LittleEndian.Uint32(hdr[:])
		tag := byte(v >> 24)
		length := int(v & 0x00FFFFFF)
		if tag == MsgData {
			m.remaining = length
			return nil
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(m.Reader, payload); err != nil {
			return fmt.Errorf("reading multiplex payload for tag %d: %w", tag, err)
		}
		if m.OnMessage != nil {
			if err := m.OnMessage(tag, payload); err != nil {
				return err
			}
		}
		// Loop back for the next frame header; a DATA read may be
		// preceded by any number of control frames.
	}
}

func (m *MultiplexReader) Read(p []byte) (int, error) {
	if m.remaining == 0 {
		if err := m.nextFrame(); err != nil {
			return 0, err
		}
	}
	if len(p) > m.remaining {
		p = p[:m.remaining]
	}
	n, err := io.ReadFull(m.Reader, p)
	m.remaining -= n
	return n, err
}

// MultiplexWriter wraps an underlying writer and frames every Write
// call as a DATA frame. WriteMsg sends an out-of-band control frame.
type MultiplexWriter struct {
	Writer io.Writer
}

func (m *MultiplexWriter) writeFrame(tag byte, p []byte) error {
	for len(p) > 0 {
		chunk := p
		if len(chunk) > maxMultiplexPayload {
			chunk = chunk[:maxMultiplexPayload]
		}
		var hdr [4]byte
		v := uint32(tag)<<24 | uint32(len(chunk))
		binary.LittleEndian.PutUint32(hdr[:], v)
		if _, err := m.Writer.Write(hdr[:]); err != nil {
			return err
		}
		if _, err := m.Writer.Write(chunk); err != nil {
			return err
		}
		p = p[len(chunk):]
	}
	return nil
}

func (m *MultiplexWriter) Write(p []byte) (int, error) {
	if err := m.writeFrame(MsgData, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteMsg sends a single out-of-band control frame (ERROR, WARNING,
// INFO, STATS, REDO, ...).
func (m *MultiplexWriter) WriteMsg(tag byte, p []byte) error {
	return m.writeFrame(tag, p)
}
