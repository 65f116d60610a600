package rsyncchecksum

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// MaxLiteralRun is the protocol-defined cap on a single literal token's
// byte count (spec §4.5: "typical 64 KiB - 1"). Longer runs are split
// across multiple Literal tokens.
const MaxLiteralRun = 64*1024 - 1

// Token is one element of a DeltaScript (spec §3, §4.5): either a
// Literal byte run, a reference to block BlockIndex in the basis
// signature (BlockIndex >= 0), or the end-of-stream marker
// (Literal == nil, BlockIndex == -1) that GenerateDelta always emits
// exactly once as its final call.
type Token struct {
	Literal    []byte
	BlockIndex int32 // valid iff Literal == nil; -1 marks end-of-stream
}

func (t Token) isBlock() bool { return t.Literal == nil }

// Emitter receives DeltaScript tokens in order.
type Emitter func(Token) error

type dualModeReader interface {
	io.Reader
	io.ByteReader
}

// GenerateDelta streams target against idx (the basis signature's
// lookup index), emitting Literal and block-reference Tokens to emit
// (spec §4.4). When idx.Empty(), the entire target is emitted as
// Literal tokens (spec §4.4 edge case: "Empty signature: whole source
// emitted as Literals").
//
// Algorithm grounded on the rolling-checksum block-matching loop in
// mutagen's rsync engine (pkg/synchronization/rsync/engine.go,
// Engine.Deltafy): maintain a sliding buffer covering pending literal
// bytes plus one full block, probe the index on every byte advance,
// and flush literal bytes preceding any accepted match. Unlike
// mutagen's Operation (which coalesces adjacent block matches into a
// single run), this wire format addresses one block per Copy token
// (spec §4.5, §6.4), so there is no run-length coalescing here.
func GenerateDelta(target io.Reader, idx *Index, algo Algorithm, seed int32, legacySeedOrder bool, emit Emitter) error {
	if idx.Empty() {
		return chunkAndEmitAll(target, emit)
	}

	layout := idx.Layout()
	blockLength := int64(layout.BlockLength)
	hasher := NewStrongHasher(algo, seed, legacySeedOrder)

	br, ok := target.(dualModeReader)
	if !ok {
		br = bufio.NewReaderSize(target, 256*1024)
	}

	var pending []byte
	flush := func() error {
		for len(pending) > 0 {
			n := len(pending)
			if n > MaxLiteralRun {
				n = MaxLiteralRun
			}
			if err := emit(Token{Literal: pending[:n]}); err != nil {
				return err
			}
			pending = pending[n:]
		}
		return nil
	}

	buf := make([]byte, 0, blockLength)
	var roll *Rolling

	refill := func() (bool, error) {
		need := int(blockLength) - len(buf)
		grow := make([]byte, need)
		n, err := io.ReadFull(br, grow)
		buf = append(buf, grow[:n]...)
		if err == io.EOF && n == 0 && len(buf) == 0 {
			return false, nil
		}
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("rsyncchecksum: reading target: %w", err)
		}
		return true, nil
	}

	tryMatch := func() (int32, bool) {
		if int64(len(buf)) < blockLength {
			// Short final window: only matches the signature's own
			// short last block, if any, when lengths agree.
			if layout.Remainder == 0 || int64(len(buf)) != int64(layout.Remainder) {
				return 0, false
			}
		}
		digest := Checksum1(buf)
		if roll == nil {
			roll = NewRolling(buf)
		}
		for _, cand := range idx.Lookup(digest) {
			candLen := int64(layout.BlockSizeAt(int64(cand)))
			if candLen != int64(len(buf)) {
				continue
			}
			strong := idx.Strong(cand)
			sum := hasher.Sum(buf)
			if int32(len(sum)) > int32(len(strong)) {
				sum = sum[:len(strong)]
			}
			if bytes.Equal(sum, strong) {
				return cand, true
			}
		}
		return 0, false
	}

	for {
		if len(buf) < int(blockLength) {
			more, err := refill()
			if err != nil {
				return err
			}
			if !more {
				break
			}
		}
		if cand, ok := tryMatch(); ok {
			if err := flush(); err != nil {
				return err
			}
			if err := emit(Token{BlockIndex: cand}); err != nil {
				return err
			}
			buf = buf[:0]
			roll = nil
			continue
		}
		// No match at this window: advance by one byte, carrying the
		// departing byte into the pending literal accumulator.
		if int64(len(buf)) < blockLength {
			// Short tail that didn't match as the final short block:
			// flush it entirely as literal and stop.
			pending = append(pending, buf...)
			buf = buf[:0]
			break
		}
		pending = append(pending, buf[0])
		rest := make([]byte, len(buf)-1)
		copy(rest, buf[1:])
		nextByte, err := br.ReadByte()
		if err == io.EOF {
			buf = rest
			continue
		}
		if err != nil {
			return fmt.Errorf("rsyncchecksum: reading target byte: %w", err)
		}
		rest = append(rest, nextByte)
		buf = rest
		roll = nil
		if len(pending) >= MaxLiteralRun {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	if err := flush(); err != nil {
		return err
	}
	return emit(Token{BlockIndex: -1})
}

func chunkAndEmitAll(target io.Reader, emit Emitter) error {
	buf := make([]byte, 64*1024)
	for {
		n, err := target.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			for len(chunk) > 0 {
				c := chunk
				if len(c) > MaxLiteralRun {
					c = c[:MaxLiteralRun]
				}
				if err := emit(Token{Literal: c}); err != nil {
					return err
				}
				chunk = chunk[len(c):]
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("rsyncchecksum: reading target: %w", err)
		}
	}
	return emit(Token{BlockIndex: -1})
}
