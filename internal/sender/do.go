package sender

import (
	"fmt"
	"io"
	"os"

	"github.com/oferchen/rsync-sub002"
	"github.com/oferchen/rsync-sub002/internal/flist"
	"github.com/oferchen/rsync-sub002/internal/rsyncchecksum"
	"github.com/oferchen/rsync-sub002/internal/rsyncstats"
	"github.com/oferchen/rsync-sub002/internal/rsyncwire"
)

// Do is the sender role's main loop (spec §4.4, §4.10): send the file
// list, then answer each basis-signature request from the generator in
// turn until its goodbye, and finally report transfer statistics.
// rsync/main.c:do_server_sender and client_run's sender branch.
func (st *Transfer) Do(crd *rsyncwire.CountingReader, cwr *rsyncwire.CountingWriter, trimPrefix, root string, sources []string, exclusionList *FilterList) (*rsyncstats.TransferStats, error) {
	list, paths, totalSize, err := buildFileList(root, trimPrefix, sources)
	if err != nil {
		return nil, fmt.Errorf("sender: building file list: %w", err)
	}
	if st.verbose() {
		st.Logger.Printf("sender file list: %d entries, %d bytes total", len(list), totalSize)
	}

	es := &flist.EncodeState{}
	if st.Opts != nil {
		es.PreserveUid = st.Opts.PreserveUid()
		es.PreserveGid = st.Opts.PreserveGid()
	}
	if err := flist.EncodeList(st.Conn, es, list); err != nil {
		return nil, fmt.Errorf("sender: sending file list: %w", err)
	}

	const protocolVersion = rsync.ProtocolVersion
	phase := 0
	for {
		ndx, err := st.Conn.ReadNdx(protocolVersion)
		if err != nil {
			return nil, fmt.Errorf("sender: reading ndx: %w", err)
		}
		if ndx == -1 {
			// Echo each NDX_DONE; the second one ends the transfer loop.
			if err := st.Conn.WriteNdx(protocolVersion, -1); err != nil {
				return nil, err
			}
			if phase == 0 {
				phase++
				continue
			}
			break
		}
		if ndx < 0 || int(ndx) >= len(list) {
			return nil, fmt.Errorf("sender: ndx %d out of range (%d files)", ndx, len(list))
		}
		sig, err := readSignature(st.Conn)
		if err != nil {
			return nil, fmt.Errorf("sender: reading signature for %s: %w", list[ndx].Name, err)
		}
		sh := rsync.SumHead{ChecksumCount: int32(sig.Layout.BlockCount), BlockLength: sig.Layout.BlockLength,
			ChecksumLength: sig.Layout.StrongSumLength, RemainderLength: sig.Layout.Remainder}
		if err := st.Conn.WriteNdx(protocolVersion, ndx); err != nil {
			return nil, err
		}
		if err := sh.WriteTo(st.Conn); err != nil {
			return nil, err
		}
		if err := st.sendDelta(list[ndx], paths[ndx], sig); err != nil {
			return nil, fmt.Errorf("sender: sending delta for %s: %w", list[ndx].Name, err)
		}
	}

	stats := statsFromCounters(crd, cwr, totalSize)
	if err := stats.WriteTo(st.Conn, protocolVersion); err != nil {
		return nil, fmt.Errorf("sender: writing stats: %w", err)
	}

	// The receiver's Do() writes a final NDX_DONE once it has consumed
	// the statistics (spec §4.11 step 7); read it to complete the
	// goodbye handshake before returning. A peer that closes the
	// connection instead is treated as a completed goodbye.
	if _, err := st.Conn.ReadInt32(); err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("sender: reading goodbye: %w", err)
	}

	return stats, nil
}

// sendDelta streams path (the sender's own copy of f) against sig (the
// basis signature the generator built from the receiver's existing
// file), emitting a DeltaScript followed by the whole-file checksum the
// receiver verifies its reconstruction against.
func (st *Transfer) sendDelta(f *flist.File, path string, sig *rsyncchecksum.Signature) error {
	source, err := os.Open(path)
	if err != nil {
		return err
	}
	defer source.Close()

	idx := rsyncchecksum.NewIndex(sig)
	h := rsyncchecksum.NewFileChecksumHasher(rsyncchecksum.MD4, st.Seed)
	tee := io.TeeReader(source, h)

	err = rsyncchecksum.GenerateDelta(tee, idx, rsyncchecksum.MD4, st.Seed, false, func(tok rsyncchecksum.Token) error {
		return writeToken(st.Conn, tok)
	})
	if err != nil {
		return err
	}

	_, err = st.Conn.Writer.Write(h.Sum(nil))
	return err
}

// readSignature is the sender-side mirror of the receiver's
// writeSignature: a SumHead followed by its (rolling, strong) block
// tuples (spec §6.3).
func readSignature(c *rsyncwire.Conn) (*rsyncchecksum.Signature, error) {
	var sh rsync.SumHead
	if err := sh.ReadFrom(c); err != nil {
		return nil, err
	}
	layout := rsyncchecksum.Layout{
		BlockLength:     sh.BlockLength,
		Remainder:       sh.RemainderLength,
		BlockCount:      int64(sh.ChecksumCount),
		StrongSumLength: sh.ChecksumLength,
	}
	sig := &rsyncchecksum.Signature{Layout: layout}
	for i := int64(0); i < layout.BlockCount; i++ {
		rolling, err := c.ReadInt32()
		if err != nil {
			return nil, err
		}
		strong, err := c.ReadN(int(sh.ChecksumLength))
		if err != nil {
			return nil, err
		}
		sig.Blocks = append(sig.Blocks, rsyncchecksum.BlockHash{Rolling: uint32(rolling), Strong: strong})
	}
	return sig, nil
}

// writeToken encodes one DeltaScript token in the literal-length/
// block-index wire form internal/receiver.streamTokens decodes.
func writeToken(c *rsyncwire.Conn, tok rsyncchecksum.Token) error {
	if tok.Literal != nil {
		if err := c.WriteInt32(int32(len(tok.Literal))); err != nil {
			return err
		}
		_, err := c.Writer.Write(tok.Literal)
		return err
	}
	if tok.BlockIndex < 0 {
		return c.WriteInt32(0)
	}
	return c.WriteInt32(-(tok.BlockIndex + 1))
}
