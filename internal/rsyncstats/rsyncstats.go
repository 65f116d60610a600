// Package rsyncstats holds the end-of-transfer statistics exchanged
// between sender and receiver (spec §4.12) and the local counters a
// transfer accumulates along the way.
package rsyncstats

import "github.com/oferchen/rsync-sub002/internal/rsyncwire"

// TransferStats is the five-value report the sender writes after the
// last file and the receiver (in client mode) consumes.
type TransferStats struct {
	Read    int64 // total bytes read from the network connection
	Written int64 // total bytes written to the network connection
	Size    int64 // total size of all files in the transfer

	// FlistBuildTimeMs and FlistXferTimeMs are only present for
	// protocol >= 29; both are zero when the peer didn't send them.
	FlistBuildTimeMs int64
	FlistXferTimeMs  int64
}

// ReadFrom decodes a TransferStats from c, matching the encoding
// WriteTo produces for the same protocolVersion.
func (s *TransferStats) ReadFrom(c *rsyncwire.Conn, protocolVersion int) error {
	var err error
	if s.Read, err = readLong(c, protocolVersion); err != nil {
		return err
	}
	if s.Written, err = readLong(c, protocolVersion); err != nil {
		return err
	}
	if s.Size, err = readLong(c, protocolVersion); err != nil {
		return err
	}
	if protocolVersion >= 29 {
		if s.FlistBuildTimeMs, err = readLong(c, protocolVersion); err != nil {
			return err
		}
		if s.FlistXferTimeMs, err = readLong(c, protocolVersion); err != nil {
			return err
		}
	}
	return nil
}

// WriteTo encodes s to c for protocolVersion.
func (s *TransferStats) WriteTo(c *rsyncwire.Conn, protocolVersion int) error {
	if err := writeLong(c, protocolVersion, s.Read); err != nil {
		return err
	}
	if err := writeLong(c, protocolVersion, s.Written); err != nil {
		return err
	}
	if err := writeLong(c, protocolVersion, s.Size); err != nil {
		return err
	}
	if protocolVersion >= 29 {
		if err := writeLong(c, protocolVersion, s.FlistBuildTimeMs); err != nil {
			return err
		}
		if err := writeLong(c, protocolVersion, s.FlistXferTimeMs); err != nil {
			return err
		}
	}
	return nil
}

func readLong(c *rsyncwire.Conn, protocolVersion int) (int64, error) {
	if protocolVersion < 30 {
		return c.ReadInt64()
	}
	return c.ReadVarlong(3)
}

func writeLong(c *rsyncwire.Conn, protocolVersion int, v int64) error {
	if protocolVersion < 30 {
		return c.WriteInt64(v)
	}
	return c.WriteVarlong(v, 3)
}

// Counters accumulates the per-transfer figures a role driver tracks
// locally while running, independent of what gets reported over the
// wire: files listed/transferred, bytes matched from the basis versus
// received as literal data, REDO occurrences, and I/O errors. The
// receiver's Transfer carries one as its Stats field; the sender does
// not, and nothing in the module folds it into a TransferStats.
type Counters struct {
	FilesListed      int
	FilesTransferred int

	BytesMatched  int64 // bytes satisfied from the basis file
	BytesLiteral  int64 // bytes received/sent as literal data

	RedoCount int
	IOErrors  int

	// MetadataErrors records per-file errors (permission denied,
	// vanished file, ...) that don't abort the whole transfer.
	MetadataErrors []FileError
}

// FileError pairs a file name with a non-fatal error encountered while
// processing it.
type FileError struct {
	Name string
	Err  error
}

// AddMetadataError appends a non-fatal per-file error and bumps the
// I/O error count, mirroring how upstream counts "IO error" for the
// purpose of suppressing post-transfer file deletion.
func (c *Counters) AddMetadataError(name string, err error) {
	c.MetadataErrors = append(c.MetadataErrors, FileError{Name: name, Err: err})
	c.IOErrors++
}

// ToTransferStats projects the locally tracked counters into the
// wire-shaped TransferStats, with read/written left for the caller to
// fill in from the connection's byte counters.
func (c *Counters) ToTransferStats(totalSize int64) *TransferStats {
	return &TransferStats{
		Size: totalSize,
	}
}
