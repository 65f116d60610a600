// Package flist implements the FileEntry/FileList data model and its
// wire codec (spec §3, §4.8, §6.2): compact entry encoding with
// prev-name prefix reuse, mode/uid/gid dedup, mtime deltas, plus the
// canonical comparator and the unsafe-path sanitizer.
package flist

import "os"

// Kind enumerates the FileEntry.Kind values carried on the wire.
type Kind int

const (
	KindRegular Kind = iota
	KindDirectory
	KindSymlink
	KindFifo
	KindCharDevice
	KindBlockDevice
	KindSocket
)

// File is one node in the transferred tree (spec §3 FileEntry).
type File struct {
	Name string // relative path, '/'-separated
	Kind Kind

	Size  int64
	Mtime int64 // seconds
	MtimeNsec int32

	Mode uint32
	Uid  int32
	Gid  int32

	// LinkTarget is set iff Kind == KindSymlink.
	LinkTarget string

	// Rdev carries major/minor device numbers for char/block devices.
	RdevMajor int32
	RdevMinor int32

	// NumHardLinks is non-zero for entries sharing inode identity.
	NumHardLinks int32
}

// IsRegular reports whether f is a plain file (spec invariant: size ==
// 0 for non-regular entries).
func (f *File) IsRegular() bool { return f.Kind == KindRegular }

func kindFromMode(mode os.FileMode) Kind {
	switch {
	case mode&os.ModeSymlink != 0:
		return KindSymlink
	case mode.IsDir():
		return KindDirectory
	case mode&os.ModeNamedPipe != 0:
		return KindFifo
	case mode&os.ModeSocket != 0:
		return KindSocket
	case mode&os.ModeDevice != 0:
		if mode&os.ModeCharDevice != 0 {
			return KindCharDevice
		}
		return KindBlockDevice
	default:
		return KindRegular
	}
}

// FromFileInfo builds a File for name from a local os.FileInfo, used by
// the generator's tree walk.
func FromFileInfo(name string, fi os.FileInfo) *File {
	f := &File{
		Name: name,
		Kind: kindFromMode(fi.Mode()),
		Mode: uint32(fi.Mode().Perm()),
		Mtime: fi.ModTime().Unix(),
		MtimeNsec: int32(fi.ModTime().Nanosecond()),
	}
	if f.IsRegular() {
		f.Size = fi.Size()
	}
	return f
}

// List is an ordered FileList (spec §3): sorted by the canonical
// comparator before transmission; NDX values address it positionally.
type List []*File

// Segment records a (flat_start, ndx_start) boundary for incremental-
// recursion mode (spec §3 FileList lifecycle), letting flat array
// indices be converted to wire NDX values.
type Segment struct {
	FlatStart int
	NdxStart  int32
}
