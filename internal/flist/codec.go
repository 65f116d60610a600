package flist

import (
	"fmt"
	"io"

	"github.com/oferchen/rsync-sub002/internal/rsyncwire"
)

// Flag bits for one file-list entry (spec §4.8, §6.2). Kind and its
// kind-specific fields (symlink target, device major/minor) are always
// present rather than participating in the prefix/mode/uid/gid/mtime
// reuse scheme, since they change far less predictably than those
// fields and the reuse scheme's purpose (per spec §2: "mode/uid/gid
// dedup, mtime deltas") is unaffected by also always sending kind.
const (
	flagSameNamePrefix = 1 << 0
	flagSameSize       = 1 << 1
	flagSameMtime      = 1 << 2
	flagSameMode       = 1 << 3
	flagSameUid        = 1 << 4
	flagSameGid        = 1 << 5
	flagLongName       = 1 << 6
)

// EncodeState carries the prev-name/prev-mode/prev-uid/prev-gid/prev-
// mtime register that must persist across entries -- and, in
// incremental-recursion mode, across sub-list segments (spec §4.8
// "Invariants for reading").
type EncodeState struct {
	prevName  string
	havePrev  bool
	prevMode  uint32
	prevUid   int32
	prevGid   int32
	prevMtime int64
	prevSize  int64

	PreserveUid  bool
	PreserveGid  bool
}

// DecodeState is the receive-side mirror of EncodeState.
type DecodeState struct {
	prevName  string
	havePrev  bool
	prevMode  uint32
	prevUid   int32
	prevGid   int32
	prevMtime int64
	prevSize  int64

	PreserveUid bool
	PreserveGid bool
}

func sharedPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// EncodeEntry writes one File to c, updating st's reuse registers.
func EncodeEntry(c *rsyncwire.Conn, st *EncodeState, f *File) error {
	var flags byte

	prefixLen := 0
	if st.havePrev {
		prefixLen = sharedPrefixLen(st.prevName, f.Name)
		if prefixLen > 255 {
			prefixLen = 255
		}
		if prefixLen > 0 {
			flags |= flagSameNamePrefix
		}
	}
	suffix := f.Name[prefixLen:]
	if len(suffix) > 255 {
		flags |= flagLongName
	}

	sameSize := st.havePrev && f.Size == st.prevSize
	sameMtime := st.havePrev && f.Mtime == st.prevMtime
	sameMode := st.havePrev && f.Mode == st.prevMode
	sameUid := st.PreserveUid && st.havePrev && f.Uid == st.prevUid
	sameGid := st.PreserveGid && st.havePrev && f.Gid == st.prevGid

	if sameSize {
		flags |= flagSameSize
	}
	if sameMtime {
		flags |= flagSameMtime
	}
	if sameMode {
		flags |= flagSameMode
	}
	if sameUid {
		flags |= flagSameUid
	}
	if sameGid {
		flags |= flagSameGid
	}
	if flags == 0 {
		// A zero flags byte is the list terminator; a long-name length
		// keeps every real entry's flags byte non-zero.
		flags |= flagLongName
	}

	if err := c.WriteByte(flags); err != nil {
		return err
	}
	if flags&flagSameNamePrefix != 0 {
		if err := c.WriteVarint(int32(prefixLen)); err != nil {
			return err
		}
	}
	if flags&flagLongName != 0 {
		if err := c.WriteVarint(int32(len(suffix))); err != nil {
			return err
		}
	} else {
		if err := c.WriteByte(byte(len(suffix))); err != nil {
			return err
		}
	}
	if _, err := c.Writer.Write([]byte(suffix)); err != nil {
		return err
	}

	if err := c.WriteByte(byte(f.Kind)); err != nil {
		return err
	}

	if flags&flagSameSize == 0 {
		if err := c.WriteVarlong(f.Size, 3); err != nil {
			return err
		}
	}
	if flags&flagSameMtime == 0 {
		if err := c.WriteVarlong(f.Mtime, 4); err != nil {
			return err
		}
	}
	if flags&flagSameMode == 0 {
		if err := c.WriteVarint(int32(f.Mode)); err != nil {
			return err
		}
	}
	if st.PreserveUid && flags&flagSameUid == 0 {
		if err := c.WriteVarint(f.Uid); err != nil {
			return err
		}
	}
	if st.PreserveGid && flags&flagSameGid == 0 {
		if err := c.WriteVarint(f.Gid); err != nil {
			return err
		}
	}

	switch f.Kind {
	case KindSymlink:
		if err := c.WriteVarint(int32(len(f.LinkTarget))); err != nil {
			return err
		}
		if _, err := c.Writer.Write([]byte(f.LinkTarget)); err != nil {
			return err
		}
	case KindCharDevice, KindBlockDevice:
		if err := c.WriteVarint(f.RdevMajor); err != nil {
			return err
		}
		if err := c.WriteVarint(f.RdevMinor); err != nil {
			return err
		}
	}

	st.prevName = f.Name
	st.prevSize = f.Size
	st.prevMtime = f.Mtime
	st.prevMode = f.Mode
	st.prevUid = f.Uid
	st.prevGid = f.Gid
	st.havePrev = true
	return nil
}

// DecodeEntry reads one File from c. A flags byte of 0x00 read where an
// entry was expected signals the list terminator (spec §4.8); callers
// should peek the flag byte themselves via TryDecodeEntry if they need
// to detect the terminator without an error.
func DecodeEntry(c *rsyncwire.Conn, st *DecodeState) (*File, error) {
	flags, err := c.ReadByte()
	if err != nil {
		return nil, err
	}
	return decodeEntryWithFlags(c, st, flags)
}

// TryDecodeEntry reads the next entry, returning (nil, nil) at the
// terminator byte.
func TryDecodeEntry(c *rsyncwire.Conn, st *DecodeState) (*File, error) {
	flags, err := c.ReadByte()
	if err != nil {
		return nil, err
	}
	if flags == 0 {
		return nil, nil
	}
	return decodeEntryWithFlags(c, st, flags)
}

func decodeEntryWithFlags(c *rsyncwire.Conn, st *DecodeState, flags byte) (*File, error) {
	prefixLen := 0
	if flags&flagSameNamePrefix != 0 {
		v, err := c.ReadVarint()
		if err != nil {
			return nil, err
		}
		prefixLen = int(v)
	}
	var suffixLen int
	if flags&flagLongName != 0 {
		v, err := c.ReadVarint()
		if err != nil {
			return nil, err
		}
		suffixLen = int(v)
	} else {
		b, err := c.ReadByte()
		if err != nil {
			return nil, err
		}
		suffixLen = int(b)
	}
	suffixBytes, err := c.ReadN(suffixLen)
	if err != nil {
		return nil, err
	}
	if prefixLen > len(st.prevName) {
		return nil, fmt.Errorf("flist: shared prefix length %d exceeds previous name length %d", prefixLen, len(st.prevName))
	}
	name := st.prevName[:prefixLen] + string(suffixBytes)

	kindByte, err := c.ReadByte()
	if err != nil {
		return nil, err
	}
	f := &File{Name: name, Kind: Kind(kindByte)}

	if flags&flagSameSize != 0 {
		f.Size = st.prevSize
	} else {
		f.Size, err = c.ReadVarlong(3)
		if err != nil {
			return nil, err
		}
	}
	if flags&flagSameMtime != 0 {
		f.Mtime = st.prevMtime
	} else {
		f.Mtime, err = c.ReadVarlong(4)
		if err != nil {
			return nil, err
		}
	}
	if flags&flagSameMode != 0 {
		f.Mode = st.prevMode
	} else {
		v, err := c.ReadVarint()
		if err != nil {
			return nil, err
		}
		f.Mode = uint32(v)
	}
	if st.PreserveUid {
		if flags&flagSameUid != 0 {
			f.Uid = st.prevUid
		} else {
			f.Uid, err = c.ReadVarint()
			if err != nil {
				return nil, err
			}
		}
	}
	if st.PreserveGid {
		if flags&flagSameGid != 0 {
			f.Gid = st.prevGid
		} else {
			f.Gid, err = c.ReadVarint()
			if err != nil {
				return nil, err
			}
		}
	}

	switch f.Kind {
	case KindSymlink:
		n, err := c.ReadVarint()
		if err != nil {
			return nil, err
		}
		b, err := c.ReadN(int(n))
		if err != nil {
			return nil, err
		}
		f.LinkTarget = string(b)
	case KindCharDevice, KindBlockDevice:
		f.RdevMajor, err = c.ReadVarint()
		if err != nil {
			return nil, err
		}
		f.RdevMinor, err = c.ReadVarint()
		if err != nil {
			return nil, err
		}
	}

	st.prevName = f.Name
	st.prevSize = f.Size
	st.prevMtime = f.Mtime
	st.prevMode = f.Mode
	st.prevUid = f.Uid
	st.prevGid = f.Gid
	st.havePrev = true
	return f, nil
}

// EncodeList writes list followed by the terminator byte.
func EncodeList(c *rsyncwire.Conn, st *EncodeState, list List) error {
	for _, f := range list {
		if err := EncodeEntry(c, st, f); err != nil {
			return err
		}
	}
	return c.WriteByte(0)
}

// DecodeList reads entries until the terminator byte.
func DecodeList(c *rsyncwire.Conn, st *DecodeState) (List, error) {
	var out List
	for {
		f, err := TryDecodeEntry(c, st)
		if err != nil {
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		if f == nil {
			return out, nil
		}
		out = append(out, f)
	}
}
