//go:build linux || darwin

package receiver

import (
	"os"
	"syscall"

	"github.com/oferchen/rsync-sub002/internal/flist"
)

// makeSpecial creates a FIFO, socket, or char/block device node at
// f.Name. An existing node of the same kind is left in place (its
// device numbers are not compared); any other existing entry is
// removed first.
// rsync/rsync.c:do_mknod.
func (rt *Transfer) makeSpecial(f *File) error {
	local := rt.destRoot().path(f.Name)

	var mode uint32
	switch f.Kind {
	case flist.KindFifo:
		mode = syscall.S_IFIFO
	case flist.KindSocket:
		mode = syscall.S_IFSOCK
	case flist.KindCharDevice:
		mode = syscall.S_IFCHR
	case flist.KindBlockDevice:
		mode = syscall.S_IFBLK
	default:
		return nil
	}
	mode |= f.Mode & 0o7777

	if st, err := os.Lstat(local); err == nil {
		if sameSpecial(st, f) {
			return nil
		}
		if err := os.Remove(local); err != nil {
			return err
		}
	}

	dev := mkdev(f.RdevMajor, f.RdevMinor)
	return syscall.Mknod(local, mode, int(dev))
}

// mkdev packs major/minor into the glibc dev_t encoding rsync's wire
// format assumes (spec §4.9: RdevMajor/RdevMinor are glibc-shaped).
func mkdev(major, minor int32) uint64 {
	ma, mi := uint64(uint32(major)), uint64(uint32(minor))
	return mi&0xff | (ma&0xfff)<<8 | (mi&0xffffff00)<<12 | (ma&0xfffff000)<<32
}

func sameSpecial(st os.FileInfo, f *File) bool {
	stt, ok := st.Sys().(*syscall.Stat_t)
	if !ok {
		return false
	}
	wantKind := flist.Kind(0)
	switch {
	case stt.Mode&syscall.S_IFMT == syscall.S_IFIFO:
		wantKind = flist.KindFifo
	case stt.Mode&syscall.S_IFMT == syscall.S_IFSOCK:
		wantKind = flist.KindSocket
	case stt.Mode&syscall.S_IFMT == syscall.S_IFCHR:
		wantKind = flist.KindCharDevice
	case stt.Mode&syscall.S_IFMT == syscall.S_IFBLK:
		wantKind = flist.KindBlockDevice
	}
	return wantKind == f.Kind
}
