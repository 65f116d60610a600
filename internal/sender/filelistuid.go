//go:build linux || darwin

package sender

import (
	"os"
	"syscall"

	"github.com/oferchen/rsync-sub002/internal/flist"
)

// fillPlatformFields adds the uid/gid/hardlink-count/device-number
// fields FromFileInfo cannot derive from the portable fs.FileInfo
// surface (spec §3 FileEntry), mirroring internal/receiver's
// generatoruid.go use of syscall.Stat_t.
func fillPlatformFields(f *flist.File, info os.FileInfo) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	f.Uid = int32(st.Uid)
	f.Gid = int32(st.Gid)
	f.NumHardLinks = int32(st.Nlink)
	if f.Kind == flist.KindCharDevice || f.Kind == flist.KindBlockDevice {
		f.RdevMajor = int32(st.Rdev >> 8 & 0xfff)
		f.RdevMinor = int32(st.Rdev&0xff | (st.Rdev>>12)&0xfffff00)
	}
}
