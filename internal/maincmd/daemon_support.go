package maincmd

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/oferchen/rsync-sub002/internal/restrict"
	"github.com/oferchen/rsync-sub002/internal/rsyncos"
	"github.com/oferchen/rsync-sub002/rsyncd"
)

// errIsParent signals a parent process that should exit immediately
// after a forked child takes over; Main treats it the same as "nothing
// left to do here". namespace as implemented here never forks and
// never returns it.
var errIsParent = errors.New("namespace: parent process, exiting")

// namespace prepares the daemon process's privilege and filesystem
// boundary before it starts serving connections: it drops root
// privileges (when running as root) and restricts filesystem access
// to the configured modules, mirroring privdrop.go's dropPrivileges
// plus the restrict package's sandboxing.
//
// gokrazy/rsync has no actual Linux mount-namespace support (unlike
// tridge rsync's chroot); this name is kept because the daemon's
// structure otherwise follows rsync/main.c:daemon_main's namespace
// step one-for-one.
func namespace(osenv *rsyncos.Env, modules []rsyncd.Module, listenAddr string) error {
	if err := dropPrivileges(osenv); err != nil {
		return err
	}
	if !osenv.Restrict() {
		return nil
	}
	var roDirs, rwDirs []string
	for _, mod := range modules {
		if mod.Writable {
			rwDirs = append(rwDirs, mod.Path)
		} else {
			roDirs = append(roDirs, mod.Path)
		}
	}
	return restrict.MaybeFileSystem(roDirs, rwDirs)
}

// canUnexpectedlyWriteTo reports whether path (a read-only module's
// root) is in fact writable by this process, which would indicate a
// misconfiguration: read-only modules are promised read-only to
// clients and must not silently accept writes due to e.g. permissive
// directory permissions.
func canUnexpectedlyWriteTo(path string) error {
	probe := path + "/.gokr-rsync-write-probe"
	f, err := os.OpenFile(probe, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		if os.IsPermission(err) || os.IsNotExist(err) {
			return nil
		}
		return nil
	}
	f.Close()
	os.Remove(probe)
	return fmt.Errorf("module path %s is writable despite being configured read-only", path)
}

// systemdListeners returns the listeners passed via systemd socket
// activation (LISTEN_PID/LISTEN_FDS), or nil when the process was not
// socket-activated. File descriptors start at 3 per the sd_listen_fds
// protocol.
func systemdListeners() ([]net.Listener, error) {
	pidStr := os.Getenv("LISTEN_PID")
	fdsStr := os.Getenv("LISTEN_FDS")
	if pidStr == "" || fdsStr == "" {
		return nil, nil
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid != os.Getpid() {
		return nil, nil
	}
	n, err := strconv.Atoi(fdsStr)
	if err != nil || n <= 0 {
		return nil, nil
	}
	const firstFd = 3
	listeners := make([]net.Listener, 0, n)
	for i := 0; i < n; i++ {
		fd := uintptr(firstFd + i)
		f := os.NewFile(fd, fmt.Sprintf("listen-fd-%d", fd))
		ln, err := net.FileListener(f)
		if err != nil {
			return nil, fmt.Errorf("systemd socket activation fd %d: %w", fd, err)
		}
		listeners = append(listeners, ln)
	}
	return listeners, nil
}
