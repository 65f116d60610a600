package receiver

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oferchen/rsync-sub002/internal/flist"
	"github.com/oferchen/rsync-sub002/internal/log"
	"github.com/oferchen/rsync-sub002/internal/rsyncos"
	"github.com/oferchen/rsync-sub002/internal/rsyncstats"
	"github.com/oferchen/rsync-sub002/internal/rsyncwire"
	"github.com/google/renameio/v2"
)

// File is the FileEntry type the receiver operates on, shared with the
// wire codec in internal/flist.
type File = flist.File

// TransferOpts mirrors the subset of rsyncopts.Options that the
// receiver role needs, so this package does not depend on the CLI
// option table directly (internal/maincmd and rsyncd both translate
// their *rsyncopts.Options into one of these).
type TransferOpts struct {
	Verbose bool
	DryRun  bool
	Server  bool

	DeleteMode bool

	PreserveGid       bool
	PreserveUid       bool
	PreserveLinks     bool
	PreservePerms     bool
	PreserveDevices   bool
	PreserveSpecials  bool
	PreserveTimes     bool
	PreserveHardlinks bool

	// Sparse enables logical-seek deferral of zero runs on output
	// (spec §2, §4.11 step 6).
	Sparse bool

	// WholeFile skips basis selection entirely and always transfers a
	// full-file literal (spec §4.11 step 2 "On --whole-file, skip this
	// step").
	WholeFile bool

	// FuzzyBasis enables same-directory similar-name+size basis search
	// when no reference-directory or exact-path basis is found (spec
	// §4.11 step 2).
	FuzzyBasis bool

	// CompareDest, CopyDest, and LinkDest are searched in that order,
	// before the fuzzy match, for a basis file when the destination
	// path itself doesn't yield one (spec §4.11 step 2). CopyDest and
	// LinkDest additionally seed the destination from the reference
	// copy once a basis match is found: CopyDest by copying the bytes,
	// LinkDest by hard-linking.
	CompareDest []string
	CopyDest    []string
	LinkDest    []string
}

// Transfer holds the state of one receiver-role run: the connection,
// the negotiated checksum seed, the destination root, and the locally
// accumulated counters (spec §4.11, §4.13).
type Transfer struct {
	Logger log.Logger
	Opts   *TransferOpts
	Dest   string
	Env    rsyncos.Std
	Conn   *rsyncwire.Conn
	Seed   int32

	IOErrors int
	Stats    rsyncstats.Counters

	// pipe overlaps network decode and disk commit (spec §4.13). It is
	// created by Do before the generator and receiver goroutines start.
	pipe *pipeline

	// statsMu guards Stats, which the generator goroutine and the
	// pipeline's disk-commit worker goroutine both update concurrently.
	statsMu sync.Mutex
}

// addMetadataError records err against name, safe for concurrent callers.
func (rt *Transfer) addMetadataError(name string, err error) {
	rt.statsMu.Lock()
	rt.Stats.AddMetadataError(name, err)
	rt.statsMu.Unlock()
}

// DestRoot scopes filesystem operations to the transfer's destination
// directory. It stands in for os.Root (unavailable before Go 1.24)
// while still keeping every path access funneled through one type that
// a future os.Root migration can replace without touching call sites.
type DestRoot struct {
	base string
}

func (rt *Transfer) destRoot() DestRoot { return DestRoot{base: rt.Dest} }

func (d DestRoot) path(name string) string {
	if name == "" || name == "." {
		return d.base
	}
	return filepath.Join(d.base, name)
}

// Open opens name relative to the destination root.
func (d DestRoot) Open(name string) (*os.File, error) {
	return os.Open(d.path(name))
}

// Lstat lstats name relative to the destination root.
func (d DestRoot) Lstat(name string) (fs.FileInfo, error) {
	return os.Lstat(d.path(name))
}

// Mkdir creates name (relative to the destination root) if it does not
// already exist as a directory.
func (d DestRoot) Mkdir(name string, perm fs.FileMode) error {
	full := d.path(name)
	st, err := os.Lstat(full)
	if err == nil {
		if st.IsDir() {
			return nil
		}
		return fmt.Errorf("%s exists and is not a directory", full)
	}
	if !os.IsNotExist(err) {
		return err
	}
	return os.MkdirAll(full, perm)
}

// setPerms applies the transferred metadata (ownership, permissions,
// mtime) to the file just committed at f.Name, mirroring
// rsync/rsync.c:set_perms. Ownership is applied first since changing
// it can clear setuid/setgid bits a subsequent chmod must restore.
func (rt *Transfer) setPerms(f *File) error {
	local := rt.destRoot().path(f.Name)
	st, err := rt.destRoot().Lstat(f.Name)
	if err != nil {
		return err
	}

	if rt.Opts.PreserveUid || rt.Opts.PreserveGid {
		st, err = rt.setUid(f, local, st)
		if err != nil {
			return err
		}
	}

	isSymlink := st.Mode()&fs.ModeSymlink != 0
	if rt.Opts.PreservePerms && !isSymlink {
		if err := os.Chmod(local, fs.FileMode(f.Mode)&fs.ModePerm); err != nil {
			return err
		}
	}

	if rt.Opts.PreserveTimes && !isSymlink {
		mtime := time.Unix(f.Mtime, int64(f.MtimeNsec))
		if err := os.Chtimes(local, mtime, mtime); err != nil {
			return err
		}
	}

	return nil
}

// newPendingFile opens path for atomic replace-on-close, the same
// rename-into-place discipline generatorsymlink.go uses for symlinks.
func newPendingFile(path string) (*renameio.PendingFile, error) {
	return renameio.NewPendingFile(path)
}
