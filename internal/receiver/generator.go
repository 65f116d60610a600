package receiver

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/oferchen/rsync-sub002"
	"github.com/oferchen/rsync-sub002/internal/flist"
	"github.com/oferchen/rsync-sub002/internal/rsyncchecksum"
	"github.com/oferchen/rsync-sub002/internal/rsyncwire"
)

// ReceiveFileList decodes the sender's file list from the wire (spec
// §4.8) and sorts it by the canonical comparator, matching the order
// the sender walked its own tree in.
func (rt *Transfer) ReceiveFileList() ([]*File, error) {
	st := &flist.DecodeState{
		PreserveUid: rt.Opts.PreserveUid,
		PreserveGid: rt.Opts.PreserveGid,
	}
	list, err := flist.DecodeList(rt.Conn, st)
	if err != nil {
		return nil, fmt.Errorf("receiving file list: %w", err)
	}
	list, dropped := flist.Sanitize(list)
	if dropped > 0 {
		rt.Logger.Printf("dropped %d unsafe file list entries", dropped)
	}
	flist.SortList(list)
	return list, nil
}

func findInFileList(fileList []*File, name string) bool {
	for _, f := range fileList {
		if f.Name == name {
			return true
		}
	}
	return false
}

// GenerateFiles is the generator role (spec §4.10, §4.11): it walks the
// received file list in order, creates non-regular entries directly,
// and for every regular file that fails the quick check it sends the
// basis signature for the sender to diff against. Regular-file requests
// are gated by the pipeline's request window so the disk-commit worker
// never falls arbitrarily far behind (spec §4.13). Once phase 1 drains,
// any file the commit worker flagged for a whole-file redo (spec §4.11
// step 7, §8 scenario 5) is requested again with an empty basis.
// rsync/generator.c:generate_files.
func (rt *Transfer) GenerateFiles(fileList []*File) error {
	const protocolVersion = rsync.ProtocolVersion

	for ndx, f := range fileList {
		if err := rt.generateFile(int32(ndx), f, protocolVersion, false); err != nil {
			rt.addMetadataError(f.Name, err)
			rt.Logger.Printf("generating %s: %v, continuing", f.Name, err)
		}
	}

	if err := rt.Conn.WriteNdx(protocolVersion, -1); err != nil {
		return err
	}

	// End of phase 1: wait for every outstanding commit to resolve so
	// the redo list is final, then requeue any whole-file mismatches
	// with an empty basis before sending the real goodbye (spec §4.11
	// step 7, protocol < 31 two-NDX_DONE handshake).
	rt.pipe.awaitDrain()
	redo := rt.pipe.takeRedo()
	if len(redo) > 0 {
		rt.statsMu.Lock()
		rt.Stats.RedoCount += len(redo)
		rt.statsMu.Unlock()
	}
	for _, ndx := range redo {
		f := fileList[ndx]
		if err := rt.generateFile(ndx, f, protocolVersion, true); err != nil {
			rt.addMetadataError(f.Name, err)
			rt.Logger.Printf("generating %s (redo): %v, continuing", f.Name, err)
		}
	}

	// Wait for the redo pass's commits too, so a phase-2 failure is
	// visible on rt.pipe.Err() before Do() reports success.
	rt.pipe.awaitDrain()

	return rt.Conn.WriteNdx(protocolVersion, -1)
}

func (rt *Transfer) generateFile(ndx int32, f *File, protocolVersion int, phase2 bool) error {
	switch f.Kind {
	case flist.KindDirectory:
		if phase2 {
			return nil
		}
		if rt.Opts.DryRun {
			return nil
		}
		if err := rt.destRoot().Mkdir(f.Name, 0755); err != nil {
			return err
		}
		return rt.setPerms(f)

	case flist.KindSymlink:
		if phase2 || !rt.Opts.PreserveLinks || rt.Opts.DryRun {
			return nil
		}
		local := rt.destRoot().path(f.Name)
		if target, err := os.Readlink(local); err == nil && target == f.LinkTarget {
			return nil
		}
		os.Remove(local)
		if err := symlink(f.LinkTarget, local); err != nil {
			return err
		}
		return rt.setPerms(f)

	case flist.KindCharDevice, flist.KindBlockDevice, flist.KindFifo, flist.KindSocket:
		if phase2 {
			return nil
		}
		if !rt.Opts.PreserveDevices && !rt.Opts.PreserveSpecials {
			return nil
		}
		if rt.Opts.DryRun {
			return nil
		}
		if err := rt.makeSpecial(f); err != nil {
			return err
		}
		return rt.setPerms(f)

	default:
		return rt.generateRegularFile(ndx, f, protocolVersion, phase2)
	}
}

// generateRegularFile applies the quick check (spec §4.11 step 2) and,
// when the destination file cannot be trusted as-is, selects a basis
// (exact destination, reference directory, or fuzzy match) and sends
// its signature so the sender can diff against it. A phase-2 (redo)
// request always uses an empty basis, since the destination's own
// bytes already failed the whole-file checksum once (spec §4.11 step
// 7).
func (rt *Transfer) generateRegularFile(ndx int32, f *File, protocolVersion int, phase2 bool) error {
	local := rt.destRoot().path(f.Name)

	if !phase2 {
		st, err := os.Lstat(local)
		upToDate := err == nil && st.Mode().IsRegular() &&
			st.Size() == f.Size && st.ModTime().Unix() == f.Mtime
		if upToDate {
			if rt.Opts.Verbose {
				rt.Logger.Printf("%s is up to date", f.Name)
			}
			return nil
		}
	}

	if rt.Opts.DryRun {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
		return err
	}

	// The window slot acquired here is released by the disk-commit
	// worker once it resolves the file we're about to request (spec
	// §4.13), not by this function returning — unless we abort before
	// ever sending the request, in which case no job will exist to
	// release it for us.
	rt.pipe.acquireWindow()

	var basisPath string
	var sig *rsyncchecksum.Signature

	switch {
	case phase2 || rt.Opts.WholeFile:
		sig = &rsyncchecksum.Signature{}

	default:
		var seeded bool
		var err error
		if st, statErr := os.Lstat(local); statErr != nil || !st.Mode().IsRegular() {
			basisPath, seeded, err = rt.findBasis(f, local)
		}
		if err != nil {
			rt.pipe.releaseWindow()
			return err
		}
		if seeded {
			// compare-dest (exact match, nothing to send) or
			// copy-dest/link-dest (destination already materialized):
			// no transfer needed at all.
			rt.pipe.releaseWindow()
			if rt.Opts.Verbose {
				rt.Logger.Printf("%s matched a reference directory, skipping transfer", f.Name)
			}
			return nil
		}
		if basisPath == "" {
			basisPath = local
		}
		sig, err = rt.buildBasisSignature(basisPath, protocolVersion)
		if err != nil {
			rt.pipe.releaseWindow()
			return err
		}
	}

	if err := rt.Conn.WriteNdx(protocolVersion, ndx); err != nil {
		rt.pipe.releaseWindow()
		return err
	}
	if err := writeSignature(rt.Conn, sig); err != nil {
		rt.pipe.releaseWindow()
		return err
	}
	return nil
}

// buildBasisSignature builds a block signature from path, or an empty
// one if path doesn't exist or isn't a regular file.
func (rt *Transfer) buildBasisSignature(path string, protocolVersion int) (*rsyncchecksum.Signature, error) {
	st, err := os.Lstat(path)
	if err != nil || !st.Mode().IsRegular() {
		return &rsyncchecksum.Signature{}, nil
	}
	basis, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer basis.Close()
	return rsyncchecksum.BuildSignature(basis, st.Size(), protocolVersion, rsyncchecksum.MD4, rt.Seed, false)
}

// findBasis searches compare-dest, copy-dest, and link-dest directories
// (in that order) for a usable basis, falling back to a same-directory
// fuzzy name+size match when enabled (spec §4.11 step 2). seeded is
// true when the destination has already been fully materialized
// (compare-dest exact match needing no transfer, or copy-dest/
// link-dest seeding the destination from the reference copy) and no
// request should be sent at all.
func (rt *Transfer) findBasis(f *File, local string) (path string, seeded bool, err error) {
	type refDirs struct {
		dirs []string
		kind string
	}
	for _, rd := range []refDirs{
		{rt.Opts.CompareDest, "compare"},
		{rt.Opts.CopyDest, "copy"},
		{rt.Opts.LinkDest, "link"},
	} {
		for _, dir := range rd.dirs {
			candidate := filepath.Join(dir, f.Name)
			st, statErr := os.Stat(candidate)
			if statErr != nil || !st.Mode().IsRegular() {
				continue
			}
			exact := st.Size() == f.Size && (!rt.Opts.PreserveTimes || st.ModTime().Unix() == f.Mtime)

			switch rd.kind {
			case "compare":
				if exact {
					return "", true, nil
				}

			case "copy":
				if exact {
					if err := copyFile(candidate, local); err != nil {
						return "", false, err
					}
					return "", true, nil
				}

			case "link":
				if exact {
					os.Remove(local)
					if err := os.Link(candidate, local); err != nil {
						if err := copyFile(candidate, local); err != nil {
							return "", false, err
						}
					}
					return "", true, nil
				}
			}

			// Not an exact match: still a better basis than nothing,
			// but keep searching later reference dirs in case one of
			// them has an exact match instead.
			if path == "" {
				path = candidate
			}
		}
	}
	if path != "" {
		return path, false, nil
	}

	if rt.Opts.FuzzyBasis {
		if candidate := rt.fuzzyMatch(f, local); candidate != "" {
			return candidate, false, nil
		}
	}

	return "", false, nil
}

// copyFile materializes dst as a byte-for-byte copy of src, used by
// copy-dest and as link-dest's cross-device fallback.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := newPendingFile(dst)
	if err != nil {
		return err
	}
	defer out.Cleanup()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.CloseAtomicallyReplace()
}

// fuzzyMatch looks in f's destination directory for a same-size file
// whose name shares the longest prefix with f.Name, for use as a basis
// when no exact match exists anywhere (spec §4.11 step 2, --fuzzy).
// rsync/generator.c:find_fuzzy.
func (rt *Transfer) fuzzyMatch(f *File, local string) string {
	dir := filepath.Dir(local)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	base := filepath.Base(f.Name)
	best := ""
	bestLen := -1
	for _, e := range entries {
		if e.IsDir() || e.Name() == base {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() || info.Size() != f.Size {
			continue
		}
		if n := commonPrefixLen(base, e.Name()); n > bestLen {
			bestLen = n
			best = e.Name()
		}
	}
	if best == "" {
		return ""
	}
	return filepath.Join(dir, best)
}

func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

// writeSignature sends a SumHead followed by its (rolling, strong)
// block tuples (spec §6.3, §4.11 step 3): rsync/generator.c:
// generate_and_send_sums.
func writeSignature(c *rsyncwire.Conn, sig *rsyncchecksum.Signature) error {
	sh := rsync.SumHead{
		ChecksumCount:   int32(sig.Layout.BlockCount),
		BlockLength:     sig.Layout.BlockLength,
		ChecksumLength:  sig.Layout.StrongSumLength,
		RemainderLength: sig.Layout.Remainder,
	}
	if err := sh.WriteTo(c); err != nil {
		return err
	}
	for _, b := range sig.Blocks {
		if err := c.WriteInt32(int32(b.Rolling)); err != nil {
			return err
		}
		if _, err := c.Writer.Write(b.Strong); err != nil {
			return err
		}
	}
	return nil
}
