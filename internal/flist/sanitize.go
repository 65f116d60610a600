package flist

import (
	"path"
	"strings"
)

// Sanitize removes every entry whose path is absolute, contains a `..`
// component, or (for symlinks) whose target would resolve outside the
// tree root (spec §8 property 8, §8 scenario 6). It returns the
// filtered list and the number of entries dropped.
func Sanitize(list List) (List, int) {
	out := make(List, 0, len(list))
	dropped := 0
	for _, f := range list {
		if !safePath(f.Name) {
			dropped++
			continue
		}
		if f.Kind == KindSymlink && !safeSymlinkTarget(f.Name, f.LinkTarget) {
			dropped++
			continue
		}
		out = append(out, f)
	}
	return out, dropped
}

func safePath(name string) bool {
	if name == "" {
		return false
	}
	if path.IsAbs(name) {
		return false
	}
	for _, comp := range strings.Split(name, "/") {
		if comp == ".." {
			return false
		}
	}
	return true
}

// safeSymlinkTarget reports whether a symlink named `name` pointing at
// `target` stays within the transferred tree once resolved relative to
// its own directory.
func safeSymlinkTarget(name, target string) bool {
	if target == "" {
		return false
	}
	if path.IsAbs(target) {
		return false
	}
	dir := path.Dir(name)
	resolved := path.Join(dir, target)
	return safePath(resolved) && !strings.HasPrefix(resolved, "../")
}
