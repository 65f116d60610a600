package sender

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/oferchen/rsync-sub002/internal/flist"
)

// buildFileList walks root (the real filesystem path the sender was
// invoked against) and returns the wire FileList plus the absolute
// filesystem path backing each entry, keyed by the same index (spec
// §4.8, client_run's sender branch). trimPrefix carries the trailing-
// slash convention: "foo/" means "send the contents of foo", while
// "foo" means "send foo itself as the tree's root entry". sources
// restricts the walk to the requested top-level names, mirroring the
// rsync daemon's multi-path module requests.
func buildFileList(root, trimPrefix string, sources []string) (flist.List, []string, int64, error) {
	includeContents := strings.HasSuffix(trimPrefix, "/")
	namePrefix := strings.TrimSuffix(trimPrefix, "/")

	var list flist.List
	var paths []string
	var totalSize int64

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}

		var name string
		switch {
		case rel == ".":
			if includeContents {
				return nil
			}
			name = namePrefix
		case includeContents:
			name = rel
		default:
			name = namePrefix + "/" + rel
		}
		name = filepath.ToSlash(name)

		if !sourceSelected(sources, name) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		f := flist.FromFileInfo(name, info)
		fillPlatformFields(f, info)

		if f.Kind == flist.KindSymlink {
			target, err := os.Readlink(p)
			if err != nil {
				return err
			}
			f.LinkTarget = target
		}
		if f.IsRegular() {
			totalSize += f.Size
		}

		list = append(list, f)
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return nil, nil, 0, err
	}

	flist.SortList(list)
	// SortList reorders list in place; rebuild paths to match.
	byName := make(map[string]string, len(paths))
	for i, f := range list {
		byName[f.Name] = paths[i]
	}
	sortedPaths := make([]string, len(list))
	for i, f := range list {
		sortedPaths[i] = byName[f.Name]
	}

	return list, sortedPaths, totalSize, nil
}

// sourceSelected reports whether name falls under one of the requested
// top-level sources, or whether no restriction was requested at all.
func sourceSelected(sources []string, name string) bool {
	if len(sources) == 0 {
		return true
	}
	for _, s := range sources {
		s = strings.TrimSuffix(s, "/")
		if s == "" || s == "." || name == s || strings.HasPrefix(name, s+"/") {
			return true
		}
	}
	return false
}
