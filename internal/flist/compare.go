package flist

import (
	"sort"
	"strings"
)

// Compare implements the canonical upstream-compatible path comparator
// (spec §3 FileList invariant, §9 Open Questions: "treat upstream
// behavior as the reference"). Paths are compared component by
// component in plain byte order; when one path is a strict prefix of
// the other (i.e. it names the ancestor directory of the other), the
// shorter path sorts first, so a directory's own entry always precedes
// its children.
//
// Decided per DESIGN.md "Open Question decisions": component-wise byte
// comparison with directories ordered before their contents at the same
// level.
func Compare(a, b *File) int {
	return compareNames(a.Name, b.Name)
}

func compareNames(a, b string) int {
	if a == b {
		return 0
	}
	ac := strings.Split(a, "/")
	bc := strings.Split(b, "/")
	for i := 0; i < len(ac) && i < len(bc); i++ {
		if ac[i] == bc[i] {
			continue
		}
		if ac[i] < bc[i] {
			return -1
		}
		return 1
	}
	switch {
	case len(ac) < len(bc):
		return -1
	case len(ac) > len(bc):
		return 1
	default:
		return 0
	}
}

// SortList sorts a List in place using Compare.
func SortList(list List) {
	sort.Slice(list, func(i, j int) bool { return Compare(list[i], list[j]) < 0 })
}
