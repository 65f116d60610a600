package flist

import "testing"

func TestSanitizeDropsUnsafeEntries(t *testing.T) {
	list := List{
		{Name: "a/b.txt", Kind: KindRegular},
		{Name: "/etc/passwd", Kind: KindRegular},
		{Name: "../etc/passwd", Kind: KindRegular},
		{Name: "a/../../etc/shadow", Kind: KindRegular},
		{Name: "link", Kind: KindSymlink, LinkTarget: "../../etc/passwd"},
		{Name: "safe-link", Kind: KindSymlink, LinkTarget: "a/b.txt"},
	}
	out, dropped := Sanitize(list)
	if dropped != 4 {
		t.Fatalf("dropped %d entries, want 4 (got survivors %v)", dropped, namesOf(out))
	}
	for _, f := range out {
		if f.Name != "a/b.txt" && f.Name != "safe-link" {
			t.Errorf("unexpected surviving entry %q", f.Name)
		}
	}
}

func namesOf(list List) []string {
	var out []string
	for _, f := range list {
		out = append(out, f.Name)
	}
	return out
}

func TestCompareDirectoryBeforeChildren(t *testing.T) {
	a := &File{Name: "a", Kind: KindDirectory}
	ab := &File{Name: "a/b.txt", Kind: KindRegular}
	if Compare(a, ab) >= 0 {
		t.Fatalf("expected directory %q to sort before child %q", a.Name, ab.Name)
	}
	if Compare(ab, a) <= 0 {
		t.Fatalf("expected child %q to sort after directory %q", ab.Name, a.Name)
	}
}
