package flist

import (
	"bytes"
	"testing"

	"github.com/oferchen/rsync-sub002/internal/rsyncwire"
)

func sampleList() List {
	return List{
		{Name: ".", Kind: KindDirectory, Mode: 0755, Mtime: 1000},
		{Name: "a", Kind: KindDirectory, Mode: 0755, Mtime: 1000, Uid: 1, Gid: 1},
		{Name: "a/b.txt", Kind: KindRegular, Size: 100, Mode: 0644, Mtime: 1001, Uid: 1, Gid: 1},
		{Name: "a/c.sym", Kind: KindSymlink, Mode: 0777, Mtime: 1001, LinkTarget: "b.txt"},
		{Name: "zzz", Kind: KindRegular, Size: 0, Mode: 0644, Mtime: 1002},
	}
}

func TestEncodeDecodeListRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	c := &rsyncwire.Conn{Reader: &buf, Writer: &buf}

	est := &EncodeState{PreserveUid: true, PreserveGid: true}
	want := sampleList()
	if err := EncodeList(c, est, want); err != nil {
		t.Fatal(err)
	}

	dst := &DecodeState{PreserveUid: true, PreserveGid: true}
	got, err := DecodeList(c, dst)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Name != want[i].Name {
			t.Errorf("entry %d: name %q, want %q", i, got[i].Name, want[i].Name)
		}
		if got[i].Kind != want[i].Kind {
			t.Errorf("entry %d: kind %v, want %v", i, got[i].Kind, want[i].Kind)
		}
		if got[i].Size != want[i].Size {
			t.Errorf("entry %d: size %d, want %d", i, got[i].Size, want[i].Size)
		}
		if got[i].Mode != want[i].Mode {
			t.Errorf("entry %d: mode %o, want %o", i, got[i].Mode, want[i].Mode)
		}
		if got[i].LinkTarget != want[i].LinkTarget {
			t.Errorf("entry %d: link target %q, want %q", i, got[i].LinkTarget, want[i].LinkTarget)
		}
	}
}

func TestEncodeDecodeSingleEntry(t *testing.T) {
	var buf bytes.Buffer
	c := &rsyncwire.Conn{Reader: &buf, Writer: &buf}
	est := &EncodeState{}
	f := &File{Name: "solo", Kind: KindRegular, Size: 42, Mode: 0600, Mtime: 5}
	if err := EncodeEntry(c, est, f); err != nil {
		t.Fatal(err)
	}
	if err := c.WriteByte(0); err != nil {
		t.Fatal(err)
	}
	dst := &DecodeState{}
	got, err := TryDecodeEntry(c, dst)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "solo" || got.Size != 42 || got.Mode != 0600 {
		t.Fatalf("got %+v", got)
	}
	term, err := TryDecodeEntry(c, dst)
	if err != nil {
		t.Fatal(err)
	}
	if term != nil {
		t.Fatalf("expected terminator, got %+v", term)
	}
}
