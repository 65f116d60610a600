package rsyncchecksum

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestBuildSignatureAndIndexRoundTrip(t *testing.T) {
	data := make([]byte, 5000)
	rand.New(rand.NewSource(42)).Read(data)

	sig, err := BuildSignature(bytes.NewReader(data), int64(len(data)), 27, MD4, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if int64(len(sig.Blocks)) != sig.Layout.BlockCount {
		t.Fatalf("got %d blocks, want %d", len(sig.Blocks), sig.Layout.BlockCount)
	}

	idx := NewIndex(sig)
	// Every block in the original data must be found by its own
	// rolling+strong checksum via the index.
	hasher := NewStrongHasher(MD4, 0, false)
	for i := int64(0); i < sig.Layout.BlockCount; i++ {
		start := i * int64(sig.Layout.BlockLength)
		n := sig.Layout.BlockSizeAt(i)
		block := data[start : start+int64(n)]
		rolling := Checksum1(block)
		found := false
		for _, cand := range idx.Lookup(rolling) {
			strong := hasher.Sum(block)
			if len(strong) > len(idx.Strong(cand)) {
				strong = strong[:len(idx.Strong(cand))]
			}
			if bytes.Equal(strong, idx.Strong(cand)) && cand == int32(i) {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("block %d not found via index", i)
		}
	}
}

func TestBuildSignatureEmptyFile(t *testing.T) {
	sig, err := BuildSignature(bytes.NewReader(nil), 0, 27, MD4, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(sig.Blocks) != 0 {
		t.Fatalf("expected no blocks for empty file, got %d", len(sig.Blocks))
	}
	idx := NewIndex(sig)
	if !idx.Empty() {
		t.Fatal("index over empty signature should report Empty() == true")
	}
}
