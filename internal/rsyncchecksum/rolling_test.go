package rsyncchecksum

import (
	"math/rand"
	"testing"
)

func TestRollingMatchesFreshComputation(t *testing.T) {
	src := make([]byte, 4096)
	rand.New(rand.NewSource(1)).Read(src)

	const window = 64
	r := NewRolling(src[:window])
	for i := 0; i+window+1 <= len(src); i++ {
		got := r.Digest()
		want := Checksum1(src[i : i+window])
		if got != want {
			t.Fatalf("position %d: rolling digest %d, want %d", i, got, want)
		}
		r.Roll(src[i], src[i+window])
	}
}

func TestChecksum1Deterministic(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	a := Checksum1(data)
	b := Checksum1(data)
	if a != b {
		t.Fatalf("Checksum1 not deterministic: %d != %d", a, b)
	}
}
