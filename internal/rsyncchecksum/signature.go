package rsyncchecksum

import (
	"fmt"
	"io"
)

// BlockHash is one (rolling, truncated-strong) tuple.
type BlockHash struct {
	Rolling uint32
	Strong  []byte
}

// Signature is a Layout plus per-block tuples (spec §3 FileSignature).
type Signature struct {
	Layout Layout
	Blocks []BlockHash
}

// BuildSignature streams r in Layout.BlockLength-sized blocks and
// computes a (rolling, truncated-strong) tuple for each, the receiver-
// side half of spec §4.11 step 3 ("build a FileSignature").
func BuildSignature(r io.Reader, size int64, protocolVersion int, algo Algorithm, seed int32, legacySeedOrder bool) (*Signature, error) {
	layout := ComputeLayout(size, protocolVersion, algo)
	sig := &Signature{Layout: layout}
	if layout.BlockCount == 0 {
		return sig, nil
	}

	hasher := NewStrongHasher(algo, seed, legacySeedOrder)
	buf := make([]byte, layout.BlockLength)
	for i := int64(0); i < layout.BlockCount; i++ {
		n := int(layout.BlockSizeAt(i))
		if _, err := io.ReadFull(r, buf[:n]); err != nil {
			return nil, fmt.Errorf("rsyncchecksum: reading block %d: %w", i, err)
		}
		strong := hasher.Sum(buf[:n])
		if int32(len(strong)) > layout.StrongSumLength {
			strong = strong[:layout.StrongSumLength]
		}
		sig.Blocks = append(sig.Blocks, BlockHash{
			Rolling: Checksum1(buf[:n]),
			Strong:  strong,
		})
	}
	return sig, nil
}

// Index is the DeltaSignatureIndex (spec §3): a hash map from rolling
// value to candidate block indices, with strong-sum verification done
// by the caller against the truncated Strong bytes stored per
// candidate. Built by the generator from a received Signature.
type Index struct {
	sig     *Signature
	buckets map[uint32][]int32
}

// NewIndex builds a DeltaSignatureIndex from a signature.
func NewIndex(sig *Signature) *Index {
	idx := &Index{
		sig:     sig,
		buckets: make(map[uint32][]int32, len(sig.Blocks)),
	}
	for i, b := range sig.Blocks {
		idx.buckets[b.Rolling] = append(idx.buckets[b.Rolling], int32(i))
	}
	return idx
}

// Lookup returns the candidate block indices for a rolling value; the
// caller must still verify the strong checksum of the window before
// accepting a match.
func (idx *Index) Lookup(rolling uint32) []int32 {
	return idx.buckets[rolling]
}

// Strong returns the stored truncated strong checksum for block i.
func (idx *Index) Strong(i int32) []byte {
	return idx.sig.Blocks[i].Strong
}

// Layout exposes the underlying signature's layout.
func (idx *Index) Layout() Layout {
	return idx.sig.Layout
}

// Empty reports whether the index has no blocks (signature count == 0),
// the condition that forces a whole-file Literal-only delta (spec
// §4.4, §4.10: "block_count == 0 ... whole-file token stream").
func (idx *Index) Empty() bool {
	return len(idx.sig.Blocks) == 0
}
