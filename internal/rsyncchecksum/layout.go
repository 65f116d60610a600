package rsyncchecksum

import "math"

// Block length bounds (spec §4.3), carried from the teacher's prototype
// blockSize = 700 constant (internal/rsyncd/rsyncd.go, sumSizesSqroot).
const (
	minBlockLength = 700
	maxBlockLength = 128 * 1024
)

// Layout is the deterministic block plan for one regular file (spec
// §3 SignatureLayout).
type Layout struct {
	BlockLength     int32
	Remainder       int32
	BlockCount      int64
	StrongSumLength int32
}

// ComputeLayout derives block_length, remainder, and block_count from
// file size and the negotiated strong-sum truncation length. The
// protocol version parameter is accepted for forward compatibility
// (future protocol revisions may alter rounding) but protocol 27..32
// all share the same formula (spec §4.3, §8 property 4).
func ComputeLayout(size int64, protocolVersion int, algo Algorithm) Layout {
	if size == 0 {
		return Layout{
			BlockLength:     0,
			Remainder:       0,
			BlockCount:      0,
			StrongSumLength: strongSumLength(algo),
		}
	}

	blockLength := int32(math.Ceil(math.Sqrt(float64(size))))
	if blockLength < minBlockLength {
		blockLength = minBlockLength
	}
	if blockLength > maxBlockLength {
		blockLength = maxBlockLength
	}

	blockCount := size / int64(blockLength)
	remainder := int32(size % int64(blockLength))
	if remainder > 0 {
		blockCount++
	}

	return Layout{
		BlockLength:     blockLength,
		Remainder:       remainder,
		BlockCount:      blockCount,
		StrongSumLength: strongSumLength(algo),
	}
}

func strongSumLength(algo Algorithm) int32 {
	// Upstream default truncation is 16 bytes for signature blocks (an
	// MD4/MD5-sized digest); algorithms with a shorter native digest
	// (e.g. XXH64's 8 bytes) clamp to their own size (spec §4.3:
	// "clamped to the algorithm's digest size").
	const defaultLen = 16
	size := int32(algo.Size())
	if size == 0 || size > defaultLen {
		return defaultLen
	}
	return size
}

// BlockSizeAt returns the length of block index i within a layout
// (BlockLength for all but the last block, Remainder for the last
// block when non-zero).
func (l Layout) BlockSizeAt(i int64) int32 {
	if l.Remainder != 0 && i == l.BlockCount-1 {
		return l.Remainder
	}
	return l.BlockLength
}
