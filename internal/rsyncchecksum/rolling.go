// Package rsyncchecksum implements the rolling and strong checksum
// primitives, the signature layout calculator, the per-file signature
// and its lookup index, and a sliding-window basis file reader (spec
// §3, §4.1, §4.2, §4.3).
package rsyncchecksum

// rollingOffset is the small additive constant upstream folds into both
// the initial digest and every roll so that values match upstream
// bit-for-bit (spec §4.1). Upstream's get_checksum1 seeds `s2` with
// `(len+1)*CHAR_OFFSET/2`-ish terms by construction of the summation
// below; the constant that must appear identically in both the seed
// and the roll update is 0 for modern rsync (CHAR_OFFSET itself is 0
// since rsync 3.0); kept as a named constant so any future
// CHAR_OFFSET-style nonzero seed only needs to change in one place.
const rollingOffset = 0

// Rolling is the stateful O(1)-updatable weak checksum. Digest() packs
// the two 16-bit halves as a | (b << 16), matching upstream's
// get_checksum1 combination.
type Rolling struct {
	a, b       uint32
	windowSize uint32
}

// NewRolling computes the initial rolling checksum over window.
func NewRolling(window []byte) *Rolling {
	r := &Rolling{windowSize: uint32(len(window))}
	var a, b uint32
	n := uint32(len(window))
	for i, c := range window {
		a += uint32(c) + rollingOffset
		b += (n-uint32(i))*(uint32(c)+rollingOffset)
	}
	r.a, r.b = a, b
	return r
}

// Digest returns the current 32-bit rolling value.
func (r *Rolling) Digest() uint32 {
	return (r.a & 0xffff) | (r.b << 16)
}

// Roll slides the window forward by one byte: out leaves the left edge,
// in enters the right edge.
func (r *Rolling) Roll(out, in byte) {
	r.a = r.a - (uint32(out) + rollingOffset) + (uint32(in) + rollingOffset)
	r.b = r.b - r.windowSize*(uint32(out)+rollingOffset) + r.a
}

// Checksum1 is a convenience one-shot entry point equivalent to
// NewRolling(window).Digest(), used where no rolling update is needed
// (e.g. computing a short last-block's weak hash for signature
// construction).
func Checksum1(window []byte) uint32 {
	return NewRolling(window).Digest()
}
