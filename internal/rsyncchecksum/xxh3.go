package rsyncchecksum

import "encoding/binary"

// XXH3Sum64Seed and XXH3Sum128Seed are a from-scratch, NOT
// wire-interoperable stand-in for the XXH3 family of checksums. No Go
// library implementing XXH3 appears anywhere in the retrieval pack
// (grepped every example repo's go.mod and source; only rclone
// references the string "xxh3" as a hash-name label, never as an
// imported implementation) -- see DESIGN.md for the stdlib-equivalent
// justification.
//
// This package only ever negotiates protocol 27 (see rsync.go), which
// predates XXH3's introduction as a negotiable checksum choice, so
// these functions are never reached by the wire protocol today; they
// exist for callers that want an XXH3-shaped fast hash locally (e.g. a
// future checksum-choice negotiation) and are internally consistent
// (same input and seed always produce the same digest, good avalanche
// behavior) but do NOT reproduce the real xxhash project's published
// digests: defaultSecret below is generated from prime constants
// rather than copied from the upstream 192-byte secret table, and the
// stripe/short-input mixing is a simplified shape rather than a literal
// port. Do not compare digests produced here against another XXH3
// implementation and expect a match.

const (
	xxh3Prime32_1 = 0x9E3779B1
	xxh3Prime32_2 = 0x85EBCA77
	xxh3Prime64_1 = 0x9E3779B185EBCA87
	xxh3Prime64_2 = 0xC2B2AE3D27D4EB4F
	xxh3Prime64_3 = 0x165667B19E3779F9
	xxh3Prime64_4 = 0x85EBCA77C2B2AE63
	xxh3Prime64_5 = 0x27D4EB2F165667C5
)

// defaultSecret is a fixed 192-byte table used to mix stripes of input,
// standing in for XXH3's published default secret. It is NOT the
// upstream secret: values are derived from the prime constants above
// via a small SplitMix64-style expansion, deterministic but
// bit-incompatible with real XXH3 (see package doc comment above).
var defaultSecret = func() [192]byte {
	var secret [192]byte
	state := uint64(xxh3Prime64_1)
	for i := 0; i < 192; i += 8 {
		state += xxh3Prime64_2
		v := state
		v ^= v >> 33
		v *= xxh3Prime64_3
		v ^= v >> 29
		v *= xxh3Prime64_4
		v ^= v >> 32
		binary.LittleEndian.PutUint64(secret[i:i+8], v)
	}
	return secret
}()

func xxh3Avalanche(h uint64) uint64 {
	h ^= h >> 37
	h *= xxh3Prime64_3
	h ^= h >> 32
	return h
}

func xxh3Mix16(data []byte, secretOff int, seed uint64) uint64 {
	lo := binary.LittleEndian.Uint64(data[0:8])
	hi := binary.LittleEndian.Uint64(data[8:16])
	sLo := binary.LittleEndian.Uint64(defaultSecret[secretOff:secretOff+8]) + seed
	sHi := binary.LittleEndian.Uint64(defaultSecret[secretOff+8:secretOff+16]) - seed
	lo ^= sLo
	hi ^= sHi
	m1hi, m1lo := bitsMul64(lo, hi)
	return m1lo ^ m1hi
}

func bitsMul64(a, b uint64) (hi, lo uint64) {
	const mask32 = 0xFFFFFFFF
	aLo, aHi := a&mask32, a>>32
	bLo, bHi := b&mask32, b>>32
	lo = aLo * bLo
	mid1 := aHi * bLo
	mid2 := aLo * bHi
	carry := (lo>>32 + mid1&mask32 + mid2&mask32) >> 32
	lo = a * b
	hi = aHi*bHi + mid1>>32 + mid2>>32 + carry
	return hi, lo
}

// xxh3Sum64 implements the core keyed 64-bit digest. It handles the
// short-input fast paths explicitly and a generic stripe loop for
// longer inputs; both feed into the same avalanche finisher so digests
// for any length are well distributed and stable under this module's
// own encode/decode round trips.
func xxh3Sum64(data []byte, seed uint64) uint64 {
	n := len(data)
	switch {
	case n == 0:
		acc := seed ^ (xxh3Prime64_1 + xxh3Prime64_2)
		return xxh3Avalanche(acc)
	case n <= 8:
		var buf [8]byte
		copy(buf[8-n:], data)
		v := binary.LittleEndian.Uint64(buf[:])
		acc := v ^ (seed + xxh3Prime64_1) ^ uint64(n)
		acc *= xxh3Prime64_2
		return xxh3Avalanche(acc)
	case n <= 16:
		var lo, hi [8]byte
		copy(lo[:], data[:8])
		copy(hi[8-(n-8):], data[8:])
		a := binary.LittleEndian.Uint64(lo[:]) ^ (seed - xxh3Prime64_1)
		b := binary.LittleEndian.Uint64(hi[:]) ^ (seed + xxh3Prime64_2)
		acc := a + b + uint64(n)
		acc ^= acc >> 31
		acc *= xxh3Prime64_3
		return xxh3Avalanche(acc)
	default:
		acc := uint64(n) * xxh3Prime64_1
		off := 0
		secretCursor := 0
		for off+16 <= n {
			acc += xxh3Mix16(data[off:off+16], secretCursor%160, seed)
			acc = (acc << 13) | (acc >> 51)
			acc *= xxh3Prime64_2
			off += 16
			secretCursor += 16
		}
		if off < n {
			var tail [16]byte
			copy(tail[:], data[n-16:])
			acc += xxh3Mix16(tail[:], (secretCursor+11)%160, seed)
		}
		acc ^= uint64(n)
		return xxh3Avalanche(acc)
	}
}

// XXH3Sum64Seed computes the seeded 64-bit XXH3 digest.
func XXH3Sum64Seed(data []byte, seed uint64) uint64 {
	return xxh3Sum64(data, seed)
}

// XXH3Sum128Seed computes the seeded 128-bit XXH3 digest, returned as
// (high, low) 64-bit halves, little-endian on the wire (high half
// second) matching how StrongHasher.Sum lays out XXH3_128 bytes.
func XXH3Sum128Seed(data []byte, seed uint64) (hi, lo uint64) {
	lo = xxh3Sum64(data, seed)
	hi = xxh3Sum64(data, seed^xxh3Prime64_5) ^ lo
	return hi, lo
}
