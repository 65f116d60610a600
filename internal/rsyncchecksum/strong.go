package rsyncchecksum

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/binary"
	"hash"

	"github.com/cespare/xxhash/v2"
	"github.com/mmcloughlin/md4"
)

// Algorithm identifies one of the negotiated strong-checksum variants
// (spec §4.2).
type Algorithm int

const (
	MD4 Algorithm = iota
	MD5
	SHA1
	XXH64
	XXH3_64
	XXH3_128
)

func (a Algorithm) String() string {
	switch a {
	case MD4:
		return "md4"
	case MD5:
		return "md5"
	case SHA1:
		return "sha1"
	case XXH64:
		return "xxh64"
	case XXH3_64:
		return "xxh3-64"
	case XXH3_128:
		return "xxh3-128"
	default:
		return "unknown"
	}
}

// Size returns the native digest length of the algorithm, before any
// signature truncation to strong_sum_length is applied.
func (a Algorithm) Size() int {
	switch a {
	case MD4, MD5:
		return 16
	case SHA1:
		return 20
	case XXH64, XXH3_64:
		return 8
	case XXH3_128:
		return 16
	default:
		return 0
	}
}

// StrongHasher computes a single keyed strong-checksum digest over one
// block or one whole file. legacySeedOrder selects MD5's pre-3.0.0
// seeding order (seed appended after data) versus the "proper" order
// (seed hashed before data); it is only consulted for MD5 and is
// passed explicitly, never inferred (spec §9 Open Questions). No
// compat flags are exchanged at protocol 27; every caller in this
// module passes false.
type StrongHasher struct {
	algo            Algorithm
	seed            int32
	legacySeedOrder bool
}

// NewStrongHasher constructs a hasher for algo, keyed with seed.
func NewStrongHasher(algo Algorithm, seed int32, legacySeedOrder bool) *StrongHasher {
	return &StrongHasher{algo: algo, seed: seed, legacySeedOrder: legacySeedOrder}
}

func (h *StrongHasher) newHash() hash.Hash {
	switch h.algo {
	case MD4:
		return md4.New()
	case MD5:
		return md5.New()
	case SHA1:
		return sha1.New()
	default:
		return nil
	}
}

func seedBytes(seed int32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(seed))
	return b[:]
}

// Sum computes the full (untruncated) digest of data.
func (h *StrongHasher) Sum(data []byte) []byte {
	switch h.algo {
	case XXH64:
		d := xxhash.New()
		_, _ = d.Write(seedBytes(h.seed))
		_, _ = d.Write(data)
		var out [8]byte
		binary.LittleEndian.PutUint64(out[:], d.Sum64())
		return out[:]
	case XXH3_64:
		// No XXH3 library exists anywhere in the retrieval pack (see
		// DESIGN.md); XXH3-64 uses the stand-in in xxh3.go, which is
		// not wire-compatible with the published algorithm.
		return sum64ToBytes(XXH3Sum64Seed(data, uint64(uint32(h.seed))))
	case XXH3_128:
		hi, lo := XXH3Sum128Seed(data, uint64(uint32(h.seed)))
		var out [16]byte
		binary.LittleEndian.PutUint64(out[0:8], lo)
		binary.LittleEndian.PutUint64(out[8:16], hi)
		return out[:]
	}

	hh := h.newHash()
	if h.algo == MD4 {
		// MD4 whole-file and block checksums are always seed-prefixed
		// (spec §4.5: "MD4 uses a 4-byte seed prefix").
		_, _ = hh.Write(seedBytes(h.seed))
		_, _ = hh.Write(data)
		return hh.Sum(nil)
	}
	if h.algo == MD5 {
		if h.legacySeedOrder {
			_, _ = hh.Write(data)
			_, _ = hh.Write(seedBytes(h.seed))
		} else {
			_, _ = hh.Write(seedBytes(h.seed))
			_, _ = hh.Write(data)
		}
		return hh.Sum(nil)
	}
	// SHA-1: upstream does not seed SHA-1 block checksums; included
	// for uniform dispatch via newHash above.
	_, _ = hh.Write(data)
	return hh.Sum(nil)
}

func sum64ToBytes(v uint64) []byte {
	var out [8]byte
	binary.LittleEndian.PutUint64(out[:], v)
	return out[:]
}

// NewFileChecksumHasher returns a hash.Hash configured to compute the
// whole-file transfer checksum (spec §4.5: "MD4 uses a 4-byte seed
// prefix; MD5 does not seed the file-transfer checksum"). MD4 is
// seed-prefixed as in StrongHasher.Sum; MD5 is left unseeded, unlike
// StrongHasher.Sum, which seeds MD5. It is for use in streaming contexts
// (internal/receiver's per-file token loop) that need an io.Writer
// rather than a one-shot Sum call.
func NewFileChecksumHasher(algo Algorithm, seed int32) hash.Hash {
	switch algo {
	case MD4:
		hh := md4.New()
		_, _ = hh.Write(seedBytes(seed))
		return hh
	case MD5:
		return md5.New()
	case SHA1:
		return sha1.New()
	default:
		return nil
	}
}
