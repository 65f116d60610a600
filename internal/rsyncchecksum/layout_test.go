package rsyncchecksum

import "testing"

func TestLayoutInvariantAcrossProtocolVersions(t *testing.T) {
	sizes := []int64{0, 1, 699, 700, 701, 123456, 10 * 1024 * 1024, 128*1024*128 + 17}
	for _, size := range sizes {
		for v := 27; v <= 32; v++ {
			l := ComputeLayout(size, v, MD4)
			if l.BlockCount == 0 {
				if size != 0 {
					t.Errorf("size=%d v=%d: zero block count for non-empty file", size, v)
				}
				continue
			}
			total := l.BlockCount * int64(l.BlockLength)
			if l.Remainder > 0 {
				total = (l.BlockCount-1)*int64(l.BlockLength) + int64(l.Remainder)
			}
			if total != size {
				t.Errorf("size=%d v=%d: block_count*block_length(+remainder) = %d, want %d (layout=%+v)", size, v, total, size, l)
			}
			if l.BlockLength < minBlockLength && size > minBlockLength*minBlockLength {
				t.Errorf("size=%d: block length %d below floor", size, l.BlockLength)
			}
		}
	}
}

func TestLayoutEmptyFile(t *testing.T) {
	l := ComputeLayout(0, 27, MD4)
	if l.BlockCount != 0 || l.Remainder != 0 {
		t.Fatalf("empty file layout should have zero blocks, got %+v", l)
	}
}

func TestStrongSumLengthClampsToDigestSize(t *testing.T) {
	l := ComputeLayout(1000, 27, XXH64)
	if l.StrongSumLength != 8 {
		t.Fatalf("xxh64 strong sum length = %d, want 8", l.StrongSumLength)
	}
	l2 := ComputeLayout(1000, 27, MD4)
	if l2.StrongSumLength != 16 {
		t.Fatalf("md4 strong sum length = %d, want 16", l2.StrongSumLength)
	}
}
