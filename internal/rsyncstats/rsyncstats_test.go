package rsyncstats

import (
	"bytes"
	"testing"

	"github.com/oferchen/rsync-sub002/internal/rsyncwire"
)

func TestTransferStatsRoundTrip(t *testing.T) {
	for _, version := range []int{27, 29, 30, 32} {
		want := &TransferStats{
			Read:    12345,
			Written: 6789,
			Size:    999999,
		}
		if version >= 29 {
			want.FlistBuildTimeMs = 42
			want.FlistXferTimeMs = 7
		}
		var buf bytes.Buffer
		c := &rsyncwire.Conn{Reader: &buf, Writer: &buf}
		if err := want.WriteTo(c, version); err != nil {
			t.Fatalf("version %d: %v", version, err)
		}
		got := &TransferStats{}
		if err := got.ReadFrom(c, version); err != nil {
			t.Fatalf("version %d: %v", version, err)
		}
		if *got != *want {
			t.Errorf("version %d: got %+v, want %+v", version, got, want)
		}
	}
}

func TestCountersAddMetadataError(t *testing.T) {
	var c Counters
	c.AddMetadataError("foo", errTest{})
	c.AddMetadataError("bar", errTest{})
	if c.IOErrors != 2 {
		t.Fatalf("IOErrors = %d, want 2", c.IOErrors)
	}
	if len(c.MetadataErrors) != 2 {
		t.Fatalf("MetadataErrors = %d, want 2", len(c.MetadataErrors))
	}
}

type errTest struct{}

func (errTest) Error() string { return "test error" }
