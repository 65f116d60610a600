package rsyncwire

import (
	"bytes"
	"testing"
)

func TestVarintRoundTrip(t *testing.T) {
	values := []int32{0, 1, 127, 128, 16383, 16384, 1 << 21, 1<<21 - 1, 1 << 28, 1<<31 - 1}
	var buf bytes.Buffer
	w := &Conn{Writer: &buf}
	for _, v := range values {
		if err := w.WriteVarint(v); err != nil {
			t.Fatal(err)
		}
	}
	r := &Conn{Reader: &buf}
	for _, want := range values {
		got, err := r.ReadVarint()
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("got %d, want %d", got, want)
		}
	}
}

func TestVarlongRoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 127, -127, 1 << 20, -(1 << 20), 1 << 40, -(1 << 40)}
	var buf bytes.Buffer
	w := &Conn{Writer: &buf}
	for _, v := range values {
		if err := w.WriteVarlong(v, 3); err != nil {
			t.Fatal(err)
		}
	}
	r := &Conn{Reader: &buf}
	for _, want := range values {
		got, err := r.ReadVarlong(3)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("got %d, want %d", got, want)
		}
	}
}

func TestNdxRoundTripAroundBreakpoints(t *testing.T) {
	for _, version := range []int{27, 29, 30, 31, 32} {
		t.Run("", func(t *testing.T) {
			values := []int32{0, 1, 253, 254, 255, 65535, 65536, -1}
			var buf bytes.Buffer
			w := &Conn{Writer: &buf}
			prev := int32(-1)
			for _, v := range values {
				// NDX deltas are modeled against the previous positive
				// value; feed monotonically increasing values except
				// the trailing NDX_DONE sentinel.
				if v == -1 {
					if err := w.WriteNdx(version, -1); err != nil {
						t.Fatal(err)
					}
					continue
				}
				if err := w.WriteNdx(version, v); err != nil {
					t.Fatal(err)
				}
				prev = v
			}
			_ = prev
			r := &Conn{Reader: &buf}
			for _, want := range values {
				got, err := r.ReadNdx(version)
				if err != nil {
					t.Fatalf("version %d: %v", version, err)
				}
				if got != want {
					t.Errorf("version %d: got %d, want %d", version, got, want)
				}
			}
		})
	}
}
