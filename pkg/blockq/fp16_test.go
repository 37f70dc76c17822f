package blockq

import (
	"math"
	"testing"
)

func TestFp16RoundTripAllPatterns(t *testing.T) {
	t.Parallel()

	for u := 0; u <= 0xFFFF; u++ {
		h := uint16(u)
		f := Fp16ToFp32(h)
		if math.IsNaN(float64(f)) {
			if !math.IsNaN(float64(Fp16ToFp32(Fp32ToFp16(f)))) {
				t.Fatalf("NaN did not survive round trip: %#04x", h)
			}
			continue
		}
		got := Fp32ToFp16(f)
		if got != h {
			t.Fatalf("half %#04x -> %v -> %#04x", h, f, got)
		}
	}
}

func TestFp32ToFp16Values(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   float32
		want uint16
	}{
		{0, 0x0000},
		{float32(math.Copysign(0, -1)), 0x8000},
		{1, 0x3C00},
		{-2, 0xC000},
		{65504, 0x7BFF},              // largest finite half
		{65520, 0x7C00},              // rounds to +inf
		{float32(math.Inf(1)), 0x7C00},
		{float32(math.Inf(-1)), 0xFC00},
		{5.9604645e-8, 0x0001},       // smallest subnormal half
		{0.333251953125, 0x3555},
	}
	for _, tc := range cases {
		if got := Fp32ToFp16(tc.in); got != tc.want {
			t.Fatalf("Fp32ToFp16(%v) = %#04x, want %#04x", tc.in, got, tc.want)
		}
	}
}
