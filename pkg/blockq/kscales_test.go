package blockq

import (
	"math/rand"
	"testing"
)

// Unpacking is verified against hand-computed byte vectors before any
// arithmetic uses it: the shift/mask sequence here is the single riskiest
// part of the K-quant formats.
func TestScaleMinK4ReferenceVector(t *testing.T) {
	t.Parallel()

	packed := []byte{0x41, 0x42, 0x43, 0x44, 0x85, 0x86, 0x87, 0x88, 0x12, 0x34, 0x56, 0x78}
	want := [8][2]uint8{
		{1, 5}, {2, 6}, {3, 7}, {4, 8},
		{18, 33}, {20, 35}, {22, 37}, {24, 39},
	}
	for j := 0; j < 8; j++ {
		sc, mn := ScaleMinK4(j, packed)
		if sc != want[j][0] || mn != want[j][1] {
			t.Fatalf("sub-block %d: got (%d,%d), want (%d,%d)", j, sc, mn, want[j][0], want[j][1])
		}
	}
}

func TestPackScaleMinK4RoundTrip(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 200; iter++ {
		var sc, mn [8]uint8
		for j := range sc {
			sc[j] = uint8(rng.Intn(64))
			mn[j] = uint8(rng.Intn(64))
		}
		var packed [12]byte
		PackScaleMinK4(&sc, &mn, packed[:])
		for j := 0; j < 8; j++ {
			gotSc, gotMn := ScaleMinK4(j, packed[:])
			if gotSc != sc[j] || gotMn != mn[j] {
				t.Fatalf("iter %d sub-block %d: got (%d,%d), want (%d,%d)",
					iter, j, gotSc, gotMn, sc[j], mn[j])
			}
		}
	}
}

func TestPackScaleMinK4Extremes(t *testing.T) {
	t.Parallel()

	sc := [8]uint8{63, 63, 63, 63, 63, 63, 63, 63}
	mn := [8]uint8{0, 63, 0, 63, 0, 63, 0, 63}
	var packed [12]byte
	PackScaleMinK4(&sc, &mn, packed[:])
	for j := 0; j < 8; j++ {
		gotSc, gotMn := ScaleMinK4(j, packed[:])
		if gotSc != sc[j] || gotMn != mn[j] {
			t.Fatalf("sub-block %d: got (%d,%d), want (%d,%d)", j, gotSc, gotMn, sc[j], mn[j])
		}
	}
}
