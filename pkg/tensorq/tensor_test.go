package tensorq

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/samcharles93/quantkit/pkg/blockq"
)

func packedTensor(t *testing.T, name string, s blockq.Scheme, dims []uint64, seed int64) (*Tensor, []float32) {
	t.Helper()
	info := Info{Name: name, Scheme: s, Dims: dims}
	n, err := info.Elements()
	if err != nil {
		t.Fatalf("elements: %v", err)
	}
	rng := rand.New(rand.NewSource(seed))
	vals := make([]float32, n)
	for i := range vals {
		vals[i] = float32(rng.Float64()*8 - 4)
	}
	raw, err := blockq.Quantize(s, vals)
	if err != nil {
		t.Fatalf("quantize %s: %v", s, err)
	}
	tn, err := New(info, raw)
	if err != nil {
		t.Fatalf("new tensor: %v", err)
	}
	return tn, vals
}

func TestTensorShapeAccessors(t *testing.T) {
	t.Parallel()

	tn, _ := packedTensor(t, "blk.0.attn_q.weight", blockq.Q8_0, []uint64{3, 2, 64}, 1)
	if got := tn.Elements(); got != 384 {
		t.Fatalf("elements = %d, want 384", got)
	}
	if got := tn.Rows(); got != 6 {
		t.Fatalf("rows = %d, want 6", got)
	}
	if got := tn.Cols(); got != 64 {
		t.Fatalf("cols = %d, want 64", got)
	}
	rb, err := tn.RowBytes()
	if err != nil {
		t.Fatalf("row bytes: %v", err)
	}
	if want := 2 * blockq.BlockQ8_0Bytes; rb != want {
		t.Fatalf("row bytes = %d, want %d", rb, want)
	}
	if _, err := tn.Row(6); err == nil {
		t.Fatal("expected out of range error for row 6")
	}
}

func TestTensorRejectsWrongLength(t *testing.T) {
	t.Parallel()

	info := Info{Name: "w", Scheme: blockq.Q4_0, Dims: []uint64{64}}
	raw := make([]byte, 2*blockq.BlockQ4_0Bytes-1)
	if _, err := New(info, raw); !errors.Is(err, blockq.ErrMalformedBlock) {
		t.Fatalf("err = %v, want ErrMalformedBlock", err)
	}
	if _, err := New(Info{Name: "z", Scheme: blockq.Q4_0, Dims: []uint64{0, 4}}, nil); err == nil {
		t.Fatal("expected error for zero dimension")
	}
}

func TestElementsRejectsOverflow(t *testing.T) {
	t.Parallel()

	// The product wraps uint64 to 0; a corrupt directory entry must not
	// pass as a tiny tensor.
	info := Info{Name: "w", Scheme: blockq.F32, Dims: []uint64{1 << 33, 1 << 32}}
	if _, err := info.Elements(); err == nil {
		t.Fatal("expected error for overflowing element count")
	}
	if _, err := New(info, nil); err == nil {
		t.Fatal("expected constructor to reject overflowing shape")
	}
}

func TestTensorOwnsBuffer(t *testing.T) {
	t.Parallel()

	vals := make([]float32, 32)
	for i := range vals {
		vals[i] = float32(i)
	}
	raw, err := blockq.Quantize(blockq.Q8_0, vals)
	if err != nil {
		t.Fatalf("quantize: %v", err)
	}
	tn, err := New(Info{Name: "w", Scheme: blockq.Q8_0, Dims: []uint64{32}}, raw)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	raw[0] ^= 0xFF
	raw[1] ^= 0xFF
	got, err := tn.Dequantize(Default())
	if err != nil {
		t.Fatalf("dequantize: %v", err)
	}
	for i, v := range got {
		diff := v - vals[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > 0.25 {
			t.Fatalf("value %d drifted after caller mutation: got %v want %v", i, v, vals[i])
		}
	}
}

func TestRequantize(t *testing.T) {
	t.Parallel()

	tn, vals := packedTensor(t, "w", blockq.Q8_0, []uint64{2, 256}, 9)
	out, err := tn.Requantize(Default(), blockq.Q4_K)
	if err != nil {
		t.Fatalf("requantize: %v", err)
	}
	if out.Scheme() != blockq.Q4_K {
		t.Fatalf("scheme = %s, want Q4_K", out.Scheme())
	}
	if out.Elements() != tn.Elements() {
		t.Fatalf("elements changed: %d != %d", out.Elements(), tn.Elements())
	}
	got, err := out.Dequantize(Default())
	if err != nil {
		t.Fatalf("dequantize: %v", err)
	}
	// Two rounding steps compound, so the tolerance is looser than either
	// codec alone.
	for i, v := range got {
		diff := v - vals[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > 0.8 {
			t.Fatalf("value %d: got %v want %v (diff %v)", i, v, vals[i], diff)
		}
	}
}
