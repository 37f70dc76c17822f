package kernel

import (
	"math"
	"math/rand"
	"testing"

	"github.com/samcharles93/quantkit/pkg/blockq"
	"github.com/samcharles93/quantkit/pkg/tensorq"
)

func weightTensor(t *testing.T, s blockq.Scheme, n, k int, seed int64) *tensorq.Tensor {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	vals := make([]float32, n*k)
	for i := range vals {
		vals[i] = float32(rng.Float64()*2 - 1)
	}
	raw, err := blockq.Quantize(s, vals)
	if err != nil {
		t.Fatalf("quantize %s: %v", s, err)
	}
	w, err := tensorq.New(tensorq.Info{
		Name:   "w",
		Scheme: s,
		Dims:   []uint64{uint64(n), uint64(k)},
	}, raw)
	if err != nil {
		t.Fatalf("tensor: %v", err)
	}
	return w
}

func activations(m, k int, seed int64) []float32 {
	rng := rand.New(rand.NewSource(seed))
	act := make([]float32, m*k)
	for i := range act {
		act[i] = float32(rng.Float64()*2 - 1)
	}
	return act
}

// referenceMatMul expands the weights to float32 and multiplies naively,
// accumulating in float64 to get a trustworthy baseline.
func referenceMatMul(t *testing.T, act []float32, w *tensorq.Tensor, m, k, n int) []float32 {
	t.Helper()
	wf, err := w.Dequantize(tensorq.Default())
	if err != nil {
		t.Fatalf("dequantize: %v", err)
	}
	out := make([]float32, m*n)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var sum float64
			for c := 0; c < k; c++ {
				sum += float64(act[i*k+c]) * float64(wf[j*k+c])
			}
			out[i*n+j] = float32(sum)
		}
	}
	return out
}

func TestMatMulMatchesReference(t *testing.T) {
	t.Parallel()

	cases := []struct {
		scheme blockq.Scheme
		k      int
	}{
		{blockq.F32, 96},
		{blockq.F16, 96},
		{blockq.Q4_0, 96},
		{blockq.Q4_1, 96},
		{blockq.Q5_0, 96},
		{blockq.Q5_1, 96},
		{blockq.Q8_0, 96},
		{blockq.Q4_K, 512},
		{blockq.Q5_K, 512},
		{blockq.Q6_K, 512},
		{blockq.Q8_K, 512},
	}
	const m, n = 3, 8
	for _, tc := range cases {
		tc := tc
		t.Run(tc.scheme.String(), func(t *testing.T) {
			t.Parallel()

			w := weightTensor(t, tc.scheme, n, tc.k, 11)
			act := activations(m, tc.k, 12)
			got := make([]float32, m*n)
			if err := MatMul(got, act, w, m, tc.k, n); err != nil {
				t.Fatalf("matmul: %v", err)
			}
			want := referenceMatMul(t, act, w, m, tc.k, n)

			// The fused path sees exactly the same decoded values as
			// the reference; only float32 vs float64 accumulation
			// differs, which grows with sqrt(k).
			tol := 1e-4 * float32(math.Sqrt(float64(tc.k)))
			for i := range want {
				diff := got[i] - want[i]
				if diff < 0 {
					diff = -diff
				}
				if diff > tol {
					t.Fatalf("dst[%d] = %v, want %v (diff %v, tol %v)", i, got[i], want[i], diff, tol)
				}
			}
		})
	}
}

func TestMatMulDeterministic(t *testing.T) {
	t.Parallel()

	const m, k, n = 2, 256, 16
	w := weightTensor(t, blockq.Q4_K, n, k, 21)
	act := activations(m, k, 22)

	first := make([]float32, m*n)
	if err := MatMul(first, act, w, m, k, n); err != nil {
		t.Fatalf("matmul: %v", err)
	}
	for run := 0; run < 5; run++ {
		again := make([]float32, m*n)
		if err := MatMul(again, act, w, m, k, n); err != nil {
			t.Fatalf("matmul: %v", err)
		}
		for i := range first {
			if first[i] != again[i] {
				t.Fatalf("run %d: dst[%d] = %v, first run %v", run, i, again[i], first[i])
			}
		}
	}
}

func TestMatMulParallelMatchesSerial(t *testing.T) {
	t.Parallel()

	const m, k, n = 4, 256, 64
	for _, s := range []blockq.Scheme{blockq.Q8_0, blockq.Q6_K} {
		w := weightTensor(t, s, n, k, 31)
		act := activations(m, k, 32)

		serial := make([]float32, m*n)
		if err := MatMul(serial, act, w, m, k, n); err != nil {
			t.Fatalf("%s serial: %v", s, err)
		}
		parallel := make([]float32, m*n)
		if err := MatMulParallel(parallel, act, w, m, k, n); err != nil {
			t.Fatalf("%s parallel: %v", s, err)
		}
		for i := range serial {
			if serial[i] != parallel[i] {
				t.Fatalf("%s: dst[%d] parallel %v != serial %v", s, i, parallel[i], serial[i])
			}
		}
	}
}

func TestMatVec(t *testing.T) {
	t.Parallel()

	const k, n = 64, 8
	w := weightTensor(t, blockq.Q8_0, n, k, 41)
	x := activations(1, k, 42)

	got := make([]float32, n)
	if err := MatVec(got, x, w); err != nil {
		t.Fatalf("matvec: %v", err)
	}
	want := make([]float32, n)
	if err := MatMul(want, x, w, 1, k, n); err != nil {
		t.Fatalf("matmul: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dst[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMatMulShapeErrors(t *testing.T) {
	t.Parallel()

	w := weightTensor(t, blockq.Q8_0, 4, 64, 51)
	act := activations(2, 64, 52)
	dst := make([]float32, 2*4)

	if err := MatMul(dst, act, w, 2, 64, 5); err == nil {
		t.Fatal("expected error for wrong n")
	}
	if err := MatMul(dst[:3], act, w, 2, 64, 4); err == nil {
		t.Fatal("expected error for short dst")
	}
	if err := MatMul(dst, act[:10], w, 2, 64, 4); err == nil {
		t.Fatal("expected error for short activations")
	}
}

func TestMatMulRejectsUnalignedK(t *testing.T) {
	t.Parallel()

	// A single-row tensor may end on a partial block, but the matmul
	// contraction axis must cover whole blocks.
	vals := activations(1, 40, 61)
	raw, err := blockq.Quantize(blockq.Q8_0, vals)
	if err != nil {
		t.Fatalf("quantize: %v", err)
	}
	w, err := tensorq.New(tensorq.Info{Name: "w", Scheme: blockq.Q8_0, Dims: []uint64{40}}, raw)
	if err != nil {
		t.Fatalf("tensor: %v", err)
	}
	dst := make([]float32, 1)
	if err := MatMul(dst, vals, w, 1, 40, 1); err == nil {
		t.Fatal("expected error for k not aligned to block size")
	}
}
