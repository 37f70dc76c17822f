// Package kernel implements fused matrix multiplication over quantized
// weights. Blocks are decoded into a fixed scratch buffer and consumed
// immediately, so weights are never expanded to a full float32 matrix.
package kernel

import (
	"fmt"
	"math"

	"github.com/samcharles93/quantkit/pkg/blockq"
	"github.com/samcharles93/quantkit/pkg/tensorq"
)

// Scratch is sized for the largest block any scheme produces. Each worker
// owns one, so the inner loop allocates nothing.
type Scratch [blockq.QKK]float32

// rowDot computes the dot product of one packed weight row with x.
type rowDot func(row []byte, x []float32, scratch *Scratch) float32

// MatMul computes dst = act * w^T where act is an m x k row-major float32
// matrix and w holds n packed rows of k values each. dst receives m x n
// row-major results.
//
// Accumulation is block-sequential within each row: every block's partial
// sum is reduced in index order before being added to the running total.
// The same inputs therefore produce bit-identical output on every run,
// serial or parallel.
func MatMul(dst, act []float32, w *tensorq.Tensor, m, k, n int) error {
	dot, rowBytes, err := prepare(dst, act, w, m, k, n)
	if err != nil {
		return err
	}
	var scratch Scratch
	matMulRange(dst, act, w.Raw(), rowBytes, dot, &scratch, m, k, n, 0, n)
	return nil
}

// MatVec computes dst = w * x for a single activation vector.
func MatVec(dst, x []float32, w *tensorq.Tensor) error {
	return MatMul(dst, x, w, 1, w.Cols(), w.Rows())
}

func prepare(dst, act []float32, w *tensorq.Tensor, m, k, n int) (rowDot, int, error) {
	if m <= 0 || k <= 0 || n <= 0 {
		return nil, 0, fmt.Errorf("kernel: invalid shape m=%d k=%d n=%d", m, k, n)
	}
	if w.Rows() != n || w.Cols() != k {
		return nil, 0, fmt.Errorf("kernel: weight %s is %dx%d, want %dx%d",
			w.Name(), w.Rows(), w.Cols(), n, k)
	}
	if len(act) < m*k {
		return nil, 0, fmt.Errorf("kernel: activation has %d values, want %d", len(act), m*k)
	}
	if len(dst) < m*n {
		return nil, 0, fmt.Errorf("kernel: dst has %d values, want %d", len(dst), m*n)
	}
	s := w.Scheme()
	if bs := s.BlockSize(); bs > 1 && k%bs != 0 {
		return nil, 0, fmt.Errorf("kernel: %s: k=%d not a multiple of block size %d: %w",
			w.Name(), k, bs, blockq.ErrMalformedBlock)
	}
	dot, err := dotForScheme(s)
	if err != nil {
		return nil, 0, fmt.Errorf("kernel: %s: %w", w.Name(), err)
	}
	rowBytes, err := w.RowBytes()
	if err != nil {
		return nil, 0, fmt.Errorf("kernel: %w", err)
	}
	return dot, rowBytes, nil
}

// matMulRange fills dst columns [js,je) for all m activation rows.
func matMulRange(dst, act []float32, raw []byte, rowBytes int, dot rowDot, scratch *Scratch, m, k, n, js, je int) {
	for j := js; j < je; j++ {
		row := raw[j*rowBytes : (j+1)*rowBytes]
		for i := 0; i < m; i++ {
			x := act[i*k : (i+1)*k]
			dst[i*n+j] = dot(row, x, scratch)
		}
	}
}

func dotForScheme(s blockq.Scheme) (rowDot, error) {
	switch s {
	case blockq.F32:
		return dotF32, nil
	case blockq.F16:
		return dotF16, nil
	case blockq.Q4_0:
		return blockDot(blockq.DequantQ4_0Block, blockq.QK, blockq.BlockQ4_0Bytes), nil
	case blockq.Q4_1:
		return blockDot(blockq.DequantQ4_1Block, blockq.QK, blockq.BlockQ4_1Bytes), nil
	case blockq.Q5_0:
		return blockDot(blockq.DequantQ5_0Block, blockq.QK, blockq.BlockQ5_0Bytes), nil
	case blockq.Q5_1:
		return blockDot(blockq.DequantQ5_1Block, blockq.QK, blockq.BlockQ5_1Bytes), nil
	case blockq.Q8_0:
		return blockDot(blockq.DequantQ8_0Block, blockq.QK, blockq.BlockQ8_0Bytes), nil
	case blockq.Q4_K:
		return blockDot(blockq.DequantQ4_KBlock, blockq.QKK, blockq.BlockQ4_KBytes), nil
	case blockq.Q5_K:
		return blockDot(blockq.DequantQ5_KBlock, blockq.QKK, blockq.BlockQ5_KBytes), nil
	case blockq.Q6_K:
		return blockDot(blockq.DequantQ6_KBlock, blockq.QKK, blockq.BlockQ6_KBytes), nil
	case blockq.Q8_K:
		return blockDot(blockq.DequantQ8_KBlock, blockq.QKK, blockq.BlockQ8_KBytes), nil
	default:
		return nil, fmt.Errorf("%w: %s", blockq.ErrUnsupportedScheme, s)
	}
}

// blockDot builds the fused inner loop for one block scheme: decode a block
// into scratch, reduce it against the matching activation slice, move on.
func blockDot(decode func([]byte, []float32), blockSize, blockBytes int) rowDot {
	return func(row []byte, x []float32, scratch *Scratch) float32 {
		var sum float32
		buf := scratch[:blockSize]
		nb := len(row) / blockBytes
		col := 0
		for b := 0; b < nb; b++ {
			decode(row[b*blockBytes:(b+1)*blockBytes], buf)
			xb := x[col : col+blockSize]
			var bsum float32
			t := 0
			for ; t+3 < blockSize; t += 4 {
				bsum += buf[t]*xb[t] + buf[t+1]*xb[t+1] + buf[t+2]*xb[t+2] + buf[t+3]*xb[t+3]
			}
			for ; t < blockSize; t++ {
				bsum += buf[t] * xb[t]
			}
			sum += bsum
			col += blockSize
		}
		return sum
	}
}

func dotF32(row []byte, x []float32, _ *Scratch) float32 {
	var sum float32
	for j := range x {
		off := j * 4
		u := uint32(row[off]) | uint32(row[off+1])<<8 | uint32(row[off+2])<<16 | uint32(row[off+3])<<24
		sum += math.Float32frombits(u) * x[j]
	}
	return sum
}

func dotF16(row []byte, x []float32, _ *Scratch) float32 {
	var sum float32
	for j := range x {
		off := j * 2
		u := uint16(row[off]) | uint16(row[off+1])<<8
		sum += blockq.Fp16ToFp32(u) * x[j]
	}
	return sum
}
