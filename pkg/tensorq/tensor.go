// Package tensorq provides the immutable quantized tensor value type and the
// decoder registry that maps scheme tags to codecs.
package tensorq

import (
	"fmt"

	"github.com/samcharles93/quantkit/pkg/blockq"
)

// Info describes a tensor without its payload: the decoder registry and the
// container directory both speak in terms of Info.
type Info struct {
	Name   string
	Scheme blockq.Scheme
	Dims   []uint64
}

// Elements returns the total element count.
func (in Info) Elements() (int, error) {
	if len(in.Dims) == 0 {
		return 0, fmt.Errorf("tensorq: %s: empty dims", in.Name)
	}
	const maxElems = uint64(^uint(0) >> 1)
	n := uint64(1)
	for _, d := range in.Dims {
		if d == 0 {
			return 0, fmt.Errorf("tensorq: %s: zero dimension", in.Name)
		}
		// Guard before multiplying: the product of corrupt dims can wrap
		// uint64 and masquerade as a small tensor.
		if d > maxElems/n {
			return 0, fmt.Errorf("tensorq: %s: tensor too large", in.Name)
		}
		n *= d
	}
	return int(n), nil
}

// Tensor binds a raw quantized byte buffer to a scheme and shape. It owns
// its backing buffer and is immutable after construction: re-quantization
// produces a new Tensor. Safe for concurrent readers.
type Tensor struct {
	info      Info
	blockSize int
	raw       []byte
}

// New validates raw against the scheme and shape and wraps it. The buffer is
// copied so later caller mutation cannot reach the tensor.
func New(info Info, raw []byte) (*Tensor, error) {
	n, err := info.Elements()
	if err != nil {
		return nil, err
	}
	want, err := info.Scheme.DataSize(n)
	if err != nil {
		return nil, fmt.Errorf("tensorq: %s: %w", info.Name, err)
	}
	if len(raw) != want {
		return nil, fmt.Errorf("tensorq: %s: %w: %s needs %d bytes for %d elements, have %d",
			info.Name, blockq.ErrMalformedBlock, info.Scheme, want, n, len(raw))
	}
	owned := make([]byte, len(raw))
	copy(owned, raw)
	return &Tensor{
		info:      info,
		blockSize: info.Scheme.BlockSize(),
		raw:       owned,
	}, nil
}

// NewOwned is like New but takes ownership of raw without copying. The
// caller must not touch raw afterwards. Used by loaders that already
// allocated a private buffer.
func NewOwned(info Info, raw []byte) (*Tensor, error) {
	n, err := info.Elements()
	if err != nil {
		return nil, err
	}
	want, err := info.Scheme.DataSize(n)
	if err != nil {
		return nil, fmt.Errorf("tensorq: %s: %w", info.Name, err)
	}
	if len(raw) != want {
		return nil, fmt.Errorf("tensorq: %s: %w: %s needs %d bytes for %d elements, have %d",
			info.Name, blockq.ErrMalformedBlock, info.Scheme, want, n, len(raw))
	}
	return &Tensor{
		info:      info,
		blockSize: info.Scheme.BlockSize(),
		raw:       raw,
	}, nil
}

func (t *Tensor) Name() string          { return t.info.Name }
func (t *Tensor) Scheme() blockq.Scheme { return t.info.Scheme }
func (t *Tensor) BlockSize() int        { return t.blockSize }
func (t *Tensor) Info() Info            { return t.info }

// Dims returns a copy of the dimension sequence.
func (t *Tensor) Dims() []uint64 {
	out := make([]uint64, len(t.info.Dims))
	copy(out, t.info.Dims)
	return out
}

// Raw returns the packed bytes. Callers must treat the slice as read-only.
func (t *Tensor) Raw() []byte { return t.raw }

// Elements returns the total element count. Shape was validated at
// construction, so this cannot fail.
func (t *Tensor) Elements() int {
	n, _ := t.info.Elements()
	return n
}

// Rows and Cols interpret the tensor as a row-major matrix: the innermost
// dimension is the contraction axis, everything above it is rows. Rank-1
// tensors are a single row.
func (t *Tensor) Rows() int {
	if len(t.info.Dims) < 2 {
		return 1
	}
	rows := 1
	for _, d := range t.info.Dims[:len(t.info.Dims)-1] {
		rows *= int(d)
	}
	return rows
}

func (t *Tensor) Cols() int {
	return int(t.info.Dims[len(t.info.Dims)-1])
}

// RowBytes returns the packed byte length of one matrix row. Quantized rows
// must cover whole blocks; the constructor guarantees the total size, and
// per-row slicing is only meaningful when Cols is block-aligned or the
// tensor has a single row.
func (t *Tensor) RowBytes() (int, error) {
	cols := t.Cols()
	if t.Rows() > 1 && t.blockSize > 1 && cols%t.blockSize != 0 {
		return 0, fmt.Errorf("tensorq: %s: row length %d not aligned to block size %d",
			t.info.Name, cols, t.blockSize)
	}
	return t.info.Scheme.DataSize(cols)
}

// Row returns the packed bytes of row r.
func (t *Tensor) Row(r int) ([]byte, error) {
	rb, err := t.RowBytes()
	if err != nil {
		return nil, err
	}
	if r < 0 || r >= t.Rows() {
		return nil, fmt.Errorf("tensorq: %s: row %d out of range [0,%d)", t.info.Name, r, t.Rows())
	}
	return t.raw[r*rb : (r+1)*rb], nil
}

// Dequantize decodes the whole tensor to float32 through the given registry.
func (t *Tensor) Dequantize(reg *Registry) ([]float32, error) {
	return reg.Decode(t.info.Scheme, t.info, t.raw)
}

// Requantize produces a new tensor holding the same values encoded with the
// target scheme. This goes through full precision, so it compounds the
// original quantization error with a second rounding step.
func (t *Tensor) Requantize(reg *Registry, target blockq.Scheme) (*Tensor, error) {
	vals, err := t.Dequantize(reg)
	if err != nil {
		return nil, err
	}
	packed, err := blockq.Quantize(target, vals)
	if err != nil {
		return nil, fmt.Errorf("tensorq: %s: requantize to %s: %w", t.info.Name, target, err)
	}
	info := t.info
	info.Scheme = target
	info.Dims = t.Dims()
	return New(info, packed)
}
