// Package blockq implements the block-quantized tensor codecs.
//
// Every codec is a pure function over caller-supplied buffers: no I/O, no
// shared state. The wire layouts are byte-exact with the GGML quantization
// formats so that tensors imported from GGUF files decode bit-identically.
package blockq

import "fmt"

// Scheme identifies a tensor element encoding.
// The numeric values match the GGML tensor type enumeration and are
// wire-stable: never renumber, only add.
type Scheme uint32

const (
	F32  Scheme = 0
	F16  Scheme = 1
	Q4_0 Scheme = 2
	Q4_1 Scheme = 3
	Q5_0 Scheme = 6
	Q5_1 Scheme = 7
	Q8_0 Scheme = 8
	Q4_K Scheme = 12
	Q5_K Scheme = 13
	Q6_K Scheme = 14
	Q8_K Scheme = 15
)

// Block geometry. Basic schemes quantize 32 values per block; K-quant
// schemes quantize 256-value super-blocks subdivided into 32-value
// (Q4_K/Q5_K) or 16-value (Q6_K) sub-blocks.
const (
	QK  = 32
	QKK = 256
)

// Per-block byte sizes, including embedded scale metadata.
const (
	BlockQ4_0Bytes = 2 + QK/2            // fp16 d + 32 nibbles
	BlockQ4_1Bytes = 2 + 2 + QK/2        // fp16 d + fp16 m + 32 nibbles
	BlockQ5_0Bytes = 2 + 4 + QK/2        // fp16 d + high bits + 32 nibbles
	BlockQ5_1Bytes = 2 + 2 + 4 + QK/2    // fp16 d + fp16 m + high bits + nibbles
	BlockQ8_0Bytes = 2 + QK              // fp16 d + 32 int8
	BlockQ4_KBytes = 2 + 2 + 12 + QKK/2  // d, dmin, packed 6-bit scales, nibbles
	BlockQ5_KBytes = 2 + 2 + 12 + QKK/8 + QKK/2
	BlockQ6_KBytes = QKK/2 + QKK/4 + QKK/16 + 2 // ql, qh, int8 scales, fp16 d
	BlockQ8_KBytes = 4 + QKK + QKK/16*2  // f32 d, 256 int8, 16 int16 group sums
)

func (s Scheme) String() string {
	switch s {
	case F32:
		return "F32"
	case F16:
		return "F16"
	case Q4_0:
		return "Q4_0"
	case Q4_1:
		return "Q4_1"
	case Q5_0:
		return "Q5_0"
	case Q5_1:
		return "Q5_1"
	case Q8_0:
		return "Q8_0"
	case Q4_K:
		return "Q4_K"
	case Q5_K:
		return "Q5_K"
	case Q6_K:
		return "Q6_K"
	case Q8_K:
		return "Q8_K"
	default:
		return fmt.Sprintf("scheme(%d)", uint32(s))
	}
}

// Schemes returns every scheme this package can encode and decode, in tag
// order.
func Schemes() []Scheme {
	return []Scheme{F32, F16, Q4_0, Q4_1, Q5_0, Q5_1, Q8_0, Q4_K, Q5_K, Q6_K, Q8_K}
}

// Supported reports whether this package can encode and decode the scheme.
func (s Scheme) Supported() bool {
	switch s {
	case F32, F16, Q4_0, Q4_1, Q5_0, Q5_1, Q8_0, Q4_K, Q5_K, Q6_K, Q8_K:
		return true
	default:
		return false
	}
}

// Quantized reports whether the scheme is block-quantized (anything other
// than the plain float encodings).
func (s Scheme) Quantized() bool {
	return s.Supported() && s != F32 && s != F16
}

// BlockSize returns the number of scalar values per quantization block.
// Plain float schemes report 1.
func (s Scheme) BlockSize() int {
	switch s {
	case F32, F16:
		return 1
	case Q4_0, Q4_1, Q5_0, Q5_1, Q8_0:
		return QK
	case Q4_K, Q5_K, Q6_K, Q8_K:
		return QKK
	default:
		return 0
	}
}

// BlockBytes returns the encoded size of one block.
func (s Scheme) BlockBytes() int {
	switch s {
	case F32:
		return 4
	case F16:
		return 2
	case Q4_0:
		return BlockQ4_0Bytes
	case Q4_1:
		return BlockQ4_1Bytes
	case Q5_0:
		return BlockQ5_0Bytes
	case Q5_1:
		return BlockQ5_1Bytes
	case Q8_0:
		return BlockQ8_0Bytes
	case Q4_K:
		return BlockQ4_KBytes
	case Q5_K:
		return BlockQ5_KBytes
	case Q6_K:
		return BlockQ6_KBytes
	case Q8_K:
		return BlockQ8_KBytes
	default:
		return 0
	}
}

// DataSize returns the encoded byte size of n elements. The final block may
// be partial for basic schemes; it still occupies a full block record.
// K-quant schemes require n to be a multiple of the super-block size.
func (s Scheme) DataSize(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("blockq: invalid element count %d", n)
	}
	bs := s.BlockSize()
	if bs == 0 {
		return 0, fmt.Errorf("blockq: %w: %s", ErrUnsupportedScheme, s)
	}
	if bs == QKK && n%QKK != 0 {
		return 0, fmt.Errorf("blockq: %s requires a multiple of %d elements, got %d", s, QKK, n)
	}
	blocks := (n + bs - 1) / bs
	return blocks * s.BlockBytes(), nil
}

// SchemeByName resolves a scheme from its canonical name.
func SchemeByName(name string) (Scheme, bool) {
	for _, s := range []Scheme{F32, F16, Q4_0, Q4_1, Q5_0, Q5_1, Q8_0, Q4_K, Q5_K, Q6_K, Q8_K} {
		if s.String() == name {
			return s, true
		}
	}
	return 0, false
}
