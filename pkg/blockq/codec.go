package blockq

import (
	"encoding/binary"
	"fmt"
)

type blockQuantFunc func(vals []float32, dst []byte)

type blockDequantFunc func(src []byte, dst []float32)

func blockFuncs(s Scheme) (blockQuantFunc, blockDequantFunc) {
	switch s {
	case Q4_0:
		return quantQ4_0Block, DequantQ4_0Block
	case Q4_1:
		return quantQ4_1Block, DequantQ4_1Block
	case Q5_0:
		return quantQ5_0Block, DequantQ5_0Block
	case Q5_1:
		return quantQ5_1Block, DequantQ5_1Block
	case Q8_0:
		return quantQ8_0Block, DequantQ8_0Block
	case Q4_K:
		return quantQ4_KBlock, DequantQ4_KBlock
	case Q5_K:
		return quantQ5_KBlock, DequantQ5_KBlock
	case Q6_K:
		return quantQ6_KBlock, DequantQ6_KBlock
	case Q8_K:
		return quantQ8_KBlock, DequantQ8_KBlock
	default:
		return nil, nil
	}
}

// Quantize encodes vals into the scheme's wire format and returns the packed
// bytes. Scale metadata is embedded per block. The final block may be
// partial for basic schemes; K-quant schemes require a multiple of 256
// values.
func Quantize(s Scheme, vals []float32) ([]byte, error) {
	n := len(vals)
	size, err := s.DataSize(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)

	switch s {
	case F32:
		for i, v := range vals {
			binary.LittleEndian.PutUint32(out[i*4:], f32bits(v))
		}
		return out, nil
	case F16:
		for i, v := range vals {
			putFp16(out[i*2:i*2+2], v)
		}
		return out, nil
	}

	quant, _ := blockFuncs(s)
	bs, bb := s.BlockSize(), s.BlockBytes()
	for start, off := 0, 0; start < n; start, off = start+bs, off+bb {
		end := min(start+bs, n)
		quant(vals[start:end], out[off:off+bb])
	}
	return out, nil
}

// Dequantize decodes n values from data. data must hold exactly the blocks
// that n elements require; a shorter or longer buffer is a malformed block.
func Dequantize(s Scheme, data []byte, n int) ([]float32, error) {
	out := make([]float32, n)
	if err := DequantizeInto(s, data, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DequantizeInto decodes len(dst) values from data into dst without further
// allocation.
func DequantizeInto(s Scheme, data []byte, dst []float32) error {
	n := len(dst)
	size, err := s.DataSize(n)
	if err != nil {
		return err
	}
	if len(data) != size {
		return fmt.Errorf("blockq: %w: %s needs %d bytes for %d elements, have %d",
			ErrMalformedBlock, s, size, n, len(data))
	}

	switch s {
	case F32:
		for i := range dst {
			dst[i] = f32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		}
		return nil
	case F16:
		for i := range dst {
			dst[i] = getFp16(data[i*2 : i*2+2])
		}
		return nil
	}

	_, dequant := blockFuncs(s)
	bs, bb := s.BlockSize(), s.BlockBytes()
	for start, off := 0, 0; start < n; start, off = start+bs, off+bb {
		end := min(start+bs, n)
		dequant(data[off:off+bb], dst[start:end])
	}
	return nil
}
