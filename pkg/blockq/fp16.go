package blockq

import "math"

// Fp16ToFp32 widens an IEEE 754 half-precision value to single precision.
func Fp16ToFp32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := uint32(h>>10) & 0x1F
	frac := uint32(h & 0x3FF)
	var f uint32
	switch exp {
	case 0:
		if frac == 0 {
			f = sign << 31
		} else {
			// Subnormal: renormalize.
			e := uint32(127 - 15 + 1)
			for (frac & 0x400) == 0 {
				frac <<= 1
				e--
			}
			frac &= 0x3FF
			f = (sign << 31) | (e << 23) | (frac << 13)
		}
	case 0x1F:
		f = (sign << 31) | 0x7F800000 | (frac << 13)
	default:
		e := exp + (127 - 15)
		f = (sign << 31) | (e << 23) | (frac << 13)
	}
	return math.Float32frombits(f)
}

// Fp32ToFp16 narrows a single-precision value to half precision with
// round-to-nearest-even. Overflow saturates to infinity.
func Fp32ToFp16(f float32) uint16 {
	u := math.Float32bits(f)
	sign := uint16(u>>16) & 0x8000
	exp := int32(u>>23) & 0xFF
	frac := u & 0x7FFFFF

	switch {
	case exp == 0xFF:
		// Inf / NaN. Keep a quiet-NaN payload bit so NaN stays NaN.
		if frac != 0 {
			return sign | 0x7C00 | 0x0200 | uint16(frac>>13)
		}
		return sign | 0x7C00
	case exp > 127+15:
		return sign | 0x7C00
	case exp >= 127-14:
		// Normal half.
		e := uint16(exp - 127 + 15)
		mant := uint16(frac >> 13)
		h := sign | e<<10 | mant
		// Round to nearest even on the dropped 13 bits.
		rem := frac & 0x1FFF
		if rem > 0x1000 || (rem == 0x1000 && mant&1 == 1) {
			h++
		}
		return h
	case exp >= 127-24:
		// Subnormal half.
		shift := uint32(127 - 14 - exp)
		mant := (frac | 0x800000) >> (13 + shift)
		rem := (frac | 0x800000) & ((1 << (13 + shift)) - 1)
		half := uint32(1) << (12 + shift)
		h := sign | uint16(mant)
		if rem > half || (rem == half && mant&1 == 1) {
			h++
		}
		return h
	default:
		// Underflow to signed zero.
		return sign
	}
}

func f32bits(f float32) uint32 { return math.Float32bits(f) }

func f32frombits(u uint32) float32 { return math.Float32frombits(u) }

func getFp16(b []byte) float32 {
	return Fp16ToFp32(uint16(b[0]) | uint16(b[1])<<8)
}

func putFp16(b []byte, f float32) {
	h := Fp32ToFp16(f)
	b[0] = byte(h)
	b[1] = byte(h >> 8)
}
