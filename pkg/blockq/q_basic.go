package blockq

import (
	"encoding/binary"
	"math"
)

// Basic 32-value block codecs.
//
// Symmetric schemes (Q4_0, Q5_0, Q8_0) store a half-precision scale d and
// signed codes: v = q * d. Asymmetric schemes (Q4_1, Q5_1) store a scale and
// a minimum: v = q * d + m. Codes are clamped on encode, never wrapped.
//
// Per-block encoders accept up to 32 values; a short slice encodes a partial
// final block with the trailing codes zero. Per-block decoders fill up to 32
// values and stop at len(dst), so a partial block never reads out of range.

func quantQ4_0Block(vals []float32, dst []byte) {
	amax := maxAbs(vals)
	d := amax / 7
	putFp16(dst[0:2], d)
	d = getFp16(dst[0:2]) // quantize against the scale the decoder will see
	var inv float32
	if d != 0 {
		inv = 1 / d
	}
	qs := dst[2:BlockQ4_0Bytes]
	for i := range qs {
		qs[i] = 0
	}
	for i, v := range vals {
		q := clampInt(roundf(v*inv), -8, 7) + 8
		if i < 16 {
			qs[i] |= byte(q)
		} else {
			qs[i-16] |= byte(q) << 4
		}
	}
}

// DequantQ4_0Block decodes one Q4_0 block into dst (up to 32 values).
func DequantQ4_0Block(src []byte, dst []float32) {
	d := getFp16(src[0:2])
	qs := src[2:BlockQ4_0Bytes]
	n := min(len(dst), QK)
	for i := 0; i < n; i++ {
		var q byte
		if i < 16 {
			q = qs[i] & 0x0F
		} else {
			q = qs[i-16] >> 4
		}
		dst[i] = d * float32(int(q)-8)
	}
}

func quantQ4_1Block(vals []float32, dst []byte) {
	vmin, vmax := minMax(vals)
	d := (vmax - vmin) / 15
	putFp16(dst[0:2], d)
	putFp16(dst[2:4], vmin)
	d = getFp16(dst[0:2])
	vmin = getFp16(dst[2:4])
	var inv float32
	if d != 0 {
		inv = 1 / d
	}
	qs := dst[4:BlockQ4_1Bytes]
	for i := range qs {
		qs[i] = 0
	}
	for i, v := range vals {
		q := clampInt(roundf((v-vmin)*inv), 0, 15)
		if i < 16 {
			qs[i] |= byte(q)
		} else {
			qs[i-16] |= byte(q) << 4
		}
	}
}

// DequantQ4_1Block decodes one Q4_1 block into dst (up to 32 values).
func DequantQ4_1Block(src []byte, dst []float32) {
	d := getFp16(src[0:2])
	m := getFp16(src[2:4])
	qs := src[4:BlockQ4_1Bytes]
	n := min(len(dst), QK)
	for i := 0; i < n; i++ {
		var q byte
		if i < 16 {
			q = qs[i] & 0x0F
		} else {
			q = qs[i-16] >> 4
		}
		dst[i] = d*float32(q) + m
	}
}

func quantQ5_0Block(vals []float32, dst []byte) {
	amax := maxAbs(vals)
	d := amax / 15
	putFp16(dst[0:2], d)
	d = getFp16(dst[0:2])
	var inv float32
	if d != 0 {
		inv = 1 / d
	}
	var qh uint32
	qs := dst[6:BlockQ5_0Bytes]
	for i := range qs {
		qs[i] = 0
	}
	for i, v := range vals {
		q := clampInt(roundf(v*inv), -16, 15) + 16
		if i < 16 {
			qs[i] |= byte(q & 0x0F)
		} else {
			qs[i-16] |= byte(q&0x0F) << 4
		}
		qh |= uint32(q>>4) << uint(i)
	}
	binary.LittleEndian.PutUint32(dst[2:6], qh)
}

// DequantQ5_0Block decodes one Q5_0 block into dst (up to 32 values).
func DequantQ5_0Block(src []byte, dst []float32) {
	d := getFp16(src[0:2])
	qh := binary.LittleEndian.Uint32(src[2:6])
	qs := src[6:BlockQ5_0Bytes]
	n := min(len(dst), QK)
	for i := 0; i < n; i++ {
		var nib byte
		if i < 16 {
			nib = qs[i] & 0x0F
		} else {
			nib = qs[i-16] >> 4
		}
		q := int(nib) | int((qh>>uint(i))&1)<<4
		dst[i] = d * float32(q-16)
	}
}

func quantQ5_1Block(vals []float32, dst []byte) {
	vmin, vmax := minMax(vals)
	d := (vmax - vmin) / 31
	putFp16(dst[0:2], d)
	putFp16(dst[2:4], vmin)
	d = getFp16(dst[0:2])
	vmin = getFp16(dst[2:4])
	var inv float32
	if d != 0 {
		inv = 1 / d
	}
	var qh uint32
	qs := dst[8:BlockQ5_1Bytes]
	for i := range qs {
		qs[i] = 0
	}
	for i, v := range vals {
		q := clampInt(roundf((v-vmin)*inv), 0, 31)
		if i < 16 {
			qs[i] |= byte(q & 0x0F)
		} else {
			qs[i-16] |= byte(q&0x0F) << 4
		}
		qh |= uint32(q>>4) << uint(i)
	}
	binary.LittleEndian.PutUint32(dst[4:8], qh)
}

// DequantQ5_1Block decodes one Q5_1 block into dst (up to 32 values).
func DequantQ5_1Block(src []byte, dst []float32) {
	d := getFp16(src[0:2])
	m := getFp16(src[2:4])
	qh := binary.LittleEndian.Uint32(src[4:8])
	qs := src[8:BlockQ5_1Bytes]
	n := min(len(dst), QK)
	for i := 0; i < n; i++ {
		var nib byte
		if i < 16 {
			nib = qs[i] & 0x0F
		} else {
			nib = qs[i-16] >> 4
		}
		q := int(nib) | int((qh>>uint(i))&1)<<4
		dst[i] = d*float32(q) + m
	}
}

func quantQ8_0Block(vals []float32, dst []byte) {
	amax := maxAbs(vals)
	d := amax / 127
	putFp16(dst[0:2], d)
	d = getFp16(dst[0:2])
	var inv float32
	if d != 0 {
		inv = 1 / d
	}
	qs := dst[2:BlockQ8_0Bytes]
	for i := range qs {
		qs[i] = 0
	}
	for i, v := range vals {
		qs[i] = byte(int8(clampInt(roundf(v*inv), -128, 127)))
	}
}

// DequantQ8_0Block decodes one Q8_0 block into dst (up to 32 values).
func DequantQ8_0Block(src []byte, dst []float32) {
	d := getFp16(src[0:2])
	qs := src[2:BlockQ8_0Bytes]
	n := min(len(dst), QK)
	for i := 0; i < n; i++ {
		dst[i] = d * float32(int8(qs[i]))
	}
}

func maxAbs(vals []float32) float32 {
	var amax float32
	for _, v := range vals {
		if v < 0 {
			v = -v
		}
		if v > amax {
			amax = v
		}
	}
	return amax
}

func minMax(vals []float32) (float32, float32) {
	if len(vals) == 0 {
		return 0, 0
	}
	vmin, vmax := vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < vmin {
			vmin = v
		}
		if v > vmax {
			vmax = v
		}
	}
	// A partial block is padded with zero codes; keep zero representable so
	// the padding decodes to a value inside the block's range.
	if len(vals) < QK {
		if vmin > 0 {
			vmin = 0
		}
		if vmax < 0 {
			vmax = 0
		}
	}
	return vmin, vmax
}

func roundf(v float32) int {
	return int(math.Round(float64(v)))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
