package blockq

import "encoding/binary"

// K-quant super-block codecs.
//
// Each super-block covers 256 values. Q4_K and Q5_K carry eight 32-value
// sub-blocks with 6-bit scale/min pairs against half-precision super-block
// factors d/dmin: v = d*sc*q - dmin*mn. Q6_K carries sixteen 16-value
// sub-blocks with signed 8-bit scales: v = d*sc*(q-32), with the 6-bit codes
// split across a low-nibble array and a 2-bit high array. Q8_K stores a
// single f32 scale, raw int8 codes and per-16 group sums.

func quantQ4_KBlock(vals []float32, dst []byte) {
	var sc, mn [8]float32
	for j := 0; j < 8; j++ {
		sub := vals[j*32 : j*32+32]
		vmin, vmax := minMax(sub)
		if vmin > 0 {
			vmin = 0
		}
		sc[j] = (vmax - vmin) / 15
		mn[j] = -vmin
	}
	d := maxOf(sc[:]) / 63
	dmin := maxOf(mn[:]) / 63
	putFp16(dst[0:2], d)
	putFp16(dst[2:4], dmin)
	d = getFp16(dst[0:2])
	dmin = getFp16(dst[2:4])

	var ls, lm [8]uint8
	for j := 0; j < 8; j++ {
		ls[j] = quant6(sc[j], d)
		lm[j] = quant6(mn[j], dmin)
	}
	PackScaleMinK4(&ls, &lm, dst[4:16])

	qs := dst[16:BlockQ4_KBytes]
	for i := range qs {
		qs[i] = 0
	}
	for j := 0; j < 8; j++ {
		scale := d * float32(ls[j])
		moff := dmin * float32(lm[j])
		var inv float32
		if scale != 0 {
			inv = 1 / scale
		}
		for l := 0; l < 32; l++ {
			q := clampInt(roundf((vals[j*32+l]+moff)*inv), 0, 15)
			// Values 0..31 of a 64-pair go to low nibbles, 32..63 to high.
			byteIdx := (j/2)*32 + l
			if j%2 == 0 {
				qs[byteIdx] |= byte(q)
			} else {
				qs[byteIdx] |= byte(q) << 4
			}
		}
	}
}

// DequantQ4_KBlock decodes one Q4_K super-block into dst (up to 256 values).
func DequantQ4_KBlock(src []byte, dst []float32) {
	d := getFp16(src[0:2])
	dmin := getFp16(src[2:4])
	scales := src[4:16]
	qs := src[16:BlockQ4_KBytes]

	n := min(len(dst), QKK)
	is := 0
	yi := 0
	q := qs
	for j := 0; j < QKK && yi < n; j += 64 {
		sc1, mn1 := ScaleMinK4(is+0, scales)
		sc2, mn2 := ScaleMinK4(is+1, scales)
		d1, m1 := d*float32(sc1), dmin*float32(mn1)
		d2, m2 := d*float32(sc2), dmin*float32(mn2)
		for l := 0; l < 32 && yi < n; l++ {
			dst[yi] = d1*float32(q[l]&0x0F) - m1
			yi++
		}
		for l := 0; l < 32 && yi < n; l++ {
			dst[yi] = d2*float32(q[l]>>4) - m2
			yi++
		}
		q = q[32:]
		is += 2
	}
}

func quantQ5_KBlock(vals []float32, dst []byte) {
	var sc, mn [8]float32
	for j := 0; j < 8; j++ {
		sub := vals[j*32 : j*32+32]
		vmin, vmax := minMax(sub)
		if vmin > 0 {
			vmin = 0
		}
		sc[j] = (vmax - vmin) / 31
		mn[j] = -vmin
	}
	d := maxOf(sc[:]) / 63
	dmin := maxOf(mn[:]) / 63
	putFp16(dst[0:2], d)
	putFp16(dst[2:4], dmin)
	d = getFp16(dst[0:2])
	dmin = getFp16(dst[2:4])

	var ls, lm [8]uint8
	for j := 0; j < 8; j++ {
		ls[j] = quant6(sc[j], d)
		lm[j] = quant6(mn[j], dmin)
	}
	PackScaleMinK4(&ls, &lm, dst[4:16])

	qh := dst[16:48]
	qs := dst[48:BlockQ5_KBytes]
	for i := range qh {
		qh[i] = 0
	}
	for i := range qs {
		qs[i] = 0
	}
	for j := 0; j < 8; j++ {
		scale := d * float32(ls[j])
		moff := dmin * float32(lm[j])
		var inv float32
		if scale != 0 {
			inv = 1 / scale
		}
		for l := 0; l < 32; l++ {
			q := clampInt(roundf((vals[j*32+l]+moff)*inv), 0, 31)
			byteIdx := (j/2)*32 + l
			if j%2 == 0 {
				qs[byteIdx] |= byte(q & 0x0F)
			} else {
				qs[byteIdx] |= byte(q&0x0F) << 4
			}
			// The fifth bit lives in qh[l], two bits per 64-value pair.
			if q >= 16 {
				qh[l] |= 1 << uint(j)
			}
		}
	}
}

// DequantQ5_KBlock decodes one Q5_K super-block into dst (up to 256 values).
func DequantQ5_KBlock(src []byte, dst []float32) {
	d := getFp16(src[0:2])
	dmin := getFp16(src[2:4])
	scales := src[4:16]
	qh := src[16:48]
	ql := src[48:BlockQ5_KBytes]

	n := min(len(dst), QKK)
	is := 0
	yi := 0
	u1, u2 := byte(1), byte(2)
	for j := 0; j < QKK && yi < n; j += 64 {
		sc1, mn1 := ScaleMinK4(is+0, scales)
		sc2, mn2 := ScaleMinK4(is+1, scales)
		d1, m1 := d*float32(sc1), dmin*float32(mn1)
		d2, m2 := d*float32(sc2), dmin*float32(mn2)
		for l := 0; l < 32 && yi < n; l++ {
			q := int(ql[l] & 0x0F)
			if qh[l]&u1 != 0 {
				q += 16
			}
			dst[yi] = d1*float32(q) - m1
			yi++
		}
		for l := 0; l < 32 && yi < n; l++ {
			q := int(ql[l] >> 4)
			if qh[l]&u2 != 0 {
				q += 16
			}
			dst[yi] = d2*float32(q) - m2
			yi++
		}
		ql = ql[32:]
		is += 2
		u1 <<= 2
		u2 <<= 2
	}
}

func quantQ6_KBlock(vals []float32, dst []byte) {
	ql := dst[0:128]
	qh := dst[128:192]
	scales := dst[192:208]
	for i := range ql {
		ql[i] = 0
	}
	for i := range qh {
		qh[i] = 0
	}

	var sub [16]float32
	for j := 0; j < 16; j++ {
		sub[j] = maxAbs(vals[j*16:j*16+16]) / 31
	}
	d := maxOf(sub[:]) / 127
	putFp16(dst[208:210], d)
	d = getFp16(dst[208:210])

	var invd float32
	if d != 0 {
		invd = 1 / d
	}
	var scf [16]float32
	for j := 0; j < 16; j++ {
		s := clampInt(roundf(sub[j]*invd), -128, 127)
		scales[j] = byte(int8(s))
		scf[j] = d * float32(s)
	}

	for p := 0; p < QKK; p++ {
		scale := scf[p/16]
		var inv float32
		if scale != 0 {
			inv = 1 / scale
		}
		q := clampInt(roundf(vals[p]*inv), -32, 31) + 32
		n128 := p / 128
		k := (p % 128) / 32
		l := p % 32
		lowIdx := n128*64 + (k%2)*32 + l
		if k < 2 {
			ql[lowIdx] |= byte(q & 0x0F)
		} else {
			ql[lowIdx] |= byte(q&0x0F) << 4
		}
		qh[n128*32+l] |= byte((q>>4)&3) << uint(2*k)
	}
}

// DequantQ6_KBlock decodes one Q6_K super-block into dst (up to 256 values).
func DequantQ6_KBlock(src []byte, dst []float32) {
	ql := src[0:128]
	qh := src[128:192]
	scales := src[192:208]
	d := getFp16(src[208:210])

	n := min(len(dst), QKK)
	for base := 0; base < QKK && base < n; base += 128 {
		qlp := ql[base/2:]
		qhp := qh[base/4:]
		scp := scales[base/16:]
		for l := 0; l < 32; l++ {
			is := l / 16
			q1 := (int(qlp[l]&0x0F) | int((qhp[l]>>0)&3)<<4) - 32
			q2 := (int(qlp[l+32]&0x0F) | int((qhp[l]>>2)&3)<<4) - 32
			q3 := (int(qlp[l]>>4) | int((qhp[l]>>4)&3)<<4) - 32
			q4 := (int(qlp[l+32]>>4) | int((qhp[l]>>6)&3)<<4) - 32
			if base+l < n {
				dst[base+l] = d * float32(int8(scp[is+0])) * float32(q1)
			}
			if base+l+32 < n {
				dst[base+l+32] = d * float32(int8(scp[is+2])) * float32(q2)
			}
			if base+l+64 < n {
				dst[base+l+64] = d * float32(int8(scp[is+4])) * float32(q3)
			}
			if base+l+96 < n {
				dst[base+l+96] = d * float32(int8(scp[is+6])) * float32(q4)
			}
		}
	}
}

func quantQ8_KBlock(vals []float32, dst []byte) {
	amax := maxAbs(vals)
	d := amax / 127
	var inv float32
	if d != 0 {
		inv = 1 / d
	}
	binary.LittleEndian.PutUint32(dst[0:4], f32bits(d))
	qs := dst[4 : 4+QKK]
	for i, v := range vals {
		qs[i] = byte(int8(clampInt(roundf(v*inv), -127, 127)))
	}
	for g := 0; g < 16; g++ {
		var sum int16
		for l := 0; l < 16; l++ {
			sum += int16(int8(qs[g*16+l]))
		}
		binary.LittleEndian.PutUint16(dst[4+QKK+g*2:], uint16(sum))
	}
}

// DequantQ8_KBlock decodes one Q8_K super-block into dst (up to 256 values).
func DequantQ8_KBlock(src []byte, dst []float32) {
	d := f32frombits(binary.LittleEndian.Uint32(src[0:4]))
	qs := src[4 : 4+QKK]
	n := min(len(dst), QKK)
	for i := 0; i < n; i++ {
		dst[i] = d * float32(int8(qs[i]))
	}
}

func quant6(v, d float32) uint8 {
	if d == 0 {
		return 0
	}
	return uint8(clampInt(roundf(v/d), 0, 63))
}

func maxOf(vals []float32) float32 {
	var m float32
	for _, v := range vals {
		if v > m {
			m = v
		}
	}
	return m
}
