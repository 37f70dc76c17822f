package blockq

// 6-bit sub-block scale/min packing for the Q4_K and Q5_K super-blocks.
//
// Eight (scale, min) pairs of 6 bits each are packed into 12 bytes. The
// first four pairs keep their low 6 bits byte-aligned; the last four pairs
// store their low 4 bits in bytes 8..11 and spill their high 2 bits into
// the top bits of bytes 0..7. The shift/mask sequence must match the
// reference format exactly; it is kept here as an isolated unit so it can
// be verified against known-good vectors independently of the kernels.

// ScaleMinK4 unpacks the 6-bit scale/min pair for sub-block j (0..7)
// from a 12-byte packed array.
func ScaleMinK4(j int, scales []byte) (uint8, uint8) {
	if j < 4 {
		return scales[j] & 63, scales[j+4] & 63
	}
	sc := (scales[j+4] & 0x0F) | ((scales[j-4] >> 6) << 4)
	mn := (scales[j+4] >> 4) | ((scales[j] >> 6) << 4)
	return sc, mn
}

// PackScaleMinK4 packs eight 6-bit scale/min pairs into dst (12 bytes).
// Inputs must already be clamped to 0..63.
func PackScaleMinK4(sc, mn *[8]uint8, dst []byte) {
	for i := 0; i < 12; i++ {
		dst[i] = 0
	}
	for j := 0; j < 8; j++ {
		if j < 4 {
			dst[j] = sc[j] & 63
			dst[j+4] = mn[j] & 63
		} else {
			dst[j+4] = (sc[j] & 0x0F) | ((mn[j] & 0x0F) << 4)
			dst[j-4] |= (sc[j] >> 4) << 6
			dst[j] |= (mn[j] >> 4) << 6
		}
	}
}
