// Package qtc implements the native quantized tensor container: a single
// little-endian file holding a JSON metadata blob, a fixed-size tensor
// directory, and block-packed tensor payloads, plus a JSON manifest sidecar.
package qtc

import "errors"

const (
	// Magic opens every container file.
	Magic = "QKTENSOR"

	// CurrentVersion is the only version this package reads or writes.
	// Breaking layout changes bump it; readers reject anything else.
	CurrentVersion uint32 = 1

	headerSize = 32
	entrySize  = 88

	// MaxRank is the deepest shape the fixed directory entry can carry.
	MaxRank = 4

	// dataAlign keeps tensor payloads aligned for consumers that cast
	// mapped bytes to wider views.
	dataAlign = 64
	dirAlign  = 8
)

var (
	ErrInvalidMagic       = errors.New("qtc: invalid magic")
	ErrUnsupportedVersion = errors.New("qtc: unsupported container version")
	ErrCorruptFile        = errors.New("qtc: corrupt container")
	ErrTensorNotFound     = errors.New("qtc: tensor not found")
)

// header is the fixed 32-byte file prelude.
//
//	0:8   magic "QKTENSOR"
//	8:12  version (u32)
//	12:16 tensor count (u32)
//	16:20 metadata length in bytes (u32)
//	20:24 strings table length in bytes (u32)
//	24:32 reserved, zero
type header struct {
	Version     uint32
	TensorCount uint32
	MetaLen     uint32
	StringsLen  uint32
}

// entry is the fixed 88-byte directory record. Name bytes live in the
// strings table that follows the entry array; data and aux offsets are
// absolute file offsets so payloads slice straight out of the mapping.
//
//	0:4   name offset into strings table (u32)
//	4:8   name length (u32)
//	8:12  scheme tag (u32)
//	12:16 rank (u32, 1..MaxRank)
//	16:48 dims (4 x u64, unused trailing dims zero)
//	48:52 block size (u32)
//	52:56 reserved, zero
//	56:64 data offset (u64, absolute)
//	64:72 data length (u64)
//	72:80 aux offset (u64, absolute, zero when unused)
//	80:88 aux length (u64)
//
// The aux range is reserved for encodings that store scales out of line.
// Every scheme currently written embeds scales in its blocks, so writers
// emit zero aux ranges, but readers and Verify still bounds-check them.
type entry struct {
	NameOff   uint32
	NameLen   uint32
	Scheme    uint32
	Rank      uint32
	Dims      [MaxRank]uint64
	BlockSize uint32
	DataOff   uint64
	DataLen   uint64
	AuxOff    uint64
	AuxLen    uint64
}

func putU32(b []byte, off int, v uint32) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
	b[off+3] = byte(v >> 24)
}

func putU64(b []byte, off int, v uint64) {
	putU32(b, off, uint32(v))
	putU32(b, off+4, uint32(v>>32))
}

func getU32(b []byte, off int) uint32 {
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
}

func getU64(b []byte, off int) uint64 {
	return uint64(getU32(b, off)) | uint64(getU32(b, off+4))<<32
}

func encodeHeader(dst []byte, h header) {
	copy(dst[0:8], Magic)
	putU32(dst, 8, h.Version)
	putU32(dst, 12, h.TensorCount)
	putU32(dst, 16, h.MetaLen)
	putU32(dst, 20, h.StringsLen)
	// 24:32 reserved
}

func decodeHeader(src []byte) (header, bool) {
	if len(src) < headerSize || string(src[0:8]) != Magic {
		return header{}, false
	}
	return header{
		Version:     getU32(src, 8),
		TensorCount: getU32(src, 12),
		MetaLen:     getU32(src, 16),
		StringsLen:  getU32(src, 20),
	}, true
}

func encodeEntry(dst []byte, e entry) {
	putU32(dst, 0, e.NameOff)
	putU32(dst, 4, e.NameLen)
	putU32(dst, 8, e.Scheme)
	putU32(dst, 12, e.Rank)
	for i := 0; i < MaxRank; i++ {
		putU64(dst, 16+i*8, e.Dims[i])
	}
	putU32(dst, 48, e.BlockSize)
	// 52:56 reserved
	putU64(dst, 56, e.DataOff)
	putU64(dst, 64, e.DataLen)
	putU64(dst, 72, e.AuxOff)
	putU64(dst, 80, e.AuxLen)
}

func decodeEntry(src []byte) entry {
	var e entry
	e.NameOff = getU32(src, 0)
	e.NameLen = getU32(src, 4)
	e.Scheme = getU32(src, 8)
	e.Rank = getU32(src, 12)
	for i := 0; i < MaxRank; i++ {
		e.Dims[i] = getU64(src, 16+i*8)
	}
	e.BlockSize = getU32(src, 48)
	e.DataOff = getU64(src, 56)
	e.DataLen = getU64(src, 64)
	e.AuxOff = getU64(src, 72)
	e.AuxLen = getU64(src, 80)
	return e
}

func alignUp(n, a int) int {
	return (n + a - 1) &^ (a - 1)
}
