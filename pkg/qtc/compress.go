package qtc

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// zstd frame magic, little-endian on the wire.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
)

func zstdInit() {
	zstdOnce.Do(func() {
		zstdEnc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		zstdDec, _ = zstd.NewReader(nil)
	})
}

// IsCompressed reports whether data starts with a zstd frame.
func IsCompressed(data []byte) bool {
	return len(data) >= len(zstdMagic) &&
		data[0] == zstdMagic[0] && data[1] == zstdMagic[1] &&
		data[2] == zstdMagic[2] && data[3] == zstdMagic[3]
}

// Compress wraps container bytes in a zstd frame for archival. Read and
// Open accept both forms.
func Compress(data []byte) []byte {
	zstdInit()
	return zstdEnc.EncodeAll(data, make([]byte, 0, len(data)/2))
}

// Decompress expands a zstd-framed container.
func Decompress(data []byte) ([]byte, error) {
	if !IsCompressed(data) {
		return nil, fmt.Errorf("%w: not a zstd frame", ErrCorruptFile)
	}
	zstdInit()
	out, err := zstdDec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", ErrCorruptFile, err)
	}
	return out, nil
}
