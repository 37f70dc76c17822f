package blockq

import "errors"

var (
	// ErrUnsupportedScheme is returned when a codec is asked for a scheme
	// this package does not implement.
	ErrUnsupportedScheme = errors.New("unsupported quantization scheme")

	// ErrMalformedBlock is returned when a buffer's byte length does not
	// match what the declared scheme and element count require.
	ErrMalformedBlock = errors.New("malformed quantized block")
)
