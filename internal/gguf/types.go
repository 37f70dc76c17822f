// Package gguf reads the GGUF model container produced by the llama.cpp
// ecosystem: header, typed key/value metadata, tensor directory, and
// aligned tensor payloads.
package gguf

import (
	"fmt"

	"github.com/samcharles93/quantkit/pkg/blockq"
)

const magicGGUF = "GGUF"

// ValueType tags a metadata value on the wire.
type ValueType uint32

const (
	TypeUint8   ValueType = 0
	TypeInt8    ValueType = 1
	TypeUint16  ValueType = 2
	TypeInt16   ValueType = 3
	TypeUint32  ValueType = 4
	TypeInt32   ValueType = 5
	TypeFloat32 ValueType = 6
	TypeBool    ValueType = 7
	TypeString  ValueType = 8
	TypeArray   ValueType = 9
	TypeUint64  ValueType = 10
	TypeInt64   ValueType = 11
	TypeFloat64 ValueType = 12
)

func (t ValueType) String() string {
	switch t {
	case TypeUint8:
		return "u8"
	case TypeInt8:
		return "i8"
	case TypeUint16:
		return "u16"
	case TypeInt16:
		return "i16"
	case TypeUint32:
		return "u32"
	case TypeInt32:
		return "i32"
	case TypeUint64:
		return "u64"
	case TypeInt64:
		return "i64"
	case TypeFloat32:
		return "f32"
	case TypeFloat64:
		return "f64"
	case TypeBool:
		return "bool"
	case TypeString:
		return "string"
	case TypeArray:
		return "array"
	default:
		return fmt.Sprintf("type(%d)", uint32(t))
	}
}

// Value is one decoded metadata entry.
type Value struct {
	Type  ValueType
	Value any
}

// ArrayValue holds a homogeneous metadata array.
type ArrayValue struct {
	ElemType ValueType
	Values   []any
}

// TensorType is the GGML element encoding tag. Tags for encodings this
// module does not handle are still listed so rejections can be named.
type TensorType uint32

const (
	TypeTensorF32  TensorType = 0
	TypeTensorF16  TensorType = 1
	TypeTensorQ4_0 TensorType = 2
	TypeTensorQ4_1 TensorType = 3
	TypeTensorQ5_0 TensorType = 6
	TypeTensorQ5_1 TensorType = 7
	TypeTensorQ8_0 TensorType = 8
	TypeTensorQ8_1 TensorType = 9
	TypeTensorQ2_K TensorType = 10
	TypeTensorQ3_K TensorType = 11
	TypeTensorQ4_K TensorType = 12
	TypeTensorQ5_K TensorType = 13
	TypeTensorQ6_K TensorType = 14
	TypeTensorQ8_K TensorType = 15
	TypeTensorI8   TensorType = 16
	TypeTensorI16  TensorType = 17
	TypeTensorI32  TensorType = 18
	TypeTensorI64  TensorType = 19
	TypeTensorF64  TensorType = 20
)

func (t TensorType) String() string {
	if s, ok := t.Scheme(); ok {
		return s.String()
	}
	switch t {
	case TypeTensorQ8_1:
		return "Q8_1"
	case TypeTensorQ2_K:
		return "Q2_K"
	case TypeTensorQ3_K:
		return "Q3_K"
	case TypeTensorI8:
		return "I8"
	case TypeTensorI16:
		return "I16"
	case TypeTensorI32:
		return "I32"
	case TypeTensorI64:
		return "I64"
	case TypeTensorF64:
		return "F64"
	default:
		return fmt.Sprintf("type(%d)", uint32(t))
	}
}

// Scheme maps the GGML tag onto the native block codec scheme. The tag
// values line up for every encoding the codec implements, so this is a
// checked identity conversion.
func (t TensorType) Scheme() (blockq.Scheme, bool) {
	s := blockq.Scheme(t)
	if s.Supported() {
		return s, true
	}
	return 0, false
}

// ByteSize returns the payload size of n elements of this type.
func (t TensorType) ByteSize(n int) (int, error) {
	s, ok := t.Scheme()
	if !ok {
		return 0, fmt.Errorf("%w: %s", blockq.ErrUnsupportedScheme, t)
	}
	return s.DataSize(n)
}

// Header is the fixed GGUF prelude after the magic.
type Header struct {
	Version     uint32
	TensorCount uint64
	KVCount     uint64
}

// TensorInfo is one directory record. Offset is relative to the aligned
// start of the data region. Dims keeps the wire's ne order: the innermost
// (contiguous) axis comes first, so a row-major r x c weight is stored as
// [c, r]. Consumers wanting row-major shapes must reverse.
type TensorInfo struct {
	Name   string
	Dims   []uint64
	Type   TensorType
	Offset uint64
}

// Elements returns the total element count of the tensor.
func (ti TensorInfo) Elements() (int, error) {
	if len(ti.Dims) == 0 {
		return 0, fmt.Errorf("tensor %s: empty dims", ti.Name)
	}
	n := uint64(1)
	for _, d := range ti.Dims {
		if d == 0 {
			return 0, fmt.Errorf("tensor %s: zero dimension", ti.Name)
		}
		n *= d
	}
	if n > uint64(^uint(0)>>1) {
		return 0, fmt.Errorf("tensor %s: too large", ti.Name)
	}
	return int(n), nil
}
