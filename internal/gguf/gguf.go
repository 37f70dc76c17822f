package gguf

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

var (
	ErrInvalidMagic       = errors.New("gguf: invalid magic")
	ErrUnsupportedVersion = errors.New("gguf: unsupported version")
	ErrTensorNotFound     = errors.New("gguf: tensor not found")
)

// File is a parsed GGUF model. When Data is non-nil the file is mmapped
// and tensor payloads are zero-copy slices into it.
type File struct {
	Path       string
	Header     Header
	KV         map[string]Value
	Tensors    []TensorInfo
	Alignment  uint64
	DataOffset uint64
	Data       []byte
}

// Open parses a GGUF file, mapping it read-only where the platform allows
// and falling back to buffered reads otherwise.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := st.Size()

	var data []byte
	if size > 0 {
		if b, merr := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED); merr == nil {
			data = b
		}
	}

	var r *reader
	if data != nil {
		f.Close()
		r = newReader(bytes.NewReader(data), size)
	} else {
		r = newReader(f, size)
	}
	cleanup := func() {
		if data != nil {
			_ = unix.Munmap(data)
		} else {
			f.Close()
		}
	}

	hdr, err := parseHeader(r)
	if err != nil {
		cleanup()
		return nil, err
	}

	kv := make(map[string]Value, hdr.KVCount)
	for i := uint64(0); i < hdr.KVCount; i++ {
		key, err := r.readString()
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("gguf: read key %d: %w", i, err)
		}
		vtypeU32, err := r.readU32()
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("gguf: read value type for %s: %w", key, err)
		}
		vtype := ValueType(vtypeU32)
		val, err := readValue(r, vtype)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("gguf: read value for %s: %w", key, err)
		}
		kv[key] = Value{Type: vtype, Value: val}
	}

	tensors := make([]TensorInfo, 0, hdr.TensorCount)
	for i := uint64(0); i < hdr.TensorCount; i++ {
		ti, err := parseTensorInfo(r, i)
		if err != nil {
			cleanup()
			return nil, err
		}
		tensors = append(tensors, ti)
	}

	if data == nil {
		f.Close()
	}

	alignment := uint64(32)
	if v, ok := kv["general.alignment"]; ok {
		if u, ok := asUint64(v.Value); ok && u > 0 {
			alignment = u
		}
	}

	return &File{
		Path:       path,
		Header:     hdr,
		KV:         kv,
		Tensors:    tensors,
		Alignment:  alignment,
		DataOffset: align(uint64(r.off), alignment),
		Data:       data,
	}, nil
}

// Close releases the mmap backing, if any.
func (f *File) Close() error {
	if f.Data != nil {
		data := f.Data
		f.Data = nil
		return unix.Munmap(data)
	}
	return nil
}

func parseHeader(r *reader) (Header, error) {
	magic, err := r.readN(4)
	if err != nil {
		return Header{}, err
	}
	if string(magic) != magicGGUF {
		return Header{}, fmt.Errorf("%w: %q", ErrInvalidMagic, string(magic))
	}
	version, err := r.readU32()
	if err != nil {
		return Header{}, err
	}
	if version < 2 || version > 3 {
		return Header{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	tensorCount, err := r.readU64()
	if err != nil {
		return Header{}, err
	}
	kvCount, err := r.readU64()
	if err != nil {
		return Header{}, err
	}
	return Header{Version: version, TensorCount: tensorCount, KVCount: kvCount}, nil
}

func parseTensorInfo(r *reader, i uint64) (TensorInfo, error) {
	name, err := r.readString()
	if err != nil {
		return TensorInfo{}, fmt.Errorf("gguf: read tensor name %d: %w", i, err)
	}
	nDim, err := r.readU32()
	if err != nil {
		return TensorInfo{}, fmt.Errorf("gguf: read tensor rank %s: %w", name, err)
	}
	dims := make([]uint64, nDim)
	for d := range dims {
		v, err := r.readU64()
		if err != nil {
			return TensorInfo{}, fmt.Errorf("gguf: read tensor dim %s[%d]: %w", name, d, err)
		}
		dims[d] = v
	}
	ttypeU32, err := r.readU32()
	if err != nil {
		return TensorInfo{}, fmt.Errorf("gguf: read tensor type %s: %w", name, err)
	}
	offset, err := r.readU64()
	if err != nil {
		return TensorInfo{}, fmt.Errorf("gguf: read tensor offset %s: %w", name, err)
	}
	return TensorInfo{
		Name:   name,
		Dims:   dims,
		Type:   TensorType(ttypeU32),
		Offset: offset,
	}, nil
}

func readValue(r *reader, vtype ValueType) (any, error) {
	switch vtype {
	case TypeUint8:
		return r.readU8()
	case TypeInt8:
		return r.readI8()
	case TypeUint16:
		return r.readU16()
	case TypeInt16:
		return r.readI16()
	case TypeUint32:
		return r.readU32()
	case TypeInt32:
		return r.readI32()
	case TypeUint64:
		return r.readU64()
	case TypeInt64:
		return r.readI64()
	case TypeFloat32:
		return r.readF32()
	case TypeFloat64:
		return r.readF64()
	case TypeBool:
		v, err := r.readU8()
		if err != nil {
			return false, err
		}
		return v != 0, nil
	case TypeString:
		return r.readString()
	case TypeArray:
		elemTypeU32, err := r.readU32()
		if err != nil {
			return nil, err
		}
		elemType := ValueType(elemTypeU32)
		count, err := r.readU64()
		if err != nil {
			return nil, err
		}
		values := make([]any, 0, count)
		for range count {
			v, err := readValue(r, elemType)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return ArrayValue{ElemType: elemType, Values: values}, nil
	default:
		return nil, fmt.Errorf("gguf: unsupported value type %d", uint32(vtype))
	}
}

func align(offset, alignment uint64) uint64 {
	if alignment == 0 {
		return offset
	}
	rem := offset % alignment
	if rem == 0 {
		return offset
	}
	return offset + (alignment - rem)
}
