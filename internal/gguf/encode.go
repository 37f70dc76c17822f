package gguf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// Builder assembles a minimal GGUF v3 file in memory. It exists for
// synthetic fixtures and round-trip tooling; it writes keys and tensors
// sorted by name with the default 32-byte data alignment.
type Builder struct {
	kv      map[string]Value
	tensors []builderTensor
}

type builderTensor struct {
	name string
	dims []uint64
	typ  TensorType
	raw  []byte
}

func NewBuilder() *Builder {
	return &Builder{kv: make(map[string]Value)}
}

func (b *Builder) SetString(key, v string) { b.kv[key] = Value{Type: TypeString, Value: v} }
func (b *Builder) SetUint32(key string, v uint32) {
	b.kv[key] = Value{Type: TypeUint32, Value: v}
}
func (b *Builder) SetFloat32(key string, v float32) {
	b.kv[key] = Value{Type: TypeFloat32, Value: v}
}

// SetStringArray stores a homogeneous string array value.
func (b *Builder) SetStringArray(key string, vs []string) {
	anys := make([]any, len(vs))
	for i, v := range vs {
		anys[i] = v
	}
	b.kv[key] = Value{Type: TypeArray, Value: ArrayValue{ElemType: TypeString, Values: anys}}
}

// AddTensor appends a tensor record. dims are in the wire's ne order
// (innermost axis first, matching TensorInfo.Dims on read back); raw must
// already be packed for typ.
func (b *Builder) AddTensor(name string, dims []uint64, typ TensorType, raw []byte) {
	b.tensors = append(b.tensors, builderTensor{name: name, dims: dims, typ: typ, raw: raw})
}

// Bytes serializes the file.
func (b *Builder) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	w := func(v any) { _ = binary.Write(&buf, binary.LittleEndian, v) }
	ws := func(s string) {
		w(uint64(len(s)))
		buf.WriteString(s)
	}

	buf.WriteString(magicGGUF)
	w(uint32(3))
	w(uint64(len(b.tensors)))
	w(uint64(len(b.kv)))

	keys := make([]string, 0, len(b.kv))
	for k := range b.kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := b.kv[k]
		ws(k)
		w(uint32(v.Type))
		if err := writeValue(&buf, v.Type, v.Value); err != nil {
			return nil, fmt.Errorf("gguf: key %s: %w", k, err)
		}
	}

	tensors := make([]builderTensor, len(b.tensors))
	copy(tensors, b.tensors)
	sort.Slice(tensors, func(i, j int) bool { return tensors[i].name < tensors[j].name })

	offset := uint64(0)
	for _, t := range tensors {
		ws(t.name)
		w(uint32(len(t.dims)))
		for _, d := range t.dims {
			w(d)
		}
		w(uint32(t.typ))
		w(offset)
		offset = align(offset+uint64(len(t.raw)), 32)
	}

	pad := int(align(uint64(buf.Len()), 32)) - buf.Len()
	buf.Write(make([]byte, pad))
	for _, t := range tensors {
		buf.Write(t.raw)
		pad := int(align(uint64(len(t.raw)), 32)) - len(t.raw)
		buf.Write(make([]byte, pad))
	}
	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, vtype ValueType, v any) error {
	w := func(x any) { _ = binary.Write(buf, binary.LittleEndian, x) }
	switch vtype {
	case TypeUint8, TypeInt8, TypeUint16, TypeInt16, TypeUint32, TypeInt32, TypeUint64, TypeInt64:
		w(v)
	case TypeFloat32:
		w(math.Float32bits(v.(float32)))
	case TypeFloat64:
		w(math.Float64bits(v.(float64)))
	case TypeBool:
		if v.(bool) {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case TypeString:
		s := v.(string)
		w(uint64(len(s)))
		buf.WriteString(s)
	case TypeArray:
		arr, ok := v.(ArrayValue)
		if !ok {
			return fmt.Errorf("array value has type %T", v)
		}
		w(uint32(arr.ElemType))
		w(uint64(len(arr.Values)))
		for _, item := range arr.Values {
			if err := writeValue(buf, arr.ElemType, item); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported value type %s", vtype)
	}
	return nil
}
