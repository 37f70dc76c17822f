package gguf

import (
	"reflect"
	"testing"
)

func TestKVAccessors(t *testing.T) {
	t.Parallel()

	kv := map[string]Value{
		"arch":    {Type: TypeString, Value: "llama"},
		"layers":  {Type: TypeUint32, Value: uint32(32)},
		"rope":    {Type: TypeFloat32, Value: float32(10000)},
		"chat":    {Type: TypeBool, Value: true},
		"negone":  {Type: TypeInt32, Value: int32(-1)},
		"strings": {Type: TypeArray, Value: ArrayValue{ElemType: TypeString, Values: []any{"a", "b"}}},
		"mixed":   {Type: TypeArray, Value: ArrayValue{ElemType: TypeString, Values: []any{"a", 1}}},
	}

	if s, ok := GetString(kv, "arch"); !ok || s != "llama" {
		t.Errorf("GetString = %q, %v", s, ok)
	}
	if u, ok := GetUint64(kv, "layers"); !ok || u != 32 {
		t.Errorf("GetUint64 = %d, %v", u, ok)
	}
	if _, ok := GetUint64(kv, "negone"); ok {
		t.Error("negative int must not convert to uint64")
	}
	if f, ok := GetFloat64(kv, "rope"); !ok || f != 10000 {
		t.Errorf("GetFloat64 = %v, %v", f, ok)
	}
	if b, ok := GetBool(kv, "chat"); !ok || !b {
		t.Errorf("GetBool = %v, %v", b, ok)
	}
	if _, ok := GetString(kv, "missing"); ok {
		t.Error("missing key must report !ok")
	}

	strs, ok := GetArray[string](kv, "strings")
	if !ok || !reflect.DeepEqual(strs, []string{"a", "b"}) {
		t.Errorf("GetArray = %v, %v", strs, ok)
	}
	if _, ok := GetArray[string](kv, "mixed"); ok {
		t.Error("mixed element types must report !ok")
	}
	if _, ok := GetArray[int32](kv, "arch"); ok {
		t.Error("non-array value must report !ok")
	}
}

func TestToMapFlattensArrays(t *testing.T) {
	t.Parallel()

	kv := map[string]Value{
		"arch":   {Type: TypeString, Value: "llama"},
		"tokens": {Type: TypeArray, Value: ArrayValue{ElemType: TypeString, Values: []any{"<s>", "</s>"}}},
	}
	m := ToMap(kv)
	if m["arch"] != "llama" {
		t.Errorf("arch = %v", m["arch"])
	}
	arr, ok := m["tokens"].([]any)
	if !ok || len(arr) != 2 || arr[0] != "<s>" {
		t.Errorf("tokens = %#v", m["tokens"])
	}
}
