package gguf

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/samcharles93/quantkit/pkg/blockq"
)

func buildTestFile(t *testing.T) (string, map[string][]byte) {
	t.Helper()

	b := NewBuilder()
	b.SetString("general.architecture", "llama")
	b.SetUint32("llama.block_count", 2)
	b.SetFloat32("llama.rope.freq_base", 10000)
	b.SetStringArray("tokenizer.ggml.tokens", []string{"<s>", "</s>", "a"})

	rng := rand.New(rand.NewSource(17))
	payloads := make(map[string][]byte)

	quantVals := make([]float32, 512)
	for i := range quantVals {
		quantVals[i] = float32(rng.Float64()*2 - 1)
	}
	q4k, err := blockq.Quantize(blockq.Q4_K, quantVals)
	if err != nil {
		t.Fatalf("quantize: %v", err)
	}
	b.AddTensor("blk.0.attn_q.weight", []uint64{256, 2}, TypeTensorQ4_K, q4k)
	payloads["blk.0.attn_q.weight"] = q4k

	f32 := make([]byte, 16*4)
	rng.Read(f32)
	b.AddTensor("blk.0.attn_norm.weight", []uint64{16}, TypeTensorF32, f32)
	payloads["blk.0.attn_norm.weight"] = f32

	data, err := b.Bytes()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	path := filepath.Join(t.TempDir(), "model.gguf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path, payloads
}

func TestOpenRoundTrip(t *testing.T) {
	t.Parallel()

	path, payloads := buildTestFile(t)
	f, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	if f.Header.Version != 3 {
		t.Errorf("version = %d, want 3", f.Header.Version)
	}
	if f.Header.TensorCount != 2 {
		t.Errorf("tensor count = %d, want 2", f.Header.TensorCount)
	}
	if s, _ := GetString(f.KV, "general.architecture"); s != "llama" {
		t.Errorf("architecture = %q", s)
	}
	if u, _ := GetUint64(f.KV, "llama.block_count"); u != 2 {
		t.Errorf("block count = %d", u)
	}
	toks, ok := GetArray[string](f.KV, "tokenizer.ggml.tokens")
	if !ok || len(toks) != 3 {
		t.Errorf("tokens = %v, %v", toks, ok)
	}

	for name, want := range payloads {
		info, ok := f.TensorByName(name)
		if !ok {
			t.Fatalf("tensor %s missing", name)
		}
		raw, err := f.TensorRaw(info)
		if err != nil {
			t.Fatalf("raw %s: %v", name, err)
		}
		if !bytes.Equal(raw, want) {
			t.Errorf("payload %s differs", name)
		}
	}

	info, _ := f.TensorByName("blk.0.attn_q.weight")
	if s, ok := info.Type.Scheme(); !ok || s != blockq.Q4_K {
		t.Errorf("scheme = %v, %v", s, ok)
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.gguf")
	if err := os.WriteFile(path, []byte("NOPE0000000000000000"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Open(path)
	if !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("err = %v, want ErrInvalidMagic", err)
	}
}

func TestUnsupportedTensorType(t *testing.T) {
	t.Parallel()

	if _, ok := TypeTensorQ2_K.Scheme(); ok {
		t.Error("Q2_K must not map to a native scheme")
	}
	if _, err := TypeTensorQ2_K.ByteSize(256); !errors.Is(err, blockq.ErrUnsupportedScheme) {
		t.Errorf("err = %v, want ErrUnsupportedScheme", err)
	}
}
