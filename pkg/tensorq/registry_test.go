package tensorq

import (
	"errors"
	"testing"

	"github.com/samcharles93/quantkit/pkg/blockq"
)

func TestDefaultRegistryCoversAllSchemes(t *testing.T) {
	t.Parallel()

	reg := Default()
	for _, s := range blockq.Schemes() {
		if !reg.Supports(s) {
			t.Errorf("default registry missing decoder for %s", s)
		}
	}
}

func TestRegistryUnsupportedScheme(t *testing.T) {
	t.Parallel()

	reg := Default()
	bad := blockq.Scheme(9) // a tag the codec does not implement
	_, err := reg.Decode(bad, Info{Name: "w", Dims: []uint64{32}}, nil)
	if err == nil {
		t.Fatal("expected error for unregistered scheme")
	}
	var use *UnsupportedSchemeError
	if !errors.As(err, &use) {
		t.Fatalf("err = %T, want *UnsupportedSchemeError", err)
	}
	if use.Scheme != bad {
		t.Fatalf("error carries scheme %s, want %s", use.Scheme, bad)
	}
	if !errors.Is(err, blockq.ErrUnsupportedScheme) {
		t.Fatal("error should unwrap to ErrUnsupportedScheme")
	}
}

type fakeDecoder struct {
	scheme blockq.Scheme
	calls  int
}

func (d *fakeDecoder) Scheme() blockq.Scheme          { return d.scheme }
func (d *fakeDecoder) CanDecode(s blockq.Scheme) bool { return s == d.scheme }

func (d *fakeDecoder) Decode(info Info, raw []byte) ([]float32, error) {
	d.calls++
	n, err := info.Elements()
	if err != nil {
		return nil, err
	}
	return make([]float32, n), nil
}

func TestRegistryFirstMatchWins(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	first := &fakeDecoder{scheme: blockq.Q4_0}
	second := &fakeDecoder{scheme: blockq.Q4_0}
	reg.Register(first)
	reg.Register(second)

	if _, err := reg.Decode(blockq.Q4_0, Info{Name: "w", Dims: []uint64{32}}, nil); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.calls != 1 || second.calls != 0 {
		t.Fatalf("calls = (%d,%d), want first decoder to shadow the second", first.calls, second.calls)
	}
}

func TestRegistryDecodeMatchesCodec(t *testing.T) {
	t.Parallel()

	tn, _ := packedTensor(t, "w", blockq.Q6_K, []uint64{256}, 3)
	got, err := Default().Decode(tn.Scheme(), tn.Info(), tn.Raw())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want, err := blockq.Dequantize(blockq.Q6_K, tn.Raw(), 256)
	if err != nil {
		t.Fatalf("dequantize: %v", err)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("value %d: registry %v, codec %v", i, got[i], want[i])
		}
	}
}
