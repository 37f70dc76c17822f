package tensorq

import (
	"fmt"
	"sync"

	"github.com/samcharles93/quantkit/pkg/blockq"
)

// Decoder decodes one family of packed tensor encodings to float32.
type Decoder interface {
	// Scheme is the primary tag this decoder serves, used for listings.
	Scheme() blockq.Scheme
	// CanDecode reports whether the decoder handles the given tag.
	CanDecode(s blockq.Scheme) bool
	// Decode expands raw into a freshly allocated float32 slice of
	// Info.Elements() values.
	Decode(info Info, raw []byte) ([]float32, error)
}

// UnsupportedSchemeError is returned by Registry.Decode when no registered
// decoder claims the tag. It carries the tag so callers can report exactly
// what they ran into rather than a generic failure.
type UnsupportedSchemeError struct {
	Scheme blockq.Scheme
}

func (e *UnsupportedSchemeError) Error() string {
	return fmt.Sprintf("tensorq: no decoder registered for scheme %s", e.Scheme)
}

func (e *UnsupportedSchemeError) Unwrap() error { return blockq.ErrUnsupportedScheme }

// Registry maps scheme tags to decoders. Lookups walk the registration
// order and the first decoder whose CanDecode accepts the tag wins, so a
// caller can shadow a built-in codec by registering ahead of it.
type Registry struct {
	mu       sync.RWMutex
	decoders []Decoder
}

func NewRegistry() *Registry { return &Registry{} }

// Register appends d to the lookup chain.
func (r *Registry) Register(d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders = append(r.decoders, d)
}

// Lookup returns the first decoder claiming s.
func (r *Registry) Lookup(s blockq.Scheme) (Decoder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.decoders {
		if d.CanDecode(s) {
			return d, nil
		}
	}
	return nil, &UnsupportedSchemeError{Scheme: s}
}

// Supports reports whether some registered decoder claims s.
func (r *Registry) Supports(s blockq.Scheme) bool {
	_, err := r.Lookup(s)
	return err == nil
}

// Schemes returns the primary tags of all registered decoders in
// registration order.
func (r *Registry) Schemes() []blockq.Scheme {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]blockq.Scheme, 0, len(r.decoders))
	for _, d := range r.decoders {
		out = append(out, d.Scheme())
	}
	return out
}

// Decode resolves a decoder for s and runs it.
func (r *Registry) Decode(s blockq.Scheme, info Info, raw []byte) ([]float32, error) {
	d, err := r.Lookup(s)
	if err != nil {
		return nil, err
	}
	return d.Decode(info, raw)
}

// blockDecoder adapts a blockq scheme to the Decoder interface. One instance
// serves exactly one tag.
type blockDecoder struct {
	scheme blockq.Scheme
}

func (d blockDecoder) Scheme() blockq.Scheme          { return d.scheme }
func (d blockDecoder) CanDecode(s blockq.Scheme) bool { return s == d.scheme }

func (d blockDecoder) Decode(info Info, raw []byte) ([]float32, error) {
	n, err := info.Elements()
	if err != nil {
		return nil, err
	}
	vals, err := blockq.Dequantize(d.scheme, raw, n)
	if err != nil {
		return nil, fmt.Errorf("tensorq: %s: %w", info.Name, err)
	}
	return vals, nil
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the shared registry pre-populated with a decoder for
// every scheme the block codec supports.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultReg = NewRegistry()
		for _, s := range blockq.Schemes() {
			defaultReg.Register(blockDecoder{scheme: s})
		}
	})
	return defaultReg
}
