// Package importer converts foreign model containers into the native
// format. A run walks fixed stages: open the source, capture its
// metadata, enumerate the tensor directory, validate every tensor's
// encoding, convert, and emit the container with its manifest.
package importer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/quantkit/internal/gguf"
	"github.com/samcharles93/quantkit/internal/logger"
	"github.com/samcharles93/quantkit/pkg/blockq"
	"github.com/samcharles93/quantkit/pkg/qtc"
	"github.com/samcharles93/quantkit/pkg/tensorq"
)

// Options controls a conversion run.
type Options struct {
	// TargetScheme re-quantizes eligible weight tensors to this scheme.
	// Zero (F32) means keep every tensor in its source encoding.
	// Re-quantization decodes and re-rounds, so it compounds the source's
	// quantization error.
	TargetScheme blockq.Scheme

	// Parallelism caps concurrent tensor conversions. Zero means the
	// errgroup default (unbounded).
	Parallelism int

	Logger logger.Logger
}

// UnsupportedTensor names one tensor the codec cannot represent.
type UnsupportedTensor struct {
	Name string
	Type string
}

// UnsupportedTensorsError reports every unsupported tensor in the source,
// collected in a single validation pass so one run shows the full extent
// of the problem.
type UnsupportedTensorsError struct {
	Tensors []UnsupportedTensor
}

func (e *UnsupportedTensorsError) Error() string {
	if len(e.Tensors) == 1 {
		t := e.Tensors[0]
		return fmt.Sprintf("importer: unsupported tensor %s (%s)", t.Name, t.Type)
	}
	names := make([]string, 0, len(e.Tensors))
	for _, t := range e.Tensors {
		names = append(names, fmt.Sprintf("%s (%s)", t.Name, t.Type))
	}
	return fmt.Sprintf("importer: %d unsupported tensors: %s", len(e.Tensors), strings.Join(names, ", "))
}

// Result is a completed conversion, ready to serialize.
type Result struct {
	Tensors     []*tensorq.Tensor
	Metadata    map[string]any
	Model       string
	Requantized int
}

// Import converts the GGUF file at path into native tensors.
func Import(ctx context.Context, path string, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = logger.FromContext(ctx)
	}

	src, err := gguf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("importer: open source: %w", err)
	}
	defer func() { _ = src.Close() }()

	log.Info("source opened",
		"path", path,
		"version", src.Header.Version,
		"tensors", src.Header.TensorCount,
		"kv", src.Header.KVCount)

	meta := gguf.ToMap(src.KV)
	model, _ := gguf.GetString(src.KV, "general.name")

	// Validate every tensor before converting any, so a mixed file fails
	// with the complete list instead of the first offender.
	var unsupported []UnsupportedTensor
	for _, ti := range src.Tensors {
		if _, ok := ti.Type.Scheme(); !ok {
			unsupported = append(unsupported, UnsupportedTensor{
				Name: ti.Name,
				Type: ti.Type.String(),
			})
		}
	}
	if len(unsupported) > 0 {
		sort.Slice(unsupported, func(i, j int) bool { return unsupported[i].Name < unsupported[j].Name })
		return nil, &UnsupportedTensorsError{Tensors: unsupported}
	}

	out := make([]*tensorq.Tensor, len(src.Tensors))
	requantized := make([]bool, len(src.Tensors))

	g, gctx := errgroup.WithContext(ctx)
	if opts.Parallelism > 0 {
		g.SetLimit(opts.Parallelism)
	}
	for i := range src.Tensors {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ti := src.Tensors[i]
			tn, requant, err := convertTensor(src, ti, opts.TargetScheme)
			if err != nil {
				return err
			}
			out[i] = tn
			requantized[i] = requant
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Tensors: out, Metadata: meta, Model: model}
	for _, r := range requantized {
		if r {
			res.Requantized++
		}
	}
	log.Info("conversion complete", "tensors", len(out), "requantized", res.Requantized)
	return res, nil
}

// ImportFile runs Import and writes the container plus manifest sidecar.
func ImportFile(ctx context.Context, srcPath, dstPath string, opts Options) (*qtc.Manifest, error) {
	res, err := Import(ctx, srcPath, opts)
	if err != nil {
		return nil, err
	}
	man, err := qtc.WriteFile(dstPath, res.Model, res.Tensors, res.Metadata)
	if err != nil {
		return nil, err
	}
	return man, nil
}

func convertTensor(src *gguf.File, ti gguf.TensorInfo, target blockq.Scheme) (*tensorq.Tensor, bool, error) {
	scheme, _ := ti.Type.Scheme()
	raw, err := src.TensorRaw(ti)
	if err != nil {
		return nil, false, fmt.Errorf("importer: %w", err)
	}

	info := tensorq.Info{
		Name:   ti.Name,
		Scheme: scheme,
		Dims:   rowMajorDims(ti.Dims),
	}
	// TensorRaw may hand back an mmap slice; copy via New so the tensor
	// survives the source file being closed.
	tn, err := tensorq.New(info, raw)
	if err != nil {
		return nil, false, err
	}

	if !shouldRequantize(info, scheme, target) {
		return tn, false, nil
	}
	rq, err := tn.Requantize(tensorq.Default(), target)
	if err != nil {
		return nil, false, fmt.Errorf("importer: %s: %w", ti.Name, err)
	}
	return rq, true, nil
}

// rowMajorDims converts GGUF dimension order, which lists the innermost
// (contiguous) axis first, to row-major order with the innermost axis last.
// The packed bytes are identical either way; only the shape flips.
func rowMajorDims(ne []uint64) []uint64 {
	dims := make([]uint64, len(ne))
	for i, d := range ne {
		dims[len(ne)-1-i] = d
	}
	return dims
}

// shouldRequantize gates the optional second rounding step. Small tensors,
// vectors, norms, and biases stay in their source encoding: they are cheap
// to keep precise and disproportionately sensitive to rounding.
func shouldRequantize(info tensorq.Info, current, target blockq.Scheme) bool {
	if target == blockq.F32 || target == current {
		return false
	}
	if len(info.Dims) != 2 {
		return false
	}
	n, err := info.Elements()
	if err != nil || n < 4096 {
		return false
	}
	if int(info.Dims[len(info.Dims)-1])%target.BlockSize() != 0 {
		return false
	}
	name := info.Name
	for _, skip := range []string{"norm", "bias", "token_embd", "tok_embeddings"} {
		if strings.Contains(name, skip) {
			return false
		}
	}
	return true
}
