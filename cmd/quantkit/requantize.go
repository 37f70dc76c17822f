package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quantkit/pkg/blockq"
	"github.com/samcharles93/quantkit/pkg/qtc"
	"github.com/samcharles93/quantkit/pkg/tensorq"
)

func requantizeCmd() *cli.Command {
	var (
		output string
		target string
	)

	return &cli.Command{
		Name:  "requantize",
		Usage: "Rewrite a .qtc container with weights re-quantized to a new scheme",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "output .qtc path",
				Destination: &output,
			},
			&cli.StringFlag{
				Name:        "target",
				Aliases:     []string{"t"},
				Usage:       "target scheme (e.g. Q4_K, Q8_0)",
				Destination: &target,
			},
		}, loggingFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			src := cmd.Args().First()
			if src == "" {
				return fmt.Errorf("requantize: source .qtc path required")
			}
			if target == "" {
				return fmt.Errorf("requantize: --target scheme required")
			}
			scheme, ok := blockq.SchemeByName(target)
			if !ok {
				return fmt.Errorf("requantize: unknown scheme %q", target)
			}
			dst := output
			if dst == "" {
				dst = strings.TrimSuffix(src, ".qtc") + "." + strings.ToLower(scheme.String()) + ".qtc"
			}

			log := newLogger()
			f, err := qtc.Open(src)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			reg := tensorq.Default()
			tensors := make([]*tensorq.Tensor, 0, f.Count())
			changed := 0
			for i := 0; i < f.Count(); i++ {
				t, err := f.Tensor(i)
				if err != nil {
					return err
				}
				if t.Scheme() != scheme && eligibleForRequant(t, scheme) {
					rq, err := t.Requantize(reg, scheme)
					if err != nil {
						return fmt.Errorf("requantize %s: %w", t.Name(), err)
					}
					log.Debug("requantized tensor", "name", t.Name(),
						"from", t.Scheme().String(), "to", scheme.String())
					t = rq
					changed++
				}
				tensors = append(tensors, t)
			}

			model := ""
			if man, err := qtc.ReadManifest(qtc.ManifestPath(src)); err == nil {
				model = man.Model
			}

			man, err := qtc.WriteFile(dst, model, tensors, json.RawMessage(f.MetadataRaw()))
			if err != nil {
				return err
			}
			log.Info("requantize complete", "output", dst,
				"tensors", man.TensorCount, "changed", changed)
			fmt.Printf("wrote %s (%d of %d tensors re-quantized)\n", dst, changed, man.TensorCount)
			return nil
		},
	}
}

// eligibleForRequant mirrors the importer's policy: only block-aligned
// matrix weights change encoding, everything else keeps its stored form.
func eligibleForRequant(t *tensorq.Tensor, target blockq.Scheme) bool {
	if !target.Quantized() {
		return t.Scheme().Quantized()
	}
	dims := t.Dims()
	if len(dims) != 2 {
		return false
	}
	return t.Cols()%target.BlockSize() == 0
}
