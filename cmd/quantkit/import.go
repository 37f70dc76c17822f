package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quantkit/pkg/blockq"
	"github.com/samcharles93/quantkit/pkg/importer"
)

func importCmd() *cli.Command {
	var (
		output   string
		target   string
		parallel int64
	)

	return &cli.Command{
		Name:  "import",
		Usage: "Import a .gguf file into a .qtc container",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "output .qtc path (default: source path with .qtc extension)",
				Destination: &output,
			},
			&cli.StringFlag{
				Name:        "target",
				Aliases:     []string{"t"},
				Usage:       "re-quantize eligible weights to this scheme (e.g. Q4_K)",
				Destination: &target,
			},
			&cli.Int64Flag{
				Name:        "parallel",
				Aliases:     []string{"j"},
				Usage:       "max concurrent tensor conversions (0 = unbounded)",
				Destination: &parallel,
			},
		}, loggingFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyImportConfig(cmd, LoadConfig(), &target, &parallel)

			src := cmd.Args().First()
			if src == "" {
				return fmt.Errorf("import: source .gguf path required")
			}
			dst := output
			if dst == "" {
				dst = strings.TrimSuffix(src, ".gguf") + ".qtc"
			}

			opts := importer.Options{
				Parallelism: int(parallel),
				Logger:      newLogger(),
			}
			if target != "" {
				scheme, ok := blockq.SchemeByName(target)
				if !ok {
					return fmt.Errorf("import: unknown scheme %q", target)
				}
				opts.TargetScheme = scheme
			}

			man, err := importer.ImportFile(ctx, src, dst, opts)
			if err != nil {
				return err
			}
			fmt.Printf("wrote %s (%d tensors, %d bytes, sha256 %s)\n",
				dst, man.TensorCount, man.SizeBytes, man.SHA256[:12])
			return nil
		},
	}
}
