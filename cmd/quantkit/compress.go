package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quantkit/pkg/qtc"
)

func compressCmd() *cli.Command {
	var (
		output  string
		refresh bool
	)

	return &cli.Command{
		Name:  "compress",
		Usage: "Compress a .qtc container with zstd",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "output path (default: overwrite in place)",
				Destination: &output,
			},
			&cli.BoolFlag{
				Name:        "manifest",
				Usage:       "rewrite the manifest sidecar for the compressed bytes",
				Value:       true,
				Destination: &refresh,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("compress: .qtc path required")
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if qtc.IsCompressed(data) {
				return fmt.Errorf("compress: %s is already compressed", path)
			}
			// Parse before compressing so we never emit a corrupt archive.
			f, err := qtc.Read(data)
			if err != nil {
				return err
			}
			_ = f.Close()

			out := compressed(data, path, output)
			fmt.Printf("wrote %s (%d -> %d bytes, %.1f%%)\n",
				out.path, len(data), len(out.data), 100*float64(len(out.data))/float64(len(data)))
			return writeWithManifest(out, refresh)
		},
	}
}

func decompressCmd() *cli.Command {
	var (
		output  string
		refresh bool
	)

	return &cli.Command{
		Name:  "decompress",
		Usage: "Restore a zstd-compressed .qtc container to its stored form",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "output path (default: overwrite in place)",
				Destination: &output,
			},
			&cli.BoolFlag{
				Name:        "manifest",
				Usage:       "rewrite the manifest sidecar for the restored bytes",
				Value:       true,
				Destination: &refresh,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("decompress: .qtc path required")
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if !qtc.IsCompressed(data) {
				return fmt.Errorf("decompress: %s is not compressed", path)
			}
			plain, err := qtc.Decompress(data)
			if err != nil {
				return err
			}

			out := artifact{path: outputPath(path, output), data: plain}
			fmt.Printf("wrote %s (%d -> %d bytes)\n", out.path, len(data), len(plain))
			return writeWithManifest(out, refresh)
		},
	}
}

type artifact struct {
	path string
	data []byte
}

func compressed(data []byte, path, output string) artifact {
	return artifact{path: outputPath(path, output), data: qtc.Compress(data)}
}

func outputPath(path, output string) string {
	if output != "" {
		return output
	}
	return path
}

// writeWithManifest writes the artifact and, when asked, a manifest sidecar
// matching the bytes on disk. The model name carries over from an existing
// sidecar when one is present.
func writeWithManifest(out artifact, refresh bool) error {
	if err := os.WriteFile(out.path, out.data, 0o644); err != nil {
		return err
	}
	if !refresh {
		return nil
	}
	model := ""
	for _, p := range manifestCandidates(out.path) {
		if man, err := qtc.ReadManifest(p); err == nil {
			model = man.Model
			break
		}
	}
	return qtc.WriteManifest(qtc.ManifestPath(out.path), qtc.NewManifest(model, out.data))
}

func manifestCandidates(path string) []string {
	paths := []string{qtc.ManifestPath(path)}
	if alt := strings.TrimSuffix(path, ".zst"); alt != path {
		paths = append(paths, qtc.ManifestPath(alt))
	}
	return paths
}
