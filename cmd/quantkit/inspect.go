package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quantkit/pkg/qtc"
)

func inspectCmd() *cli.Command {
	var (
		showMeta     bool
		showManifest bool
		metaJSON     bool
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "List the tensor directory of a .qtc container",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "metadata",
				Usage:       "print container metadata",
				Destination: &showMeta,
			},
			&cli.BoolFlag{
				Name:        "manifest",
				Usage:       "print the manifest sidecar",
				Destination: &showManifest,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print metadata as raw JSON instead of key/value lines",
				Destination: &metaJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("inspect: .qtc path required")
			}

			f, err := qtc.Open(path)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			fmt.Printf("%s: %d tensors\n\n", path, f.Count())

			tbl := tablewriter.NewWriter(os.Stdout)
			tbl.Header("Tensor", "Scheme", "Shape", "Bytes")
			var total uint64
			for i := 0; i < f.Count(); i++ {
				info, err := f.Info(i)
				if err != nil {
					return err
				}
				data, err := f.Data(i)
				if err != nil {
					return err
				}
				total += uint64(len(data))
				tbl.Append([]string{
					info.Name,
					info.Scheme.String(),
					formatDims(info.Dims),
					fmt.Sprintf("%d", len(data)),
				})
			}
			if err := tbl.Render(); err != nil {
				return err
			}
			fmt.Printf("\ntotal payload: %d bytes\n", total)

			if showMeta {
				if err := printMetadata(f, metaJSON); err != nil {
					return err
				}
			}
			if showManifest {
				printManifest(path)
			}
			return nil
		},
	}
}

func formatDims(dims []uint64) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = fmt.Sprintf("%d", d)
	}
	return strings.Join(parts, "x")
}

func printMetadata(f *qtc.File, raw bool) error {
	fmt.Println("\nmetadata:")
	if raw {
		fmt.Println(string(f.MetadataRaw()))
		return nil
	}
	var meta map[string]any
	if err := f.Metadata(&meta); err != nil {
		return err
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-40s %v\n", k, compactValue(meta[k]))
	}
	return nil
}

// compactValue keeps large arrays (vocabularies, merge lists) from flooding
// the terminal.
func compactValue(v any) any {
	if arr, ok := v.([]any); ok && len(arr) > 8 {
		return fmt.Sprintf("[%v, %v, ... %d items]", arr[0], arr[1], len(arr))
	}
	return v
}

func printManifest(path string) {
	man, err := qtc.ReadManifest(qtc.ManifestPath(path))
	if err != nil {
		fmt.Printf("\nmanifest: unavailable (%v)\n", err)
		return
	}
	out, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		fmt.Printf("\nmanifest: unavailable (%v)\n", err)
		return
	}
	fmt.Printf("\nmanifest:\n%s\n", out)
}
