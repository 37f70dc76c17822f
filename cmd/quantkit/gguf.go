package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quantkit/internal/gguf"
)

// ggufCmd inspects a source .gguf before import: header, metadata, and
// which tensor encodings the codec can and cannot represent.
func ggufCmd() *cli.Command {
	var (
		showKV      bool
		tensorLimit int64
	)

	return &cli.Command{
		Name:  "gguf",
		Usage: "Inspect a .gguf source file",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "kv",
				Usage:       "show all metadata key/values",
				Destination: &showKV,
			},
			&cli.Int64Flag{
				Name:        "tensors",
				Usage:       "number of tensors to list (0 to skip, -1 for all)",
				Value:       20,
				Destination: &tensorLimit,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("gguf: .gguf path required")
			}
			f, err := gguf.Open(path)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			fmt.Printf("File: %s\n", path)
			fmt.Printf("GGUF v%d | tensors=%d | kv=%d | alignment=%d | data_offset=%d\n",
				f.Header.Version, f.Header.TensorCount, f.Header.KVCount, f.Alignment, f.DataOffset)

			printKey(f, "general.name")
			printKey(f, "general.architecture")
			printKey(f, "general.quantization")
			printKey(f, "general.file_type")
			printKey(f, "general.alignment")

			if showKV {
				fmt.Println("\nAll metadata:")
				kv := gguf.ToMap(f.KV)
				keys := make([]string, 0, len(kv))
				for k := range kv {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Printf("  %s = %v\n", k, compactValue(kv[k]))
				}
			}

			unsupported := 0
			n := int(tensorLimit)
			count := len(f.Tensors)
			if n < 0 || n > count {
				n = count
			}
			if n > 0 {
				fmt.Println("\nTensors:")
				tbl := tablewriter.NewWriter(os.Stdout)
				tbl.Header("Tensor", "Type", "Shape", "Importable")
				for i := 0; i < n; i++ {
					t := f.Tensors[i]
					_, ok := t.Type.Scheme()
					if !ok {
						unsupported++
					}
					tbl.Append([]string{
						t.Name,
						t.Type.String(),
						formatDims(t.Dims),
						fmt.Sprintf("%v", ok),
					})
				}
				if err := tbl.Render(); err != nil {
					return err
				}
				if n < count {
					fmt.Printf("... (%d more)\n", count-n)
				}
			}
			for _, t := range f.Tensors[n:] {
				if _, ok := t.Type.Scheme(); !ok {
					unsupported++
				}
			}
			if unsupported > 0 {
				fmt.Printf("\n%d tensor(s) use encodings the importer cannot represent\n", unsupported)
			}
			return nil
		},
	}
}

func printKey(f *gguf.File, key string) {
	if v, ok := f.KV[key]; ok {
		fmt.Printf("  %-28s %v\n", key, compactValue(v.Value))
	}
}
