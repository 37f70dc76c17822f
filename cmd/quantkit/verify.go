package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/quantkit/pkg/qtc"
)

func verifyCmd() *cli.Command {
	var skipManifest bool

	return &cli.Command{
		Name:  "verify",
		Usage: "Check a .qtc container for structural damage",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "no-manifest",
				Usage:       "skip the manifest hash check",
				Destination: &skipManifest,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("verify: .qtc path required")
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			var man *qtc.Manifest
			if !skipManifest {
				man, err = qtc.ReadManifest(qtc.ManifestPath(path))
				if err != nil {
					fmt.Printf("note: manifest sidecar unavailable, skipping hash check (%v)\n", err)
				}
			}

			findings := qtc.Verify(data, man)
			if len(findings) == 0 {
				fmt.Printf("%s: ok\n", path)
				return nil
			}
			for _, f := range findings {
				fmt.Println(f.String())
			}
			return fmt.Errorf("verify: %d finding(s)", len(findings))
		},
	}
}
