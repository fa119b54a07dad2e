package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"topic-preview-go/internal/decode"
)

func main() {
	app := &cli.App{
		Name:      "topic-preview-inspect",
		Usage:     "Summarize captured image envelopes",
		ArgsUsage: "<capture file or directory>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 5, Usage: "Records to print per file (0 = all)"},
			&cli.IntFlag{Name: "max-pixels", Value: decode.DefaultMaxPixels, Usage: "Decoder pixel limit"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("expected exactly one path", 2)
			}
			files, err := listFiles(c.Args().First())
			if err != nil {
				return cli.Exit(fmt.Sprintf("list files: %v", err), 1)
			}
			ins := newInspector(os.Stdout, c.Int("limit"), decode.New(decode.Limits{MaxPixels: c.Int("max-pixels")}))
			for _, file := range files {
				if err := ins.inspectFile(file); err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", file, err)
				}
			}
			ins.printSummary()
			return nil
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
