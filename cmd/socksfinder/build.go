package main

import (
	"fmt"
	"os"

	"github.com/Arkanosis/socksfinder/sfbuild"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
)

func newCmdBuild() *cli.Command {
	return &cli.Command{
		Name:      "build",
		Usage:     "build an index from an XML dump read on stdin",
		ArgsUsage: "<index>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("build: expected exactly one argument, the output index path")
			}
			out, err := os.Create(c.Args().First())
			if err != nil {
				return fmt.Errorf("build: creating %q: %w", c.Args().First(), err)
			}
			defer out.Close()

			stats, err := sfbuild.Build(os.Stdin, out)
			if err != nil {
				return fmt.Errorf("build: %w", err)
			}
			klog.Infof("built index with %d pages, %d users, %d postings in %s",
				stats.DistinctPages, stats.DistinctUsers, stats.TotalPostings, stats.Elapsed)
			return nil
		},
	}
}
