package main

import (
	"fmt"

	"github.com/Arkanosis/socksfinder/sfserver"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
)

func newCmdServe() *cli.Command {
	return &cli.Command{
		Name:      "serve",
		Usage:     "serve queries over HTTP from an index file",
		ArgsUsage: "[--hostname=h] [--port=p] <index>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "hostname", Value: "127.0.0.1", Usage: "address to bind to"},
			&cli.IntFlag{Name: "port", Value: 8080, Usage: "port to bind to"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("serve: expected exactly one argument, the index path")
			}
			indexPath := c.Args().First()

			// The server keeps the whole index buffered in memory rather
			// than mmap'd, since query latency under concurrent requests
			// shouldn't depend on page faults against the backing file.
			srv := sfserver.New(false)
			if err := srv.Load(indexPath); err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			listenOn := fmt.Sprintf("%s:%d", c.String("hostname"), c.Int("port"))
			klog.Infof("serving %q on %s", indexPath, listenOn)
			return srv.ListenAndServe(c.Context, listenOn)
		},
	}
}
