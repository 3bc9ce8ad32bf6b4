package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/Arkanosis/socksfinder/sfserver"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
)

var (
	GitCommit string
	GitTag    string
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, syscall.SIGTERM, syscall.SIGINT)

		select {
		case <-interrupt:
			fmt.Println()
			klog.Info("received interrupt signal")
			cancel()
		case <-ctx.Done():
		}

		signal.Stop(interrupt)
	}()

	sfserver.Version = version()
	cli.VersionPrinter = func(c *cli.Context) { printVersion() }

	app := &cli.App{
		Name:    "socksfinder",
		Usage:   "find Wikipedia sockpuppets from a dump of users' edits",
		Version: sfserver.Version,
		Flags:   NewKlogFlagSet(),
		Commands: []*cli.Command{
			newCmdBuild(),
			newCmdQuery(),
			newCmdServe(),
			newCmdStats(),
		},
	}

	sort.Sort(cli.FlagsByName(app.Flags))
	sort.Sort(cli.CommandsByName(app.Commands))

	if err := app.RunContext(ctx, os.Args); err != nil {
		klog.Fatal(err)
	}
}
