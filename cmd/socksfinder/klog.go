package main

import (
	"flag"
	"fmt"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
)

// NewKlogFlagSet exposes klog's verbosity and output controls as
// app-level CLI flags, grounded on klog.go's same pattern: a backing
// flag.FlagSet fed by klog.InitFlags, with each cli.Flag's Action
// forwarding the parsed value into it.
func NewKlogFlagSet() []cli.Flag {
	fs := flag.NewFlagSet("klog", flag.PanicOnError)
	klog.InitFlags(fs)

	fs.Set("v", "2")
	fs.Set("logtostderr", "true")

	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log_dir",
			Usage:   "if non-empty, write log files in this directory (no effect when -logtostderr=true)",
			EnvVars: []string{"SOCKSFINDER_LOG_DIR"},
			Action: func(cctx *cli.Context, v string) error {
				if v != "" {
					fs.Set("log_dir", v)
				}
				return nil
			},
		},
		&cli.BoolFlag{
			Name:        "logtostderr",
			Usage:       "log to standard error instead of files",
			EnvVars:     []string{"SOCKSFINDER_LOGTOSTDERR"},
			DefaultText: "true",
			Action: func(cctx *cli.Context, v bool) error {
				fs.Set("logtostderr", fmt.Sprint(v))
				return nil
			},
		},
		&cli.IntFlag{
			Name:    "v",
			Usage:   "number for the log level verbosity",
			EnvVars: []string{"SOCKSFINDER_V"},
			Value:   2,
			Action: func(cctx *cli.Context, v int) error {
				fs.Set("v", fmt.Sprint(v))
				return nil
			},
		},
		&cli.StringFlag{
			Name:    "vmodule",
			Usage:   "comma-separated list of pattern=N settings for file-filtered logging",
			EnvVars: []string{"SOCKSFINDER_VMODULE"},
			Action: func(cctx *cli.Context, v string) error {
				if v != "" {
					fs.Set("vmodule", v)
				}
				return nil
			},
		},
	}
}
