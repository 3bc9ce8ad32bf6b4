package main

import (
	"fmt"
	"os"

	"github.com/Arkanosis/socksfinder/sfindex"
	"github.com/Arkanosis/socksfinder/sfquery"
	"github.com/urfave/cli/v2"
	"golang.org/x/exp/mmap"
)

func newCmdQuery() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "list pages co-edited by the given users, or their co-occurrence matrix",
		ArgsUsage: "[--threshold=k] [--order=...] <index> <user>...",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "threshold", Usage: "minimum number of requested users that must share a page (0 = all)"},
			&cli.StringFlag{Name: "order", Usage: "none|alphabetical|count_decreasing|count_increasing"},
			&cli.BoolFlag{Name: "cooccurrences", Usage: "report a user x user co-occurrence matrix instead of page listings"},
			&cli.BoolFlag{Name: "mmap", Usage: "memory-map the index file instead of reading it through a plain file handle", Value: true},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("query: expected an index path followed by at least one user")
			}
			indexPath := c.Args().First()
			users := c.Args().Slice()[1:]

			r, closer, err := openIndexForQuery(indexPath, c.Bool("mmap"))
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			defer closer()
			defer r.Close()

			opts := sfquery.Options{
				Users:         users,
				Threshold:     c.Int("threshold"),
				Order:         parseOrder(c.String("order")),
				Cooccurrences: c.Bool("cooccurrences"),
			}
			res, err := sfquery.Run(r, opts, os.Stdout)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			if !res.AllUsersFound {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

func parseOrder(s string) sfquery.OrderMode {
	switch s {
	case "alphabetical":
		return sfquery.OrderAlphabetical
	case "count_decreasing":
		return sfquery.OrderCountDecreasing
	case "count_increasing":
		return sfquery.OrderCountIncreasing
	default:
		return sfquery.OrderNone
	}
}

// openIndexForQuery opens indexPath via mmap when requested (the default,
// since query is typically run once against a large index where paying
// for a full read is wasteful), falling back to os.Open otherwise.
// Grounded on storage.go's openMMapFile.
func openIndexForQuery(path string, useMmap bool) (*sfindex.Reader, func() error, error) {
	if useMmap {
		ra, err := mmap.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening %q: %w", path, err)
		}
		r, err := sfindex.Open(ra, int64(ra.Len()))
		if err != nil {
			ra.Close()
			return nil, nil, err
		}
		return r, ra.Close, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %q: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	r, err := sfindex.Open(f, info.Size())
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return r, f.Close, nil
}
