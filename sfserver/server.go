package sfserver

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Arkanosis/socksfinder/sfquery"
	"github.com/libp2p/go-reuseport"
	"github.com/valyala/fasthttp"
	"k8s.io/klog/v2"
)

// Version is the version string reported by /version and /badge. The CLI
// sets it at startup from the same build-info source used by `--version`.
var Version = "dev"

// Server serves socksfinder's HTTP API over a single in-memory index,
// swappable via /reload. Grounded on multiepoch.go's ListenAndServe /
// newMultiEpochHandler pair, trimmed from a JSON-RPC dispatch table down
// to socksfinder's five plain-text/JSON routes.
type Server struct {
	cell    *cell
	useMmap bool

	// Locate resolves the index file /reload should pick up next. It
	// defaults to re-using the path last loaded, so with a plain
	// `serve FILE` the stem never changes and /reload answers "already
	// up to date" without re-reading the file; a deployment
	// that rotates dumps (e.g. a "latest" symlink or a directory of
	// dated builds) can override it to resolve to whichever file is
	// current.
	Locate func() (string, error)
}

// New creates a Server that will serve whatever index is loaded with
// Load. useMmap controls whether index files are memory-mapped or read
// fully into memory.
func New(useMmap bool) *Server {
	s := &Server{cell: newCell(useMmap), useMmap: useMmap}
	s.Locate = func() (string, error) {
		_, path := s.cell.current()
		return path, nil
	}
	return s
}

// Load reads path into memory as the currently served index.
func (s *Server) Load(path string) error {
	return s.cell.load(path)
}

// ListenAndServe starts the HTTP server on listenOn and blocks until ctx
// is canceled. Mirrors ListenAndServe's reuseport.Listen + graceful
// ShutdownWithContext shape.
func (s *Server) ListenAndServe(ctx context.Context, listenOn string) error {
	handler := fasthttp.CompressHandler(s.handler())

	httpServer := &fasthttp.Server{
		Handler:            handler,
		MaxRequestBodySize: 1024 * 1024,
	}
	go func() {
		<-ctx.Done()
		klog.Info("socksfinder HTTP server shutting down...")
		defer klog.Info("socksfinder HTTP server shut down")
		if err := httpServer.ShutdownWithContext(ctx); err != nil {
			klog.Errorf("error while shutting down HTTP server: %s", err)
		}
	}()

	ln, err := reuseport.Listen("tcp4", listenOn)
	if err != nil {
		return fmt.Errorf("sfserver: listening on %q: %w", listenOn, err)
	}
	klog.Infof("socksfinder HTTP server listening on %s", listenOn)
	return httpServer.Serve(ln)
}

func (s *Server) handler() fasthttp.RequestHandler {
	return func(c *fasthttp.RequestCtx) {
		switch string(c.Path()) {
		case "/":
			s.handleIndex(c)
		case "/badge":
			s.handleBadge(c)
		case "/query":
			s.handleQuery(c)
		case "/reload":
			s.handleReload(c)
		case "/version":
			s.handleVersion(c)
		default:
			c.SetStatusCode(404)
			fmt.Fprintf(c, "not found\n")
		}
	}
}

func (s *Server) handleIndex(c *fasthttp.RequestCtx) {
	_, path := s.cell.current()
	c.SetContentType("text/html; charset=utf-8")
	fmt.Fprintf(c, "<html><body><h1>socksfinder v%s</h1><p>index: %s</p></body></html>\n",
		Version, indexLabel(path))
}

// handleBadge reports a shields.io-compatible JSON badge payload.
func (s *Server) handleBadge(c *fasthttp.RequestCtx) {
	c.SetContentType("application/json")
	payload := map[string]interface{}{
		"label":         "socksfinder",
		"message":       Version,
		"schemaVersion": 1,
	}
	if err := json.NewEncoder(c).Encode(payload); err != nil {
		klog.Errorf("sfserver: encoding badge response: %v", err)
	}
}

func (s *Server) handleVersion(c *fasthttp.RequestCtx) {
	_, path := s.cell.current()
	c.SetContentType("text/plain; charset=utf-8")
	fmt.Fprintf(c, "Running socksfinder v%s (%s)\n", Version, indexLabel(path))
}

// handleQuery dispatches to sfquery.Run against the currently loaded
// index. It answers 503 before any index has been loaded, matching the
// IndexUnavailable error condition.
func (s *Server) handleQuery(c *fasthttp.RequestCtx) {
	reader, _ := s.cell.current()
	if reader == nil {
		c.SetStatusCode(503)
		fmt.Fprintf(c, "index not loaded yet\n")
		return
	}

	args := c.QueryArgs()
	opts := sfquery.Options{
		Users: splitUsers(string(args.Peek("users"))),
	}
	if t := args.Peek("threshold"); len(t) > 0 {
		n, err := strconv.Atoi(string(t))
		if err != nil {
			c.SetStatusCode(400)
			fmt.Fprintf(c, "invalid threshold: %v\n", err)
			return
		}
		opts.Threshold = n
	}
	switch string(args.Peek("order")) {
	case "alphabetical":
		opts.Order = sfquery.OrderAlphabetical
	case "count_decreasing":
		opts.Order = sfquery.OrderCountDecreasing
	case "count_increasing":
		opts.Order = sfquery.OrderCountIncreasing
	}
	if ok, err := strconv.ParseBool(string(args.Peek("cooccurrences"))); err == nil {
		opts.Cooccurrences = ok
	}

	c.SetContentType("text/plain; charset=utf-8")
	if _, err := sfquery.Run(reader, opts, c); err != nil {
		klog.Errorf("sfserver: query failed: %v", err)
		fmt.Fprintf(c, "error: %v\n", err)
	}
}

// handleReload re-reads the on-disk index file. It's a no-op, reported
// as "already up to date", when the canonicalized file stem hasn't
// changed since the last load.
func (s *Server) handleReload(c *fasthttp.RequestCtx) {
	path, err := s.Locate()
	if err != nil {
		klog.Errorf("sfserver: locating index failed: %v", err)
		c.SetStatusCode(500)
		fmt.Fprintf(c, "locating index failed: %v\n", err)
		return
	}
	if path == "" {
		c.SetStatusCode(500)
		fmt.Fprintf(c, "no index path configured\n")
		return
	}
	changed, err := s.ReloadIfChanged(path)
	if err != nil {
		klog.Errorf("sfserver: reload failed: %v", err)
		c.SetStatusCode(500)
		fmt.Fprintf(c, "reload failed: %v\n", err)
		return
	}
	if !changed {
		fmt.Fprintf(c, "already up to date\n")
		return
	}
	fmt.Fprintf(c, "reloaded\n")
}

// ReloadIfChanged re-reads path only if its canonicalized stem differs
// from the currently served one, answering the "already up to date"
// contract without dropping a working index on a transient read error.
func (s *Server) ReloadIfChanged(path string) (bool, error) {
	_, current := s.cell.current()
	if indexStem(path) == indexStem(current) {
		return false, nil
	}
	return true, s.cell.load(path)
}

func indexStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func indexLabel(path string) string {
	if path == "" {
		return "none loaded"
	}
	return indexStem(path)
}

func splitUsers(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
