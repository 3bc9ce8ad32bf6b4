package sfserver

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/Arkanosis/socksfinder/sfindex"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func writeSampleIndex(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	w, err := sfindex.NewWriter(&buf)
	require.NoError(t, err)
	helloOffset, err := w.WritePage([]byte("Hello"))
	require.NoError(t, err)
	aliceOffset, err := w.WritePostings([]uint32{uint32(helloOffset)})
	require.NoError(t, err)
	dictOffset, err := w.WriteDictionary([]sfindex.DictEntry{
		{User: "Alice", ListOffset: aliceOffset, EditCount: 1},
	})
	require.NoError(t, err)
	require.NoError(t, w.WriteFooter(dictOffset))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func newTestCtx(path string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	var req fasthttp.Request
	req.SetRequestURI(path)
	ctx.Init(&req, nil, nil)
	return &ctx
}

func TestServerQueryBeforeLoadIs503(t *testing.T) {
	s := New(false)
	ctx := newTestCtx("/query?users=Alice")
	s.handler()(ctx)
	require.Equal(t, 503, ctx.Response.StatusCode())
}

func TestServerQueryAfterLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dump.sfidx")
	writeSampleIndex(t, path)

	s := New(false)
	require.NoError(t, s.Load(path))

	ctx := newTestCtx("/query?users=Alice")
	s.handler()(ctx)
	require.Equal(t, 200, ctx.Response.StatusCode())
	require.Equal(t, "Hello: 1 (Alice)\n", string(ctx.Response.Body()))
}

func TestServerBadge(t *testing.T) {
	Version = "1.2.3"
	s := New(false)
	ctx := newTestCtx("/badge")
	s.handler()(ctx)
	require.Equal(t, 200, ctx.Response.StatusCode())
	require.JSONEq(t, `{"label":"socksfinder","message":"1.2.3","schemaVersion":1}`, string(ctx.Response.Body()))
}

func TestServerVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dump.sfidx")
	writeSampleIndex(t, path)

	s := New(false)
	require.NoError(t, s.Load(path))

	ctx := newTestCtx("/version")
	s.handler()(ctx)
	require.Equal(t, "Running socksfinder v1.2.3 (dump)\n", string(ctx.Response.Body()))
}

func TestServerReloadNoOpWhenStemUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dump.sfidx")
	writeSampleIndex(t, path)

	s := New(false)
	require.NoError(t, s.Load(path))

	ctx := newTestCtx("/reload")
	s.handler()(ctx)
	require.Equal(t, "already up to date\n", string(ctx.Response.Body()))
}

func TestServerReloadBeforeAnyLoad(t *testing.T) {
	s := New(false)
	ctx := newTestCtx("/reload")
	s.handler()(ctx)
	require.Equal(t, 500, ctx.Response.StatusCode())
}
