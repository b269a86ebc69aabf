package manager_test

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tliron/commonlog"

	"simplide/internal/buffer"
	"simplide/internal/config"
	"simplide/internal/grammar"
	"simplide/internal/journal"
	"simplide/internal/lsp"
	"simplide/internal/manager"
	"simplide/internal/server"
)

func write(t *testing.T, dir, name, text string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o600))
	return path
}

func newManager(t *testing.T, opts manager.Options) *manager.Manager {
	t.Helper()
	m, err := manager.New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.CloseAll(context.Background()) })
	return m
}

func TestOpenGetClose(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "main.js", "let x = 1;\n")
	write(t, dir, "notes.txt", "plain\n")
	m := newManager(t, manager.Options{Config: config.Default(), Root: dir})

	c, err := m.Open(context.Background(), "main.js")
	require.NoError(t, err)
	assert.Equal(t, "let x = 1;\n", c.Text())
	assert.False(t, c.Modified())
	assert.NotEmpty(t, slices.Collect(c.Highlights(buffer.Range{Start: 0, End: c.Len()}).Spans))

	_, err = m.Open(context.Background(), filepath.Join(dir, "main.js"))
	require.ErrorIs(t, err, manager.ErrAlreadyOpen)

	txt, err := m.Open(context.Background(), "notes.txt")
	require.NoError(t, err)
	assert.Empty(t, slices.Collect(txt.Highlights(buffer.Range{Start: 0, End: txt.Len()}).Spans))

	got, err := m.Get(c.URI())
	require.NoError(t, err)
	assert.Same(t, c, got)
	assert.Equal(t, []string{"file://" + filepath.ToSlash(filepath.Join(dir, "main.js")),
		"file://" + filepath.ToSlash(filepath.Join(dir, "notes.txt"))}, m.URIs())

	require.NoError(t, m.Close(context.Background(), "main.js"))
	_, err = m.Get("main.js")
	require.ErrorIs(t, err, manager.ErrNotOpen)
	require.ErrorIs(t, m.Close(context.Background(), "main.js"), manager.ErrNotOpen)

	require.NoError(t, m.CloseAll(context.Background()))
	assert.Empty(t, m.URIs())
}

func TestOpenMissingFile(t *testing.T) {
	m := newManager(t, manager.Options{Config: config.Default(), Root: t.TempDir()})
	_, err := m.Open(context.Background(), "absent.go")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExtensionOverrides(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "build.jsm", "let x = 1;\n")
	cfg := config.Default()
	cfg.Extensions["jsm"] = "js"
	m := newManager(t, manager.Options{Config: cfg, Root: dir})

	c, err := m.Open(context.Background(), "build.jsm")
	require.NoError(t, err)
	node, ok := c.NodeAt(4)
	require.True(t, ok)
	assert.Equal(t, "identifier", node.Type)
}

func TestInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.CoalesceThreshold = -1
	_, err := manager.New(manager.Options{Config: cfg})
	assert.Error(t, err)
}

func TestDialerAttachesAnalyzer(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "main.js", "let x = 1;\n)\n")
	srv := server.NewServer("test")
	dialed := map[string]bool{}
	m := newManager(t, manager.Options{
		Config: config.Default(),
		Root:   dir,
		Dialer: func(g *grammar.Grammar) lsp.Dialer {
			dialed[g.ID] = true
			return lsp.StreamDialer(func(ctx context.Context) (io.ReadWriteCloser, error) {
				client, conn := net.Pipe()
				go srv.ServeStream(conn, commonlog.GetLogger("simplide.server.test"))
				return client, nil
			})
		},
	})

	c, err := m.Open(context.Background(), "main.js")
	require.NoError(t, err)
	assert.True(t, dialed["javascript"])

	deadline := time.Now().Add(5 * time.Second)
	for len(slices.Collect(c.Diagnostics(buffer.Range{Start: 0, End: c.Len()}))) == 0 {
		require.True(t, time.Now().Before(deadline), "no diagnostics")
		m.Poll()
		time.Sleep(5 * time.Millisecond)
	}
	assert.True(t, c.AnalyzerAvailable())
}

func TestRecover(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "notes.txt", "draft")
	j, err := journal.Open(filepath.Join(dir, "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	first := newManager(t, manager.Options{Config: config.Default(), Root: dir, Journal: j})
	c, err := first.Open(context.Background(), path)
	require.NoError(t, err)
	_, err = c.SubmitEdit(buffer.Range{Start: 5, End: 5}, " two")
	require.NoError(t, err)
	require.NoError(t, first.CloseAll(context.Background()))

	sessions, err := j.Sessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	second := newManager(t, manager.Options{Config: config.Default(), Root: dir, Journal: j})
	restored, err := second.Recover(context.Background(), sessions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "draft two", restored.Text())
	assert.Equal(t, uint64(1), restored.Version())
	assert.True(t, restored.Modified())

	sessions, err = j.Sessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, uint64(1), sessions[0].BaseVersion)

	_, err = newManager(t, manager.Options{Config: config.Default(), Root: dir}).Recover(context.Background(), sessions[0].ID)
	assert.ErrorIs(t, err, manager.ErrNoJournal)
}
