package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"simplide/internal/buffer"
)

const testURI = "file:///tmp/main.go"

func newTestSession(t *testing.T, f *fakeAnalyzer) *Session {
	t.Helper()
	s := NewSession(Options{
		URI:               testURI,
		LanguageID:        "go",
		Dialer:            f.dialer(),
		FlushInterval:     20 * time.Millisecond,
		RequestTimeout:    time.Second,
		ReconnectInterval: time.Millisecond,
	})
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

type didChange struct {
	TextDocument struct {
		Version int64 `json:"version"`
	} `json:"textDocument"`
	ContentChanges []struct {
		Range *protocol.Range `json:"range"`
		Text  string          `json:"text"`
	} `json:"contentChanges"`
}

type didOpen struct {
	TextDocument struct {
		Version int64  `json:"version"`
		Text    string `json:"text"`
	} `json:"textDocument"`
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

// applyChange plays an incremental change against the analyzer's copy.
func applyChange(t *testing.T, base buffer.Snapshot, c didChange) string {
	t.Helper()
	require.Len(t, c.ContentChanges, 1)
	ch := c.ContentChanges[0]
	if ch.Range == nil {
		return ch.Text
	}
	start, err := base.OffsetAtCodeUnit(FromPosition(ch.Range.Start))
	require.NoError(t, err)
	end, err := base.OffsetAtCodeUnit(FromPosition(ch.Range.End))
	require.NoError(t, err)
	text := base.Text()
	return text[:start] + ch.Text + text[end:]
}

func TestStartAndOpen(t *testing.T) {
	f := newFakeAnalyzer()
	s := newTestSession(t, f)
	b := buffer.New("package main\n", buffer.Options{})

	require.NoError(t, s.NotifyOpen(b.Snapshot()))
	assert.Equal(t, Uninitialized, s.State())
	assert.Empty(t, f.methods("textDocument/didOpen"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, Ready, s.State())
	assert.Len(t, f.methods("initialize"), 1)

	opens := f.waitFor(t, "textDocument/didOpen", 1)
	open := decode[didOpen](t, opens[0].Params)
	assert.Equal(t, "package main\n", open.TextDocument.Text)
	assert.EqualValues(t, 0, open.TextDocument.Version)
	assert.Equal(t, uint64(0), s.LastSyncedVersion())

	assert.Error(t, s.Start(context.Background()))
}

func TestRapidEditsSendOneChange(t *testing.T) {
	f := newFakeAnalyzer()
	s := newTestSession(t, f)
	require.NoError(t, s.Start(context.Background()))

	b := buffer.New("func main() {\n\tx := 1\n}\n", buffer.Options{})
	base := b.Snapshot()
	require.NoError(t, s.NotifyOpen(base))

	for i := 0; i < 5; i++ {
		e, err := b.Apply(buffer.EditSpec{Range: buffer.Range{Start: 21 + i, End: 21 + i}, Text: "2"})
		require.NoError(t, err)
		require.NoError(t, s.NotifyChange([]buffer.Edit{e}, b.Snapshot()))
	}

	changes := f.waitFor(t, "textDocument/didChange", 1)
	time.Sleep(60 * time.Millisecond)
	changes = f.methods("textDocument/didChange")
	require.Len(t, changes, 1)

	c := decode[didChange](t, changes[0].Params)
	assert.EqualValues(t, 5, c.TextDocument.Version)
	assert.Equal(t, b.Text(), applyChange(t, base, c))
	assert.Equal(t, uint64(5), s.LastSyncedVersion())
}

func TestDisjointEditsShareOneChange(t *testing.T) {
	f := newFakeAnalyzer()
	s := newTestSession(t, f)
	require.NoError(t, s.Start(context.Background()))

	b := buffer.New("αβγ\nline two\nline three\n", buffer.Options{})
	base := b.Snapshot()
	require.NoError(t, s.NotifyOpen(base))

	var edits []buffer.Edit
	for _, spec := range []buffer.EditSpec{
		{Range: buffer.Range{Start: 2, End: 4}, Text: "B"},
		{Range: buffer.Range{Start: 17, End: 22}, Text: "3"},
		{Range: buffer.Range{Start: 0, End: 0}, Text: "// "},
	} {
		e, err := b.Apply(spec)
		require.NoError(t, err)
		edits = append(edits, e)
	}
	require.NoError(t, s.NotifyChange(edits, b.Snapshot()))
	require.NoError(t, s.Flush())

	changes := f.waitFor(t, "textDocument/didChange", 1)
	require.Len(t, changes, 1)
	c := decode[didChange](t, changes[0].Params)
	assert.Equal(t, b.Text(), applyChange(t, base, c))
}

func TestVersionSkew(t *testing.T) {
	f := newFakeAnalyzer()
	s := newTestSession(t, f)
	require.NoError(t, s.Start(context.Background()))

	b := buffer.New("abc", buffer.Options{})
	require.NoError(t, s.NotifyOpen(b.Snapshot()))

	_, err := b.Apply(buffer.EditSpec{Range: buffer.Range{Start: 3, End: 3}, Text: "d"})
	require.NoError(t, err)
	e2, err := b.Apply(buffer.EditSpec{Range: buffer.Range{Start: 4, End: 4}, Text: "e"})
	require.NoError(t, err)

	// The first edit never reached the session.
	err = s.NotifyChange([]buffer.Edit{e2}, b.Snapshot())
	require.ErrorIs(t, err, ErrVersionSkew)
	assert.Equal(t, uint64(0), s.LastSyncedVersion())

	require.NoError(t, s.Resync(b.Snapshot()))
	changes := f.waitFor(t, "textDocument/didChange", 1)
	c := decode[didChange](t, changes[0].Params)
	assert.EqualValues(t, 2, c.TextDocument.Version)
	require.Len(t, c.ContentChanges, 1)
	assert.Nil(t, c.ContentChanges[0].Range)
	assert.Equal(t, "abcde", c.ContentChanges[0].Text)

	e3, err := b.Apply(buffer.EditSpec{Range: buffer.Range{Start: 0, End: 1}, Text: ""})
	require.NoError(t, err)
	require.NoError(t, s.NotifyChange([]buffer.Edit{e3}, b.Snapshot()))
}

func TestFullSyncServer(t *testing.T) {
	f := newFakeAnalyzer()
	f.caps["textDocumentSync"] = 1
	s := newTestSession(t, f)
	require.NoError(t, s.Start(context.Background()))

	b := buffer.New("one", buffer.Options{})
	require.NoError(t, s.NotifyOpen(b.Snapshot()))
	e, err := b.Apply(buffer.EditSpec{Range: buffer.Range{Start: 3, End: 3}, Text: " two"})
	require.NoError(t, err)
	require.NoError(t, s.NotifyChange([]buffer.Edit{e}, b.Snapshot()))
	require.NoError(t, s.Flush())

	c := decode[didChange](t, f.waitFor(t, "textDocument/didChange", 1)[0].Params)
	require.Len(t, c.ContentChanges, 1)
	assert.Nil(t, c.ContentChanges[0].Range)
	assert.Equal(t, "one two", c.ContentChanges[0].Text)
}

func TestRequestFlushesFirst(t *testing.T) {
	f := newFakeAnalyzer()
	s := newTestSession(t, f)
	s.opts.FlushInterval = time.Hour
	require.NoError(t, s.Start(context.Background()))

	b := buffer.New("ab", buffer.Options{})
	require.NoError(t, s.NotifyOpen(b.Snapshot()))
	e, err := b.Apply(buffer.EditSpec{Range: buffer.Range{Start: 2, End: 2}, Text: "c"})
	require.NoError(t, err)
	require.NoError(t, s.NotifyChange([]buffer.Edit{e}, b.Snapshot()))

	pr, err := s.Request(context.Background(), KindCompletion, 3, b.Snapshot())
	require.NoError(t, err)
	res, err := pr.Wait(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Completion)
	assert.Equal(t, "alpha", res.Completion.Items[0].Label)
	assert.Equal(t, "b", res.Completion.Items[1].Detail)
	assert.Equal(t, uint64(1), res.Version)

	docs := f.documentMessages(0)
	require.Len(t, docs, 2)
	assert.Equal(t, "textDocument/didChange", docs[1].Method)

	ev := nextEvent(t, s, func(e Event) bool { return e.Kind == EventResponse })
	assert.Equal(t, pr.ID, ev.Response.ID)
}

func TestHover(t *testing.T) {
	f := newFakeAnalyzer()
	s := newTestSession(t, f)
	require.NoError(t, s.Start(context.Background()))
	b := buffer.New("x := 1", buffer.Options{})
	require.NoError(t, s.NotifyOpen(b.Snapshot()))

	pr, err := s.Request(context.Background(), KindHover, 0, b.Snapshot())
	require.NoError(t, err)
	res, err := pr.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "**x**", res.Hover.Contents)

	_, err = s.Request(context.Background(), KindHover, 0, buffer.NewSnapshot("x := 1", 7))
	assert.ErrorIs(t, err, ErrVersionSkew)
}

func TestUnsupportedRequest(t *testing.T) {
	f := newFakeAnalyzer()
	delete(f.caps, "hoverProvider")
	s := newTestSession(t, f)
	require.NoError(t, s.Start(context.Background()))
	b := buffer.New("x", buffer.Options{})
	require.NoError(t, s.NotifyOpen(b.Snapshot()))

	_, err := s.Request(context.Background(), KindHover, 0, b.Snapshot())
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.False(t, s.Supports(KindHover))
	assert.True(t, s.Supports(KindCompletion))
}

func TestCancelledResponseIsDropped(t *testing.T) {
	f := newFakeAnalyzer()
	s := newTestSession(t, f)
	require.NoError(t, s.Start(context.Background()))
	b := buffer.New("abc", buffer.Options{})
	require.NoError(t, s.NotifyOpen(b.Snapshot()))

	f.hold()
	pr, err := s.Request(context.Background(), KindCompletion, 1, b.Snapshot())
	require.NoError(t, err)
	f.waitFor(t, "textDocument/completion", 1)

	assert.True(t, s.Cancel(pr.ID))
	assert.False(t, s.Cancel(pr.ID))
	_, err = pr.Wait(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)

	cancels := f.waitFor(t, "$/cancelRequest", 1)
	assert.JSONEq(t, fmt.Sprintf(`{"id": %d}`, pr.ID), string(cancels[0].Params))

	f.release()
	// The late response must not surface as an event.
	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case e := <-s.Events():
			assert.NotEqual(t, EventResponse, e.Kind)
		case <-deadline:
			return
		}
	}
}

func TestCancelAll(t *testing.T) {
	f := newFakeAnalyzer()
	s := newTestSession(t, f)
	require.NoError(t, s.Start(context.Background()))
	b := buffer.New("abc", buffer.Options{})
	require.NoError(t, s.NotifyOpen(b.Snapshot()))

	f.hold()
	defer f.release()
	a, err := s.Request(context.Background(), KindCompletion, 0, b.Snapshot())
	require.NoError(t, err)
	h, err := s.Request(context.Background(), KindHover, 0, b.Snapshot())
	require.NoError(t, err)

	assert.Equal(t, 2, s.CancelAll())
	assert.True(t, a.Cancelled())
	assert.True(t, h.Cancelled())
}

func TestDiagnosticsCarryVersion(t *testing.T) {
	f := newFakeAnalyzer()
	s := newTestSession(t, f)
	require.NoError(t, s.Start(context.Background()))
	b := buffer.New("abc", buffer.Options{})
	require.NoError(t, s.NotifyOpen(b.Snapshot()))
	f.waitFor(t, "textDocument/didOpen", 1)

	ctx := context.Background()
	require.NoError(t, f.conn(0).Notify(ctx, "textDocument/publishDiagnostics", map[string]any{
		"uri":     testURI,
		"version": 7,
		"diagnostics": []map[string]any{{
			"range":   map[string]any{"start": map[string]any{"line": 0, "character": 0}, "end": map[string]any{"line": 0, "character": 1}},
			"message": "boom",
		}},
	}))
	ev := nextEvent(t, s, func(e Event) bool { return e.Kind == EventDiagnostics })
	assert.Equal(t, uint64(7), ev.Version)
	require.Len(t, ev.Diagnostics, 1)
	assert.Equal(t, "boom", ev.Diagnostics[0].Message)

	// Without a version the diagnostics describe the last synced state.
	require.NoError(t, f.conn(0).Notify(ctx, "textDocument/publishDiagnostics", map[string]any{
		"uri":         testURI,
		"diagnostics": []any{},
	}))
	ev = nextEvent(t, s, func(e Event) bool { return e.Kind == EventDiagnostics })
	assert.Equal(t, uint64(0), ev.Version)
	assert.Empty(t, ev.Diagnostics)

	diags, version := s.Diagnostics()
	assert.Empty(t, diags)
	assert.Equal(t, uint64(0), version)

	// Other documents are ignored.
	require.NoError(t, f.conn(0).Notify(ctx, "textDocument/publishDiagnostics", map[string]any{
		"uri": "file:///elsewhere.go", "version": 1, "diagnostics": []any{},
	}))
	_, version = s.Diagnostics()
	assert.Equal(t, uint64(0), version)
}

func TestMalformedDiagnosticsDegrade(t *testing.T) {
	f := newFakeAnalyzer()
	s := newTestSession(t, f)
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, f.conn(0).Notify(context.Background(), "textDocument/publishDiagnostics",
		map[string]any{"uri": testURI, "diagnostics": "oops"}))
	ev := nextEvent(t, s, func(e Event) bool { return e.Kind == EventState && e.State == Degraded })
	assert.ErrorIs(t, ev.Err, ErrMalformed)
}

func TestDegradedFailsFastAndReconnectReopens(t *testing.T) {
	f := newFakeAnalyzer()
	s := newTestSession(t, f)
	require.NoError(t, s.Start(context.Background()))
	b := buffer.New("abc", buffer.Options{})
	require.NoError(t, s.NotifyOpen(b.Snapshot()))

	f.hold()
	inflight, err := s.Request(context.Background(), KindCompletion, 0, b.Snapshot())
	require.NoError(t, err)

	// The analyzer goes away.
	require.NoError(t, f.conn(0).Close())
	require.Eventually(t, func() bool { return s.State() == Degraded }, 2*time.Second, 5*time.Millisecond)
	_, err = inflight.Wait(context.Background())
	assert.ErrorIs(t, err, ErrTransport)
	f.release()

	start := time.Now()
	_, err = s.Request(context.Background(), KindHover, 0, b.Snapshot())
	assert.ErrorIs(t, err, ErrDegraded)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	// Editing continues while degraded.
	e, err := b.Apply(buffer.EditSpec{Range: buffer.Range{Start: 3, End: 3}, Text: "d"})
	require.NoError(t, err)
	require.NoError(t, s.NotifyChange([]buffer.Edit{e}, b.Snapshot()))

	require.NoError(t, s.Reconnect(context.Background(), b.Snapshot()))
	assert.Equal(t, Ready, s.State())

	require.Eventually(t, func() bool { return len(f.documentMessages(1)) > 0 }, 2*time.Second, 5*time.Millisecond)
	docs := f.documentMessages(1)
	assert.Equal(t, "textDocument/didOpen", docs[0].Method)
	open := decode[didOpen](t, docs[0].Params)
	assert.Equal(t, "abcd", open.TextDocument.Text)
	assert.EqualValues(t, 1, open.TextDocument.Version)
	assert.Equal(t, uint64(1), s.LastSyncedVersion())
}

func TestStalledAnalyzerNeverBlocksCallers(t *testing.T) {
	f := newFakeAnalyzer()
	resume := f.stall("textDocument/didOpen")
	t.Cleanup(resume)
	s := newTestSession(t, f)
	require.NoError(t, s.Start(context.Background()))

	b := buffer.New("let x = 1", buffer.Options{})
	require.NoError(t, s.NotifyOpen(b.Snapshot()))
	f.waitFor(t, "textDocument/didOpen", 1)

	// The analyzer reads nothing more, so every write from here on stalls.
	quick := func(name string, fn func()) {
		t.Helper()
		start := time.Now()
		fn()
		assert.Less(t, time.Since(start), 250*time.Millisecond, name)
	}
	for i := 0; i < 3; i++ {
		e, err := b.Apply(buffer.EditSpec{Range: buffer.Range{Start: b.Len(), End: b.Len()}, Text: "2"})
		require.NoError(t, err)
		quick("change", func() { require.NoError(t, s.NotifyChange([]buffer.Edit{e}, b.Snapshot())) })
		quick("flush", func() { require.NoError(t, s.Flush()) })
		time.Sleep(30 * time.Millisecond)
	}
	var pr *PendingRequest
	var err error
	quick("request", func() { pr, err = s.Request(context.Background(), KindHover, 0, b.Snapshot()) })
	if err == nil {
		quick("cancel", func() { s.CancelAll() })
		_, err = pr.Wait(context.Background())
	}
	assert.Error(t, err)

	ev := nextEvent(t, s, func(e Event) bool { return e.Kind == EventState && e.State == Degraded })
	assert.ErrorIs(t, ev.Err, ErrStalled)

	e, err := b.Apply(buffer.EditSpec{Range: buffer.Range{Start: 0, End: 0}, Text: "// "})
	require.NoError(t, err)
	quick("change while degraded", func() { require.NoError(t, s.NotifyChange([]buffer.Edit{e}, b.Snapshot())) })
}

func TestSupersededTimerDoesNotFlush(t *testing.T) {
	f := newFakeAnalyzer()
	s := newTestSession(t, f)
	s.opts.FlushInterval = time.Hour
	require.NoError(t, s.Start(context.Background()))
	b := buffer.New("abc", buffer.Options{})
	require.NoError(t, s.NotifyOpen(b.Snapshot()))

	edit := func() {
		e, err := b.Apply(buffer.EditSpec{Range: buffer.Range{Start: 0, End: 0}, Text: "x"})
		require.NoError(t, err)
		require.NoError(t, s.NotifyChange([]buffer.Edit{e}, b.Snapshot()))
	}
	edit()
	s.mu.Lock()
	first := s.timerSeq
	s.mu.Unlock()
	require.NoError(t, s.Flush())
	edit()

	// The first timer fired but only got mu after it was stopped.
	s.onTimer(first)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.NotNil(t, s.timer)
	assert.Len(t, s.pending, 1)
	assert.Equal(t, uint64(1), s.LastSyncedVersion())
}

func TestHandshakeFailureDegradesAndThrottles(t *testing.T) {
	f := newFakeAnalyzer()
	f.failDial = true
	s := newTestSession(t, f)
	s.limiter.SetLimit(0.001)

	err := s.Start(context.Background())
	require.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, Degraded, s.State())

	snap := buffer.NewSnapshot("", 0)
	require.ErrorIs(t, s.Reconnect(context.Background(), snap), ErrTransport)
	assert.ErrorIs(t, s.Reconnect(context.Background(), snap), ErrThrottled)
}

func TestShutdown(t *testing.T) {
	f := newFakeAnalyzer()
	s := newTestSession(t, f)
	require.NoError(t, s.Start(context.Background()))
	b := buffer.New("abc", buffer.Options{})
	require.NoError(t, s.NotifyOpen(b.Snapshot()))
	require.NoError(t, s.NotifyClose())
	f.waitFor(t, "textDocument/didClose", 1)

	require.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, Closed, s.State())
	f.waitFor(t, "shutdown", 1)
	f.waitFor(t, "exit", 1)

	_, err := s.Request(context.Background(), KindHover, 0, b.Snapshot())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.NotifyOpen(b.Snapshot()), ErrClosed)

	// The event stream drains and closes.
	require.Eventually(t, func() bool {
		for {
			select {
			case _, ok := <-s.Events():
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 5*time.Millisecond)
	assert.NoError(t, s.Shutdown(context.Background()))
}
