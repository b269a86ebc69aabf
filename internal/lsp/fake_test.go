package lsp

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/require"
)

type message struct {
	Conn   int
	Method string
	ID     uint64
	Params json.RawMessage
}

// fakeAnalyzer is a scripted analyzer on the far side of net.Pipe. It
// records every message in arrival order.
type fakeAnalyzer struct {
	mu       sync.Mutex
	caps     map[string]any
	messages []message
	conns    []*jsonrpc2.Conn
	gate     chan struct{}
	failDial bool
	// stallOn names a method whose arrival stops the analyzer reading
	// until unstall is closed.
	stallOn  string
	unstall  chan struct{}
}

func newFakeAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{
		caps: map[string]any{
			"textDocumentSync":   map[string]any{"openClose": true, "change": 2},
			"completionProvider": map[string]any{},
			"hoverProvider":      true,
		},
	}
}

func (f *fakeAnalyzer) dialer() Dialer {
	return StreamDialer(func(ctx context.Context) (io.ReadWriteCloser, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failDial {
			return nil, io.ErrClosedPipe
		}
		client, server := net.Pipe()
		idx := len(f.conns)
		stream := jsonrpc2.NewBufferedStream(server, jsonrpc2.VSCodeObjectCodec{})
		f.conns = append(f.conns, jsonrpc2.NewConn(context.Background(), stream, &fakeHandler{f: f, conn: idx}))
		return client, nil
	})
}

type fakeHandler struct {
	f    *fakeAnalyzer
	conn int
}

func (h *fakeHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	f := h.f
	m := message{Conn: h.conn, Method: req.Method, ID: req.ID.Num}
	if req.Params != nil {
		m.Params = append(json.RawMessage(nil), *req.Params...)
	}
	f.mu.Lock()
	f.messages = append(f.messages, m)
	gate := f.gate
	caps := f.caps
	stall := f.stallOn == req.Method
	unstall := f.unstall
	f.mu.Unlock()
	if stall {
		// Handlers run on the reader, so nothing more is read meanwhile.
		<-unstall
	}
	if req.Notif {
		return
	}

	var result any
	switch req.Method {
	case "initialize":
		result = map[string]any{"capabilities": caps}
	case "textDocument/completion":
		result = []map[string]any{{"label": "alpha"}, {"label": "beta", "detail": "b"}}
	case "textDocument/hover":
		result = map[string]any{"contents": map[string]any{"kind": "markdown", "value": "**x**"}}
	}
	if gate != nil && req.Method != "initialize" && req.Method != "shutdown" {
		go func() {
			<-gate
			_ = conn.Reply(context.Background(), req.ID, result)
		}()
		return
	}
	_ = conn.Reply(ctx, req.ID, result)
}

// stall makes the analyzer stop reading once method arrives. The returned
// function resumes it.
func (f *fakeAnalyzer) stall(method string) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stallOn = method
	f.unstall = make(chan struct{})
	var once sync.Once
	unstall := f.unstall
	return func() { once.Do(func() { close(unstall) }) }
}

func (f *fakeAnalyzer) hold() {
	f.mu.Lock()
	f.gate = make(chan struct{})
	f.mu.Unlock()
}

func (f *fakeAnalyzer) release() {
	f.mu.Lock()
	close(f.gate)
	f.gate = nil
	f.mu.Unlock()
}

func (f *fakeAnalyzer) conn(i int) *jsonrpc2.Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[i]
}

func (f *fakeAnalyzer) methods(method string) []message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []message
	for _, m := range f.messages {
		if m.Method == method {
			out = append(out, m)
		}
	}
	return out
}

// documentMessages lists the didOpen/didChange/didClose traffic of one connection.
func (f *fakeAnalyzer) documentMessages(conn int) []message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []message
	for _, m := range f.messages {
		if m.Conn != conn {
			continue
		}
		switch m.Method {
		case "textDocument/didOpen", "textDocument/didChange", "textDocument/didClose":
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeAnalyzer) waitFor(t *testing.T, method string, n int) []message {
	t.Helper()
	require.Eventually(t, func() bool { return len(f.methods(method)) >= n }, 2*time.Second, 5*time.Millisecond,
		"waiting for %d %s", n, method)
	return f.methods(method)
}

func nextEvent(t *testing.T, s *Session, match func(Event) bool) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-s.Events():
			require.True(t, ok, "event stream closed")
			if match(e) {
				return e
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
		}
	}
}
