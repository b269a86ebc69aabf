package lsp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCapabilities(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want capabilities
	}{
		{"kind number", `{"capabilities":{"textDocumentSync":1}}`, capabilities{sync: syncFull}},
		{"options object", `{"capabilities":{"textDocumentSync":{"openClose":true,"change":2},"hoverProvider":true}}`,
			capabilities{sync: syncIncremental, hover: true}},
		{"hover options", `{"capabilities":{"hoverProvider":{"workDoneProgress":false},"completionProvider":{"triggerCharacters":["."]}}}`,
			capabilities{hover: true, completion: true}},
		{"hover disabled", `{"capabilities":{"hoverProvider":false,"completionProvider":null}}`, capabilities{}},
		{"empty", `{"capabilities":{}}`, capabilities{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCapabilities(json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseCapabilities(json.RawMessage(`{"capabilities":{"textDocumentSync":"x"}}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseCompletion(t *testing.T) {
	c, err := parseCompletion(json.RawMessage(`[{"label":"a"},{"label":"b","kind":3}]`))
	require.NoError(t, err)
	assert.Len(t, c.Items, 2)
	assert.Equal(t, 3, c.Items[1].Kind)
	assert.False(t, c.Incomplete)

	c, err = parseCompletion(json.RawMessage(`{"isIncomplete":true,"items":[{"label":"x","insertText":"x()"}]}`))
	require.NoError(t, err)
	assert.True(t, c.Incomplete)
	assert.Equal(t, "x()", c.Items[0].InsertText)

	c, err = parseCompletion(json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	_, err = parseCompletion(json.RawMessage(`[1,2]`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestHoverContents(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain string", `{"contents":"hello"}`, "hello"},
		{"markup", `{"contents":{"kind":"markdown","value":"**b**"}}`, "**b**"},
		{"marked string", `{"contents":{"language":"go","value":"func f()"}}`, "```go\nfunc f()\n```"},
		{"array", `{"contents":["one",{"language":"go","value":"x"}]}`, "one\n\n```go\nx\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := parseHover(json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, h.Contents)
		})
	}

	h, err := parseHover(json.RawMessage(`{"contents":"x","range":{"start":{"line":1,"character":2},"end":{"line":1,"character":4}}}`))
	require.NoError(t, err)
	require.NotNil(t, h.Range)
	assert.EqualValues(t, 2, h.Range.Start.Character)
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, Uninitialized.canTransition(Negotiating))
	assert.True(t, Ready.canTransition(Degraded))
	assert.True(t, Degraded.canTransition(Negotiating))
	assert.False(t, Closed.canTransition(Ready))
	assert.False(t, Degraded.canTransition(Ready))
	assert.Equal(t, "degraded", Degraded.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestDialerFor(t *testing.T) {
	d, err := DialerFor(nil, "ws://localhost:9000/lsp")
	require.NoError(t, err)
	assert.IsType(t, WebSocketDialer{}, d)

	d, err = DialerFor(nil, "unix:///tmp/a.sock")
	require.NoError(t, err)
	assert.Equal(t, TCPDialer{Network: "unix", Address: "/tmp/a.sock"}, d)

	d, err = DialerFor(nil, "127.0.0.1:7000")
	require.NoError(t, err)
	assert.Equal(t, TCPDialer{Address: "127.0.0.1:7000"}, d)

	d, err = DialerFor([]string{"gopls"}, "")
	require.NoError(t, err)
	assert.IsType(t, CommandDialer{}, d)

	_, err = DialerFor(nil, "")
	assert.ErrorIs(t, err, ErrTransport)
}
