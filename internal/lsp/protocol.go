package lsp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"simplide/internal/buffer"
)

const (
	methodInitialize         = "initialize"
	methodInitialized        = "initialized"
	methodShutdown           = "shutdown"
	methodExit               = "exit"
	methodDidOpen            = "textDocument/didOpen"
	methodDidChange          = "textDocument/didChange"
	methodDidClose           = "textDocument/didClose"
	methodPublishDiagnostics = "textDocument/publishDiagnostics"
	methodCancelRequest      = "$/cancelRequest"
	methodLogMessage         = "window/logMessage"
	methodShowMessage        = "window/showMessage"
)

// Kind names a request. The predefined kinds have parsed results; any other
// value is sent as a position request using the kind as the method name.
type Kind string

const (
	KindCompletion Kind = "textDocument/completion"
	KindHover      Kind = "textDocument/hover"
)

func (k Kind) Method() string { return string(k) }

func toPosition(p buffer.CodeUnitPosition) protocol.Position {
	return protocol.Position{
		Line:      protocol.UInteger(p.Line),
		Character: protocol.UInteger(p.Character),
	}
}

// FromPosition converts an analyzer position to code units.
func FromPosition(p protocol.Position) buffer.CodeUnitPosition {
	return buffer.CodeUnitPosition{Line: int(p.Line), Character: int(p.Character)}
}

func didOpenParams(uri, languageID string, snap buffer.Snapshot) protocol.DidOpenTextDocumentParams {
	return protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        uri,
			LanguageID: languageID,
			Version:    protocol.Integer(snap.Version()),
			Text:       snap.Text(),
		},
	}
}

func versioned(uri string, version uint64) protocol.VersionedTextDocumentIdentifier {
	return protocol.VersionedTextDocumentIdentifier{
		TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri},
		Version:                protocol.Integer(version),
	}
}

func rangeChange(start, end buffer.CodeUnitPosition, text string) protocol.TextDocumentContentChangeEvent {
	return protocol.TextDocumentContentChangeEvent{
		Range: &protocol.Range{Start: toPosition(start), End: toPosition(end)},
		Text:  text,
	}
}

func wholeChange(text string) protocol.TextDocumentContentChangeEventWhole {
	return protocol.TextDocumentContentChangeEventWhole{Text: text}
}

// publishDiagnosticsParams is decoded by hand: the glsp type has no version
// field and the version is what tells us which snapshot the result describes.
type publishDiagnosticsParams struct {
	URI         string                `json:"uri"`
	Version     *int64                `json:"version,omitempty"`
	Diagnostics []protocol.Diagnostic `json:"diagnostics"`
}

type syncKind int

const (
	syncNone        syncKind = 0
	syncFull        syncKind = 1
	syncIncremental syncKind = 2
)

type capabilities struct {
	sync       syncKind
	completion bool
	hover      bool
}

func (c capabilities) supports(k Kind) bool {
	switch k {
	case KindCompletion:
		return c.completion
	case KindHover:
		return c.hover
	}
	return true
}

type rawInitializeResult struct {
	Capabilities struct {
		TextDocumentSync   json.RawMessage `json:"textDocumentSync"`
		CompletionProvider json.RawMessage `json:"completionProvider"`
		HoverProvider      json.RawMessage `json:"hoverProvider"`
	} `json:"capabilities"`
}

func parseCapabilities(raw json.RawMessage) (capabilities, error) {
	var res rawInitializeResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return capabilities{}, fmt.Errorf("%w: initialize result: %v", ErrMalformed, err)
	}
	var caps capabilities

	// textDocumentSync is either a kind or an options object.
	if sync := res.Capabilities.TextDocumentSync; present(sync) {
		var kind int
		if err := json.Unmarshal(sync, &kind); err == nil {
			caps.sync = syncKind(kind)
		} else {
			var opts struct {
				Change *int `json:"change"`
			}
			if err := json.Unmarshal(sync, &opts); err != nil {
				return capabilities{}, fmt.Errorf("%w: textDocumentSync: %v", ErrMalformed, err)
			}
			if opts.Change != nil {
				caps.sync = syncKind(*opts.Change)
			}
		}
	}
	caps.completion = present(res.Capabilities.CompletionProvider)
	// hoverProvider is a boolean or an options object.
	if h := res.Capabilities.HoverProvider; present(h) {
		var b bool
		if err := json.Unmarshal(h, &b); err == nil {
			caps.hover = b
		} else {
			caps.hover = true
		}
	}
	return caps, nil
}

func present(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null")) && !bytes.Equal(raw, []byte("false"))
}

type CompletionItem struct {
	Label      string `json:"label"`
	Kind       int    `json:"kind,omitempty"`
	Detail     string `json:"detail,omitempty"`
	InsertText string `json:"insertText,omitempty"`
	SortText   string `json:"sortText,omitempty"`
	FilterText string `json:"filterText,omitempty"`
}

type Completion struct {
	Items      []CompletionItem
	Incomplete bool
}

// parseCompletion accepts null, CompletionItem[] or a CompletionList.
func parseCompletion(raw json.RawMessage) (*Completion, error) {
	raw = bytes.TrimSpace(raw)
	if !present(raw) {
		return &Completion{}, nil
	}
	if raw[0] == '[' {
		var items []CompletionItem
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("%w: completion items: %v", ErrMalformed, err)
		}
		return &Completion{Items: items}, nil
	}
	var list struct {
		IsIncomplete bool             `json:"isIncomplete"`
		Items        []CompletionItem `json:"items"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("%w: completion list: %v", ErrMalformed, err)
	}
	return &Completion{Items: list.Items, Incomplete: list.IsIncomplete}, nil
}

type Hover struct {
	Contents string
	Range    *protocol.Range
}

// parseHover flattens the contents union (string, MarkupContent, MarkedString
// or an array of those) into markdown text.
func parseHover(raw json.RawMessage) (*Hover, error) {
	if !present(raw) {
		return &Hover{}, nil
	}
	var res struct {
		Contents json.RawMessage `json:"contents"`
		Range    *protocol.Range `json:"range,omitempty"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("%w: hover: %v", ErrMalformed, err)
	}
	return &Hover{Contents: hoverText(res.Contents), Range: res.Range}, nil
}

func hoverText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if raw[0] == '[' {
		var parts []json.RawMessage
		if err := json.Unmarshal(raw, &parts); err != nil {
			return ""
		}
		texts := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := hoverText(p); t != "" {
				texts = append(texts, t)
			}
		}
		return strings.Join(texts, "\n\n")
	}
	var obj struct {
		Kind     string `json:"kind"`
		Language string `json:"language"`
		Value    string `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	if obj.Language != "" {
		return "```" + obj.Language + "\n" + obj.Value + "\n```"
	}
	return obj.Value
}
