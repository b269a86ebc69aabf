package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"simplide/internal/buffer"
	"simplide/internal/grammar"
	"simplide/internal/parser"
)

var errUnknownDocument = errors.New("document not open")

// document is the analyzer's copy of one open file. tracker is nil for
// languages without a grammar.
type document struct {
	uri     string
	version protocol.Integer
	buf     *buffer.Buffer
	tracker *parser.Tracker
}

func (d *document) reset(ctx context.Context, text string) error {
	d.buf = buffer.New(text, buffer.Options{HistoryLimit: 1})
	if d.tracker == nil {
		return nil
	}
	return d.tracker.Reset(ctx, d.buf.Snapshot())
}

// apply plays one content change against the document.
func (d *document) apply(ctx context.Context, raw any) error {
	switch change := raw.(type) {
	case protocol.TextDocumentContentChangeEventWhole:
		return d.reset(ctx, change.Text)
	case protocol.TextDocumentContentChangeEvent:
		if change.Range == nil {
			return d.reset(ctx, change.Text)
		}
		start, err := d.buf.OffsetAtCodeUnit(codeUnit(change.Range.Start))
		if err != nil {
			return err
		}
		end, err := d.buf.OffsetAtCodeUnit(codeUnit(change.Range.End))
		if err != nil {
			return err
		}
		e, err := d.buf.Apply(buffer.EditSpec{Range: buffer.Range{Start: start, End: end}, Text: change.Text})
		if errors.Is(err, buffer.ErrEmptyEdit) {
			return nil
		}
		if err != nil {
			return err
		}
		if d.tracker == nil {
			return nil
		}
		if err := d.tracker.OnEdit(ctx, e, d.buf.Snapshot()); errors.Is(err, parser.ErrVersionMismatch) {
			return d.tracker.Reset(ctx, d.buf.Snapshot())
		}
		return nil
	}
	return fmt.Errorf("unexpected change event type %T", raw)
}

func codeUnit(p protocol.Position) buffer.CodeUnitPosition {
	return buffer.CodeUnitPosition{Line: int(p.Line), Character: int(p.Character)}
}

func position(p buffer.CodeUnitPosition) protocol.Position {
	return protocol.Position{Line: protocol.UInteger(p.Line), Character: protocol.UInteger(p.Character)}
}

// rangeOf converts a byte range of snap into an analyzer range.
func rangeOf(snap buffer.Snapshot, r buffer.Range) (protocol.Range, error) {
	start, err := snap.CodeUnitAt(r.Start)
	if err != nil {
		return protocol.Range{}, err
	}
	end, err := snap.CodeUnitAt(r.End)
	if err != nil {
		return protocol.Range{}, err
	}
	return protocol.Range{Start: position(start), End: position(end)}, nil
}

// documents holds the open documents by URI.
type documents struct {
	mu   sync.Mutex
	docs map[string]*document
}

func newDocuments() *documents {
	return &documents{docs: make(map[string]*document)}
}

func (ds *documents) open(ctx context.Context, uri string, g *grammar.Grammar, version protocol.Integer, text string) (*document, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if old, ok := ds.docs[uri]; ok && old.tracker != nil {
		old.tracker.Close()
	}
	d := &document{uri: uri, version: version}
	if g != nil {
		d.tracker = parser.NewTracker(g, parser.Options{})
	}
	ds.docs[uri] = d
	return d, d.reset(ctx, text)
}

// with runs fn on the document while holding the lock.
func (ds *documents) with(uri string, fn func(*document) error) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	d, ok := ds.docs[uri]
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownDocument, uri)
	}
	return fn(d)
}

func (ds *documents) release(uri string) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if d, ok := ds.docs[uri]; ok && d.tracker != nil {
		d.tracker.Close()
	}
	delete(ds.docs, uri)
}

func (ds *documents) closeAll() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	for uri, d := range ds.docs {
		if d.tracker != nil {
			d.tracker.Close()
		}
		delete(ds.docs, uri)
	}
}
