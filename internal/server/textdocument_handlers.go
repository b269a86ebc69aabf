package server

import (
	"context"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"simplide/internal/grammar"
	"simplide/internal/resolver"
)

func (s *Server) textDocumentDidOpen(
	context *glsp.Context,
	params *protocol.DidOpenTextDocumentParams,
) error {
	item := params.TextDocument
	g := s.grammarFor(item.URI, item.LanguageID)
	d, err := s.docs.open(ctx(), item.URI, g, item.Version, item.Text)
	if err != nil {
		return err
	}
	s.publishDiagnostics(context, d)
	return nil
}

func (s *Server) textDocumentDidChange(
	context *glsp.Context,
	params *protocol.DidChangeTextDocumentParams,
) error {
	return s.docs.with(params.TextDocument.URI, func(d *document) error {
		for _, change := range params.ContentChanges {
			if err := d.apply(ctx(), change); err != nil {
				log.Warningf("change to %s: %v", d.uri, err)
				return err
			}
		}
		d.version = params.TextDocument.Version
		s.publishDiagnostics(context, d)
		return nil
	})
}

func (s *Server) textDocumentDidClose(
	context *glsp.Context,
	params *protocol.DidCloseTextDocumentParams,
) error {
	s.docs.release(params.TextDocument.URI)
	// Clear whatever the client still shows for the document.
	context.Notify("textDocument/publishDiagnostics", publishDiagnosticsParams{
		URI:         params.TextDocument.URI,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// grammarFor prefers the client's language id and falls back to the file
// extension.
func (s *Server) grammarFor(uri, languageID string) *grammar.Grammar {
	if g, err := s.registry.Lookup(languageID); err == nil {
		return g
	}
	if path, err := resolver.PathFromURI(uri); err == nil {
		if g, ok := s.registry.Detect(path); ok {
			return g
		}
	}
	log.Infof("no grammar for %s (%q), tracking text only", uri, languageID)
	return nil
}

// publishDiagnosticsParams carries the document version, which the glsp
// type leaves out.
type publishDiagnosticsParams struct {
	URI         protocol.DocumentUri  `json:"uri"`
	Version     *protocol.Integer     `json:"version,omitempty"`
	Diagnostics []protocol.Diagnostic `json:"diagnostics"`
}

func (s *Server) publishDiagnostics(context *glsp.Context, d *document) {
	diagnostics := []protocol.Diagnostic{}
	if d.tracker != nil {
		snap := d.buf.Snapshot()
		severity := protocol.DiagnosticSeverityError
		source := Name
		for _, p := range d.tracker.Problems() {
			r, err := rangeOf(snap, p.Range)
			if err != nil {
				continue
			}
			diagnostics = append(diagnostics, protocol.Diagnostic{
				Range:    r,
				Severity: &severity,
				Source:   &source,
				Message:  p.Message(),
			})
		}
	}
	version := d.version
	context.Notify("textDocument/publishDiagnostics", publishDiagnosticsParams{
		URI:         d.uri,
		Version:     &version,
		Diagnostics: diagnostics,
	})
}

func ctx() context.Context { return context.Background() }
