package server

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"simplide/internal/buffer"
)

func (s *Server) textDocumentCompletion(
	context *glsp.Context,
	params *protocol.CompletionParams,
) (any, error) {
	items := []protocol.CompletionItem{}
	err := s.docs.with(params.TextDocument.URI, func(d *document) error {
		if d.tracker == nil {
			return nil
		}
		snap := d.buf.Snapshot()
		offset, err := snap.OffsetAtCodeUnit(codeUnit(params.Position))
		if err != nil {
			return err
		}
		kind := protocol.CompletionItemKindVariable
		for _, id := range d.tracker.Identifiers(wordBefore(snap, offset)) {
			if len(items) >= s.config.MaxCompletions {
				break
			}
			items = append(items, protocol.CompletionItem{Label: id, Kind: &kind})
		}
		return nil
	})
	return items, err
}

func (s *Server) textDocumentHover(
	context *glsp.Context,
	params *protocol.HoverParams,
) (*protocol.Hover, error) {
	var hover *protocol.Hover
	err := s.docs.with(params.TextDocument.URI, func(d *document) error {
		if d.tracker == nil {
			return nil
		}
		snap := d.buf.Snapshot()
		offset, err := snap.OffsetAtCodeUnit(codeUnit(params.Position))
		if err != nil {
			return err
		}
		n, ok := d.tracker.NodeAt(offset)
		if !ok {
			return nil
		}
		r, err := rangeOf(snap, n.Range)
		if err != nil {
			return err
		}
		value := fmt.Sprintf("`%s`", n.Type)
		if len(n.Ancestors) > 0 {
			value += fmt.Sprintf(" in `%s`", n.Ancestors[0])
		}
		hover = &protocol.Hover{
			Contents: protocol.MarkupContent{Kind: protocol.MarkupKindMarkdown, Value: value},
			Range:    &r,
		}
		return nil
	})
	return hover, err
}

// wordBefore returns the identifier characters directly before offset on
// the same line.
func wordBefore(snap buffer.Snapshot, offset int) string {
	pos, err := snap.PositionAt(offset)
	if err != nil {
		return ""
	}
	line, err := snap.Read(buffer.Range{Start: offset - pos.Column, End: offset})
	if err != nil {
		return ""
	}
	i := len(line)
	for i > 0 {
		r, size := utf8.DecodeLastRuneInString(line[:i])
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		i -= size
	}
	return line[i:]
}
