package sitteradapter

import (
	sitter "github.com/smacker/go-tree-sitter"

	"simplide/internal/buffer"
	"simplide/internal/editlog"
)

// EditInput converts an applied edit into a tree-sitter EditInput.
func EditInput(e buffer.Edit) sitter.EditInput {
	return sitter.EditInput{
		StartIndex:  uint32(e.Range.Start),
		OldEndIndex: uint32(e.Range.End),
		NewEndIndex: uint32(e.NewEnd()),
		StartPoint:  Point(e.StartPosition),
		OldEndPoint: Point(e.OldEndPosition),
		NewEndPoint: Point(e.NewEndPosition),
	}
}

// SpanInput converts a composed span into a tree-sitter EditInput. before is
// the document the span starts from, after the one it produces.
func SpanInput(span editlog.Span, before, after buffer.Snapshot) (sitter.EditInput, error) {
	start, err := before.PositionAt(span.Start)
	if err != nil {
		return sitter.EditInput{}, err
	}
	oldEnd, err := before.PositionAt(span.OldEnd)
	if err != nil {
		return sitter.EditInput{}, err
	}
	newEnd, err := after.PositionAt(span.NewEnd)
	if err != nil {
		return sitter.EditInput{}, err
	}
	return sitter.EditInput{
		StartIndex:  uint32(span.Start),
		OldEndIndex: uint32(span.OldEnd),
		NewEndIndex: uint32(span.NewEnd),
		StartPoint:  Point(start),
		OldEndPoint: Point(oldEnd),
		NewEndPoint: Point(newEnd),
	}, nil
}

// Point converts a line and byte column into a tree-sitter point. Both use
// byte columns, so no text is needed.
func Point(p buffer.Position) sitter.Point {
	return sitter.Point{Row: uint32(p.Line), Column: uint32(p.Column)}
}

// Position is the inverse of Point.
func Position(pt sitter.Point) buffer.Position {
	return buffer.Position{Line: int(pt.Row), Column: int(pt.Column)}
}

// NodeRange returns the byte range covered by n.
func NodeRange(n *sitter.Node) buffer.Range {
	return buffer.Range{Start: int(n.StartByte()), End: int(n.EndByte())}
}
