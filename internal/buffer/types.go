package buffer

import (
	"fmt"
	"time"
)

// Range is a half open byte range [Start, End).
type Range struct {
	Start int
	End   int
}

func (r Range) Len() int { return r.End - r.Start }

func (r Range) Empty() bool { return r.Start == r.End }

// Contains reports whether offset lies inside r. An empty range contains its
// own start.
func (r Range) Contains(offset int) bool {
	if r.Empty() {
		return offset == r.Start
	}
	return offset >= r.Start && offset < r.End
}

// Intersects reports whether r and o share at least one byte, or touch when
// either is empty.
func (r Range) Intersects(o Range) bool {
	if r.Empty() || o.Empty() {
		return r.Start <= o.End && o.Start <= r.End
	}
	return r.Start < o.End && o.Start < r.End
}

func (r Range) String() string { return fmt.Sprintf("[%d,%d)", r.Start, r.End) }

// Position is a zero based line and byte column.
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Column) }

// CodeUnitPosition is a zero based line and UTF-16 code unit column, the
// coordinate system spoken by language analyzers.
type CodeUnitPosition struct {
	Line      int
	Character int
}

// EditSpec describes a replacement requested by the editing surface.
type EditSpec struct {
	Range Range
	Text  string
}

// Origin tells how an edit came to be.
type Origin int

const (
	OriginLocal Origin = iota
	OriginUndo
	OriginRedo
)

func (o Origin) String() string {
	switch o {
	case OriginUndo:
		return "undo"
	case OriginRedo:
		return "redo"
	default:
		return "local"
	}
}

// Edit is an applied mutation. The positions are measured at apply time so
// that consumers never need the pre-edit text to translate coordinates:
// StartPosition and OldEndPosition refer to the document before the edit,
// NewEndPosition to the document after it.
type Edit struct {
	VersionBefore uint64
	VersionAfter  uint64
	Range         Range
	OldText       string
	NewText       string
	Timestamp     time.Time
	Origin        Origin

	StartPosition  Position
	OldEndPosition Position
	NewEndPosition Position

	StartCodeUnit  CodeUnitPosition
	OldEndCodeUnit CodeUnitPosition
}

// NewEnd is the end offset of the inserted text in the post-edit document.
func (e Edit) NewEnd() int { return e.Range.Start + len(e.NewText) }

// Delta is the change in document length caused by the edit.
func (e Edit) Delta() int { return len(e.NewText) - e.Range.Len() }

// Inverse returns the spec that reverts e.
func (e Edit) Inverse() EditSpec {
	return EditSpec{
		Range: Range{Start: e.Range.Start, End: e.NewEnd()},
		Text:  e.OldText,
	}
}
