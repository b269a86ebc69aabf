package editlog

import (
	"fmt"

	"simplide/internal/buffer"
)

// Span is a single replacement equivalent to a run of edits: bytes
// [Start, OldEnd) of the base document became bytes [Start, NewEnd) of the
// final document.
type Span struct {
	Start  int
	OldEnd int
	NewEnd int
}

// Compose merges consecutive edits into the smallest span covering all of
// them. The first edit's base document is the reference.
func Compose(edits []buffer.Edit) (Span, bool) {
	if len(edits) == 0 {
		return Span{}, false
	}
	first := edits[0]
	s := Span{Start: first.Range.Start, OldEnd: first.Range.End, NewEnd: first.NewEnd()}
	for _, e := range edits[1:] {
		// s covers [Start, NewEnd) in the current document; outside it the
		// current and base documents differ only by a shift.
		delta := s.NewEnd - s.OldEnd
		end := s.NewEnd
		if e.Range.End > end {
			s.OldEnd = e.Range.End - delta
			end = e.Range.End
		}
		s.Start = min(s.Start, e.Range.Start)
		s.NewEnd = end + e.Delta()
	}
	return s, true
}

// Overlapping reports whether every edit after the first touches the region
// changed by the edits before it.
func Overlapping(edits []buffer.Edit) bool {
	if len(edits) < 2 {
		return len(edits) == 1
	}
	lo, hi := edits[0].Range.Start, edits[0].NewEnd()
	for _, e := range edits[1:] {
		if e.Range.End < lo || e.Range.Start > hi {
			return false
		}
		lo = min(lo, e.Range.Start)
		hi = max(hi, e.Range.End) + e.Delta()
	}
	return true
}

// Replay applies edits to base and returns the resulting text.
func Replay(base string, edits []buffer.Edit) (string, error) {
	b := buffer.New(base, buffer.Options{})
	for _, e := range edits {
		if _, err := b.Apply(buffer.EditSpec{Range: e.Range, Text: e.NewText}); err != nil {
			return "", fmt.Errorf("replay %d->%d: %w", e.VersionBefore, e.VersionAfter, err)
		}
	}
	return b.Text(), nil
}
