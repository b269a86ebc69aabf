package coordinator

import (
	"iter"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"simplide/internal/buffer"
	"simplide/internal/parser"
)

// HighlightView is the highlighting of a visible range. Spans is lazy and
// reflects the tree at iteration time.
type HighlightView struct {
	// Version is the document version the tree was built from.
	Version uint64
	// Stale is set while the tree lags the document, typically during a
	// background rebuild. A stale view yields no spans.
	Stale bool
	// Err is set when the document's grammar cannot highlight at all. Such
	// a view yields no spans however current it is.
	Err   error
	Spans iter.Seq[parser.HighlightSpan]
}

func (c *Coordinator) Highlights(r buffer.Range) HighlightView {
	if c.tracker == nil {
		return HighlightView{Version: c.buf.Version(), Spans: func(func(parser.HighlightSpan) bool) {}}
	}
	return HighlightView{
		Version: c.tracker.Version(),
		Stale:   c.tracker.Stale() || c.tracker.Version() != c.buf.Version(),
		Err:     c.tracker.HighlightErr(),
		Spans:   c.tracker.Highlights(r),
	}
}

// NodeAt describes the innermost syntax node at offset.
func (c *Coordinator) NodeAt(offset int) (parser.Node, bool) {
	if c.tracker == nil {
		return parser.Node{}, false
	}
	return c.tracker.NodeAt(offset)
}

func (c *Coordinator) MatchingBracket(offset int) (int, bool) {
	if c.tracker == nil {
		return 0, false
	}
	return c.tracker.MatchingBracket(offset)
}

func (c *Coordinator) FoldingRanges() []parser.Fold {
	if c.tracker == nil {
		return nil
	}
	return c.tracker.FoldingRanges()
}

// DiagnosticView is an analyzer diagnostic placed in the current document.
type DiagnosticView struct {
	Range    buffer.Range
	Severity protocol.DiagnosticSeverity
	Message  string
	Source   string
	// Version is the document version the analyzer computed the diagnostic
	// against. Stale is set when the document has moved on since; the range
	// is then carried forward through the edits made in between.
	Version uint64
	Stale   bool
}

// Diagnostics yields the diagnostics intersecting r. Diagnostics that lag the
// document by more than the staleness threshold are not shown.
func (c *Coordinator) Diagnostics(r buffer.Range) iter.Seq[DiagnosticView] {
	return func(yield func(DiagnosticView) bool) {
		if !c.hasDiags {
			return
		}
		version := c.diagSnap.Version()
		lag := c.buf.Version() - version
		if lag > c.opts.StalenessThreshold {
			return
		}
		since, err := c.edits.Since(version)
		if err != nil {
			return
		}
		for _, d := range c.diags {
			rg, ok := c.place(d.Range, since)
			if !ok || !rg.Intersects(r) {
				continue
			}
			v := DiagnosticView{
				Range:   rg,
				Message: d.Message,
				Version: version,
				Stale:   lag > 0,
			}
			if d.Severity != nil {
				v.Severity = *d.Severity
			}
			if d.Source != nil {
				v.Source = *d.Source
			}
			if !yield(v) {
				return
			}
		}
	}
}

// DiagnosticsVersion is the version of the diagnostics on display, if any.
func (c *Coordinator) DiagnosticsVersion() (uint64, bool) {
	return c.diagSnap.Version(), c.hasDiags
}

// expireDiagnostics forgets diagnostics once they fall too far behind.
func (c *Coordinator) expireDiagnostics() {
	if !c.hasDiags || c.buf.Version()-c.diagSnap.Version() <= c.opts.StalenessThreshold {
		return
	}
	log.Debugf("dropping diagnostics of %s from version %d", c.opts.URI, c.diagSnap.Version())
	c.diags, c.hasDiags = nil, false
	c.diagSnap = buffer.Snapshot{}
	c.opts.Metrics.Dropped("lagging")
}

// place converts an analyzer range, given in the code units of the version
// the diagnostics describe, to bytes in the current document.
func (c *Coordinator) place(r protocol.Range, since []buffer.Edit) (buffer.Range, bool) {
	start, err := c.diagSnap.OffsetAtCodeUnit(buffer.CodeUnitPosition{
		Line: int(r.Start.Line), Character: int(r.Start.Character),
	})
	if err != nil {
		return buffer.Range{}, false
	}
	end, err := c.diagSnap.OffsetAtCodeUnit(buffer.CodeUnitPosition{
		Line: int(r.End.Line), Character: int(r.End.Character),
	})
	if err != nil || end < start {
		return buffer.Range{}, false
	}
	return buffer.Range{Start: shift(start, since, false), End: shift(end, since, true)}, true
}

// shift follows offset through edits. An offset inside a replaced range
// moves to the start of the replacement, or to its end when end is set. Text
// inserted exactly at a start offset lands inside the range.
func shift(offset int, edits []buffer.Edit, end bool) int {
	for _, e := range edits {
		after := offset > e.Range.End || (offset == e.Range.End && (end || !e.Range.Empty()))
		switch {
		case after:
			offset += len(e.NewText) - e.Range.Len()
		case offset > e.Range.Start:
			if end {
				offset = e.NewEnd()
			} else {
				offset = e.Range.Start
			}
		}
	}
	return offset
}
