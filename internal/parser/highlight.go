package parser

import (
	"iter"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"

	"simplide/internal/buffer"
	"simplide/internal/grammar"
	"simplide/internal/sitteradapter"
)

// HighlightSpan colours a byte range. Spans produced by one sequence are
// ordered and never overlap.
type HighlightSpan struct {
	Range    buffer.Range
	Category grammar.Category
	Version  uint64
}

type capture struct {
	r     buffer.Range
	cat   grammar.Category
	order int
}

// Highlights returns the spans intersecting r for the current tree. The
// sequence is lazy and can be iterated any number of times; each iteration
// reflects the tree at that moment. A stale tree yields nothing, and so do
// regions the grammar failed to parse.
func (t *Tracker) Highlights(r buffer.Range) iter.Seq[HighlightSpan] {
	return func(yield func(HighlightSpan) bool) {
		if t.Stale() || t.query == nil {
			return
		}
		version := t.snap.Version()
		emit := func(rg buffer.Range, cat grammar.Category) bool {
			rg.Start = max(rg.Start, r.Start)
			rg.End = min(rg.End, r.End)
			if rg.Start >= rg.End {
				return true
			}
			for _, piece := range subtract(rg, t.errors) {
				if !yield(HighlightSpan{Range: piece, Category: cat, Version: version}) {
					return false
				}
			}
			return true
		}
		for _, n := range t.chunks(r) {
			caps := t.captures(n, r)
			if !flatten(caps, emit) {
				return
			}
		}
	}
}

// chunks returns the top-level nodes whose subtrees intersect r. Queries run
// per chunk so that a visible window does not scan the whole document.
func (t *Tracker) chunks(r buffer.Range) []*sitter.Node {
	root := t.tree.RootNode()
	count := int(root.ChildCount())
	if count == 0 {
		return []*sitter.Node{root}
	}
	var out []*sitter.Node
	for i := 0; i < count; i++ {
		c := root.Child(i)
		if sitteradapter.NodeRange(c).Intersects(r) {
			out = append(out, c)
		}
	}
	return out
}

// captures runs the highlight query over n. The built-in queries carry no
// predicates, so matches are used without filtering.
func (t *Tracker) captures(n *sitter.Node, r buffer.Range) []capture {
	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(t.query, n)

	var caps []capture
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, c := range m.Captures {
			cr := sitteradapter.NodeRange(c.Node)
			if cr.Empty() || !cr.Intersects(r) {
				continue
			}
			cat, ok := grammar.CategoryForCapture(t.query.CaptureNameForId(c.Index))
			if !ok {
				continue
			}
			caps = append(caps, capture{r: cr, cat: cat, order: int(m.PatternIndex)})
		}
	}
	sort.SliceStable(caps, func(i, j int) bool {
		a, b := caps[i], caps[j]
		if a.r.Start != b.r.Start {
			return a.r.Start < b.r.Start
		}
		if a.r.End != b.r.End {
			return a.r.End > b.r.End
		}
		return a.order < b.order
	})
	return caps
}

// flatten turns nested captures into non-overlapping spans where the
// innermost capture wins. For identical ranges the first pattern wins.
func flatten(caps []capture, emit func(buffer.Range, grammar.Category) bool) bool {
	type open struct {
		end int
		cat grammar.Category
	}
	var stack []open
	pos := 0
	var last buffer.Range
	haveLast := false

	advance := func(to int) bool {
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if top.end > to {
				break
			}
			if pos < top.end && !emit(buffer.Range{Start: pos, End: top.end}, top.cat) {
				return false
			}
			pos = max(pos, top.end)
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 && pos < to {
			if !emit(buffer.Range{Start: pos, End: to}, stack[len(stack)-1].cat) {
				return false
			}
		}
		pos = max(pos, to)
		return true
	}

	for _, c := range caps {
		if haveLast && c.r == last {
			continue
		}
		if !advance(c.r.Start) {
			return false
		}
		stack = append(stack, open{end: c.r.End, cat: c.cat})
		last, haveLast = c.r, true
	}
	return advance(int(^uint(0) >> 1))
}

// subtract removes the holes from r. holes are ordered by start.
func subtract(r buffer.Range, holes []buffer.Range) []buffer.Range {
	if len(holes) == 0 {
		return []buffer.Range{r}
	}
	var out []buffer.Range
	cur := r.Start
	for _, h := range holes {
		if h.End <= cur || h.Start >= r.End {
			continue
		}
		if h.Start > cur {
			out = append(out, buffer.Range{Start: cur, End: h.Start})
		}
		cur = max(cur, h.End)
	}
	if cur < r.End {
		out = append(out, buffer.Range{Start: cur, End: r.End})
	}
	return out
}
