package parser

import (
	"context"
	"fmt"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/tliron/commonlog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"simplide/internal/buffer"
	"simplide/internal/editlog"
	"simplide/internal/grammar"
	"simplide/internal/sitteradapter"
)

var log = commonlog.GetLogger("simplide.parser")

var tracer = otel.Tracer("simplide/parser")

// DefaultCoalesceThreshold is the number of overlapping edits from which a
// batch is folded into a single span before re-parsing.
const DefaultCoalesceThreshold = 3

type Options struct {
	CoalesceThreshold int
}

// ReparseStats describes the most recent parse.
type ReparseStats struct {
	Version uint64
	Full    bool
	// Edits is the number of edits consumed; Coalesced is true when they were
	// folded into a single span first.
	Edits     int
	Coalesced bool
	// Affected is the smallest node enclosing the edited span in the new tree.
	Affected buffer.Range
	Node     string
	Duration time.Duration
}

// Tracker keeps a tree-sitter tree in step with a document. It is owned by a
// single goroutine; Rebuild is the only part meant to run elsewhere.
type Tracker struct {
	grammar *grammar.Grammar
	parser  *sitter.Parser
	query   *sitter.Query
	qerr    error
	tree    *sitter.Tree
	snap    buffer.Snapshot
	stale   bool
	errors  []buffer.Range
	stats   ReparseStats
	opts    Options
}

// NewTracker creates a tracker for g. A highlight query that fails to
// compile leaves the tracker usable for structural queries only, and
// HighlightErr reports why.
func NewTracker(g *grammar.Grammar, opts Options) *Tracker {
	if opts.CoalesceThreshold <= 0 {
		opts.CoalesceThreshold = DefaultCoalesceThreshold
	}
	p := sitter.NewParser()
	p.SetLanguage(g.Language())
	q, err := g.HighlightQuery()
	if err != nil {
		log.Errorf("highlighting disabled for %s: %v", g.ID, err)
		err = fmt.Errorf("%w: %s: %v", ErrNoHighlighting, g.ID, err)
	}
	return &Tracker{
		grammar: g,
		parser:  p,
		query:   q,
		qerr:    err,
		stale:   true,
		opts:    opts,
	}
}

func (t *Tracker) Grammar() *grammar.Grammar { return t.grammar }

// Version is the document version the tree reflects.
func (t *Tracker) Version() uint64 { return t.snap.Version() }

// Stale reports whether the tree cannot be trusted and needs a rebuild.
func (t *Tracker) Stale() bool { return t.stale || t.tree == nil }

// LastReparse returns statistics about the most recent parse.
func (t *Tracker) LastReparse() ReparseStats { return t.stats }

// HighlightErr is non-nil when the tracker can never produce highlight spans.
func (t *Tracker) HighlightErr() error { return t.qerr }

// ErrorRanges returns the regions the grammar could not parse.
func (t *Tracker) ErrorRanges() []buffer.Range { return t.errors }

// Reset parses snap from scratch.
func (t *Tracker) Reset(ctx context.Context, snap buffer.Snapshot) error {
	began := time.Now()
	tree, err := t.parser.ParseCtx(ctx, nil, snap.Bytes())
	if err != nil {
		t.fail(snap, err)
		return fmt.Errorf("%w: %v", ErrParseFailure, err)
	}
	t.install(tree, snap)
	t.stats = ReparseStats{
		Version:  snap.Version(),
		Full:     true,
		Affected: buffer.Range{Start: 0, End: snap.Len()},
		Node:     tree.RootNode().Type(),
		Duration: time.Since(began),
	}
	return nil
}

// OnEdit brings the tree from the previous version to snap through e.
func (t *Tracker) OnEdit(ctx context.Context, e buffer.Edit, snap buffer.Snapshot) error {
	return t.OnEdits(ctx, []buffer.Edit{e}, snap)
}

// OnEdits applies a contiguous run of edits and re-parses once. Runs that
// reach the coalesce threshold and overlap are folded into their union
// first. A run that does not continue from the tree's version marks the
// tree stale.
func (t *Tracker) OnEdits(ctx context.Context, edits []buffer.Edit, snap buffer.Snapshot) error {
	if len(edits) == 0 {
		return nil
	}
	if t.Stale() {
		return nil
	}
	first, last := edits[0], edits[len(edits)-1]
	if first.VersionBefore != t.snap.Version() || last.VersionAfter != snap.Version() {
		t.stale = true
		return fmt.Errorf("%w: tree at %d, edits %d->%d, document at %d",
			ErrVersionMismatch, t.snap.Version(), first.VersionBefore, last.VersionAfter, snap.Version())
	}

	ctx, span := tracer.Start(ctx, "parser.reparse", trace.WithAttributes(
		attribute.String("grammar", t.grammar.ID),
		attribute.Int("edits", len(edits)),
	))
	defer span.End()
	began := time.Now()

	coalesced := false
	var union editlog.Span
	if len(edits) >= t.opts.CoalesceThreshold && editlog.Overlapping(edits) {
		union, _ = editlog.Compose(edits)
		in, err := sitteradapter.SpanInput(union, t.snap, snap)
		if err != nil {
			t.stale = true
			return err
		}
		t.tree.Edit(in)
		coalesced = true
	} else {
		for _, e := range edits {
			t.tree.Edit(sitteradapter.EditInput(e))
		}
		union, _ = editlog.Compose(edits)
	}

	tree, err := t.parser.ParseCtx(ctx, t.tree, snap.Bytes())
	if err != nil {
		t.fail(snap, err)
		return nil
	}
	t.install(tree, snap)

	affected := smallestCovering(tree.RootNode(), union.Start, union.NewEnd)
	t.stats = ReparseStats{
		Version:   snap.Version(),
		Edits:     len(edits),
		Coalesced: coalesced,
		Affected:  sitteradapter.NodeRange(affected),
		Node:      affected.Type(),
		Duration:  time.Since(began),
	}
	span.SetAttributes(attribute.String("affected", t.stats.Node))
	return nil
}

// fail absorbs a parse failure: the whole document yields no highlights
// until a rebuild succeeds.
func (t *Tracker) fail(snap buffer.Snapshot, err error) {
	log.Warningf("%s parse of version %d failed: %v", t.grammar.ID, snap.Version(), err)
	if t.tree != nil {
		t.tree.Close()
		t.tree = nil
	}
	t.snap = snap
	t.stale = true
	t.errors = []buffer.Range{{Start: 0, End: snap.Len()}}
}

func (t *Tracker) install(tree *sitter.Tree, snap buffer.Snapshot) {
	if t.tree != nil && t.tree != tree {
		t.tree.Close()
	}
	t.tree = tree
	t.snap = snap
	t.stale = false
	t.errors = errorRanges(tree.RootNode())
}

// Close releases the tree, the query and the parser.
func (t *Tracker) Close() {
	if t.tree != nil {
		t.tree.Close()
		t.tree = nil
	}
	if t.query != nil {
		t.query.Close()
		t.query = nil
	}
	if t.parser != nil {
		t.parser.Close()
		t.parser = nil
	}
}

// smallestCovering descends from n to the deepest node enclosing
// [start, end].
func smallestCovering(n *sitter.Node, start, end int) *sitter.Node {
	for {
		var next *sitter.Node
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if int(c.StartByte()) <= start && end <= int(c.EndByte()) {
				next = c
				break
			}
		}
		if next == nil {
			return n
		}
		n = next
	}
}

// errorRanges collects the ranges of ERROR nodes, visiting only subtrees
// that contain one.
func errorRanges(root *sitter.Node) []buffer.Range {
	if !root.HasError() {
		return nil
	}
	var out []buffer.Range
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "ERROR" {
			out = append(out, sitteradapter.NodeRange(n))
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if c.HasError() {
				walk(c)
			}
		}
	}
	walk(root)
	return out
}
