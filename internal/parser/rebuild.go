package parser

import (
	"context"
	"fmt"
	"time"

	sitter "github.com/smacker/go-tree-sitter"

	"simplide/internal/buffer"
	"simplide/internal/grammar"
)

// RebuildResult is a tree parsed from scratch away from the owning
// goroutine. Ownership of Tree passes to whoever installs it.
type RebuildResult struct {
	Grammar  string
	Snapshot buffer.Snapshot
	Tree     *sitter.Tree
	Duration time.Duration
	Err      error
}

// Rebuild parses snap with a private parser. It touches no tracker state and
// is safe to run on any goroutine.
func Rebuild(ctx context.Context, g *grammar.Grammar, snap buffer.Snapshot) RebuildResult {
	ctx, span := tracer.Start(ctx, "parser.rebuild")
	defer span.End()

	began := time.Now()
	p := sitter.NewParser()
	defer p.Close()
	p.SetLanguage(g.Language())
	tree, err := p.ParseCtx(ctx, nil, snap.Bytes())
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrParseFailure, err)
	}
	return RebuildResult{
		Grammar:  g.ID,
		Snapshot: snap,
		Tree:     tree,
		Duration: time.Since(began),
		Err:      err,
	}
}

// Install adopts a rebuilt tree and replays the edits made since it was
// parsed, coalescing them when they qualify. current is the document the
// replay must end at.
func (t *Tracker) Install(ctx context.Context, res RebuildResult, pending []buffer.Edit, current buffer.Snapshot) error {
	if res.Err != nil {
		log.Warningf("rebuild of version %d failed: %v", res.Snapshot.Version(), res.Err)
		return res.Err
	}
	if res.Grammar != t.grammar.ID {
		res.Tree.Close()
		return fmt.Errorf("rebuild for grammar %s offered to %s tracker", res.Grammar, t.grammar.ID)
	}
	if res.Snapshot.Version() < t.snap.Version() && !t.Stale() {
		// the tracker caught up on its own in the meantime
		res.Tree.Close()
		return nil
	}
	t.install(res.Tree, res.Snapshot)
	t.stats = ReparseStats{
		Version:  res.Snapshot.Version(),
		Full:     true,
		Affected: buffer.Range{Start: 0, End: res.Snapshot.Len()},
		Node:     res.Tree.RootNode().Type(),
		Duration: res.Duration,
	}
	if len(pending) == 0 {
		if current.Version() != res.Snapshot.Version() {
			t.stale = true
			return fmt.Errorf("%w: rebuilt %d, document at %d", ErrVersionMismatch, res.Snapshot.Version(), current.Version())
		}
		return nil
	}
	return t.OnEdits(ctx, pending, current)
}
