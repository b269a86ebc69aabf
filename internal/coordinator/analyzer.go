package coordinator

import (
	"context"
	"errors"
	"fmt"

	"simplide/internal/buffer"
	"simplide/internal/lsp"
)

// AnalyzerAvailable is false while there is no analyzer or it is not Ready.
// Renderers show an "analyzer unavailable" indicator on false.
func (c *Coordinator) AnalyzerAvailable() bool {
	return c.analyzer != nil && c.analyzer.State() == lsp.Ready
}

// AnalyzerState is the last state reported by the analyzer.
func (c *Coordinator) AnalyzerState() lsp.State { return c.analyzerState }

func (c *Coordinator) syncAnalyzer(snap buffer.Snapshot) {
	edits := c.analysis.Next()
	if len(edits) == 0 {
		return
	}
	// Whatever was asked about the old text no longer applies.
	c.completion, c.hover = nil, nil
	if c.analyzer == nil {
		return
	}
	if n := c.analyzer.CancelAll(); n > 0 {
		log.Debugf("cancelled %d requests on %s", n, c.opts.URI)
	}

	err := c.analyzer.NotifyChange(edits, snap)
	if errors.Is(err, lsp.ErrVersionSkew) {
		log.Debugf("%v; resyncing %s", err, c.opts.URI)
		err = c.analyzer.Resync(snap)
	}
	if err != nil && !errors.Is(err, lsp.ErrClosed) {
		log.Debugf("notify %s: %v", c.opts.URI, err)
	}
}

// Request asks the analyzer about offset in the current document. The
// returned handle resolves in the background; its outcome also arrives
// through the inbox, where responses for older versions are discarded.
func (c *Coordinator) Request(ctx context.Context, kind lsp.Kind, offset int) (*lsp.PendingRequest, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if c.analyzer == nil {
		return nil, ErrNoAnalyzer
	}
	snap := c.buf.Snapshot()
	pr, err := c.analyzer.Request(ctx, kind, offset, snap)
	if errors.Is(err, lsp.ErrVersionSkew) {
		log.Debugf("%v; resyncing %s", err, c.opts.URI)
		if rerr := c.analyzer.Resync(snap); rerr != nil {
			return nil, fmt.Errorf("resync before %s: %w", kind, rerr)
		}
		pr, err = c.analyzer.Request(ctx, kind, offset, snap)
	}
	return pr, err
}

func (c *Coordinator) RequestCompletion(ctx context.Context, offset int) (*lsp.PendingRequest, error) {
	return c.Request(ctx, lsp.KindCompletion, offset)
}

func (c *Coordinator) RequestHover(ctx context.Context, offset int) (*lsp.PendingRequest, error) {
	return c.Request(ctx, lsp.KindHover, offset)
}

// Cancel abandons one outstanding request.
func (c *Coordinator) Cancel(id uint64) bool {
	if c.analyzer == nil {
		return false
	}
	return c.analyzer.Cancel(id)
}

// Completion is the latest completion result for the current version.
func (c *Coordinator) Completion() (*lsp.Completion, bool) {
	return c.completion, c.completion != nil
}

// Hover is the latest hover result for the current version.
func (c *Coordinator) Hover() (*lsp.Hover, bool) {
	return c.hover, c.hover != nil
}

// Reconnect starts a background reconnect when the analyzer is degraded and
// reports whether an attempt was started.
func (c *Coordinator) Reconnect() bool {
	if c.closed || c.analyzer == nil || c.analyzer.State() != lsp.Degraded {
		return false
	}
	snap := c.buf.Snapshot()
	c.background("reconnect", func(ctx context.Context) error {
		return c.analyzer.Reconnect(ctx, snap)
	})
	return true
}

func (c *Coordinator) handleEvent(ev lsp.Event) {
	switch ev.Kind {
	case lsp.EventState:
		c.analyzerState = ev.State
		switch ev.State {
		case lsp.Degraded:
			log.Warningf("analyzer for %s unavailable: %v", c.opts.URI, ev.Err)
			c.recovering = true
		case lsp.Ready:
			if c.recovering {
				c.recovering = false
				log.Infof("analyzer for %s is back", c.opts.URI)
				c.scheduleRebuild()
			}
		}
	case lsp.EventDiagnostics:
		if ev.Version != c.buf.Version() {
			c.discard("diagnostics", ev.Version)
			return
		}
		c.diags = ev.Diagnostics
		c.diagSnap = c.buf.Snapshot()
		c.hasDiags = true
	case lsp.EventResponse:
		res := ev.Response
		if errors.Is(res.Err, lsp.ErrCancelled) {
			return
		}
		if res.Version != c.buf.Version() {
			c.discard(res.Kind.Method(), res.Version)
			return
		}
		if res.Err != nil {
			log.Debugf("%s on %s: %v", res.Kind, c.opts.URI, res.Err)
			return
		}
		switch res.Kind {
		case lsp.KindCompletion:
			c.completion = res.Completion
		case lsp.KindHover:
			c.hover = res.Hover
		}
	}
}

func (c *Coordinator) discard(what string, version uint64) {
	log.Debugf("%v: %s for %s at version %d, document at %d",
		lsp.ErrStaleResponse, what, c.opts.URI, version, c.buf.Version())
	c.opts.Metrics.Dropped("stale")
}
