// Package coordinator owns one open document. It is the only caller of the
// buffer's mutating methods and decides when the syntax tracker and the
// analyzer hear about edits.
//
// A Coordinator is not safe for concurrent use. Its methods are meant to be
// called from one goroutine, which also drains Inbox and passes each message
// to Handle. Background work never touches coordinator state directly.
package coordinator

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"simplide/internal/buffer"
	"simplide/internal/editlog"
	"simplide/internal/grammar"
	"simplide/internal/journal"
	"simplide/internal/lsp"
	"simplide/internal/metrics"
	"simplide/internal/parser"
	"simplide/internal/scheduler"
)

var log = commonlog.GetLogger("simplide.coordinator")

var tracer = otel.Tracer("simplide/coordinator")

const (
	DefaultStalenessThreshold = 20

	inboxSize     = 64
	taskQueueSize = 8
)

type Options struct {
	URI  string
	Text string
	// BaseVersion is the version of Text. It is non-zero for documents
	// restored from the journal.
	BaseVersion uint64
	// Unsaved marks Text as differing from the file on disk.
	Unsaved bool
	// Grammar enables syntax tracking. Without one only text is tracked.
	Grammar *grammar.Grammar
	// Analyzer must not have been started. The coordinator starts it, owns it
	// from then on and shuts it down on Close.
	Analyzer *lsp.Session

	HistoryLimit      int
	CoalesceThreshold int
	// StalenessThreshold is how many versions diagnostics may fall behind the
	// document before they are dropped.
	StalenessThreshold uint64
	// ReconnectInterval paces automatic reconnects while the analyzer is
	// degraded. Zero leaves reconnecting to Reconnect.
	ReconnectInterval time.Duration

	Journal *journal.Journal
	Metrics *metrics.Metrics
	Clock   func() time.Time
}

type Coordinator struct {
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc

	buf   *buffer.Buffer
	edits *editlog.Log
	// one cursor per consumer of the edit log
	syntax    *editlog.Cursor
	analysis  *editlog.Cursor
	journaled *editlog.Cursor

	tracker    *parser.Tracker
	rebuilding bool

	analyzer      *lsp.Session
	analyzerState lsp.State
	recovering    bool

	sched *scheduler.Scheduler
	inbox chan Message
	done  chan struct{}
	wg    sync.WaitGroup

	closed    bool
	saved     buffer.Snapshot
	unsaved   bool
	journalID uuid.UUID

	diags    []protocol.Diagnostic
	diagSnap buffer.Snapshot
	hasDiags bool

	completion *lsp.Completion
	hover      *lsp.Hover
}

// New opens a document. The initial parse happens before New returns; the
// analyzer handshake runs in the background.
func New(ctx context.Context, opts Options) (*Coordinator, error) {
	if opts.StalenessThreshold == 0 {
		opts.StalenessThreshold = DefaultStalenessThreshold
	}
	ctx, cancel := context.WithCancel(ctx)

	buf := buffer.New(opts.Text, buffer.Options{
		HistoryLimit: opts.HistoryLimit,
		BaseVersion:  opts.BaseVersion,
		Clock:        opts.Clock,
	})
	edits := editlog.New(buf.Version())
	c := &Coordinator{
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		buf:       buf,
		edits:     edits,
		syntax:    edits.NewCursor(buf.Version()),
		analysis:  edits.NewCursor(buf.Version()),
		journaled: edits.NewCursor(buf.Version()),
		analyzer:  opts.Analyzer,
		sched:     scheduler.NewScheduler(taskQueueSize),
		inbox:     make(chan Message, inboxSize),
		done:      make(chan struct{}),
		saved:     buf.Snapshot(),
		unsaved:   opts.Unsaved,
	}
	c.sched.RunScheduler()

	if opts.Grammar != nil {
		c.tracker = parser.NewTracker(opts.Grammar, parser.Options{CoalesceThreshold: opts.CoalesceThreshold})
		if err := c.tracker.Reset(ctx, buf.Snapshot()); err != nil {
			log.Warningf("initial parse of %s: %v", opts.URI, err)
		} else {
			c.opts.Metrics.Reparse("full", c.tracker.LastReparse().Duration.Seconds())
		}
	}

	if opts.Journal != nil {
		id, err := opts.Journal.Begin(opts.URI, opts.Text, buf.Version())
		if err != nil {
			log.Warningf("journal unavailable for %s: %v", opts.URI, err)
		} else {
			c.journalID = id
		}
	}

	if c.analyzer != nil {
		if err := c.analyzer.NotifyOpen(buf.Snapshot()); err != nil {
			c.sched.StopScheduler()
			if c.tracker != nil {
				c.tracker.Close()
			}
			cancel()
			return nil, err
		}
		c.wg.Add(1)
		go c.forward(c.analyzer.Events())
		c.background("start analyzer", c.analyzer.Start)
		if opts.ReconnectInterval > 0 {
			c.sched.SchedulePeriodicTask(opts.ReconnectInterval, scheduler.Task{
				Name: "reconnect " + opts.URI,
				Execute: func(context.Context) error {
					if c.analyzer.State() == lsp.Degraded {
						c.offer(reconnectDue{})
					}
					return nil
				},
			})
		}
	}

	log.Infof("opened %s at version %d", opts.URI, buf.Version())
	return c, nil
}

func (c *Coordinator) URI() string { return c.opts.URI }

func (c *Coordinator) Version() uint64 { return c.buf.Version() }

func (c *Coordinator) Len() int { return c.buf.Len() }

func (c *Coordinator) Text() string { return c.buf.Text() }

func (c *Coordinator) Read(r buffer.Range) (string, error) { return c.buf.Read(r) }

// Snapshot is an immutable view of the current document, safe to hand to
// other goroutines.
func (c *Coordinator) Snapshot() buffer.Snapshot { return c.buf.Snapshot() }

func (c *Coordinator) PositionAt(offset int) (buffer.Position, error) {
	return c.buf.PositionAt(offset)
}

func (c *Coordinator) OffsetAt(p buffer.Position) (int, error) { return c.buf.OffsetAt(p) }

// Since returns the accepted edits after version, in order.
func (c *Coordinator) Since(version uint64) ([]buffer.Edit, error) { return c.edits.Since(version) }

func (c *Coordinator) CanUndo() bool { return c.buf.CanUndo() }

func (c *Coordinator) CanRedo() bool { return c.buf.CanRedo() }

// Modified reports whether the text differs from what was opened or last
// marked saved. Undoing back to that text clears it.
func (c *Coordinator) Modified() bool {
	return c.unsaved || !sameText(c.buf.Snapshot(), c.saved)
}

func sameText(a, b buffer.Snapshot) bool {
	if a.Version() == b.Version() {
		return true
	}
	return a.Len() == b.Len() && bytes.Equal(a.Bytes(), b.Bytes())
}

// MarkSaved records that the current text was written out. The journal starts
// a fresh session from it.
func (c *Coordinator) MarkSaved() {
	c.saved, c.unsaved = c.buf.Snapshot(), false
	if c.opts.Journal == nil || c.journalID == uuid.Nil {
		return
	}
	if err := c.opts.Journal.Discard(c.journalID); err != nil {
		log.Warningf("discard journal of %s: %v", c.opts.URI, err)
	}
	id, err := c.opts.Journal.Begin(c.opts.URI, c.buf.Text(), c.buf.Version())
	if err != nil {
		log.Warningf("journal unavailable for %s: %v", c.opts.URI, err)
		c.journalID = uuid.Nil
		return
	}
	c.journalID = id
	_ = c.journaled.Reset(c.buf.Version())
}

// SubmitEdit replaces r with text. Every mutation of the document goes
// through here or SubmitEdits.
func (c *Coordinator) SubmitEdit(r buffer.Range, text string) (buffer.Edit, error) {
	applied, err := c.SubmitEdits(buffer.EditSpec{Range: r, Text: text})
	if err != nil {
		return buffer.Edit{}, err
	}
	return applied[0], nil
}

// SubmitEdits applies specs in order, each against the document the previous
// one produced, and hands them downstream as one batch. The first failing
// spec stops the run; the edits before it stay applied and are returned
// along with the error.
func (c *Coordinator) SubmitEdits(specs ...buffer.EditSpec) ([]buffer.Edit, error) {
	if c.closed {
		return nil, ErrClosed
	}
	_, span := tracer.Start(c.ctx, "coordinator.submit", trace.WithAttributes(
		attribute.String("document.uri", c.opts.URI),
		attribute.Int("edits", len(specs)),
	))
	defer span.End()

	applied := make([]buffer.Edit, 0, len(specs))
	var err error
	for _, spec := range specs {
		var e buffer.Edit
		if e, err = c.buf.Apply(spec); err != nil {
			span.RecordError(err)
			break
		}
		c.append(e)
		applied = append(applied, e)
	}
	c.propagate()
	return applied, err
}

// Undo reverts the most recent undo group. At the start of history, or once
// closed, it does nothing and reports false.
func (c *Coordinator) Undo() (buffer.Edit, bool) {
	if c.closed {
		return buffer.Edit{}, false
	}
	e, ok := c.buf.Undo()
	if !ok {
		return buffer.Edit{}, false
	}
	c.append(e)
	c.propagate()
	return e, true
}

// Redo reapplies the most recently undone group, like Undo.
func (c *Coordinator) Redo() (buffer.Edit, bool) {
	if c.closed {
		return buffer.Edit{}, false
	}
	e, ok := c.buf.Redo()
	if !ok {
		return buffer.Edit{}, false
	}
	c.append(e)
	c.propagate()
	return e, true
}

func (c *Coordinator) append(e buffer.Edit) {
	if err := c.edits.Append(e); err != nil {
		// the buffer is the only producer, so a gap is a bug
		log.Errorf("edit log of %s: %v", c.opts.URI, err)
	}
	c.opts.Metrics.EditApplied(e.Origin.String())
}

// propagate brings every consumer up to the log head: the journal and the
// tracker synchronously, the analyzer through its debounced queue.
func (c *Coordinator) propagate() {
	snap := c.buf.Snapshot()
	c.syncJournal()
	c.syncSyntax(snap)
	c.syncAnalyzer(snap)
	c.expireDiagnostics()
}

func (c *Coordinator) syncJournal() {
	if c.opts.Journal == nil || c.journalID == uuid.Nil {
		c.journaled.Next()
		return
	}
	pending := c.journaled.Pending()
	if len(pending) == 0 {
		return
	}
	if err := c.opts.Journal.Record(c.journalID, pending...); err != nil {
		// retried with the next edit
		log.Warningf("journal %s: %v", c.opts.URI, err)
		return
	}
	c.journaled.Next()
}

func (c *Coordinator) syncSyntax(snap buffer.Snapshot) {
	edits := c.syntax.Next()
	if c.tracker == nil || len(edits) == 0 {
		return
	}
	if c.tracker.Stale() {
		c.scheduleRebuild()
		return
	}
	if err := c.tracker.OnEdits(c.ctx, edits, snap); err != nil {
		log.Warningf("reparse of %s: %v", c.opts.URI, err)
	}
	if c.tracker.Stale() {
		c.scheduleRebuild()
		return
	}
	stats := c.tracker.LastReparse()
	kind := "incremental"
	if stats.Coalesced {
		kind = "coalesced"
	}
	c.opts.Metrics.Reparse(kind, stats.Duration.Seconds())
}

// scheduleRebuild parses the current snapshot from scratch in the
// background. The result comes back through the inbox.
func (c *Coordinator) scheduleRebuild() {
	if c.tracker == nil || c.rebuilding || c.closed {
		return
	}
	g, snap := c.opts.Grammar, c.buf.Snapshot()
	err := c.sched.ScheduleHighPriorityTask(scheduler.Task{
		Name: "rebuild " + c.opts.URI,
		Execute: func(ctx context.Context) error {
			res := parser.Rebuild(ctx, g, snap)
			if !c.post(ctx, rebuilt{res: res}) && res.Tree != nil {
				res.Tree.Close()
			}
			return res.Err
		},
	})
	if err != nil {
		log.Debugf("rebuild of %s not scheduled: %v", c.opts.URI, err)
		return
	}
	c.rebuilding = true
	log.Debugf("rebuilding %s at version %d", c.opts.URI, snap.Version())
}

func (c *Coordinator) install(res parser.RebuildResult) {
	c.rebuilding = false
	if c.closed || c.tracker == nil {
		if res.Tree != nil {
			res.Tree.Close()
		}
		return
	}
	if res.Err != nil {
		// the next edit tries again
		log.Warningf("rebuild of %s failed: %v", c.opts.URI, res.Err)
		return
	}
	pending, err := c.edits.Since(res.Snapshot.Version())
	if err != nil {
		res.Tree.Close()
		log.Warningf("rebuild of %s: %v", c.opts.URI, err)
		return
	}
	if err := c.tracker.Install(c.ctx, res, pending, c.buf.Snapshot()); err != nil {
		log.Warningf("install rebuilt tree for %s: %v", c.opts.URI, err)
		return
	}
	c.opts.Metrics.Reparse("full", res.Duration.Seconds())
	log.Debugf("installed rebuilt tree for %s (version %d, %d edits replayed)",
		c.opts.URI, res.Snapshot.Version(), len(pending))
}

// Close shuts the analyzer down and releases the tree. A journal session is
// kept only when the document has unsaved changes.
func (c *Coordinator) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()
	c.sched.StopScheduler()
	close(c.done)

	var err error
	if c.analyzer != nil {
		if nerr := c.analyzer.NotifyClose(); nerr != nil {
			log.Debugf("close %s: %v", c.opts.URI, nerr)
		}
		err = c.analyzer.Shutdown(ctx)
	}
	c.wg.Wait()

	c.drain()
	if c.tracker != nil {
		c.tracker.Close()
	}
	if c.opts.Journal != nil && c.journalID != uuid.Nil && !c.Modified() {
		if derr := c.opts.Journal.Discard(c.journalID); derr != nil {
			log.Warningf("discard journal of %s: %v", c.opts.URI, derr)
		}
	}
	log.Infof("closed %s at version %d", c.opts.URI, c.buf.Version())
	return err
}
