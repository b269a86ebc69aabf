package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"simplide/internal/buffer"
	"simplide/internal/editlog"
	"simplide/internal/metrics"
)

var log = commonlog.GetLogger("simplide.lsp")

var tracer = otel.Tracer("simplide/lsp")

const (
	DefaultFlushInterval     = 50 * time.Millisecond
	DefaultRequestTimeout    = 5 * time.Second
	DefaultReconnectInterval = 2 * time.Second
)

type Options struct {
	URI        string
	LanguageID string
	RootURI    string
	Dialer     Dialer
	// InitOptions is sent as initializationOptions.
	InitOptions any

	FlushInterval     time.Duration
	RequestTimeout    time.Duration
	ReconnectInterval time.Duration

	Metrics *metrics.Metrics
}

// Session keeps one analyzer in sync with one document.
//
// Nothing holding mu writes to the transport: outgoing messages are posted
// to out under mu, which fixes their order, and a per-connection writer
// puts them on the wire. The transport reader never takes mu; it only
// touches reqMu, diagMu and the atomics.
type Session struct {
	opts    Options
	limiter *rate.Limiter
	events  *mailbox[Event]

	stateV     atomic.Int32
	lastSynced atomic.Uint64
	generation atomic.Uint64
	ids        atomic.Uint64

	mu      sync.Mutex
	state   State
	conn    *jsonrpc2.Conn
	out     *mailbox[outgoing]
	caps    capabilities
	open    bool
	synced  buffer.Snapshot // the analyzer's copy
	latest  buffer.Snapshot // the newest snapshot handed to us
	pending []buffer.Edit   // edits between synced and latest
	timer   *time.Timer
	// timerSeq identifies the armed timer so a superseded callback can
	// tell it lost.
	timerSeq uint64

	reqMu    sync.Mutex
	requests map[uint64]*PendingRequest

	diagMu      sync.Mutex
	diags       []protocol.Diagnostic
	diagVersion uint64
}

func NewSession(opts Options) *Session {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}
	return &Session{
		opts:     opts,
		limiter:  rate.NewLimiter(rate.Every(opts.ReconnectInterval), 1),
		events:   newMailbox[Event](),
		requests: make(map[uint64]*PendingRequest),
	}
}

// Events delivers diagnostics, responses and state changes in the order they
// happened. It is closed after Shutdown once drained.
func (s *Session) Events() <-chan Event { return s.events.out }

func (s *Session) State() State { return State(s.stateV.Load()) }

// LastSyncedVersion is the document version the analyzer was last brought up to.
func (s *Session) LastSyncedVersion() uint64 { return s.lastSynced.Load() }

// Diagnostics returns the most recent diagnostics and the version they describe.
func (s *Session) Diagnostics() ([]protocol.Diagnostic, uint64) {
	s.diagMu.Lock()
	defer s.diagMu.Unlock()
	return s.diags, s.diagVersion
}

// Supports reports whether the connected analyzer advertised kind.
func (s *Session) Supports(kind Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Ready && s.caps.supports(kind)
}

// Start connects and performs the initialize handshake. If the document was
// opened beforehand it is sent right after.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Uninitialized {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("start in state %s", state)
	}
	return s.connect(ctx)
}

// Reconnect leaves Degraded by dialing again. A successful reconnect re-sends
// the full document. Attempts are paced by ReconnectInterval.
func (s *Session) Reconnect(ctx context.Context, snap buffer.Snapshot) error {
	s.mu.Lock()
	switch s.state {
	case Ready:
		s.mu.Unlock()
		return nil
	case Closed:
		s.mu.Unlock()
		return ErrClosed
	case Degraded:
	default:
		s.mu.Unlock()
		return ErrNotReady
	}
	if !s.limiter.Allow() {
		s.mu.Unlock()
		return ErrThrottled
	}
	if s.open && snap.Version() >= s.latest.Version() {
		s.latest = snap
	}
	if err := s.connect(ctx); err != nil {
		return err
	}
	s.opts.Metrics.Reconnected()
	return nil
}

// connect is entered with mu held and returns with it released. The lock is
// dropped while dialing so editing is never blocked on the handshake.
func (s *Session) connect(ctx context.Context) error {
	s.setStateLocked(Negotiating, nil)
	gen := s.generation.Add(1)
	s.mu.Unlock()

	ctx, span := tracer.Start(ctx, "lsp.connect",
		trace.WithAttributes(attribute.String("lsp.uri", s.opts.URI)))
	defer span.End()

	conn, caps, err := s.dial(ctx, gen)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation.Load() || s.state != Negotiating {
		if conn != nil {
			go func() { _ = conn.Close() }()
		}
		return ErrClosed
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warningf("analyzer for %s unavailable: %v", s.opts.URI, err)
		s.setStateLocked(Degraded, err)
		return err
	}
	s.conn = conn
	s.out = newMailbox[outgoing]()
	s.caps = caps
	s.pending = nil
	go s.watch(gen, conn)
	go s.write(gen, conn, s.out)
	s.setStateLocked(Ready, nil)
	if s.open {
		s.sendOpenLocked(s.latest)
	}
	return nil
}

func (s *Session) dial(ctx context.Context, gen uint64) (*jsonrpc2.Conn, capabilities, error) {
	if s.opts.Dialer == nil {
		return nil, capabilities{}, fmt.Errorf("%w: no dialer", ErrTransport)
	}
	stream, err := s.opts.Dialer.Dial(ctx)
	if err != nil {
		return nil, capabilities{}, err
	}
	conn := jsonrpc2.NewConn(context.Background(), stream, jsonrpc2.HandlerWithError(s.handler(gen)))
	watchdog := time.AfterFunc(s.opts.RequestTimeout, func() { _ = conn.Close() })
	defer watchdog.Stop()

	hctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	var raw json.RawMessage
	if err := conn.Call(hctx, methodInitialize, s.initializeParams(), &raw, s.nextID()); err != nil {
		_ = conn.Close()
		return nil, capabilities{}, fmt.Errorf("%w: initialize: %v", ErrTransport, err)
	}
	caps, err := parseCapabilities(raw)
	if err != nil {
		_ = conn.Close()
		return nil, capabilities{}, err
	}
	if err := conn.Notify(hctx, methodInitialized, struct{}{}); err != nil {
		_ = conn.Close()
		return nil, capabilities{}, fmt.Errorf("%w: initialized: %v", ErrTransport, err)
	}
	log.Infof("analyzer for %s ready (sync %d, completion %t, hover %t)",
		s.opts.URI, caps.sync, caps.completion, caps.hover)
	return conn, caps, nil
}

type initializeParams struct {
	ProcessID             int                         `json:"processId"`
	RootURI               *string                     `json:"rootUri"`
	Capabilities          protocol.ClientCapabilities `json:"capabilities"`
	InitializationOptions any                         `json:"initializationOptions,omitempty"`
}

func (s *Session) initializeParams() initializeParams {
	params := initializeParams{ProcessID: os.Getpid(), InitializationOptions: s.opts.InitOptions}
	if s.opts.RootURI != "" {
		root := s.opts.RootURI
		params.RootURI = &root
	}
	return params
}

func (s *Session) nextID() jsonrpc2.CallOption {
	return jsonrpc2.PickID(jsonrpc2.ID{Num: s.ids.Add(1)})
}

func (s *Session) watch(gen uint64, conn *jsonrpc2.Conn) {
	<-conn.DisconnectNotify()
	s.degrade(gen, errors.New("connection lost"))
}

func (s *Session) degrade(gen uint64, cause error) {
	s.mu.Lock()
	if gen != s.generation.Load() || (s.state != Ready && s.state != Negotiating) {
		s.mu.Unlock()
		return
	}
	s.degradeLocked(cause)
	s.mu.Unlock()
}

func (s *Session) degradeLocked(cause error) {
	log.Warningf("analyzer for %s degraded: %v", s.opts.URI, cause)
	s.stopTimerLocked()
	s.pending = nil
	if s.out != nil {
		s.out.close()
		s.out = nil
	}
	if conn := s.conn; conn != nil {
		s.conn = nil
		// A child process may take a while to exit; mu is not held for it.
		go func() { _ = conn.Close() }()
	}
	s.setStateLocked(Degraded, cause)
	s.failRequests(fmt.Errorf("%w: %v", ErrTransport, cause))
}

func (s *Session) setStateLocked(to State, cause error) {
	if s.state == to {
		return
	}
	if !s.state.canTransition(to) {
		log.Warningf("unexpected analyzer transition %s -> %s", s.state, to)
	}
	log.Debugf("analyzer %s: %s -> %s", s.opts.URI, s.state, to)
	s.state = to
	s.stateV.Store(int32(to))
	s.opts.Metrics.AnalyzerState(to.String(), stateNames...)
	s.events.post(Event{Kind: EventState, State: to, Err: cause})
}

// handler serves messages initiated by the analyzer. It runs on the
// transport reader and must not block.
func (s *Session) handler(gen uint64) func(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request) (any, error) {
	return func(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
		switch req.Method {
		case methodPublishDiagnostics:
			s.receiveDiagnostics(gen, req.Params)
			return nil, nil
		case methodLogMessage, methodShowMessage:
			var msg struct {
				Message string `json:"message"`
			}
			if req.Params != nil && json.Unmarshal(*req.Params, &msg) == nil {
				log.Debugf("analyzer: %s", msg.Message)
			}
			return nil, nil
		}
		if !req.Notif {
			log.Debugf("answering analyzer request %s with null", req.Method)
		}
		return nil, nil
	}
}

func (s *Session) receiveDiagnostics(gen uint64, raw *json.RawMessage) {
	if gen != s.generation.Load() {
		return
	}
	var params publishDiagnosticsParams
	if raw == nil || json.Unmarshal(*raw, &params) != nil {
		go s.degrade(gen, fmt.Errorf("%w: publishDiagnostics", ErrMalformed))
		return
	}
	if params.URI != s.opts.URI {
		return
	}
	version := s.lastSynced.Load()
	if params.Version != nil && *params.Version >= 0 {
		version = uint64(*params.Version)
	}
	if params.Diagnostics == nil {
		params.Diagnostics = []protocol.Diagnostic{}
	}

	s.diagMu.Lock()
	s.diags = params.Diagnostics
	s.diagVersion = version
	s.diagMu.Unlock()

	s.events.post(Event{Kind: EventDiagnostics, Version: version, Diagnostics: params.Diagnostics})
}

// NotifyOpen announces the document. Before the session is Ready the
// snapshot is remembered and sent once the handshake completes.
func (s *Session) NotifyOpen(snap buffer.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return ErrClosed
	}
	s.open = true
	s.latest = snap
	s.pending = nil
	s.stopTimerLocked()
	if s.state == Ready {
		s.sendOpenLocked(snap)
	}
	return nil
}

func (s *Session) sendOpenLocked(snap buffer.Snapshot) {
	s.notifyLocked(methodDidOpen, didOpenParams(s.opts.URI, s.opts.LanguageID, snap))
	s.synced = snap
	s.lastSynced.Store(snap.Version())
}

// NotifyChange queues edits that took the document to snap. The edits must
// continue from the last version handed to the session, otherwise
// ErrVersionSkew is returned and nothing is queued. Queued edits are sent as
// one coalesced didChange when the flush interval elapses.
func (s *Session) NotifyChange(edits []buffer.Edit, snap buffer.Snapshot) error {
	if len(edits) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return ErrClosed
	}
	if !s.open {
		return ErrNotOpen
	}
	if head := s.latest.Version(); edits[0].VersionBefore != head {
		return fmt.Errorf("%w: edit from version %d, expected %d", ErrVersionSkew, edits[0].VersionBefore, head)
	}
	for i := 1; i < len(edits); i++ {
		if edits[i].VersionBefore != edits[i-1].VersionAfter {
			return fmt.Errorf("%w: gap between versions %d and %d",
				ErrVersionSkew, edits[i-1].VersionAfter, edits[i].VersionBefore)
		}
	}
	if last := edits[len(edits)-1].VersionAfter; last != snap.Version() {
		return fmt.Errorf("%w: edits end at %d, snapshot is %d", ErrVersionSkew, last, snap.Version())
	}

	s.latest = snap
	if s.state != Ready {
		// The reconnect sends the whole document anyway.
		return nil
	}
	s.pending = append(s.pending, edits...)
	if s.timer == nil {
		s.timerSeq++
		seq := s.timerSeq
		s.timer = time.AfterFunc(s.opts.FlushInterval, func() { s.onTimer(seq) })
	}
	return nil
}

func (s *Session) onTimer(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.timerSeq || s.timer == nil {
		// Stopped or replaced while this callback waited for mu.
		return
	}
	s.timer = nil
	s.flushLocked()
}

// Flush hands queued edits to the writer now.
func (s *Session) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
	return nil
}

func (s *Session) flushLocked() {
	s.stopTimerLocked()
	if len(s.pending) == 0 || s.state != Ready {
		return
	}
	edits := s.pending
	s.pending = nil
	if edits[0].VersionBefore != s.synced.Version() {
		log.Warningf("analyzer copy of %s at %d, queued edits start at %d; resending",
			s.opts.URI, s.synced.Version(), edits[0].VersionBefore)
		s.resyncLocked(s.latest)
		return
	}

	version := s.latest.Version()
	var change any
	switch s.caps.sync {
	case syncNone:
		s.synced = s.latest
		s.lastSynced.Store(version)
		return
	case syncFull:
		change = wholeChange(s.latest.Text())
	default:
		span, _ := editlog.Compose(edits)
		start, err1 := s.synced.CodeUnitAt(span.Start)
		end, err2 := s.synced.CodeUnitAt(span.OldEnd)
		text, err3 := s.latest.Read(buffer.Range{Start: span.Start, End: span.NewEnd})
		if err := errors.Join(err1, err2, err3); err != nil {
			log.Warningf("cannot express edits to %s incrementally: %v", s.opts.URI, err)
			s.resyncLocked(s.latest)
			return
		}
		change = rangeChange(start, end, text)
	}

	params := protocol.DidChangeTextDocumentParams{
		TextDocument:   versioned(s.opts.URI, version),
		ContentChanges: []any{change},
	}
	s.notifyLocked(methodDidChange, params)
	s.synced = s.latest
	s.lastSynced.Store(version)
}

// Resync replaces the analyzer's copy with snap in a single full-text change.
// It is the way out of ErrVersionSkew.
func (s *Session) Resync(snap buffer.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return ErrClosed
	}
	if !s.open {
		return ErrNotOpen
	}
	s.latest = snap
	s.pending = nil
	if s.state == Ready {
		s.resyncLocked(snap)
	}
	return nil
}

func (s *Session) resyncLocked(snap buffer.Snapshot) {
	s.stopTimerLocked()
	s.pending = nil
	s.latest = snap
	params := protocol.DidChangeTextDocumentParams{
		TextDocument:   versioned(s.opts.URI, snap.Version()),
		ContentChanges: []any{wholeChange(snap.Text())},
	}
	s.notifyLocked(methodDidChange, params)
	s.synced = snap
	s.lastSynced.Store(snap.Version())
}

// NotifyClose drops queued edits and tells the analyzer the document closed.
func (s *Session) NotifyClose() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil
	}
	s.open = false
	s.pending = nil
	s.stopTimerLocked()
	if s.state == Ready {
		s.notifyLocked(methodDidClose, protocol.DidCloseTextDocumentParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: s.opts.URI},
		})
	}
	return nil
}

// notifyLocked queues a notification. It is only called while Ready, when
// out is set.
func (s *Session) notifyLocked(method string, params any) {
	s.out.post(outgoing{method: method, params: params})
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Request asks the analyzer about the position at offset in snap, which must
// be the newest snapshot handed to the session. Queued edits are flushed
// first so the analyzer answers for snap. Request only queues the call and
// never waits on the transport; while Degraded it fails at once with
// ErrDegraded.
func (s *Session) Request(ctx context.Context, kind Kind, offset int, snap buffer.Snapshot) (*PendingRequest, error) {
	_, span := tracer.Start(ctx, "lsp.request", trace.WithAttributes(
		attribute.String("lsp.method", kind.Method()),
		attribute.Int64("document.version", int64(snap.Version())),
	))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Ready:
	case Degraded:
		return nil, ErrDegraded
	case Closed:
		return nil, ErrClosed
	default:
		return nil, ErrNotReady
	}
	if !s.open {
		return nil, ErrNotOpen
	}
	if !s.caps.supports(kind) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, kind)
	}
	if snap.Version() != s.latest.Version() {
		return nil, fmt.Errorf("%w: request at %d, document at %d", ErrVersionSkew, snap.Version(), s.latest.Version())
	}
	pos, err := snap.CodeUnitAt(offset)
	if err != nil {
		return nil, err
	}
	s.flushLocked()

	id := s.ids.Add(1)
	pr := newPending(id, kind, offset, snap.Version())
	s.reqMu.Lock()
	s.requests[id] = pr
	s.reqMu.Unlock()

	params := protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: s.opts.URI},
		Position:     toPosition(pos),
	}
	s.out.post(outgoing{
		method: kind.Method(),
		params: params,
		id:     id,
		sent:   func(w jsonrpc2.Waiter) { go s.await(pr, w) },
	})
	return pr, nil
}

func (s *Session) await(pr *PendingRequest, waiter jsonrpc2.Waiter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	defer cancel()

	var raw json.RawMessage
	err := waiter.Wait(ctx, &raw)
	s.forget(pr.ID)
	if pr.Cancelled() {
		log.Debugf("dropping response to cancelled request %d", pr.ID)
		s.opts.Metrics.Dropped("cancelled")
		return
	}

	res := Response{Raw: raw}
	var rpcErr *jsonrpc2.Error
	switch {
	case err == nil:
		res.Completion, res.Hover, res.Err = parseResult(pr.Kind, raw)
	case errors.Is(err, context.DeadlineExceeded):
		res.Err = fmt.Errorf("request %d timed out: %w", pr.ID, err)
		s.sendCancel(pr.ID)
	case errors.As(err, &rpcErr):
		res.Err = fmt.Errorf("analyzer error %d: %s", rpcErr.Code, rpcErr.Message)
	default:
		res.Err = fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if pr.resolve(res) {
		s.events.post(Event{Kind: EventResponse, Version: pr.Version, Response: pr.res, Err: res.Err})
	}
}

func parseResult(kind Kind, raw json.RawMessage) (*Completion, *Hover, error) {
	switch kind {
	case KindCompletion:
		c, err := parseCompletion(raw)
		return c, nil, err
	case KindHover:
		h, err := parseHover(raw)
		return nil, h, err
	}
	return nil, nil, nil
}

// Cancel abandons a pending request. Its eventual response is dropped.
// Cancel reports whether the request was still pending.
func (s *Session) Cancel(id uint64) bool {
	s.reqMu.Lock()
	pr, ok := s.requests[id]
	delete(s.requests, id)
	s.reqMu.Unlock()
	if !ok {
		return false
	}
	pr.cancelled.Store(true)
	pr.resolve(Response{Err: ErrCancelled})
	s.sendCancel(id)
	return true
}

// CancelAll cancels every pending request.
func (s *Session) CancelAll() int {
	s.reqMu.Lock()
	ids := make([]uint64, 0, len(s.requests))
	for id := range s.requests {
		ids = append(ids, id)
	}
	s.reqMu.Unlock()
	n := 0
	for _, id := range ids {
		if s.Cancel(id) {
			n++
		}
	}
	return n
}

func (s *Session) sendCancel(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Ready {
		return
	}
	s.notifyLocked(methodCancelRequest, map[string]uint64{"id": id})
}

func (s *Session) forget(id uint64) {
	s.reqMu.Lock()
	delete(s.requests, id)
	s.reqMu.Unlock()
}

func (s *Session) failRequests(err error) {
	s.reqMu.Lock()
	failed := make([]*PendingRequest, 0, len(s.requests))
	for id, pr := range s.requests {
		failed = append(failed, pr)
		delete(s.requests, id)
	}
	s.reqMu.Unlock()
	for _, pr := range failed {
		if pr.resolve(Response{Err: err}) {
			s.events.post(Event{Kind: EventResponse, Version: pr.Version, Response: pr.res, Err: err})
		}
	}
}

// Shutdown performs the shutdown/exit exchange when connected, then closes
// the session for good.
func (s *Session) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return nil
	}
	conn, out := s.conn, s.out
	ready := s.state == Ready && out != nil
	if ready {
		s.flushLocked()
	}
	s.generation.Add(1)
	s.conn, s.out = nil, nil
	s.stopTimerLocked()
	s.pending = nil
	s.setStateLocked(Closed, nil)
	s.mu.Unlock()

	var err error
	if ready {
		err = s.farewell(ctx, out)
	}
	if out != nil {
		out.close()
	}
	if conn != nil {
		_ = conn.Close()
	}
	s.failRequests(ErrClosed)
	s.events.close()
	return err
}
