package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sourcegraph/jsonrpc2"
)

// outgoing is one message for the analyzer. Calls carry a non-zero id and
// learn their waiter through sent once the call is on the wire.
type outgoing struct {
	method string
	params any
	id     uint64
	sent   func(jsonrpc2.Waiter)
	// done, when set, is closed after the write was attempted.
	done chan struct{}
}

// write is the only goroutine writing to conn. Messages leave in the order
// they were posted. A write that outlives RequestTimeout degrades the
// session and closes conn, which fails the write and every one queued
// behind it.
func (s *Session) write(gen uint64, conn *jsonrpc2.Conn, out *mailbox[outgoing]) {
	for msg := range out.out {
		s.send(gen, conn, msg)
	}
}

func (s *Session) send(gen uint64, conn *jsonrpc2.Conn, msg outgoing) {
	if msg.done != nil {
		defer close(msg.done)
	}
	watchdog := time.AfterFunc(s.opts.RequestTimeout, func() {
		s.degrade(gen, fmt.Errorf("%w: %s not written within %s", ErrStalled, msg.method, s.opts.RequestTimeout))
		_ = conn.Close()
	})
	defer watchdog.Stop()

	// jsonrpc2 only consults the context while waiting for a reply, never
	// while writing.
	ctx := context.Background()
	if msg.id == 0 {
		if err := conn.Notify(ctx, msg.method, msg.params); err != nil {
			s.degrade(gen, fmt.Errorf("%s: %w", msg.method, err))
			return
		}
		s.opts.Metrics.Notification(msg.method)
		return
	}
	w, err := conn.DispatchCall(ctx, msg.method, msg.params, jsonrpc2.PickID(jsonrpc2.ID{Num: msg.id}))
	if err != nil {
		s.degrade(gen, fmt.Errorf("%s: %w", msg.method, err))
		return
	}
	if msg.sent != nil {
		msg.sent(w)
	}
}

// farewell runs the shutdown/exit exchange through the writer, bounded by
// RequestTimeout.
func (s *Session) farewell(ctx context.Context, out *mailbox[outgoing]) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	waiters := make(chan jsonrpc2.Waiter, 1)
	shutdown := outgoing{
		method: methodShutdown,
		id:     s.ids.Add(1),
		sent:   func(w jsonrpc2.Waiter) { waiters <- w },
		done:   make(chan struct{}),
	}
	if !out.post(shutdown) {
		return fmt.Errorf("%w: shutdown: connection gone", ErrTransport)
	}
	select {
	case <-shutdown.done:
	case <-ctx.Done():
		return fmt.Errorf("%w: shutdown: %v", ErrTransport, ctx.Err())
	}
	var w jsonrpc2.Waiter
	select {
	case w = <-waiters:
	default:
		return fmt.Errorf("%w: shutdown not sent", ErrTransport)
	}
	var raw json.RawMessage
	if err := w.Wait(ctx, &raw); err != nil {
		return fmt.Errorf("%w: shutdown: %v", ErrTransport, err)
	}

	exit := outgoing{method: methodExit, done: make(chan struct{})}
	if out.post(exit) {
		select {
		case <-exit.done:
		case <-ctx.Done():
			log.Debugf("exit: %v", ctx.Err())
		}
	}
	return nil
}
