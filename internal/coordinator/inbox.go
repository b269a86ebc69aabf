package coordinator

import (
	"context"

	"simplide/internal/lsp"
	"simplide/internal/parser"
)

// Message is a result produced in the background for the coordinator's
// goroutine. Messages are only obtained from Inbox.
type Message interface{ message() }

type rebuilt struct{ res parser.RebuildResult }

type analyzerEvent struct{ ev lsp.Event }

type reconnectDue struct{}

func (rebuilt) message()       {}
func (analyzerEvent) message() {}
func (reconnectDue) message()  {}

// Inbox delivers background results. Each message must be passed to Handle
// on the coordinator's goroutine.
func (c *Coordinator) Inbox() <-chan Message { return c.inbox }

func (c *Coordinator) Handle(m Message) {
	switch m := m.(type) {
	case rebuilt:
		c.install(m.res)
	case analyzerEvent:
		c.handleEvent(m.ev)
	case reconnectDue:
		c.Reconnect()
	}
}

// Poll handles every message already waiting and reports how many there were.
func (c *Coordinator) Poll() int {
	n := 0
	for {
		select {
		case m := <-c.inbox:
			c.Handle(m)
			n++
		default:
			return n
		}
	}
}

// Next waits for one message and handles it.
func (c *Coordinator) Next(ctx context.Context) error {
	select {
	case m := <-c.inbox:
		c.Handle(m)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers m, waiting for room. It gives up when the coordinator closes.
func (c *Coordinator) post(ctx context.Context, m Message) bool {
	select {
	case c.inbox <- m:
		return true
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// offer delivers m only if there is room right away.
func (c *Coordinator) offer(m Message) {
	select {
	case c.inbox <- m:
	default:
	}
}

// forward moves analyzer events into the inbox until the session closes its
// event stream. After Close it keeps draining so the session never stalls.
func (c *Coordinator) forward(events <-chan lsp.Event) {
	defer c.wg.Done()
	for ev := range events {
		select {
		case c.inbox <- analyzerEvent{ev: ev}:
		case <-c.done:
		}
	}
}

func (c *Coordinator) background(name string, fn func(context.Context) error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := fn(c.ctx); err != nil {
			log.Debugf("%s for %s: %v", name, c.opts.URI, err)
		}
	}()
}

func (c *Coordinator) drain() {
	for {
		select {
		case m := <-c.inbox:
			if r, ok := m.(rebuilt); ok && r.res.Tree != nil {
				r.res.Tree.Close()
			}
		default:
			return
		}
	}
}
