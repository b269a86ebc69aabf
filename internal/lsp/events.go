package lsp

import (
	"sync"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

type EventKind int

const (
	EventDiagnostics EventKind = iota
	EventResponse
	EventState
)

// Event is something the analyzer side produced for the session owner.
type Event struct {
	Kind EventKind
	// Version is the document version the event describes: the diagnostics
	// version or, for responses, the version the request was issued at.
	Version     uint64
	Diagnostics []protocol.Diagnostic
	Response    Response
	State       State
	Err         error
}

// mailbox is an unbounded FIFO. post never blocks, so neither the transport
// reader nor an editing caller can stall behind a slow consumer.
type mailbox[T any] struct {
	mu     sync.Mutex
	queue  []T
	closed bool
	signal chan struct{}
	out    chan T
}

func newMailbox[T any]() *mailbox[T] {
	m := &mailbox[T]{
		signal: make(chan struct{}, 1),
		out:    make(chan T),
	}
	go m.pump()
	return m
}

// post queues v. It reports false once the mailbox is closed.
func (m *mailbox[T]) post(v T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, v)
	m.mu.Unlock()
	m.wake()
	return true
}

func (m *mailbox[T]) wake() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// close stops accepting values. Queued values are still delivered before
// the output channel closes.
func (m *mailbox[T]) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wake()
}

func (m *mailbox[T]) pump() {
	var zero T
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			closed := m.closed
			m.mu.Unlock()
			if closed {
				close(m.out)
				return
			}
			<-m.signal
			continue
		}
		v := m.queue[0]
		m.queue[0] = zero
		m.queue = m.queue[1:]
		m.mu.Unlock()
		m.out <- v
	}
}
