package lsp

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
)

// Response is the outcome of a request. Exactly one of Err or the parsed
// fields is meaningful.
type Response struct {
	ID         uint64
	Kind       Kind
	Version    uint64
	Raw        json.RawMessage
	Completion *Completion
	Hover      *Hover
	Err        error
}

// PendingRequest is a request in flight. It resolves exactly once.
type PendingRequest struct {
	ID      uint64
	Kind    Kind
	Offset  int
	Version uint64

	cancelled atomic.Bool
	once      sync.Once
	done      chan struct{}
	res       Response
}

func newPending(id uint64, kind Kind, offset int, version uint64) *PendingRequest {
	return &PendingRequest{
		ID:      id,
		Kind:    kind,
		Offset:  offset,
		Version: version,
		done:    make(chan struct{}),
	}
}

func (p *PendingRequest) Cancelled() bool { return p.cancelled.Load() }

func (p *PendingRequest) Done() <-chan struct{} { return p.done }

// Wait blocks until the request resolves or ctx ends.
func (p *PendingRequest) Wait(ctx context.Context) (Response, error) {
	select {
	case <-p.done:
		return p.res, p.res.Err
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

func (p *PendingRequest) resolve(res Response) bool {
	resolved := false
	p.once.Do(func() {
		res.ID, res.Kind, res.Version = p.ID, p.Kind, p.Version
		p.res = res
		close(p.done)
		resolved = true
	})
	return resolved
}
