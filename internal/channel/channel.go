// Package channel provides a request/response channel pair used to talk to
// a single serving goroutine.
package channel

import (
	"context"
	"errors"
	"sync"
)

// DefaultBuffer is the request queue depth used by maker entries.
const DefaultBuffer = 100

var (
	ErrRequestChannelClosed  = errors.New("request channel closed")
	ErrResponseChannelClosed = errors.New("response channel closed")
)

type call[Req, Resp any] struct {
	req   Req
	reply chan Resp
}

// Requester is the calling half of the pair. It is safe for concurrent use.
type Requester[Req, Resp any] struct {
	mu      sync.RWMutex
	closed  bool
	calls   chan call[Req, Resp]
	stopped <-chan struct{}
}

// Responder is the serving half of the pair. Only one goroutine may call
// Handle.
type Responder[Req, Resp any] struct {
	calls    <-chan call[Req, Resp]
	stopped  chan struct{}
	stopOnce sync.Once
}

// New creates a connected Requester/Responder pair with the given queue depth.
func New[Req, Resp any](buffer int) (*Requester[Req, Resp], *Responder[Req, Resp]) {
	if buffer < 0 {
		buffer = 0
	}
	calls := make(chan call[Req, Resp], buffer)
	stopped := make(chan struct{})
	return &Requester[Req, Resp]{calls: calls, stopped: stopped},
		&Responder[Req, Resp]{calls: calls, stopped: stopped}
}

// Request sends req and waits for its response.
func (r *Requester[Req, Resp]) Request(ctx context.Context, req Req) (Resp, error) {
	var zero Resp
	reply := make(chan Resp, 1)

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return zero, ErrRequestChannelClosed
	}
	select {
	case <-r.stopped:
		r.mu.RUnlock()
		return zero, ErrRequestChannelClosed
	default:
	}
	select {
	case r.calls <- call[Req, Resp]{req: req, reply: reply}:
	case <-r.stopped:
		r.mu.RUnlock()
		return zero, ErrRequestChannelClosed
	case <-ctx.Done():
		r.mu.RUnlock()
		return zero, ctx.Err()
	}
	r.mu.RUnlock()

	select {
	case resp := <-reply:
		return resp, nil
	case <-r.stopped:
		// The responder may have answered just before stopping.
		select {
		case resp := <-reply:
			return resp, nil
		default:
			return zero, ErrResponseChannelClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close stops accepting requests. The responder drains what is queued and
// then returns from Handle.
func (r *Requester[Req, Resp]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.calls)
}

// Done is closed once the responder has stopped serving.
func (r *Requester[Req, Resp]) Done() <-chan struct{} { return r.stopped }

// Handle serves requests until the request side is closed, ctx is done, or
// fn returns false. The response returned alongside false is still delivered.
func (s *Responder[Req, Resp]) Handle(ctx context.Context, fn func(Req) (Resp, bool)) {
	defer s.stop()
	for {
		select {
		case c, ok := <-s.calls:
			if !ok {
				return
			}
			resp, keepGoing := fn(c.req)
			c.reply <- resp
			if !keepGoing {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Responder[Req, Resp]) stop() {
	s.stopOnce.Do(func() { close(s.stopped) })
}
