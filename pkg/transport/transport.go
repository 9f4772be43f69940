// Package transport abstracts the bidirectional message channel that
// carries realtime frames between the console and the inference endpoint.
package transport

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Send after a channel has been closed.
var ErrClosed = errors.New("transport: channel closed")

// Channel is a bidirectional ordered message channel. Implementations
// deliver each inbound frame to the callback registered with OnMessage.
type Channel interface {
	Send(ctx context.Context, data []byte) error
	OnMessage(fn func(data []byte))
	Close() error
}

// Pipe is one end of an in-memory channel pair. Sends deliver synchronously
// to the peer's OnMessage callback; frames sent before the peer registers a
// callback are buffered and flushed on registration.
type Pipe struct {
	mu     sync.Mutex
	fn     func([]byte)
	buf    [][]byte
	closed bool
	peer   *Pipe
}

var _ Channel = (*Pipe)(nil)

// NewPipe creates a connected pair of in-memory channels.
func NewPipe() (*Pipe, *Pipe) {
	a := &Pipe{}
	b := &Pipe{}
	a.peer = b
	b.peer = a
	return a, b
}

// Send delivers data to the peer end.
func (p *Pipe) Send(_ context.Context, data []byte) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}

	p.peer.deliver(data)
	return nil
}

// OnMessage registers the inbound frame callback and flushes any frames
// buffered before registration.
func (p *Pipe) OnMessage(fn func(data []byte)) {
	p.mu.Lock()
	p.fn = fn
	buf := p.buf
	p.buf = nil
	p.mu.Unlock()

	for _, data := range buf {
		fn(data)
	}
}

// Close marks both ends closed.
func (p *Pipe) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.peer.mu.Lock()
	p.peer.closed = true
	p.peer.mu.Unlock()
	return nil
}

func (p *Pipe) deliver(data []byte) {
	p.mu.Lock()
	fn := p.fn
	if fn == nil {
		p.buf = append(p.buf, data)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	fn(data)
}
