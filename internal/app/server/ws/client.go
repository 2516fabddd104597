package ws

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"chatterbox/internal/core/domain"
)

const sendBuffer = 256

// RuntimeClient is one authenticated WebSocket connection. Outbound frames
// go through a bounded buffer drained by a single writer goroutine, so
// frames reach the peer in the order they were sent.
type RuntimeClient struct {
	ctx        context.Context
	cancel     context.CancelFunc
	ws         *WebSocket
	id         string
	identityID string
	state      atomic.Int32
	out        chan []byte
	once       sync.Once
}

func NewClient(
	parent context.Context,
	ws *WebSocket,
	id, identityID string,
) *RuntimeClient {
	ctx, cancel := context.WithCancel(parent)
	c := &RuntimeClient{
		ctx:        ctx,
		cancel:     cancel,
		ws:         ws,
		id:         id,
		identityID: identityID,
		out:        make(chan []byte, sendBuffer),
	}
	c.state.Store(int32(domain.ConnAuthenticated))
	go c.writeLoop()
	return c
}

func (c *RuntimeClient) ID() string         { return c.id }
func (c *RuntimeClient) IdentityID() string { return c.identityID }

func (c *RuntimeClient) State() domain.ConnState {
	return domain.ConnState(c.state.Load())
}

// Send queues a frame without blocking. A full buffer means the peer is not
// keeping up and the frame is dropped for this connection only.
func (c *RuntimeClient) Send(_ context.Context, data []byte) error {
	if c.ctx.Err() != nil {
		return domain.ErrConnectionClosed
	}
	select {
	case c.out <- data:
		return nil
	case <-c.ctx.Done():
		return domain.ErrConnectionClosed
	default:
		return domain.ErrSendBufferFull
	}
}

func (c *RuntimeClient) Close() {
	c.once.Do(func() {
		c.state.Store(int32(domain.ConnDisconnected))
		c.cancel()
		c.ws.Close()
	})
}

func (c *RuntimeClient) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.ws.Done():
			return
		case data := <-c.out:
			if err := c.ws.WriteMessage(data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.ws.WritePing(); err != nil {
				return
			}
		}
	}
}
