package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"chatterbox/internal/core/domain"
)

// Client records every frame it is sent.
type Client struct {
	id         string
	identityID string

	mu     sync.Mutex
	frames []domain.Envelope
	closed bool
}

func NewClient(id, identityID string) *Client {
	return &Client{id: id, identityID: identityID}
}

func (c *Client) ID() string         { return c.id }
func (c *Client) IdentityID() string { return c.identityID }

func (c *Client) Send(_ context.Context, data []byte) error {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrConnectionClosed
	}
	c.frames = append(c.frames, env)
	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Frames returns a copy of everything received so far.
func (c *Client) Frames() []domain.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Envelope(nil), c.frames...)
}

// Named returns the received frames with the given event name.
func (c *Client) Named(event string) []domain.Envelope {
	var out []domain.Envelope
	for _, f := range c.Frames() {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

func (c *Client) Reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

// Decode unmarshals a frame's data into v.
func Decode[T any](env domain.Envelope) (T, error) {
	var v T
	err := json.Unmarshal(env.Data, &v)
	return v, err
}
