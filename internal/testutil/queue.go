package testutil

import (
	"context"
	"slices"
	"sync"
)

type StreamEntry struct {
	Stream string
	Data   []byte
}

type pendingEntry struct {
	id   string
	data []byte
}

// Queue is an in-memory MessageQueue. Deliver drives the subscribed handler;
// entries the handler does not acknowledge stay pending until Reclaim hands
// them over again, the way the Redis queue's autoclaim pass does.
type Queue struct {
	mu        sync.Mutex
	Published []StreamEntry
	Acked     []string
	Deleted   []string
	pending   []pendingEntry
	handler   func(ctx context.Context, messageID string, data []byte) error
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) PublishToStream(_ context.Context, stream string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.Published = append(q.Published, StreamEntry{Stream: stream, Data: payload})
	return nil
}

func (q *Queue) SubscribeToStream(_ context.Context, _ string, _ string, handler func(ctx context.Context, messageID string, data []byte) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = handler
	return nil
}

func (q *Queue) AcknowledgeMessage(_ context.Context, _, _, mesgID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.Acked = append(q.Acked, mesgID)
	q.pending = slices.DeleteFunc(q.pending, func(e pendingEntry) bool { return e.id == mesgID })
	return nil
}

func (q *Queue) DeleteMessage(_ context.Context, _, mesgID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.Deleted = append(q.Deleted, mesgID)
	return nil
}

// Deliver hands one new entry to the subscribed handler.
func (q *Queue) Deliver(ctx context.Context, id string, data []byte) error {
	q.mu.Lock()
	q.pending = append(q.pending, pendingEntry{id: id, data: data})
	h := q.handler
	q.mu.Unlock()
	return h(ctx, id, data)
}

// Pending returns the ids delivered but not yet acknowledged.
func (q *Queue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]string, 0, len(q.pending))
	for _, e := range q.pending {
		ids = append(ids, e.id)
	}
	return ids
}

// Reclaim redelivers every pending entry in stream order and returns how
// many were handed over.
func (q *Queue) Reclaim(ctx context.Context) int {
	q.mu.Lock()
	entries := slices.Clone(q.pending)
	h := q.handler
	q.mu.Unlock()
	for _, e := range entries {
		_ = h(ctx, e.id, e.data)
	}
	return len(entries)
}
