package registry

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"chatterbox/internal/core/contracts"
	"chatterbox/internal/core/domain"
	"chatterbox/pkg/logging"
)

// Registry is the node-local hub. It holds every registered client and the
// topic subscriptions used for room, view and identity fan-out.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]contracts.Client                  // conn_id → client
	topics  map[domain.Topic]map[string]contracts.Client // topic → conn_id → client
	subs    map[string]map[domain.Topic]struct{}         // conn_id → topics
	log     *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		clients: make(map[string]contracts.Client),
		topics:  make(map[domain.Topic]map[string]contracts.Client),
		subs:    make(map[string]map[domain.Topic]struct{}),
		log:     log,
	}
}

func (h *Registry) Register(c contracts.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID()] = c
	if h.subs[c.ID()] == nil {
		h.subs[c.ID()] = make(map[domain.Topic]struct{})
	}
}

func (h *Registry) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for t := range h.subs[connID] {
		h.removeLocked(connID, t)
	}
	delete(h.subs, connID)
	delete(h.clients, connID)
}

func (h *Registry) Registered(connID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[connID]
	return ok
}

func (h *Registry) Subscribe(connID string, t domain.Topic) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return false
	}
	if t.Kind == domain.ScopeGlobal {
		return true
	}
	room := h.topics[t]
	if room == nil {
		room = make(map[string]contracts.Client)
		h.topics[t] = room
	}
	room[connID] = c
	h.subs[connID][t] = struct{}{}
	return true
}

func (h *Registry) Unsubscribe(connID string, t domain.Topic) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(connID, t)
}

func (h *Registry) removeLocked(connID string, t domain.Topic) {
	if room := h.topics[t]; room != nil {
		delete(room, connID)
		if len(room) == 0 {
			delete(h.topics, t)
		}
	}
	if s := h.subs[connID]; s != nil {
		delete(s, t)
	}
}

func (h *Registry) IsSubscribed(connID string, t domain.Topic) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if t.Kind == domain.ScopeGlobal {
		_, ok := h.clients[connID]
		return ok
	}
	_, ok := h.topics[t][connID]
	return ok
}

func (h *Registry) Subscribers(t domain.Topic) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	src := h.topics[t]
	if t.Kind == domain.ScopeGlobal {
		src = h.clients
	}
	out := make([]string, 0, len(src))
	for id := range src {
		out = append(out, id)
	}
	return out
}

// Publish encodes the frame once and hands it to every subscriber. Client
// sends never block, so a slow consumer only loses its own frames.
func (h *Registry) Publish(ctx context.Context, t domain.Topic, event string, data any, exclude ...string) int {
	frame, err := domain.EncodeFrame(event, data)
	if err != nil {
		h.log.ErrorContext(ctx, "registry - publish - encode failed", logging.Event(event), logging.Err(err))
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	targets := h.topics[t]
	if t.Kind == domain.ScopeGlobal {
		targets = h.clients
	}
	sent := 0
	for id, c := range targets {
		if slices.Contains(exclude, id) {
			continue
		}
		if err := c.Send(ctx, frame); err != nil {
			h.log.WarnContext(ctx, "registry - publish - send failed", logging.Connection(id), logging.Event(event), "topic", t.String(), logging.Err(err))
			continue
		}
		sent++
	}
	return sent
}

func (h *Registry) SendTo(ctx context.Context, connID string, event string, data any) error {
	h.mu.RLock()
	c := h.clients[connID]
	h.mu.RUnlock()
	if c == nil {
		return domain.ErrConnectionNotFound
	}
	frame, err := domain.EncodeFrame(event, data)
	if err != nil {
		return err
	}
	return c.Send(ctx, frame)
}
