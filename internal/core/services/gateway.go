package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"chatterbox/internal/core/contracts"
	"chatterbox/internal/core/domain"
	"chatterbox/internal/platform/metrics"
	"chatterbox/pkg/logging"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("gateway-service")

// Inbound event outcomes, used as a metrics label.
const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

type GatewayConfig struct {
	RecentLimit int
}

// Gateway owns the lifecycle of authenticated connections and routes their
// inbound events. It also exposes the hooks through which the message layer
// reports writes (see notify.go).
type Gateway struct {
	// mu serialises connection-count changes with the presence entry they
	// imply, so a connect racing the last disconnect of the same identity
	// cannot leave the identity absent while it holds a connection.
	mu sync.Mutex

	conns     *ConnectionRegistry
	presence  *PresenceTracker
	announcer *PresenceAnnouncer
	router    *MembershipRouter
	ledger    *UnreadLedger
	hub       contracts.Hub
	profiles  domain.ProfileRepository
	channels  domain.ChannelRepository
	lastSeen  contracts.LastSeenIndex
	metrics   *metrics.Metrics
	cfg       GatewayConfig
	now       func() time.Time
	log       *slog.Logger
}

func NewGateway(
	log *slog.Logger,
	cfg GatewayConfig,
	conns *ConnectionRegistry,
	presence *PresenceTracker,
	announcer *PresenceAnnouncer,
	router *MembershipRouter,
	ledger *UnreadLedger,
	hub contracts.Hub,
	profiles domain.ProfileRepository,
	channels domain.ChannelRepository,
	lastSeen contracts.LastSeenIndex,
	m *metrics.Metrics,
	now func() time.Time,
) *Gateway {
	if now == nil {
		now = time.Now
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 20
	}
	return &Gateway{
		conns:     conns,
		presence:  presence,
		announcer: announcer,
		router:    router,
		ledger:    ledger,
		hub:       hub,
		profiles:  profiles,
		channels:  channels,
		lastSeen:  lastSeen,
		metrics:   m,
		cfg:       cfg,
		now:       now,
		log:       log,
	}
}

// Connect registers an authenticated client. The client receives its
// presence snapshot before anything else. The identity is announced online
// when it was absent or idle; a further connection of an online identity
// is silent.
func (g *Gateway) Connect(ctx context.Context, c contracts.Client) error {
	ctx, span := tracer.Start(ctx, "Gateway.Connect", trace.WithAttributes(
		attribute.String("conn_id", c.ID()),
		attribute.String("identity_id", c.IdentityID()),
	))
	defer span.End()
	connID, identityID := c.ID(), c.IdentityID()
	if identityID == "" {
		span.SetStatus(codes.Error, "missing identity")
		return domain.ErrInvalidIdentityID
	}

	g.hub.Register(c)
	g.mu.Lock()
	first := g.conns.Add(connID, identityID)
	g.presence.MarkOnline(identityID)
	g.mu.Unlock()
	g.hub.Subscribe(connID, domain.IdentityTopic(identityID))

	if first && g.lastSeen != nil {
		if err := g.lastSeen.Remove(ctx, identityID); err != nil {
			g.log.WarnContext(ctx, "gateway - connect - last seen index remove failed", logging.Identity(identityID), logging.Err(err))
		}
	}
	if err := g.router.SubscribeAll(ctx, connID, identityID); err != nil {
		span.RecordError(err)
		g.log.ErrorContext(ctx, "gateway - connect - subscribe member channels failed", logging.Identity(identityID), logging.Err(err))
	}
	if err := g.sendSnapshot(ctx, connID); err != nil {
		span.RecordError(err)
		g.log.WarnContext(ctx, "gateway - connect - send snapshot failed", logging.Connection(connID), logging.Err(err))
	}
	// The announcer dedupes, so only a first connection or an idle
	// identity coming back produces an update.
	g.announcer.Announce(ctx, identityID)
	g.metrics.SetConnections(g.conns.Stats())
	g.log.InfoContext(ctx, "gateway - connect - success", logging.Connection(connID), logging.Identity(identityID), "first", first)
	return nil
}

// Disconnect tears down a connection. Unknown ids are ignored. When the
// identity's last connection goes, its last-seen time is persisted before
// the offline announcement.
func (g *Gateway) Disconnect(ctx context.Context, connID string) {
	ctx, span := tracer.Start(ctx, "Gateway.Disconnect", trace.WithAttributes(
		attribute.String("conn_id", connID),
	))
	defer span.End()

	g.mu.Lock()
	identityID, last, ok := g.conns.Remove(connID)
	if ok && last {
		g.presence.MarkOffline(identityID)
	}
	g.mu.Unlock()
	g.hub.Unregister(connID)
	if !ok {
		return
	}
	g.metrics.SetConnections(g.conns.Stats())
	if !last {
		g.log.InfoContext(ctx, "gateway - disconnect - identity still present", logging.Connection(connID), logging.Identity(identityID))
		return
	}

	at := g.now()
	if err := g.profiles.UpdateLastSeen(ctx, identityID, at); err != nil {
		span.RecordError(err)
		g.log.ErrorContext(ctx, "gateway - disconnect - update last seen failed", logging.Identity(identityID), logging.Err(err))
	}
	if g.lastSeen != nil {
		if err := g.lastSeen.Record(ctx, identityID, at); err != nil {
			g.log.WarnContext(ctx, "gateway - disconnect - last seen index record failed", logging.Identity(identityID), logging.Err(err))
		}
	}
	g.announcer.Announce(ctx, identityID)
	g.log.InfoContext(ctx, "gateway - disconnect - identity offline", logging.Connection(connID), logging.Identity(identityID))
}

// HandleEvent processes one inbound frame. Failures are reported to the
// client as frames and never close the connection; the returned error is
// for logging only.
func (g *Gateway) HandleEvent(ctx context.Context, c contracts.Client, raw []byte) error {
	var env domain.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		g.metrics.InboundEvent("invalid", outcomeError)
		g.sendError(ctx, c.ID(), "malformed_event", domain.ErrMalformedEvent)
		return domain.ErrMalformedEvent
	}
	ctx, span := tracer.Start(ctx, "Gateway.HandleEvent", trace.WithAttributes(
		attribute.String("conn_id", c.ID()),
		attribute.String("event", env.Event),
		attribute.Int("payload_size", len(raw)),
	))
	defer span.End()

	var err error
	outcome := outcomeOK
	switch env.Event {
	case domain.EventTyping:
		var req domain.TypingRequest
		if err = decode(env.Data, &req); err == nil {
			if !g.handleTyping(ctx, c, req) {
				outcome = outcomeRejected
			}
		}
	case domain.EventChannelJoin:
		var req domain.ChannelRequest
		if err = decode(env.Data, &req); err == nil {
			if !g.handleJoin(ctx, c, req) {
				outcome = outcomeRejected
			}
		}
	case domain.EventChannelLeave:
		var req domain.ChannelRequest
		if err = decode(env.Data, &req); err == nil {
			g.router.Leave(c.ID(), req.ChannelID)
			g.reply(ctx, c.ID(), domain.EventChannelLeave, domain.ChannelReply{ChannelID: req.ChannelID, OK: true})
		}
	default:
		g.metrics.InboundEvent("unknown", outcomeRejected)
		g.sendError(ctx, c.ID(), "unknown_event", domain.ErrUnknownEvent)
		return domain.ErrUnknownEvent
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed payload")
		g.metrics.InboundEvent(env.Event, outcomeError)
		g.sendError(ctx, c.ID(), "malformed_event", domain.ErrMalformedEvent)
		return err
	}
	g.metrics.InboundEvent(env.Event, outcome)
	return nil
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return domain.ErrMalformedEvent
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Join(domain.ErrMalformedEvent, err)
	}
	return nil
}

// handleTyping relays a typing signal to the view room. Typing counts as
// activity, so an idle sender is announced online before the relay.
func (g *Gateway) handleTyping(ctx context.Context, c contracts.Client, req domain.TypingRequest) bool {
	identityID := c.IdentityID()
	if req.ChannelID == "" || !g.hub.IsSubscribed(c.ID(), domain.ViewTopic(req.ChannelID)) {
		return false
	}
	// Membership may have been revoked since the join.
	if !g.router.CanAccess(ctx, identityID, req.ChannelID) {
		g.router.Leave(c.ID(), req.ChannelID)
		return false
	}
	if g.touchIfConnected(identityID) {
		g.announcer.Announce(ctx, identityID)
	}
	name := identityID
	if p, err := g.profiles.GetProfile(ctx, identityID); err == nil && p != nil {
		name = p.DisplayName
	}
	g.hub.Publish(ctx, domain.ViewTopic(req.ChannelID), domain.EventTyping, domain.TypingEvent{
		ChannelID:   req.ChannelID,
		UserID:      identityID,
		DisplayName: name,
		IsTyping:    req.IsTyping,
	}, c.ID())
	return true
}

func (g *Gateway) handleJoin(ctx context.Context, c contracts.Client, req domain.ChannelRequest) bool {
	err := g.router.Join(ctx, c.ID(), c.IdentityID(), req.ChannelID)
	reply := domain.ChannelReply{ChannelID: req.ChannelID, OK: err == nil}
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrAccessDenied), errors.Is(err, domain.ErrInvalidChannelID):
		reply.Error = err.Error()
	default:
		g.log.ErrorContext(ctx, "gateway - join - failed", logging.Connection(c.ID()), logging.Channel(req.ChannelID), logging.Err(err))
		reply.Error = "could not join channel"
	}
	g.reply(ctx, c.ID(), domain.EventChannelJoin, reply)
	return err == nil
}

// touchIfConnected records activity only while the identity holds a
// connection, so late events never resurrect an absent identity.
func (g *Gateway) touchIfConnected(identityID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conns.Count(identityID) == 0 {
		return false
	}
	g.presence.Touch(identityID)
	return true
}

func (g *Gateway) reply(ctx context.Context, connID, event string, data any) {
	if err := g.hub.SendTo(ctx, connID, event, data); err != nil {
		g.log.WarnContext(ctx, "gateway - reply - send failed", logging.Connection(connID), logging.Event(event), logging.Err(err))
	}
}

func (g *Gateway) sendError(ctx context.Context, connID, code string, err error) {
	g.reply(ctx, connID, domain.EventError, domain.ErrorMessage{Code: code, Message: err.Error()})
}

// Snapshot builds the presence.snapshot payload: every present identity
// ordered by display name, then the most recently seen absent identities.
func (g *Gateway) Snapshot(ctx context.Context) domain.PresenceSnapshot {
	entries := g.presence.Snapshot()
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.IdentityID)
	}
	byID := g.profilesByID(ctx, ids)

	snap := domain.PresenceSnapshot{
		Online:   make([]domain.PresenceOnline, 0, len(entries)),
		Recently: []domain.PresenceUser{},
	}
	for _, e := range entries {
		p, ok := byID[e.IdentityID]
		if !ok {
			p = domain.Profile{ID: e.IdentityID}
		}
		snap.Online = append(snap.Online, domain.PresenceOnline{PresenceUser: domain.NewPresenceUser(p), Status: e.Status})
	}
	sort.SliceStable(snap.Online, func(i, j int) bool {
		return snap.Online[i].DisplayName < snap.Online[j].DisplayName
	})

	for _, p := range g.recentlyOffline(ctx, ids) {
		snap.Recently = append(snap.Recently, domain.NewPresenceUser(p))
	}
	return snap
}

func (g *Gateway) sendSnapshot(ctx context.Context, connID string) error {
	return g.hub.SendTo(ctx, connID, domain.EventPresenceSnapshot, g.Snapshot(ctx))
}

func (g *Gateway) profilesByID(ctx context.Context, ids []string) map[string]domain.Profile {
	out := make(map[string]domain.Profile, len(ids))
	if len(ids) == 0 {
		return out
	}
	profiles, err := g.profiles.GetProfiles(ctx, ids)
	if err != nil {
		g.log.WarnContext(ctx, "gateway - snapshot - get profiles failed", logging.Err(err))
		return out
	}
	for _, p := range profiles {
		out[p.ID] = p
	}
	return out
}

// recentlyOffline prefers the last-seen index and falls back to the
// profile store when the index is unavailable or empty.
func (g *Gateway) recentlyOffline(ctx context.Context, present []string) []domain.Profile {
	limit := g.cfg.RecentLimit
	skip := make(map[string]struct{}, len(present))
	for _, id := range present {
		skip[id] = struct{}{}
	}
	var out []domain.Profile
	if g.lastSeen != nil {
		ids, err := g.lastSeen.Recent(ctx, limit+len(present))
		if err != nil {
			g.log.WarnContext(ctx, "gateway - snapshot - last seen index failed", logging.Err(err))
		}
		wanted := make([]string, 0, limit)
		for _, id := range ids {
			if _, ok := skip[id]; ok {
				continue
			}
			if wanted = append(wanted, id); len(wanted) == limit {
				break
			}
		}
		if len(wanted) > 0 {
			byID := g.profilesByID(ctx, wanted)
			for _, id := range wanted {
				if p, ok := byID[id]; ok {
					out = append(out, p)
				}
			}
		}
	}
	if len(out) == 0 {
		profiles, err := g.profiles.RecentlyOffline(ctx, present, limit)
		if err != nil {
			g.log.WarnContext(ctx, "gateway - snapshot - recently offline failed", logging.Err(err))
			return nil
		}
		out = profiles
	}
	sort.SliceStable(out, func(i, j int) bool {
		return lastSeenAfter(out[i].LastSeen, out[j].LastSeen)
	})
	return out
}

func lastSeenAfter(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	}
	return a.After(*b)
}
