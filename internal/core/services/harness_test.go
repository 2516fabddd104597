package services_test

import (
	"context"
	"testing"
	"time"

	"chatterbox/internal/app/registry"
	"chatterbox/internal/core/domain"
	"chatterbox/internal/core/services"
	"chatterbox/internal/platform/metrics"
	"chatterbox/internal/testutil"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const (
	idleThreshold = 5 * time.Minute
	generalID     = "ch-general"
	randomID      = "ch-random"
	dmID          = "dm-alice-bob"
	botID         = "ai-bot"
	welcomeText   = "Welcome to #%s, %s!"
)

var (
	general = domain.Channel{ID: generalID, Name: "general"}
	random  = domain.Channel{ID: randomID, Name: "random"}
	dm      = domain.Channel{ID: dmID, Name: "dm", IsDirect: true}
)

type harness struct {
	store     *testutil.Store
	clock     *testutil.Clock
	hub       *registry.Registry
	metrics   *metrics.Metrics
	conns     *services.ConnectionRegistry
	presence  *services.PresenceTracker
	announcer *services.PresenceAnnouncer
	sweeper   *services.PresenceSweeper
	welcome   *services.WelcomeService
	router    *services.MembershipRouter
	ledger    *services.UnreadLedger
	gateway   *services.Gateway
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := testutil.NewStore()
	store.AddProfile("alice", "Alice")
	store.AddProfile("bob", "Bob")
	store.AddProfile("carol", "Carol")
	store.AddProfile(botID, "Bot")
	store.AddChannel(general, "bob", "carol")
	store.AddChannel(random)
	store.AddChannel(dm, "alice", "bob")

	h := &harness{
		store:   store,
		clock:   testutil.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	log := testutil.Logger()
	h.hub = registry.NewRegistry(log)
	h.conns = services.NewConnectionRegistry()
	h.presence = services.NewPresenceTracker(idleThreshold, h.clock.Now)
	h.announcer = services.NewPresenceAnnouncer(log, h.presence, store, h.hub, h.metrics)
	h.sweeper = services.NewPresenceSweeper(log, time.Hour, h.presence, h.announcer, h.metrics)
	h.welcome = services.NewWelcomeService(log, store, store, h.hub, h.metrics, botID, welcomeText, h.clock.Now)
	h.router = services.NewMembershipRouter(log, store, h.hub, h.conns, h.welcome, "general")
	h.ledger = services.NewUnreadLedger(log, store, store, store, store, store, h.hub, h.clock.Now)
	h.gateway = services.NewGateway(log, services.GatewayConfig{RecentLimit: 20},
		h.conns, h.presence, h.announcer, h.router, h.ledger, h.hub, store, store, store, h.metrics, h.clock.Now)
	return h
}

func (h *harness) connect(t *testing.T, connID, identityID string) *testutil.Client {
	t.Helper()
	c := testutil.NewClient(connID, identityID)
	require.NoError(t, h.gateway.Connect(context.Background(), c))
	return c
}

func (h *harness) send(t *testing.T, c *testutil.Client, event string, data any) error {
	t.Helper()
	raw, err := domain.EncodeFrame(event, data)
	require.NoError(t, err)
	return h.gateway.HandleEvent(context.Background(), c, raw)
}

func (h *harness) join(t *testing.T, c *testutil.Client, channelID string) domain.ChannelReply {
	t.Helper()
	c.Reset()
	require.NoError(t, h.send(t, c, domain.EventChannelJoin, domain.ChannelRequest{ChannelID: channelID}))
	replies := c.Named(domain.EventChannelJoin)
	require.Len(t, replies, 1)
	reply, err := testutil.Decode[domain.ChannelReply](replies[0])
	require.NoError(t, err)
	return reply
}

func (h *harness) message(channelID, authorID string) domain.Message {
	content := "hi"
	return h.store.AddMessage(domain.Message{
		ID:        uuid.New(),
		ChannelID: channelID,
		AuthorID:  authorID,
		Content:   &content,
		CreatedAt: h.clock.Now(),
	})
}

// presenceUpdatesFor decodes every presence.update the client received about identityID.
func presenceUpdatesFor(t *testing.T, c *testutil.Client, identityID string) []domain.PresenceUpdate {
	t.Helper()
	var out []domain.PresenceUpdate
	for _, f := range c.Named(domain.EventPresenceUpdate) {
		u, err := testutil.Decode[domain.PresenceUpdate](f)
		require.NoError(t, err)
		if u.User.ID == identityID {
			out = append(out, u)
		}
	}
	return out
}
