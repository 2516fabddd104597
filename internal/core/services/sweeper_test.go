package services_test

import (
	"context"
	"testing"
	"time"

	"chatterbox/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweep_AnnouncesIdleOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.connect(t, "a1", "alice")
	h.clock.Advance(3 * time.Minute)
	observer := h.connect(t, "b1", "bob")
	h.clock.Advance(2 * time.Minute)

	assert.Equal(t, 1, h.sweeper.Sweep(ctx))
	updates := presenceUpdatesFor(t, observer, "alice")
	require.Len(t, updates, 1)
	assert.Equal(t, domain.StatusIdle, updates[0].Status)
	assert.True(t, updates[0].IsOnline, "idle identities are still present")

	// Further ticks do not repeat the transition.
	for i := 0; i < 3; i++ {
		h.clock.Advance(30 * time.Second)
		assert.Zero(t, h.sweeper.Sweep(ctx))
	}
	assert.Len(t, presenceUpdatesFor(t, observer, "alice"), 1)

	h.clock.Advance(10 * time.Minute)
	assert.Equal(t, 1, h.sweeper.Sweep(ctx), "bob goes idle, alice is unchanged")
	assert.Len(t, presenceUpdatesFor(t, observer, "alice"), 1)
	assert.Equal(t, float64(2), testutil.ToFloat64(h.metrics.PresenceUpdates.WithLabelValues("idle")))
}

func TestSweep_SkipsAbsentIdentities(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.connect(t, "a1", "alice")
	observer := h.connect(t, "b1", "bob")
	h.gateway.Disconnect(ctx, "a1")
	observer.Reset()

	h.clock.Advance(time.Hour)
	h.sweeper.Sweep(ctx)

	assert.Empty(t, presenceUpdatesFor(t, observer, "alice"))
}

func TestTyping_WakesIdleIdentityImmediately(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.connect(t, "a1", "alice")
	require.True(t, h.join(t, alice, generalID).OK)
	h.clock.Advance(idleThreshold)
	observer := h.connect(t, "b1", "bob")
	require.Equal(t, 1, h.sweeper.Sweep(ctx))
	require.Equal(t, domain.StatusIdle, h.presence.StatusOf("alice"))
	observer.Reset()

	require.NoError(t, h.send(t, alice, domain.EventTyping, domain.TypingRequest{ChannelID: generalID, IsTyping: true}))

	assert.Equal(t, domain.StatusOnline, h.presence.StatusOf("alice"))
	updates := presenceUpdatesFor(t, observer, "alice")
	require.Len(t, updates, 1)
	assert.Equal(t, domain.StatusOnline, updates[0].Status)

	// The next sweep has nothing left to say.
	assert.Zero(t, h.sweeper.Sweep(ctx))
}

func TestSweeper_StartStop(t *testing.T) {
	h := newHarness(t)
	h.sweeper.Start(context.Background())
	h.sweeper.Start(context.Background())
	assert.True(t, h.sweeper.Running())

	h.sweeper.Stop()
	assert.False(t, h.sweeper.Running())
	h.sweeper.Stop()
}
