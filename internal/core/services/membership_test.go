package services_test

import (
	"context"
	"testing"

	"chatterbox/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoin_DirectChannelRequiresMembership(t *testing.T) {
	h := newHarness(t)
	alice := h.connect(t, "a1", "alice")
	carol := h.connect(t, "c1", "carol")
	require.True(t, h.join(t, alice, dmID).OK)

	reply := h.join(t, carol, dmID)
	assert.False(t, reply.OK)
	assert.Equal(t, domain.ErrAccessDenied.Error(), reply.Error)
	assert.False(t, h.hub.IsSubscribed("c1", domain.ChannelTopic(dmID)))
	assert.False(t, h.hub.IsSubscribed("c1", domain.ViewTopic(dmID)))

	// Typing into the room it was refused is dropped.
	alice.Reset()
	require.NoError(t, h.send(t, carol, domain.EventTyping, domain.TypingRequest{ChannelID: dmID, IsTyping: true}))
	assert.Empty(t, alice.Named(domain.EventTyping))
}

func TestJoin_PublicAndUnknownChannels(t *testing.T) {
	h := newHarness(t)
	carol := h.connect(t, "c1", "carol")

	assert.True(t, h.join(t, carol, randomID).OK)
	assert.True(t, h.hub.IsSubscribed("c1", domain.ViewTopic(randomID)))

	reply := h.join(t, carol, "no-such-channel")
	assert.False(t, reply.OK)
	assert.False(t, h.router.CanAccess(context.Background(), "carol", "no-such-channel"))
}

func TestJoin_DefaultChannelGrantsMembership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.connect(t, "a1", "alice")
	member, _ := h.store.IsMember(ctx, generalID, "alice")
	require.False(t, member)

	require.True(t, h.join(t, alice, generalID).OK)

	member, _ = h.store.IsMember(ctx, generalID, "alice")
	assert.True(t, member)
	assert.Equal(t, 1, h.store.Welcomes(generalID, "alice"))
}

func TestLeave_DropsBothRooms(t *testing.T) {
	h := newHarness(t)
	bob := h.connect(t, "b1", "bob")
	require.True(t, h.join(t, bob, dmID).OK)

	require.NoError(t, h.send(t, bob, domain.EventChannelLeave, domain.ChannelRequest{ChannelID: dmID}))

	assert.False(t, h.hub.IsSubscribed("b1", domain.ChannelTopic(dmID)))
	assert.False(t, h.hub.IsSubscribed("b1", domain.ViewTopic(dmID)))
	replies := bob.Named(domain.EventChannelLeave)
	require.Len(t, replies, 1)
	ok, _ := h.store.IsMember(context.Background(), dmID, "bob")
	assert.True(t, ok, "leave never touches durable membership")
}

func TestTyping_RevalidatesAccess(t *testing.T) {
	h := newHarness(t)
	alice := h.connect(t, "a1", "alice")
	bob := h.connect(t, "b1", "bob")
	require.True(t, h.join(t, alice, dmID).OK)
	require.True(t, h.join(t, bob, dmID).OK)

	h.store.RemoveMember(dmID, "alice")
	bob.Reset()
	require.NoError(t, h.send(t, alice, domain.EventTyping, domain.TypingRequest{ChannelID: dmID, IsTyping: true}))

	assert.Empty(t, bob.Named(domain.EventTyping))
	assert.False(t, h.hub.IsSubscribed("a1", domain.ViewTopic(dmID)))
}

func TestTyping_RelayedToViewersExceptSender(t *testing.T) {
	h := newHarness(t)
	alice := h.connect(t, "a1", "alice")
	alice2 := h.connect(t, "a2", "alice")
	bob := h.connect(t, "b1", "bob")
	require.True(t, h.join(t, alice, dmID).OK)
	require.True(t, h.join(t, alice2, dmID).OK)
	require.True(t, h.join(t, bob, dmID).OK)
	alice.Reset()
	alice2.Reset()
	bob.Reset()

	require.NoError(t, h.send(t, alice, domain.EventTyping, domain.TypingRequest{ChannelID: dmID, IsTyping: true}))

	assert.Empty(t, alice.Named(domain.EventTyping))
	require.Len(t, alice2.Named(domain.EventTyping), 1, "other tabs of the sender see it")
	frames := bob.Named(domain.EventTyping)
	require.Len(t, frames, 1)
	assert.JSONEq(t, `{"channelId":"dm-alice-bob","userId":"alice","displayName":"Alice","isTyping":true}`, string(frames[0].Data))
}

func TestMembershipChanged_ReconcilesLiveConnections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	carol := h.connect(t, "c1", "carol")
	assert.False(t, h.hub.IsSubscribed("c1", domain.ChannelTopic(dmID)))

	h.store.AddChannel(dm, "carol")
	require.NoError(t, h.gateway.NotifyMembershipChanged(ctx, "carol", dmID))
	assert.True(t, h.hub.IsSubscribed("c1", domain.ChannelTopic(dmID)))

	require.True(t, h.join(t, carol, dmID).OK)
	h.store.RemoveMember(dmID, "carol")
	require.NoError(t, h.gateway.NotifyMembershipChanged(ctx, "carol", dmID))
	assert.False(t, h.hub.IsSubscribed("c1", domain.ChannelTopic(dmID)))
	assert.False(t, h.hub.IsSubscribed("c1", domain.ViewTopic(dmID)))
}

func TestConnect_SubscribesMemberChannels(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "b1", "bob")

	assert.True(t, h.hub.IsSubscribed("b1", domain.ChannelTopic(generalID)))
	assert.True(t, h.hub.IsSubscribed("b1", domain.ChannelTopic(dmID)))
	assert.True(t, h.hub.IsSubscribed("b1", domain.IdentityTopic("bob")))
	assert.False(t, h.hub.IsSubscribed("b1", domain.ViewTopic(generalID)), "viewing requires an explicit join")
}
