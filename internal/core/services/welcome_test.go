package services_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"chatterbox/internal/core/domain"
	"chatterbox/internal/core/services"
	"chatterbox/internal/testutil"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// welcomesFor counts message.created frames greeting the given display name.
func welcomesFor(t *testing.T, c *testutil.Client, name string) int {
	t.Helper()
	n := 0
	for _, f := range c.Named(domain.EventMessageCreated) {
		msg, err := testutil.Decode[domain.MessagePayload](f)
		require.NoError(t, err)
		if msg.AuthorID == botID && msg.Content != nil && strings.Contains(*msg.Content, name) {
			n++
		}
	}
	return n
}

func TestWelcome_ConcurrentJoinsPostOnce(t *testing.T) {
	h := newHarness(t)
	observer := h.connect(t, "b1", "bob")
	require.True(t, h.join(t, observer, generalID).OK)
	observer.Reset()
	before := promtest.ToFloat64(h.metrics.WelcomeMessages)

	tabs := []*testutil.Client{h.connect(t, "a1", "alice"), h.connect(t, "a2", "alice")}
	var wg sync.WaitGroup
	for _, c := range tabs {
		wg.Add(1)
		go func(c *testutil.Client) {
			defer wg.Done()
			raw, _ := domain.EncodeFrame(domain.EventChannelJoin, domain.ChannelRequest{ChannelID: generalID})
			_ = h.gateway.HandleEvent(context.Background(), c, raw)
		}(c)
	}
	wg.Wait()

	assert.Equal(t, 1, h.store.Welcomes(generalID, "alice"))
	assert.Equal(t, 1, welcomesFor(t, observer, "Alice"))
	assert.Equal(t, before+1, promtest.ToFloat64(h.metrics.WelcomeMessages))

	// A third join in the same process is answered from memory.
	calls := h.store.HasWelcomeCalls
	require.True(t, h.join(t, tabs[0], generalID).OK)
	assert.Equal(t, calls, h.store.HasWelcomeCalls)
}

func TestWelcome_SurvivesRestart(t *testing.T) {
	h := newHarness(t)
	alice := h.connect(t, "a1", "alice")
	require.True(t, h.join(t, alice, generalID).OK)
	require.Equal(t, 1, h.store.Welcomes(generalID, "alice"))

	// A fresh service has an empty in-memory guard but the same store.
	observer := h.connect(t, "b1", "bob")
	require.True(t, h.join(t, observer, generalID).OK)
	observer.Reset()
	restarted := services.NewWelcomeService(testutil.Logger(), h.store, h.store, h.hub, h.metrics, botID, welcomeText, h.clock.Now)

	require.NoError(t, restarted.Ensure(context.Background(), &general, "alice"))

	assert.Equal(t, 1, h.store.Welcomes(generalID, "alice"))
	assert.Zero(t, welcomesFor(t, observer, "Alice"))
}

func TestWelcome_OnlyOnDefaultChannel(t *testing.T) {
	h := newHarness(t)
	alice := h.connect(t, "a1", "alice")

	require.True(t, h.join(t, alice, randomID).OK)
	require.True(t, h.join(t, alice, dmID).OK)

	assert.Zero(t, h.store.CreateWelcomeCalls)
}

func TestWelcome_DurableCheckFailureDoesNotBlockJoin(t *testing.T) {
	h := newHarness(t)
	h.store.HasWelcomeErr = errors.New("db down")
	alice := h.connect(t, "a1", "alice")

	assert.True(t, h.join(t, alice, generalID).OK)
	assert.Zero(t, h.store.Welcomes(generalID, "alice"))

	// Nothing was remembered, so the next join retries.
	h.store.HasWelcomeErr = nil
	require.True(t, h.join(t, alice, generalID).OK)
	assert.Equal(t, 1, h.store.Welcomes(generalID, "alice"))
}

func TestWelcome_Content(t *testing.T) {
	h := newHarness(t)
	alice := h.connect(t, "a1", "alice")
	require.True(t, h.join(t, alice, generalID).OK)

	frames := alice.Named(domain.EventMessageCreated)
	require.Len(t, frames, 1)
	msg, err := testutil.Decode[domain.MessagePayload](frames[0])
	require.NoError(t, err)
	assert.Equal(t, "Welcome to #general, Alice!", *msg.Content)
	assert.Equal(t, "Bot", msg.Author.DisplayName)
	assert.Equal(t, generalID, msg.ChannelID)
}
