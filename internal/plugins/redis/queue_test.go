package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type claimPage struct {
	msgs []redis.XMessage
	next string
	err  error
}

// fakeClaimer serves XAUTOCLAIM pages keyed by the start cursor.
type fakeClaimer struct {
	pages  map[string]claimPage
	starts []string
}

func (f *fakeClaimer) claim(start string) ([]redis.XMessage, string, error) {
	f.starts = append(f.starts, start)
	p := f.pages[start]
	return p.msgs, p.next, p.err
}

func TestDrainPending_FollowsCursor(t *testing.T) {
	f := &fakeClaimer{pages: map[string]claimPage{
		"0-0": {msgs: []redis.XMessage{{ID: "1-0"}, {ID: "2-0"}}, next: "5-0"},
		"5-0": {msgs: []redis.XMessage{{ID: "5-0"}}, next: "0-0"},
	}}
	var handled []string

	n, err := drainPending(context.Background(), f.claim, func(m redis.XMessage) {
		handled = append(handled, m.ID)
	})

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"1-0", "2-0", "5-0"}, handled)
	assert.Equal(t, []string{"0-0", "5-0"}, f.starts)
}

func TestDrainPending_EmptyPendingList(t *testing.T) {
	f := &fakeClaimer{pages: map[string]claimPage{"0-0": {next: "0-0"}}}

	n, err := drainPending(context.Background(), f.claim, func(redis.XMessage) {
		t.Fatal("nothing should be handled")
	})

	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDrainPending_StopsOnError(t *testing.T) {
	boom := errors.New("NOGROUP")
	f := &fakeClaimer{pages: map[string]claimPage{
		"0-0": {msgs: []redis.XMessage{{ID: "1-0"}}, next: "3-0"},
		"3-0": {err: boom},
	}}

	n, err := drainPending(context.Background(), f.claim, func(redis.XMessage) {})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)
}

func TestDrainPending_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &fakeClaimer{pages: map[string]claimPage{
		"0-0": {msgs: []redis.XMessage{{ID: "1-0"}}, next: "2-0"},
		"2-0": {msgs: []redis.XMessage{{ID: "2-0"}}, next: "0-0"},
	}}

	n, err := drainPending(ctx, f.claim, func(redis.XMessage) { cancel() })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, n)
}
