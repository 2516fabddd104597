package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PRESENCE_IDLE_THRESHOLD", "")
	t.Setenv("PRESENCE_SWEEP_INTERVAL", "")

	cfg := Load()
	require.NotNil(t, cfg.Presence)
	assert.Equal(t, 5*time.Minute, cfg.Presence.IdleThreshold)
	assert.Equal(t, 30*time.Second, cfg.Presence.SweepInterval)
	assert.Equal(t, 20, cfg.Presence.RecentLimit)
	assert.Equal(t, "general", cfg.Chat.DefaultChannel)
	assert.Equal(t, 30*time.Second, cfg.Worker.ClaimIdle)
	require.NotNil(t, cfg.Logger)
	require.NotNil(t, cfg.Tracer)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PRESENCE_IDLE_THRESHOLD", "90s")
	t.Setenv("PRESENCE_SWEEP_INTERVAL", "5s")
	t.Setenv("PRESENCE_RECENT_LIMIT", "7")
	t.Setenv("WORKER_ENABLED", "false")
	t.Setenv("WORKER_CLAIM_IDLE", "1m")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example.com, ,http://localhost:5173")
	t.Setenv("EVENTS_SECRET", "s3cret")

	cfg := Load()
	assert.Equal(t, 90*time.Second, cfg.Presence.IdleThreshold)
	assert.Equal(t, 5*time.Second, cfg.Presence.SweepInterval)
	assert.Equal(t, 7, cfg.Presence.RecentLimit)
	assert.False(t, cfg.Worker.Enabled)
	assert.Equal(t, time.Minute, cfg.Worker.ClaimIdle)
	assert.Equal(t, []string{"https://chat.example.com", "http://localhost:5173"}, cfg.Service.AllowedOrigins)
	assert.Equal(t, "s3cret", cfg.Service.EventsSecret)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("PRESENCE_SWEEP_INTERVAL", "soon")
	t.Setenv("PRESENCE_RECENT_LIMIT", "many")
	t.Setenv("OTEL_ENABLED", "perhaps")

	cfg := Load()
	assert.Equal(t, 30*time.Second, cfg.Presence.SweepInterval)
	assert.Equal(t, 20, cfg.Presence.RecentLimit)
	assert.False(t, cfg.Tracer.Enabled)
}
