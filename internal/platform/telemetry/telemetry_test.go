package telemetry

import (
	"context"
	"testing"

	"chatterbox/internal/config"

	"github.com/stretchr/testify/require"
)

func TestInitTelemetryDisabledIsNoop(t *testing.T) {
	cfg := config.Config{
		Service: &config.ServiceConfig{Name: "chatterbox", Env: "test"},
		Tracer:  &config.TracerConfig{Enabled: false},
	}
	shutdown, err := InitTelemetry(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
