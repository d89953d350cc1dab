package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contest-leaderboard/internal/config"
)

func TestSetupDisabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.TracingConfig
	}{
		{name: "disabled", cfg: config.TracingConfig{Enabled: false, Endpoint: "http://localhost:4318"}},
		{name: "no endpoint", cfg: config.TracingConfig{Enabled: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdown, err := Setup(context.Background(), tt.cfg)
			require.NoError(t, err)
			require.NotNil(t, shutdown)
			assert.NoError(t, shutdown(context.Background()))
		})
	}
}

func TestSetupEnabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{
		Enabled:     true,
		Endpoint:    "http://127.0.0.1:4318",
		ServiceName: "contest-leaderboard-test",
	})
	require.NoError(t, err)

	// nothing was exported, so shutdown does not contact the collector
	assert.NoError(t, shutdown(context.Background()))
}
