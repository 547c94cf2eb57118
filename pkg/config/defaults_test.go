package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/marmos91/lockstep/pkg/api"
)

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging:         LoggingConfig{Level: "error", Format: "json", Output: "stderr"},
		ShutdownTimeout: time.Minute,
		Coordinator: CoordinatorConfig{
			Port:          1234,
			QueueCapacity: 3,
			PollInterval:  time.Second,
		},
	}
	ApplyDefaults(cfg)

	assert.Equal(t, "ERROR", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.Equal(t, time.Minute, cfg.ShutdownTimeout)
	assert.Equal(t, 1234, cfg.Coordinator.Port)
	assert.Equal(t, 3, cfg.Coordinator.QueueCapacity)
	assert.Equal(t, time.Second, cfg.Coordinator.PollInterval)
	assert.Equal(t, DefaultMaxSendDelay, cfg.Coordinator.MaxSendDelay)
}

func TestApplyDefaults_MetricsPortOnlyWhenEnabled(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	assert.Zero(t, cfg.Metrics.Port)

	cfg = &Config{Metrics: MetricsConfig{Enabled: true}}
	ApplyDefaults(cfg)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	assert.NoError(t, Validate(cfg))
	assert.Len(t, cfg.Telemetry.Profiling.ProfileTypes, 6)
	assert.InDelta(t, 1.0, cfg.Telemetry.SampleRate, 0)
}

func TestAPIConfig_IsEnabled(t *testing.T) {
	var cfg api.APIConfig
	assert.True(t, cfg.IsEnabled())

	off := false
	cfg.Enabled = &off
	assert.False(t, cfg.IsEnabled())
}
