package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "Defaults", mutate: func(*Config) {}},
		{name: "InvalidLogLevel", mutate: func(c *Config) { c.Logging.Level = "LOUD" }, wantErr: "oneof"},
		{name: "InvalidLogFormat", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "Logging.Format"},
		{name: "APIPortTooHigh", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: "API.Port"},
		{name: "CoordinatorPortNegative", mutate: func(c *Config) { c.Coordinator.Port = -1 }, wantErr: "Coordinator.Port"},
		{name: "ZeroQueueCapacity", mutate: func(c *Config) { c.Coordinator.QueueCapacity = 0 }, wantErr: "QueueCapacity"},
		{name: "ZeroPollInterval", mutate: func(c *Config) { c.Coordinator.PollInterval = 0 }, wantErr: "PollInterval"},
		{name: "NegativeAckTimeout", mutate: func(c *Config) { c.Coordinator.AckTimeout = -1 }, wantErr: "AckTimeout"},
		{name: "BadBindAddress", mutate: func(c *Config) { c.Coordinator.BindAddress = "not an address" }, wantErr: "BindAddress"},
		{name: "HostnameBindAddress", mutate: func(c *Config) { c.Coordinator.BindAddress = "localhost" }},
		{name: "SampleRateAboveOne", mutate: func(c *Config) { c.Telemetry.SampleRate = 1.5 }, wantErr: "SampleRate"},
		{name: "TelemetryEnabledWithoutEndpoint", mutate: func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Endpoint = ""
		}, wantErr: "Telemetry.Endpoint"},
		{name: "UnknownProfileType", mutate: func(c *Config) { c.Telemetry.Profiling.ProfileTypes = []string{"heap"} }, wantErr: "ProfileTypes"},
		{name: "MetricsAndAPIPortClash", mutate: func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Port = c.API.Port
		}, wantErr: "must differ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
