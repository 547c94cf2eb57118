package config

import (
	"github.com/marmos91/lockstep/pkg/metrics"
)

// MetricsResult holds what InitializeMetrics set up.
type MetricsResult struct {
	// Server exposes /metrics, or is nil when metrics are disabled.
	Server *metrics.Server
}

// InitializeMetrics creates the Prometheus registry and its HTTP server when
// metrics are enabled. It must run before any metrics constructor, since
// those return nil while the registry is absent.
func InitializeMetrics(cfg *Config) MetricsResult {
	if !cfg.Metrics.Enabled {
		metrics.Reset()
		return MetricsResult{}
	}

	metrics.InitRegistry()
	return MetricsResult{Server: metrics.NewServer(cfg.Metrics.Port)}
}
