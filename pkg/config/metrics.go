package config

import (
	"github.com/dropgate/dropgate/pkg/metrics"
)

// MetricsResult carries the wiring produced by InitializeMetrics.
type MetricsResult struct {
	// Server is the Prometheus scrape endpoint. Nil when metrics are
	// disabled; the caller decides whether and when to start it.
	Server *metrics.Server

	// Uploads records upload lifecycle counters. Nil when metrics are
	// disabled; nil collectors are safe to use and record nothing.
	Uploads *metrics.UploadMetrics
}

// InitializeMetrics sets up the Prometheus registry, collectors and
// scrape server when metrics are enabled. With metrics disabled it
// returns an empty result.
func InitializeMetrics(cfg *Config) MetricsResult {
	if !cfg.Metrics.Enabled {
		return MetricsResult{}
	}

	reg := metrics.InitRegistry()

	return MetricsResult{
		Server:  metrics.NewServer(cfg.Metrics.Port, reg),
		Uploads: metrics.NewUploadMetrics(),
	}
}
