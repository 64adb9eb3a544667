package api

import (
	"time"

	"github.com/dropgate/dropgate/internal/bytesize"
)

// Defaults applied by applyDefaults when fields are zero.
const (
	DefaultPort              = 8080
	DefaultReadTimeout       = 15 * time.Minute
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultIdleTimeout       = 120 * time.Second

	DefaultMaxChunkSize  = 80 * bytesize.MiB
	DefaultMaxSampleSize = 5 * bytesize.MiB
)

// Config holds the HTTP API server configuration.
type Config struct {
	// Enabled controls whether the API server starts. A nil value
	// means enabled.
	Enabled *bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the TCP port the server listens on.
	Port int `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`

	// ReadTimeout bounds reading an entire request, body included.
	// Chunk bodies arrive over slow links, so the default is generous.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// ReadHeaderTimeout bounds reading the request headers, keeping
	// idle half-open connections from pinning the generous read
	// timeout.
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`

	// WriteTimeout bounds writing the response. Zero disables the
	// deadline; artifact downloads have no natural upper bound.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout bounds how long keep-alive connections may sit
	// idle.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// MaxChunkSize caps the payload of a single uploaded chunk.
	MaxChunkSize bytesize.ByteSize `mapstructure:"max_chunk_size" yaml:"max_chunk_size"`

	// MaxSampleSize caps the payload of a network probe sample.
	MaxSampleSize bytesize.ByteSize `mapstructure:"max_sample_size" yaml:"max_sample_size"`
}

// IsEnabled returns whether the API server should run.
// Defaults to true when not explicitly configured.
func (c *Config) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// applyDefaults fills in zero-valued fields. WriteTimeout is left
// alone because zero is meaningful there: no write deadline.
func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.MaxChunkSize == 0 {
		c.MaxChunkSize = DefaultMaxChunkSize
	}
	if c.MaxSampleSize == 0 {
		c.MaxSampleSize = DefaultMaxSampleSize
	}
}
