package http

import (
	"time"

	"commetrics-server/pkg/config"
)

// Config holds the HTTP server configuration
type Config struct {
	// Port is the HTTP server port
	Port int

	// EnableMetrics exposes /metrics
	EnableMetrics bool

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewDefaultConfig returns a new default configuration
func NewDefaultConfig() *Config {
	return &Config{
		Port:            8080,
		EnableMetrics:   true,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// ConfigFrom converts the application HTTP settings
func ConfigFrom(c config.HTTPConfig) *Config {
	return &Config{
		Port:            c.Port,
		EnableMetrics:   c.EnableMetrics,
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		IdleTimeout:     c.IdleTimeout,
		ShutdownTimeout: c.ShutdownTimeout,
	}
}
