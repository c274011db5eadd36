// Package config defines poller configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Functions accept context.Context as the first parameter.
// - External errors are wrapped via this package's sentinel errors.
package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config contains process configuration. It is built once at startup and
// read-only afterwards.
type Config struct {
	// Server is the host (optionally with scheme) of the map-data endpoint.
	Server string `koanf:"server"`

	// Port is the TCP port of the map-data endpoint.
	Port int `koanf:"port"`

	// Pokedex is the directory holding the daily log files.
	Pokedex string `koanf:"pokedex"`

	// Delay is the pause between poll cycles, in seconds.
	Delay int `koanf:"delay"`

	// LogLevel controls verbosity: debug, info, warn, error.
	// "info" additionally logs one line per new encounter.
	LogLevel string `koanf:"loglevel"`

	// LogFile is the service log path; empty logs to stderr.
	LogFile string `koanf:"logfile"`

	// LogFormat selects text or json service logs.
	LogFormat string `koanf:"log_format"`

	// FetchTimeout bounds each map-data request. Zero leaves it unbounded.
	FetchTimeout time.Duration `koanf:"fetch_timeout"`

	// MetricsAddr enables the observability endpoint when non-empty, e.g. ":9100".
	MetricsAddr string `koanf:"metrics_addr"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		Server:    "127.0.0.1",
		Port:      5000,
		Pokedex:   "/var/log/pokemon",
		Delay:     60,
		LogLevel:  "warn",
		LogFormat: "text",
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Server) == "":
		return fmt.Errorf("%w: server must not be empty", ErrInvalidConfig)
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	case strings.TrimSpace(c.Pokedex) == "":
		return fmt.Errorf("%w: pokedex directory must not be empty", ErrInvalidConfig)
	case c.Delay < 0:
		return fmt.Errorf("%w: delay must not be negative", ErrInvalidConfig)
	case c.FetchTimeout < 0:
		return fmt.Errorf("%w: fetch_timeout must not be negative", ErrInvalidConfig)
	}
	return nil
}

// BaseURL returns the endpoint root, e.g. http://127.0.0.1:5000.
// A server given without a scheme is treated as plain http.
func (c *Config) BaseURL() string {
	server := strings.TrimRight(strings.TrimSpace(c.Server), "/")
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	return server + ":" + strconv.Itoa(c.Port)
}

// PollDelay returns Delay as a duration.
func (c *Config) PollDelay() time.Duration {
	return time.Duration(c.Delay) * time.Second
}

// InfoEnabled reports whether per-encounter info lines are wanted.
func (c *Config) InfoEnabled() bool {
	return strings.EqualFold(strings.TrimSpace(c.LogLevel), "info")
}
