// Package config provides configuration types for socketgate.
//
// Configuration is file-based (YAML) with environment overrides. All state
// the gateway keeps is per connection and in memory, so there is no storage
// section.
package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/socketgate/socketgate/internal/domain/connection"
	"github.com/socketgate/socketgate/internal/domain/cookie"
	"github.com/socketgate/socketgate/internal/domain/ratelimit"
)

// Config is the top-level configuration for socketgate.
type Config struct {
	// Server configures the HTTP listener and socket endpoint.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Connection configures the per-connection cookie and header policy.
	Connection ConnectionConfig `yaml:"connection" mapstructure:"connection"`

	// Upstream configures the HTTP application requests are injected into.
	// Required unless DevMode is set, in which case a built-in echo
	// application serves requests.
	Upstream UpstreamConfig `yaml:"upstream" mapstructure:"upstream"`

	// RateLimit configures the shared limiter's bookkeeping.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// Admin configures the admin API.
	Admin AdminConfig `yaml:"admin" mapstructure:"admin"`

	// Telemetry configures OpenTelemetry exporters.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// DevMode enables development features (debug logging, echo upstream,
	// any origin).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:1337", "0.0.0.0:1337").
	// Defaults to "127.0.0.1:1337" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// SocketPath is the path socket upgrades are served on.
	// Defaults to "/socket".
	SocketPath string `yaml:"socket_path" mapstructure:"socket_path" validate:"omitempty,startswith=/"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// AllowedOrigins lists browser origins admitted for socket upgrades.
	// Empty admits same-host origins only; "*" admits all.
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins" validate:"omitempty,dive,required"`

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `yaml:"tls_cert" mapstructure:"tls_cert" validate:"required_with=TLSKey"`
	TLSKey  string `yaml:"tls_key" mapstructure:"tls_key" validate:"required_with=TLSCert"`

	// ReadLimit is the largest accepted socket frame in bytes.
	// Defaults to 1 MiB.
	ReadLimit int64 `yaml:"read_limit" mapstructure:"read_limit" validate:"omitempty,min=1"`
}

// ConnectionConfig configures how each connection shapes its requests.
type ConnectionConfig struct {
	// Cookies turns on the per-connection cookie jar.
	// Defaults to true when not set.
	Cookies bool `yaml:"cookies" mapstructure:"cookies"`

	// CookieURI is the URI cookies are scoped to.
	// Defaults to cookie.DefaultURI.
	CookieURI string `yaml:"cookie_uri" mapstructure:"cookie_uri" validate:"omitempty,url"`

	// Sticky lists handshake headers replayed on every request.
	Sticky []string `yaml:"sticky" mapstructure:"sticky" validate:"omitempty,dive,header_name"`

	// Strip lists response headers removed before delivery.
	Strip []string `yaml:"strip" mapstructure:"strip" validate:"omitempty,dive,header_name"`

	// RequestRate is the number of requests per minute one connection may
	// send. 0 means unlimited.
	RequestRate int `yaml:"request_rate" mapstructure:"request_rate" validate:"omitempty,min=0"`

	// RequestBurst is how many requests a connection may send at once.
	// Defaults to RequestRate.
	RequestBurst int `yaml:"request_burst" mapstructure:"request_burst" validate:"omitempty,min=0"`

	// ConnectRate is the number of connections per minute one remote
	// address may open. 0 means unlimited.
	ConnectRate int `yaml:"connect_rate" mapstructure:"connect_rate" validate:"omitempty,min=0"`
}

// UpstreamConfig configures the injection target.
type UpstreamConfig struct {
	// URL is the base URL of the HTTP application (e.g., "http://127.0.0.1:8080").
	URL string `yaml:"url" mapstructure:"url" validate:"omitempty,url"`

	// Timeout is the timeout for one injected request (e.g., "30s", "1m").
	// Defaults to "30s" if not specified.
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`
}

// RateLimitConfig configures the limiter's bookkeeping.
type RateLimitConfig struct {
	// CleanupInterval is how often to clean up idle rate limit entries (e.g., "5m").
	// Defaults to "5m" if not specified.
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty,duration"`

	// MaxTTL is the maximum idle age of a rate limit entry before removal (e.g., "1h").
	// Defaults to "1h" if not specified.
	MaxTTL string `yaml:"max_ttl" mapstructure:"max_ttl" validate:"omitempty,duration"`
}

// AdminConfig configures the admin API.
type AdminConfig struct {
	// Enabled mounts the admin API under /admin/api/.
	// Defaults to true when not set.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Token admits remote callers presenting it as a bearer token.
	// Without a token or token hash the admin API is localhost-only.
	Token string `yaml:"token" mapstructure:"token"`

	// TokenHash is an Argon2id hash of the token, as printed by
	// "socketgate hash-token". It can replace Token so the plain token
	// never sits in the config file.
	TokenHash string `yaml:"token_hash" mapstructure:"token_hash" validate:"omitempty,startswith=$argon2id$"`
}

// TelemetryConfig configures the OpenTelemetry stdout exporters.
type TelemetryConfig struct {
	// Traces exports one span per injected request.
	Traces bool `yaml:"traces" mapstructure:"traces"`

	// Metrics exports the OpenTelemetry instruments.
	Metrics bool `yaml:"metrics" mapstructure:"metrics"`

	// MetricsInterval is the export period (e.g., "60s").
	// Defaults to "60s".
	MetricsInterval string `yaml:"metrics_interval" mapstructure:"metrics_interval" validate:"omitempty,duration"`
}

// SetDevDefaults applies permissive defaults for development mode.
// These defaults are applied BEFORE validation so required fields are satisfied.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}

	c.Server.LogLevel = "debug"
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	// Bind to localhost only unless told otherwise.
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:1337"
	}
	if c.Server.SocketPath == "" {
		c.Server.SocketPath = "/socket"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.ReadLimit == 0 {
		c.Server.ReadLimit = 1 << 20
	}

	// viper.IsSet distinguishes "not set" (zero value) from "explicitly false".
	if !viper.IsSet("connection.cookies") {
		c.Connection.Cookies = true
	}
	if c.Connection.CookieURI == "" {
		c.Connection.CookieURI = cookie.DefaultURI
	}
	if c.Connection.RequestBurst == 0 {
		c.Connection.RequestBurst = c.Connection.RequestRate
	}

	if c.Upstream.Timeout == "" {
		c.Upstream.Timeout = "30s"
	}

	if c.RateLimit.CleanupInterval == "" {
		c.RateLimit.CleanupInterval = "5m"
	}
	if c.RateLimit.MaxTTL == "" {
		c.RateLimit.MaxTTL = "1h"
	}

	if !viper.IsSet("admin.enabled") {
		c.Admin.Enabled = true
	}

	if c.Telemetry.MetricsInterval == "" {
		c.Telemetry.MetricsInterval = "60s"
	}
}

// ConnectionSettings returns the per-connection policy.
func (c *Config) ConnectionSettings() connection.Config {
	return connection.Config{
		Cookies:   c.Connection.Cookies,
		CookieURI: c.Connection.CookieURI,
		Sticky:    c.Connection.Sticky,
		Strip:     c.Connection.Strip,
		Budget:    perMinute(c.Connection.RequestRate, c.Connection.RequestBurst),
	}
}

// ConnectBudget returns the per-address connection budget.
func (c *Config) ConnectBudget() ratelimit.Config {
	return perMinute(c.Connection.ConnectRate, c.Connection.ConnectRate)
}

func perMinute(rate, burst int) ratelimit.Config {
	if rate <= 0 {
		return ratelimit.Config{}
	}
	return ratelimit.Config{Rate: rate, Burst: burst, Period: time.Minute}
}

// UpstreamTimeout returns Upstream.Timeout parsed. Validate guarantees it
// parses; the zero value is returned otherwise.
func (c *Config) UpstreamTimeout() time.Duration {
	return parseDuration(c.Upstream.Timeout)
}

// CleanupInterval returns RateLimit.CleanupInterval parsed.
func (c *Config) CleanupInterval() time.Duration {
	return parseDuration(c.RateLimit.CleanupInterval)
}

// MaxTTL returns RateLimit.MaxTTL parsed.
func (c *Config) MaxTTL() time.Duration {
	return parseDuration(c.RateLimit.MaxTTL)
}

// MetricsInterval returns Telemetry.MetricsInterval parsed.
func (c *Config) MetricsInterval() time.Duration {
	return parseDuration(c.Telemetry.MetricsInterval)
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
