// Package config loads service configuration from a JSON file with
// credentials overlaid from the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// Defaults applied when the config file omits a value.
const (
	DefaultResource              = "SparkAlerts NWWS Ingest Client"
	DefaultMaxReconnectAttempts  = 10
	DefaultInitialReconnectDelay = 2000 * time.Millisecond
	DefaultPort                  = 8433
	DefaultRateLimitWindow       = 15 * time.Minute
	DefaultRateLimitMax          = 100
)

// APIKey is one configured bearer key.
type APIKey struct {
	Name      string `json:"name"`
	RateLimit int    `json:"rateLimit,omitempty"`
	Active    bool   `json:"active"`
	LastUsed  string `json:"lastUsed,omitempty"`
}

// NWWSOI holds the XMPP connection options.
type NWWSOI struct {
	Resource              string `json:"resource"`
	MaxReconnectAttempts  int    `json:"maxReconnectAttempts"`
	InitialReconnectDelay int    `json:"initialReconnectDelay"` // milliseconds
}

// RateLimit configures the per-key request window. One upstream
// variant computed the window as 15*60 milliseconds; windowMs is
// surfaced as config precisely so deployments can choose, and the
// default here is the 15 minute reading.
type RateLimit struct {
	WindowMs   int64 `json:"windowMs"`
	DefaultMax int   `json:"defaultMax"`
}

// Config is the full service configuration.
type Config struct {
	XMPPUsername string `json:"-"`
	XMPPPassword string `json:"-"`

	NWWSOI          NWWSOI             `json:"nwwsoi"`
	ExpressPort     int                `json:"expressPort"`
	APIKeys         map[string]*APIKey `json:"apiKeys"`
	DomainWhitelist []string           `json:"domainWhitelist"`
	AllowNoOrigin   bool               `json:"allowNoOrigin"`
	AllowNoGeometry bool               `json:"allowNoGeometry"`
	AllowedAlerts   []string           `json:"allowedAlerts"`
	RateLimit       RateLimit          `json:"rateLimit"`
}

// ErrMissingCredentials is returned when the required XMPP credentials
// are absent from the environment.
var ErrMissingCredentials = errors.New("NWWS_USERNAME and NWWS_PASSWORD must be set")

// Load reads the JSON config file and overlays environment values. A
// missing file yields pure defaults; a malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// defaults only
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.XMPPUsername = os.Getenv("NWWS_USERNAME")
	cfg.XMPPPassword = os.Getenv("NWWS_PASSWORD")

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.NWWSOI.Resource == "" {
		c.NWWSOI.Resource = DefaultResource
	}
	if c.NWWSOI.MaxReconnectAttempts <= 0 {
		c.NWWSOI.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.NWWSOI.InitialReconnectDelay <= 0 {
		c.NWWSOI.InitialReconnectDelay = int(DefaultInitialReconnectDelay / time.Millisecond)
	}
	if c.ExpressPort <= 0 {
		c.ExpressPort = DefaultPort
	}
	if c.RateLimit.WindowMs <= 0 {
		c.RateLimit.WindowMs = int64(DefaultRateLimitWindow / time.Millisecond)
	}
	if c.RateLimit.DefaultMax <= 0 {
		c.RateLimit.DefaultMax = DefaultRateLimitMax
	}
	if c.APIKeys == nil {
		c.APIKeys = make(map[string]*APIKey)
	}
}

// ValidateCredentials checks that the XMPP credentials are present.
func (c *Config) ValidateCredentials() error {
	if c.XMPPUsername == "" || c.XMPPPassword == "" {
		return ErrMissingCredentials
	}
	return nil
}

// InitialReconnectDelayDuration returns the backoff base as a Duration.
func (c *Config) InitialReconnectDelayDuration() time.Duration {
	return time.Duration(c.NWWSOI.InitialReconnectDelay) * time.Millisecond
}

// RateLimitWindow returns the rate limit window as a Duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowMs) * time.Millisecond
}
