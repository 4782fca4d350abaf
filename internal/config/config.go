package config

import (
	"time"

	"github.com/webissues/webissues-go/internal/transport"
)

// Config holds runtime settings for the WebIssues CLI.
type Config struct {
	ServerURL       string
	ConnectTimeout  time.Duration
	ReadTimeout     time.Duration
	ProtocolVersion transport.Version
	CacheFile       string
}

// LoadDefaults populates c with sensible defaults. The 8 second timeouts are
// the protocol's historical defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = ""
	c.ConnectTimeout = 8 * time.Second
	c.ReadTimeout = 8 * time.Second
	c.ProtocolVersion = transport.VersionAuto
	c.CacheFile = ""
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}

// parseVersion maps a configuration token to a protocol version; anything
// unrecognized means auto-detect.
func parseVersion(s string) transport.Version {
	switch s {
	case "legacy":
		return transport.VersionLegacy
	case "modern":
		return transport.VersionModern
	default:
		return transport.VersionAuto
	}
}
