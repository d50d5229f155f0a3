// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/fwdproxy/config.toml",
	"configs/config.toml",
}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config   string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host     string `kong:"help='Proxy listen host (overrides config).',env='HOST'"`
	Port     int    `kong:"short='p',help='Proxy listen port (overrides config).',env='PORT'"`
	LogLevel string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Admin     AdminConfig     `toml:"admin"`
	Upstream  UpstreamConfig  `toml:"upstream"`
	Tunnel    TunnelConfig    `toml:"tunnel"`
	Filter    FilterConfig    `toml:"filter"`
	Anonymous AnonymousConfig `toml:"anonymous"`
	ACL       ACLConfig       `toml:"acl"`
	Log       LogConfig       `toml:"log"`
	Metrics   MetricsConfig   `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds the forward-proxy listener settings.
type ServerConfig struct {
	Host              string `toml:"host"`
	Port              int    `toml:"port"` // 0 means "use default" (8080); TOML cannot distinguish 0 from unset
	IdleTimeoutSecs   int    `toml:"idle_timeout_seconds"`
	ConnectTimeoutSec int    `toml:"connect_timeout_seconds"`
	StatHost          string `toml:"stat_host"`
	MyDomain          string `toml:"my_domain"`
	PackageName       string `toml:"package_name"`
	Version           string `toml:"version"`
}

// AdminConfig holds the admin/observability HTTP surface settings
// (health, metrics, proxy status), served separately from the proxy port.
type AdminConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// UpstreamConfig configures an optional parent proxy every request is
// relayed through instead of connecting directly to the origin.
type UpstreamConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// TunnelConfig configures an optional fixed TCP redirection target: every
// accepted connection is relayed to this address with no HTTP parsing.
type TunnelConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// FilterConfig controls domain filtering (filter_url).
type FilterConfig struct {
	Enabled  bool     `toml:"enabled"`
	Patterns []string `toml:"patterns"`
}

// AnonymousConfig controls the anonymous-mode header allow-list.
type AnonymousConfig struct {
	Enabled       bool     `toml:"enabled"`
	AllowedHeader []string `toml:"allowed_headers"`
}

// ACLConfig holds the ordered allow/deny rule list checked against every
// accepted connection's remote address (check_acl).
type ACLConfig struct {
	Rules []string `toml:"rules"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/fwdproxy/config.toml then configs/config.toml.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path == "" {
		return nil, fmt.Errorf("config: no config file found (searched %v)", configSearchPaths)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.filePath = path
	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Admin.Port < 0 || c.Admin.Port > 65535 {
		return fmt.Errorf("admin.port must be 0–65535; got %d", c.Admin.Port)
	}
	if c.Server.IdleTimeoutSecs < 0 {
		return fmt.Errorf("server.idle_timeout_seconds must be non-negative; got %d", c.Server.IdleTimeoutSecs)
	}
	if c.Server.ConnectTimeoutSec < 0 {
		return fmt.Errorf("server.connect_timeout_seconds must be non-negative; got %d", c.Server.ConnectTimeoutSec)
	}

	upstreamSet := c.Upstream.Host != "" || c.Upstream.Port != 0
	if upstreamSet && (c.Upstream.Host == "" || c.Upstream.Port == 0) {
		return fmt.Errorf("upstream.host and upstream.port must both be set or both be empty")
	}
	if c.Upstream.Port < 0 || c.Upstream.Port > 65535 {
		return fmt.Errorf("upstream.port must be 0–65535; got %d", c.Upstream.Port)
	}

	tunnelSet := c.Tunnel.Host != "" || c.Tunnel.Port != 0
	if tunnelSet && (c.Tunnel.Host == "" || c.Tunnel.Port == 0) {
		return fmt.Errorf("tunnel.host and tunnel.port must both be set or both be empty")
	}
	if c.Tunnel.Port < 0 || c.Tunnel.Port > 65535 {
		return fmt.Errorf("tunnel.port must be 0–65535; got %d", c.Tunnel.Port)
	}
	if upstreamSet && tunnelSet {
		return fmt.Errorf("upstream and tunnel modes are mutually exclusive; configure only one")
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/healthz", "/proxy/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, IdleTimeoutSecs, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Admin.Host == "" {
		c.Admin.Host = "127.0.0.1"
	}
	if c.Admin.Port == 0 {
		c.Admin.Port = 8081
	}
	if c.Server.IdleTimeoutSecs == 0 {
		c.Server.IdleTimeoutSecs = 600
	}
	if c.Server.ConnectTimeoutSec == 0 {
		c.Server.ConnectTimeoutSec = 10
	}
	if c.Server.PackageName == "" {
		c.Server.PackageName = "fwdproxy"
	}
	if c.Server.Version == "" {
		c.Server.Version = "1.0"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the proxy listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the admin listen address as host:port.
func (c *AdminConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IdleTimeout returns the relay idle bound as a time.Duration.
func (c *ServerConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSecs) * time.Second
}

// ConnectTimeout returns the upstream dial timeout as a time.Duration.
func (c *ServerConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSec) * time.Second
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
