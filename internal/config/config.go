// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/api-gateway/config.toml",
	"configs/config.toml",
}

// serviceNamePattern restricts service names to values usable as a route segment.
var serviceNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config      string   `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host        string   `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port        int      `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	LogLevel    string   `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	CORSOrigins []string `kong:"name='cors-origin',sep=',',help='Allowed CORS origins, comma separated (overrides config).',env='CORS_ORIGIN'"`
	Debug       bool     `kong:"help='Include error details in 500 responses.',env='GATEWAY_DEBUG'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig             `toml:"server"`
	Upstream UpstreamConfig           `toml:"upstream"`
	Services map[string]ServiceConfig `toml:"services"`
	CORS     CORSConfig               `toml:"cors"`
	Log      LogConfig                `toml:"log"`
	Metrics  MetricsConfig            `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (3000); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	Debug        bool            `toml:"debug"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// UpstreamConfig holds settings shared by all upstream connections.
type UpstreamConfig struct {
	IdleConnections  int   `toml:"idle_connections"`
	DefaultTimeoutMS int   `toml:"default_timeout_ms"`
	MaxResponseBytes int64 `toml:"max_response_bytes"`
}

// ServiceConfig describes one routed backend service. An empty BaseURL
// declares the route without configuring an upstream for it.
type ServiceConfig struct {
	BaseURL     string `toml:"base_url"`
	TimeoutMS   int    `toml:"timeout_ms"`
	Description string `toml:"description"`
}

// CORSConfig holds the cross-origin allow-lists.
type CORSConfig struct {
	AllowOrigins  []string `toml:"allow_origins"`
	AllowMethods  []string `toml:"allow_methods"`
	AllowHeaders  []string `toml:"allow_headers"`
	MaxAgeSeconds int      `toml:"max_age_seconds"`
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

// defaultServices is used when the config declares no services at all.
var defaultServices = map[string]ServiceConfig{
	"sso":     {BaseURL: "https://sso.com", Description: "Single Sign-On authentication service"},
	"core":    {BaseURL: "https://core.com", Description: "Core business logic service"},
	"chat":    {BaseURL: "https://chat.com", Description: "Real-time chat service"},
	"islamic": {BaseURL: "https://islamic.com", Description: "Islamic content and services"},
	"article": {BaseURL: "https://article.com", Description: "Article content and services"},
	"payment": {BaseURL: "https://payment.com", Description: "Payment content and services"},
}

var (
	defaultCORSMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS", "HEAD"}
	defaultCORSHeaders = []string{
		"Content-Type",
		"Authorization",
		"X-Requested-With",
		"Accept",
		"Origin",
		"Access-Control-Request-Method",
		"Access-Control-Request-Headers",
		"sec-ch-ua",
		"sec-ch-ua-mobile",
		"sec-ch-ua-platform",
		"User-Agent",
		"Referer",
	}
)

// Load reads the TOML config file, applies CLI and environment overrides and
// validates the result. When no explicit path is given (via --config or
// CONFIG_PATH) it searches /etc/api-gateway/config.toml then
// configs/config.toml, and falls back to built-in defaults if neither exists.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	if len(cfg.Services) == 0 {
		cfg.Services = make(map[string]ServiceConfig, len(defaultServices))
		for name, svc := range defaultServices {
			cfg.Services[name] = svc
		}
	}

	cfg.applyCLI(cli)
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}

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
	if len(cli.CORSOrigins) > 0 {
		c.CORS.AllowOrigins = trimAll(cli.CORSOrigins)
	}
	if cli.Debug {
		c.Server.Debug = true
	}
}

// applyEnv applies <NAME>_SERVICE_URL and <NAME>_SERVICE_TIMEOUT_MS overrides
// for every declared service.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for name, svc := range c.Services {
		prefix := EnvPrefix(name)
		if v, ok := lookup(prefix + "_SERVICE_URL"); ok {
			svc.BaseURL = strings.TrimSpace(v)
		}
		if v, ok := lookup(prefix + "_SERVICE_TIMEOUT_MS"); ok {
			ms, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s_SERVICE_TIMEOUT_MS: %w", prefix, err)
			}
			svc.TimeoutMS = ms
		}
		c.Services[name] = svc
	}
	return nil
}

// EnvPrefix returns the environment variable prefix for a service name.
func EnvPrefix(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func (c *Config) validate() error {
	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Upstream.DefaultTimeoutMS < 0 {
		return fmt.Errorf("upstream.default_timeout_ms must be non-negative; got %d", c.Upstream.DefaultTimeoutMS)
	}
	if c.Upstream.MaxResponseBytes < 0 {
		return fmt.Errorf("upstream.max_response_bytes must be non-negative; got %d", c.Upstream.MaxResponseBytes)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}
	if c.CORS.MaxAgeSeconds < 0 {
		return fmt.Errorf("cors.max_age_seconds must be non-negative; got %d", c.CORS.MaxAgeSeconds)
	}

	for _, name := range c.ServiceNames() {
		if err := validateService(name, c.Services[name]); err != nil {
			return err
		}
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' || p == "/" {
			return fmt.Errorf("metrics.path must start with '/' and name a path; got %q", p)
		}
		for _, reserved := range []string{"/api", "/health"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

func validateService(name string, svc ServiceConfig) error {
	if !serviceNamePattern.MatchString(name) {
		return fmt.Errorf("services.%s: name must match %s", name, serviceNamePattern)
	}
	if svc.TimeoutMS < 0 {
		return fmt.Errorf("services.%s.timeout_ms must be non-negative; got %d", name, svc.TimeoutMS)
	}
	if svc.BaseURL == "" {
		return nil
	}
	u, err := url.Parse(svc.BaseURL)
	if err != nil {
		return fmt.Errorf("services.%s.base_url is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("services.%s.base_url must use http or https; got %q", name, svc.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("services.%s.base_url must include a host; got %q", name, svc.BaseURL)
	}
	if strings.HasSuffix(svc.BaseURL, "/") {
		return fmt.Errorf("services.%s.base_url must not end with '/'; got %q", name, svc.BaseURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("services.%s.base_url must not carry a query or fragment; got %q", name, svc.BaseURL)
	}
	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Upstream.DefaultTimeoutMS == 0 {
		c.Upstream.DefaultTimeoutMS = 30000
	}
	if c.Upstream.MaxResponseBytes == 0 {
		c.Upstream.MaxResponseBytes = 64 * 1024 * 1024 // 64 MB
	}
	for name, svc := range c.Services {
		if svc.TimeoutMS == 0 {
			svc.TimeoutMS = c.Upstream.DefaultTimeoutMS
		}
		c.Services[name] = svc
	}
	if len(c.CORS.AllowOrigins) == 0 {
		c.CORS.AllowOrigins = []string{"*"}
	}
	if len(c.CORS.AllowMethods) == 0 {
		c.CORS.AllowMethods = append([]string(nil), defaultCORSMethods...)
	}
	if len(c.CORS.AllowHeaders) == 0 {
		c.CORS.AllowHeaders = append([]string(nil), defaultCORSHeaders...)
	}
	if c.CORS.MaxAgeSeconds == 0 {
		c.CORS.MaxAgeSeconds = 86400
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

// ServiceNames returns the declared service names in sorted order.
func (c *Config) ServiceNames() []string {
	names := make([]string, 0, len(c.Services))
	for name := range c.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
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

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// FilePath returns the config file the values were read from, or "" when
// built-in defaults were used.
func (c *Config) FilePath() string {
	return c.filePath
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
