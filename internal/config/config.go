package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"
)

// FileName is the configuration file looked up in each config directory
const FileName = "eventsync.jsonc"

// ErrNoServer is returned when no server matches the configured default
var ErrNoServer = errors.New("no server configured")

// Config is the eventsync.jsonc file format
type Config struct {
	Servers       []Server        `json:"servers"`
	DefaultServer string          `json:"default_server"`
	Directories   []string        `json:"directories"`
	Logging       LoggingSection  `json:"logging"`
	Metrics       MetricsSection  `json:"metrics"`
	Health        HealthSection   `json:"health"`
	Requests      RequestsSection `json:"requests"`

	// Path is the file the config was loaded from
	Path string `json:"-"`
}

// Server is one opencode server the client can connect to
type Server struct {
	Name     string `json:"name,omitempty"`
	URL      string `json:"url"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// DisplayName returns the configured name, or the URL without its scheme
func (s Server) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	name := strings.TrimPrefix(strings.TrimPrefix(s.URL, "https://"), "http://")
	return strings.TrimRight(name, "/")
}

// LoggingSection contains log output settings
type LoggingSection struct {
	Dir   string `json:"dir"`
	JSON  bool   `json:"json"`
	Level string `json:"level"`
}

// SlogLevel parses Level ("debug", "info", "warn", "error")
func (l LoggingSection) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", l.Level, err)
	}
	return level, nil
}

// MetricsSection contains the local metrics endpoint settings
type MetricsSection struct {
	Address string `json:"address"` // empty disables the endpoint
}

// HealthSection contains server health polling settings
type HealthSection struct {
	Schedule string `json:"schedule"` // cron spec, e.g. "@every 10s"
}

// RequestsSection limits requests made by directory clients
type RequestsSection struct {
	Rate  float64 `json:"rate"`  // requests per second
	Burst int     `json:"burst"` // max burst size
}

// FindConfigPath returns the path to eventsync.jsonc using precedence:
// 1. configDir + /eventsync.jsonc (if configDir specified)
// 2. ./config/eventsync.jsonc (project-local)
// 3. ~/.eventsync/config/eventsync.jsonc (user global)
func FindConfigPath(configDir string) (string, error) {
	if configDir != "" {
		path := filepath.Join(configDir, FileName)
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%s not found in %s", FileName, configDir)
		}
		return absPath(path), nil
	}

	candidates := []string{
		filepath.Join("config", FileName),
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".eventsync", "config", FileName))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return absPath(path), nil
		}
	}

	return "", fmt.Errorf("%s not found; tried: %v", FileName, candidates)
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

// Load reads and validates configuration from a JSONC file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", configPath, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", configPath, err)
	}
	cfg.Path = configPath

	return cfg, nil
}

// Parse decodes JSONC content, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(StripJSONComments(data), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	for i := range cfg.Servers {
		cfg.Servers[i].URL = NormalizeServerURL(cfg.Servers[i].URL)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Health.Schedule == "" {
		cfg.Health.Schedule = "@every 10s"
	}

	if cfg.Requests.Rate == 0 {
		cfg.Requests.Rate = 10
	}
	if cfg.Requests.Burst == 0 {
		cfg.Requests.Burst = 20
	}
}

// Validate checks that required configuration is present
func (c *Config) Validate() error {
	if len(c.Servers) == 0 {
		return fmt.Errorf("%w: add at least one entry to servers", ErrNoServer)
	}

	for _, s := range c.Servers {
		u, err := url.Parse(s.URL)
		if err != nil || u.Host == "" {
			return fmt.Errorf("invalid server url %q", s.URL)
		}
	}

	if _, err := c.ActiveServer(); err != nil {
		return err
	}

	if _, err := c.Logging.SlogLevel(); err != nil {
		return err
	}

	if _, err := cron.ParseStandard(c.Health.Schedule); err != nil {
		return fmt.Errorf("invalid health schedule %q: %w", c.Health.Schedule, err)
	}

	if c.Requests.Rate < 0 || c.Requests.Burst < 0 {
		return fmt.Errorf("requests rate and burst must not be negative")
	}

	return nil
}

// ActiveServer returns the server named by default_server, matched by name
// or URL, or the first server when no default is set
func (c *Config) ActiveServer() (Server, error) {
	if len(c.Servers) == 0 {
		return Server{}, ErrNoServer
	}
	if c.DefaultServer == "" {
		return c.Servers[0], nil
	}

	want := NormalizeServerURL(c.DefaultServer)
	for _, s := range c.Servers {
		if s.Name == c.DefaultServer || s.URL == want {
			return s, nil
		}
	}
	return Server{}, fmt.Errorf("%w: default_server %q does not match any server", ErrNoServer, c.DefaultServer)
}

// NormalizeServerURL trims input, adds http:// when no scheme is given and
// drops trailing slashes. Empty input stays empty.
func NormalizeServerURL(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	return strings.TrimRight(trimmed, "/")
}
