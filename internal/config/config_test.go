package config

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("valid config", func(t *testing.T) {
		configPath := filepath.Join(tmpDir, "valid.jsonc")
		configJSON := `{
			// Test config
			"servers": [
				{"name": "local", "url": "localhost:4096/"},
				{"name": "remote", "url": "https://opencode.example.com", "password": "secret"}
			],
			"default_server": "remote",
			"directories": ["/work/app"],
			"logging": {"dir": "logs", "json": true},
			"metrics": {"address": "127.0.0.1:9464"},
			"health": {"schedule": "@every 30s"},
			"requests": {"rate": 5, "burst": 10}
		}`
		_ = os.WriteFile(configPath, []byte(configJSON), 0o644)

		cfg, err := Load(configPath)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Servers[0].URL != "http://localhost:4096" {
			t.Errorf("Servers[0].URL = %q, want %q", cfg.Servers[0].URL, "http://localhost:4096")
		}
		if cfg.Health.Schedule != "@every 30s" {
			t.Errorf("Health.Schedule = %q, want %q", cfg.Health.Schedule, "@every 30s")
		}
		if cfg.Requests.Rate != 5 || cfg.Requests.Burst != 10 {
			t.Errorf("Requests = %+v, want rate 5 burst 10", cfg.Requests)
		}
		if cfg.Path != configPath {
			t.Errorf("Path = %q, want %q", cfg.Path, configPath)
		}

		active, err := cfg.ActiveServer()
		if err != nil {
			t.Fatalf("ActiveServer() error = %v", err)
		}
		if active.Name != "remote" {
			t.Errorf("ActiveServer().Name = %q, want %q", active.Name, "remote")
		}
	})

	t.Run("defaults applied", func(t *testing.T) {
		configPath := filepath.Join(tmpDir, "defaults.jsonc")
		_ = os.WriteFile(configPath, []byte(`{"servers": [{"url": "http://127.0.0.1:4096"}]}`), 0o644)

		cfg, err := Load(configPath)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Logging.Level != "info" {
			t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
		}
		if cfg.Health.Schedule != "@every 10s" {
			t.Errorf("Health.Schedule = %q, want %q", cfg.Health.Schedule, "@every 10s")
		}
		if cfg.Requests.Rate != 10 || cfg.Requests.Burst != 20 {
			t.Errorf("Requests = %+v, want rate 10 burst 20", cfg.Requests)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(tmpDir, "nope.jsonc")); err == nil {
			t.Error("Load() should fail for a missing file")
		}
	})
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr error
	}{
		{"no servers", `{}`, ErrNoServer},
		{"unknown default", `{"servers": [{"url": "http://a"}], "default_server": "b"}`, ErrNoServer},
		{"bad schedule", `{"servers": [{"url": "http://a"}], "health": {"schedule": "nonsense"}}`, nil},
		{"bad log level", `{"servers": [{"url": "http://a"}], "logging": {"level": "loud"}}`, nil},
		{"negative rate", `{"servers": [{"url": "http://a"}], "requests": {"rate": -1}}`, nil},
		{"syntax error", `{"servers": [}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.json))
			if err == nil {
				t.Fatal("Parse() error = nil, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoggingSection_SlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		got, err := LoggingSection{Level: tt.level}.SlogLevel()
		if err != nil {
			t.Errorf("SlogLevel(%q) returned error: %v", tt.level, err)
			continue
		}
		if got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestActiveServer_MatchByURL(t *testing.T) {
	cfg, err := Parse([]byte(`{"servers": [{"url": "a:1"}, {"url": "b:2"}], "default_server": "b:2/"}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	active, _ := cfg.ActiveServer()
	if active.URL != "http://b:2" {
		t.Errorf("ActiveServer().URL = %q, want %q", active.URL, "http://b:2")
	}
}

func TestNormalizeServerURL(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"   ", ""},
		{"localhost:4096", "http://localhost:4096"},
		{" https://x.dev// ", "https://x.dev"},
		{"http://127.0.0.1:4096/", "http://127.0.0.1:4096"},
	}

	for _, tt := range tests {
		if got := NormalizeServerURL(tt.input); got != tt.want {
			t.Errorf("NormalizeServerURL(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestServer_DisplayName(t *testing.T) {
	if got := (Server{Name: "prod", URL: "http://x"}).DisplayName(); got != "prod" {
		t.Errorf("DisplayName() = %q, want %q", got, "prod")
	}
	if got := (Server{URL: "https://x.dev/"}).DisplayName(); got != "x.dev" {
		t.Errorf("DisplayName() = %q, want %q", got, "x.dev")
	}
}

func TestFindConfigPath(t *testing.T) {
	dir := t.TempDir()

	if _, err := FindConfigPath(dir); err == nil {
		t.Error("FindConfigPath() should fail when the file is missing")
	}

	_ = os.WriteFile(filepath.Join(dir, FileName), []byte(`{}`), 0o644)
	path, err := FindConfigPath(dir)
	if err != nil {
		t.Fatalf("FindConfigPath() error = %v", err)
	}
	if filepath.Base(path) != FileName || !filepath.IsAbs(path) {
		t.Errorf("FindConfigPath() = %q, want absolute path to %s", path, FileName)
	}
}

func TestStripJSONComments(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"line comment", "{\"a\": 1 // one\n}", "{\"a\": 1 \n}"},
		{"block comment", `{/* x */"a": 1}`, `{"a": 1}`},
		{"slashes in string", `{"u": "http://x"}`, `{"u": "http://x"}`},
		{"escaped quote in string", `{"s": "a\"//b"}`, `{"s": "a\"//b"}`},
		{"escaped backslash before quote", `{"s": "a\\"// c` + "\n}", `{"s": "a\\"` + "\n}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(StripJSONComments([]byte(tt.input))); got != tt.want {
				t.Errorf("StripJSONComments() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	_ = os.WriteFile(path, []byte(`{"servers": [{"url": "http://a"}]}`), 0o644)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	go func() {
		done <- Watch(ctx, path, log, func(cfg *Config) { changes <- cfg })
	}()

	// Give the watcher time to register before writing
	time.Sleep(100 * time.Millisecond)
	_ = os.WriteFile(path, []byte(`{"servers": [{"url": "http://b"}]}`), 0o644)

	select {
	case cfg := <-changes:
		if cfg.Servers[0].URL != "http://b" {
			t.Errorf("reloaded URL = %q, want %q", cfg.Servers[0].URL, "http://b")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}
