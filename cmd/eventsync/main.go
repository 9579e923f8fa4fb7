package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/HyphaGroup/eventsync/internal/config"
	"github.com/HyphaGroup/eventsync/internal/event"
	"github.com/HyphaGroup/eventsync/internal/globalsdk"
	"github.com/HyphaGroup/eventsync/internal/health"
	"github.com/HyphaGroup/eventsync/internal/logger"
	"github.com/HyphaGroup/eventsync/internal/metrics"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0"
var Version = "dev"

func main() {
	// Check for subcommands before parsing flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "init":
			cmdInit(os.Args[2:])
			return
		case "health":
			cmdHealth(os.Args[2:])
			return
		case "--version", "-v":
			fmt.Printf("eventsync %s\n", Version)
			return
		case "--help", "-h", "help":
			printUsage()
			return
		}
	}

	// Default: stream events
	runStream(os.Args[1:])
}

func printUsage() {
	fmt.Printf(`eventsync %s - opencode event stream client

Usage: eventsync [command] [options]

Commands:
  (default)    Stream events from the active server as JSON lines
  init         Write a starter eventsync.jsonc
  health       Probe every configured server once

Stream Options:
  --dir <path>         Directory containing eventsync.jsonc
  --json               Write logs as JSON
  --directory <path>   Print events for this directory (repeatable)

Config Precedence:
  1. --dir flag
  2. ./config/eventsync.jsonc
  3. ~/.eventsync/config/eventsync.jsonc

Signals:
  SIGUSR1      Reconnect if the stream has been silent too long
  SIGINT/TERM  Flush pending events and exit

Examples:
  eventsync                                  Stream server-wide events
  eventsync --directory /work/app            Stream events for one project
  eventsync init --dir ./config              Create config in ./config
  eventsync health                           Check configured servers
`, Version)
}

// stringList collects a repeatable flag
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func runStream(args []string) {
	fs := flag.NewFlagSet("eventsync", flag.ExitOnError)
	dirFlag := fs.String("dir", "", "Directory containing eventsync.jsonc")
	jsonFlag := fs.Bool("json", false, "Write logs as JSON")
	var directories stringList
	fs.Var(&directories, "directory", "Print events for this directory (repeatable)")
	_ = fs.Parse(args)

	configPath, err := config.FindConfigPath(*dirFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\nRun 'eventsync init' first.\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	level, _ := cfg.Logging.SlogLevel()
	if err := logger.InitSlog(cfg.Logging.Dir, cfg.Logging.JSON || *jsonFlag, level); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.CloseSlog() }()

	server, err := cfg.ActiveServer()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := globalsdk.NewManager(ctx, globalsdk.DefaultBuilder(cfg.Requests, logger.Slog()), logger.Slog())

	printer := &eventPrinter{w: os.Stdout}
	subs := newSubscriptions(func(dir string) func() {
		return manager.Subscribe(dir, printer.handler(dir))
	})
	subs.sync(watchedDirectories(cfg.Directories, directories))

	if _, err := manager.Switch(server); err != nil {
		log.Fatalf("Failed to start event stream: %v", err)
	}
	logger.InfoContext(logger.WithServer(ctx, server.URL), "streaming events", "name", server.DisplayName(), "config", configPath)

	var poller atomic.Pointer[health.Poller]
	poller.Store(startPoller(server, cfg.Health.Schedule, manager))

	var httpServer *http.Server
	if cfg.Metrics.Address != "" {
		httpServer = startHTTP(cfg.Metrics.Address, manager, &poller)
	}

	reloads := make(chan *config.Config, 1)
	go func() {
		err := config.Watch(ctx, configPath, logger.Slog(), func(c *config.Config) {
			select {
			case reloads <- c:
			case <-ctx.Done():
			}
		})
		if err != nil {
			logger.Slog().Warn("config watch disabled", "error", err)
		}
	}()

	foreground := make(chan os.Signal, 1)
	signal.Notify(foreground, syscall.SIGUSR1)
	defer signal.Stop(foreground)

	for {
		select {
		case <-ctx.Done():
			logger.Slog().Info("shutting down")
			poller.Load().Stop()
			manager.Shutdown()
			if httpServer != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = httpServer.Shutdown(shutdownCtx)
				cancel()
			}
			logger.Slog().Info("shutdown complete")
			return

		case <-foreground:
			if manager.Foreground() {
				logger.Slog().Info("reconnecting silent event stream")
			}

		case next := <-reloads:
			active, err := next.ActiveServer()
			if err != nil {
				logger.Slog().Warn("ignoring config change", "error", err)
				continue
			}
			added, removed := subs.sync(watchedDirectories(next.Directories, directories))
			if len(added) > 0 || len(removed) > 0 {
				logger.Slog().Info("watched directories changed", "added", added, "removed", removed)
			}
			changed, err := manager.Switch(active)
			if err != nil {
				logger.Slog().Error("server switch failed", "server", active.URL, "error", err)
				continue
			}
			if changed {
				poller.Swap(startPoller(active, next.Health.Schedule, manager)).Stop()
			}
		}
	}
}

// watchedDirectories merges configured and flagged directories, falling back
// to server-wide events
func watchedDirectories(configured, flagged []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range append(append([]string{}, configured...), flagged...) {
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	if len(out) == 0 {
		out = []string{event.GlobalDirectory}
	}
	return out
}

// subscriptions tracks one subscription per watched directory
type subscriptions struct {
	subscribe func(dir string) func()
	active    map[string]func()
}

func newSubscriptions(subscribe func(dir string) func()) *subscriptions {
	return &subscriptions{subscribe: subscribe, active: make(map[string]func())}
}

// sync subscribes to new directories and drops ones no longer listed
func (s *subscriptions) sync(dirs []string) (added, removed []string) {
	want := make(map[string]bool, len(dirs))
	for _, d := range dirs {
		want[d] = true
		if _, ok := s.active[d]; ok {
			continue
		}
		s.active[d] = s.subscribe(d)
		added = append(added, d)
	}
	for d, unsubscribe := range s.active {
		if want[d] {
			continue
		}
		unsubscribe()
		delete(s.active, d)
		removed = append(removed, d)
	}
	sort.Strings(removed)
	return added, removed
}

// eventPrinter writes dispatched events as JSON lines
type eventPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *eventPrinter) handler(directory string) globalsdk.Handler {
	return func(payload event.Payload) {
		line, err := json.Marshal(event.Envelope{Directory: directory, Payload: payload})
		if err != nil {
			logger.WithContext(logger.WithDirectory(context.Background(), directory)).
				Warn("failed to encode event", "type", payload.EventType(), "error", err)
			return
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		_, _ = p.w.Write(append(line, '\n'))
	}
}

// startPoller probes server health. A recovered server may leave the stream
// silently dead, so recovery is treated like returning to the foreground.
func startPoller(server config.Server, schedule string, manager *globalsdk.Manager) *health.Poller {
	client := globalsdk.ClientForServer(server, config.RequestsSection{})
	poller, err := health.NewPoller(server.DisplayName(), client, schedule, func(healthy bool) {
		if healthy {
			manager.Foreground()
		}
	})
	if err != nil {
		// Validate already checked the schedule
		log.Fatalf("Health poller: %v", err)
	}
	poller.Start()
	return poller
}

func startHTTP(addr string, manager *globalsdk.Manager, poller *atomic.Pointer[health.Poller]) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		current := poller.Load()
		healthy, known := current.Healthy()
		status := "ok"
		code := http.StatusOK
		if known && !healthy {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":         status,
			"server":         manager.Server().URL,
			"server_healthy": healthy,
			"version":        current.Version(),
		})
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.Middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Slog().Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	logger.Slog().Info("metrics endpoint listening", "addr", addr)
	return srv
}

const configTemplate = `{
  // eventsync configuration

  // Servers to connect to. The password enables HTTP basic auth; the
  // username defaults to "opencode".
  "servers": [
    { "name": "local", "url": "http://localhost:4096" }
  ],
  "default_server": "local",

  // Directories whose events are printed. Empty prints server-wide events.
  "directories": [],

  "logging": {
    "dir": "",
    "json": false,
    "level": "info"
  },

  // Serves /metrics and /health. Empty disables it.
  "metrics": {
    "address": "127.0.0.1:9464"
  },

  "health": {
    "schedule": "@every 10s"
  },

  // Limits for directory-scoped requests
  "requests": {
    "rate": 10,
    "burst": 20
  }
}
`

func cmdInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	dirFlag := fs.String("dir", "", "Directory to write eventsync.jsonc into (default: ~/.eventsync/config)")
	force := fs.Bool("force", false, "Overwrite an existing config")
	_ = fs.Parse(args)

	configDir := *dirFlag
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: could not determine home directory: %v\n", err)
			os.Exit(1)
		}
		configDir = filepath.Join(homeDir, ".eventsync", "config")
	}

	path := filepath.Join(configDir, config.FileName)
	if _, err := os.Stat(path); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "%s already exists (use --force to overwrite)\n", path)
		os.Exit(1)
	}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", configDir, err)
		os.Exit(1)
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", path, err)
		os.Exit(1)
	}
	fmt.Printf("Created %s\n", path)
}

func cmdHealth(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	dirFlag := fs.String("dir", "", "Directory containing eventsync.jsonc")
	timeout := fs.Duration("timeout", 5*time.Second, "Probe timeout per server")
	_ = fs.Parse(args)

	configPath, err := config.FindConfigPath(*dirFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tURL\tSTATUS\tVERSION")

	unhealthy := 0
	for _, server := range cfg.Servers {
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		status, err := globalsdk.ClientForServer(server, config.RequestsSection{}).Health(ctx)
		cancel()

		state := "healthy"
		if err != nil || !status.Healthy {
			state = "unhealthy"
			unhealthy++
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", server.DisplayName(), server.URL, state, status.Version)
	}
	_ = w.Flush()

	if unhealthy > 0 {
		os.Exit(1)
	}
}
