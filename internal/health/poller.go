// Package health polls server health on a cron schedule.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/HyphaGroup/eventsync/internal/logger"
	"github.com/HyphaGroup/eventsync/internal/metrics"
	"github.com/HyphaGroup/eventsync/internal/opencode"
)

// DefaultSchedule matches the polling interval of the desktop client
const DefaultSchedule = "@every 10s"

const checkTimeout = 5 * time.Second

// Checker probes one server
type Checker interface {
	Health(ctx context.Context) (opencode.HealthStatus, error)
}

// TransitionFunc is called when a server changes between healthy and
// unhealthy. The first probe always counts as a transition.
type TransitionFunc func(healthy bool)

// Poller runs health probes for one server
type Poller struct {
	name     string
	checker  Checker
	schedule cron.Schedule
	onChange TransitionFunc
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	cron   *cron.Cron
	job    cron.Job
	first  sync.WaitGroup

	mu      sync.Mutex
	known   bool
	healthy bool
	version string
}

// NewPoller creates a poller for the server called name. spec is a standard
// cron expression or descriptor such as "@every 10s".
func NewPoller(name string, checker Checker, spec string, onChange TransitionFunc) (*Poller, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid health schedule %q: %w", spec, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Poller{
		name:     name,
		checker:  checker,
		schedule: sched,
		onChange: onChange,
		log:      logger.Slog().With("server", name),
		ctx:      ctx,
		cancel:   cancel,
	}
	// Scheduled and immediate probes share one skip guard so they never overlap
	p.job = cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).
		Then(cron.FuncJob(func() { p.Check(p.ctx) }))
	return p, nil
}

// Start runs one probe immediately, then follows the schedule
func (p *Poller) Start() {
	p.cron = cron.New()
	p.cron.Schedule(p.schedule, p.job)
	p.cron.Start()

	p.first.Add(1)
	go func() {
		defer p.first.Done()
		p.job.Run()
	}()
	p.log.Debug("health poller started")
}

// Stop cancels in-flight probes and waits for running jobs
func (p *Poller) Stop() {
	p.cancel()
	if p.cron != nil {
		<-p.cron.Stop().Done()
	}
	p.first.Wait()
	p.log.Debug("health poller stopped")
}

// Check runs one probe and returns whether the server is healthy
func (p *Poller) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	status, err := p.checker.Health(ctx)
	if ctx.Err() != nil && p.ctx.Err() != nil {
		// Stopped mid-probe
		return false
	}
	healthy := err == nil && status.Healthy

	p.mu.Lock()
	changed := !p.known || p.healthy != healthy
	p.known = true
	p.healthy = healthy
	if healthy {
		p.version = status.Version
	}
	p.mu.Unlock()

	metrics.SetServerHealthy(p.name, healthy)

	if !changed {
		return healthy
	}
	if healthy {
		p.log.Info("server healthy", "version", status.Version)
	} else {
		p.log.Warn("server unhealthy", "error", err)
	}
	if p.onChange != nil {
		p.onChange(healthy)
	}
	return healthy
}

// Healthy returns the last probe result and whether any probe has completed
func (p *Poller) Healthy() (healthy, known bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.healthy, p.known
}

// Version returns the version reported by the last healthy probe
func (p *Poller) Version() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}
