package venue

import (
	"context"
	"fmt"
	"strings"

	"github.com/dexrouter/engine/internal/config"
	"github.com/dexrouter/engine/internal/repository"
	"github.com/dexrouter/engine/pkg/observability"
)

// Pool owns one Worker per configured venue. The scheduler enqueues jobs
// through Pool rather than talking to individual Workers, so it never
// needs to know which venues exist beyond the configured list.
type Pool struct {
	workers map[string]*Worker
	cfg     config.EngineConfig
}

// NewPool constructs a worker per venue in cfg.Venues, sharing one
// Simulator and Sink across all of them.
func NewPool(cfg config.EngineConfig, sim Simulator, sink Sink, repo repository.OrderRepository,
	cache repository.ActiveOrderCache, logger *observability.Logger) *Pool {
	p := &Pool{workers: make(map[string]*Worker, len(cfg.Venues)), cfg: cfg}
	for _, v := range cfg.Venues {
		p.workers[v] = NewWorker(v, cfg, sim, sink, repo, cache, logger, cfg.WorkerConcurrency*4)
	}
	return p
}

// Start launches every venue's worker pool at the configured concurrency.
func (p *Pool) Start() {
	for _, w := range p.workers {
		w.Start(p.cfg.WorkerConcurrency)
	}
}

// Stop gracefully drains and stops every venue worker.
func (p *Pool) Stop() {
	for _, w := range p.workers {
		w.Stop()
	}
}

// Venues returns the configured venue names, in the Pool's iteration-stable
// configured order (matching cfg.Venues, not map order).
func (p *Pool) Venues() []string {
	return append([]string(nil), p.cfg.Venues...)
}

// Enqueue submits a job to the named venue's queue. Returns false if the
// venue is unconfigured.
func (p *Pool) Enqueue(venue string, job Job) bool {
	w, ok := p.workers[venue]
	if !ok {
		return false
	}
	w.Enqueue(job)
	return true
}

// Healthy reports whether the named venue's circuit breaker is closed.
func (p *Pool) Healthy(venue string) bool {
	w, ok := p.workers[venue]
	if !ok {
		return false
	}
	return w.Healthy()
}

// HealthCheck reports unhealthy when any configured venue fails Pool.Healthy:
// it has no worker, or its worker's circuit breaker is open.
func (p *Pool) HealthCheck() observability.HealthCheck {
	return func(ctx context.Context) observability.HealthCheckResult {
		var down []string
		for _, v := range p.cfg.Venues {
			if !p.Healthy(v) {
				down = append(down, v)
			}
		}
		if len(down) > 0 {
			return observability.HealthCheckResult{
				Status:  observability.HealthStatusUnhealthy,
				Message: "venue workers unavailable",
				Error:   fmt.Sprintf("no healthy worker for: %s", strings.Join(down, ", ")),
			}
		}
		return observability.HealthCheckResult{
			Status:  observability.HealthStatusHealthy,
			Message: "all configured venues have a healthy worker",
		}
	}
}
