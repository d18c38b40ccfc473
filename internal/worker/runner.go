package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"shuttle-tracker/internal/metrics"
	"shuttle-tracker/internal/store"
)

// TenantJob is one tick's worth of work for a single tenant.
type TenantJob func(ctx context.Context, tenant store.Tenant) error

// Runner drives a TenantJob on a fixed interval across all tenants.
// Tenants run in parallel; a tenant whose previous tick is still in
// flight is skipped, so at most one run per tenant is ever active.
type Runner struct {
	name     string
	interval time.Duration
	tenants  TenantLister
	job      TenantJob
	metrics  *metrics.Collector
	logger   *log.Logger

	mu       sync.Mutex
	inflight map[string]bool
	wg       sync.WaitGroup

	loopCancel context.CancelFunc
	loopWG     sync.WaitGroup
}

func NewRunner(name string, interval time.Duration, tenants TenantLister, job TenantJob, m *metrics.Collector) *Runner {
	return &Runner{
		name:     name,
		interval: interval,
		tenants:  tenants,
		job:      job,
		metrics:  m,
		logger:   log.New(log.Writer(), "["+name+"] ", log.LstdFlags),
		inflight: make(map[string]bool),
	}
}

// Start launches the tick loop; the first tick runs immediately.
func (r *Runner) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	r.loopCancel = cancel
	r.loopWG.Add(1)
	go func() {
		defer r.loopWG.Done()
		r.tick(ctx)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.tick(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for in-flight tenant ticks.
func (r *Runner) Stop() {
	if r.loopCancel != nil {
		r.loopCancel()
	}
	r.loopWG.Wait()
	r.wg.Wait()
}

func (r *Runner) tick(ctx context.Context) {
	tenants, err := r.tenants.ListTenants(ctx)
	if err != nil {
		r.logger.Printf("list tenants: %v", err)
		return
	}
	for _, t := range tenants {
		r.mu.Lock()
		if r.inflight[t.ID] {
			r.mu.Unlock()
			if r.metrics != nil {
				r.metrics.TicksSkipped.WithLabelValues(r.name).Inc()
			}
			continue
		}
		r.inflight[t.ID] = true
		r.mu.Unlock()

		r.wg.Add(1)
		go func(t store.Tenant) {
			defer r.wg.Done()
			defer func() {
				r.mu.Lock()
				delete(r.inflight, t.ID)
				r.mu.Unlock()
			}()

			start := time.Now()
			err := r.job(ctx, t)
			if r.metrics != nil {
				r.metrics.TickDuration.WithLabelValues(r.name).Observe(time.Since(start).Seconds())
				outcome := "ok"
				if err != nil {
					outcome = "error"
				}
				r.metrics.TenantTicks.WithLabelValues(r.name, outcome).Inc()
			}
			if err != nil {
				// A tenant-level failure never touches other tenants.
				r.logger.Printf("tenant %s: %v", t.ID, err)
			}
		}(t)
	}
}
