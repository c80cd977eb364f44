package mixer

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// healthPrompt is the fixed probe prompt sent by health sweeps.
const healthPrompt = "health check"

// healthChecker is a running sweep loop.
type healthChecker struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// startHealthLocked starts a sweep loop for the current interval. It returns
// nil when the interval is not positive. Must be called with m.mu held.
func (m *Mixer) startHealthLocked() *healthChecker {
	interval := m.cfg.Strategy.HealthCheckInterval
	if interval <= 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	hc := &healthChecker{cancel: cancel, done: make(chan struct{})}
	go m.runHealth(ctx, time.Duration(interval)*time.Millisecond, hc.done)
	return hc
}

// stop cancels the loop and waits for it to return. A nil checker is a no-op.
func (hc *healthChecker) stop() {
	if hc == nil {
		return
	}
	hc.cancel()
	<-hc.done
}

func (m *Mixer) runHealth(ctx context.Context, every time.Duration, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep probes every enabled provider once, concurrently, and waits for all
// probes to finish. Probes run regardless of the global Enabled switch and
// update provider statistics like any other attempt. Failures are logged
// when logging is on and otherwise ignored.
func (m *Mixer) Sweep(ctx context.Context) {
	m.mu.Lock()
	cands := m.reg.listEnabled()
	gen := m.reg.gen
	logging := m.cfg.Logging
	m.mu.Unlock()

	if len(cands) == 0 {
		return
	}

	var g errgroup.Group
	for _, c := range cands {
		g.Go(func() error {
			_, err := m.attempt(ctx, gen, c, healthPrompt, Options{"max_tokens": 1}, true)
			if err != nil && logging && ctx.Err() == nil {
				m.logger.Warn("health check failed", "provider", c.provider.Name, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
