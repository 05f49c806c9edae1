package health

import (
	"context"
	"sync/atomic"
	"time"

	logger "github.com/Yulian302/lfusys-services-uploads/logging"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 500 * time.Millisecond
)

// Monitor periodically runs readiness checks and keeps the aggregate result.
// It starts pessimistic: Ready is false until the first passing round.
type Monitor struct {
	checks   []ReadinessCheck
	interval time.Duration
	timeout  time.Duration
	ready    atomic.Bool

	logger logger.Logger
}

func NewMonitor(checks []ReadinessCheck, interval, timeout time.Duration, l logger.Logger) *Monitor {
	return &Monitor{
		checks:   checks,
		interval: interval,
		timeout:  timeout,
		logger:   l,
	}
}

func (m *Monitor) Ready() bool {
	return m.ready.Load()
}

// Check runs every check once and records the outcome.
func (m *Monitor) Check(ctx context.Context) bool {
	ready := true
	for _, c := range m.checks {
		cctx, cancel := context.WithTimeout(ctx, m.timeout)
		err := c.IsReady(cctx)
		cancel()

		if err != nil {
			m.logger.Warn("readiness check failed", "check", c.Name(), "error", err)
			ready = false
			break
		}
	}
	if m.ready.Swap(ready) != ready {
		m.logger.Info("readiness changed", "ready", ready)
	}
	return ready
}

// Run checks immediately and then on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
