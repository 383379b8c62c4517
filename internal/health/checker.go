// Package health runs the service's liveness checks: storage reachability
// and the data directory. The daemon polls them in the background and the
// /health endpoint re-runs them on demand.
package health

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is how often Run re-evaluates the checks.
const DefaultInterval = 60 * time.Second

// Pinger is anything that can report whether its backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check defines a single named health check.
type Check struct {
	Name    string
	CheckFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs health checks and remembers the latest results.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
	logger   *zap.Logger
}

// NewChecker creates a checker over the given checks.
func NewChecker(logger *zap.Logger, checks ...Check) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		checks:   checks,
		interval: DefaultInterval,
		logger:   logger,
	}
}

// StorageChecks returns the standard checks for a SQLite store in dataDir.
func StorageChecks(db Pinger, dataDir string) []Check {
	return []Check{
		{
			Name: "sqlite",
			CheckFn: func(ctx context.Context) error {
				return db.Ping(ctx)
			},
		},
		{
			Name: "data_dir",
			CheckFn: func(ctx context.Context) error {
				return checkDataDir(dataDir)
			},
		},
	}
}

// Run re-checks every interval until ctx is done. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.CheckNow(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CheckNow(ctx)
		}
	}
}

// CheckNow runs every check, stores and returns the results. Checks that
// turn unhealthy are logged once per transition.
func (c *Checker) CheckNow(ctx context.Context) []Status {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{
			Name:      check.Name,
			Healthy:   true,
			CheckedAt: time.Now().UTC(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Healthy = false
			s.Error = err.Error()
		}
		statuses[i] = s
	}

	c.mu.Lock()
	prev := c.statuses
	c.statuses = statuses
	c.mu.Unlock()

	for i, s := range statuses {
		wasHealthy := i >= len(prev) || prev[i].Healthy
		switch {
		case !s.Healthy && wasHealthy:
			c.logger.Warn("health check failing", zap.String("check", s.Name), zap.String("error", s.Error))
		case s.Healthy && !wasHealthy:
			c.logger.Info("health check recovered", zap.String("check", s.Name))
		}
	}

	result := make([]Status, len(statuses))
	copy(result, statuses)
	return result
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks passed on the last run.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

func checkDataDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("check data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}
