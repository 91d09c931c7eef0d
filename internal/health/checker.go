// Package health runs the periodic chain integrity sweep: a background loop
// that replays the full audit chain against its hashes and raises an incident
// when recorded history no longer verifies.
package health

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-io/audit-trail/internal/ledger"
)

// Config holds integrity sweep configuration.
type Config struct {
	SweepInterval time.Duration
	SweepTimeout  time.Duration

	// FailThreshold is the number of consecutive store errors tolerated
	// before the sweep is reported unhealthy. Integrity failures are never
	// subject to the threshold; a single one is an incident.
	FailThreshold int
}

// Verifier replays the chain and returns nil when history is intact.
// ledger.Store satisfies it.
type Verifier interface {
	Verify(ctx context.Context) error
}

// IncidentFunc is an optional callback invoked once per confirmed integrity
// failure or store-error streak.
type IncidentFunc func(ctx context.Context, reason string)

// MetricsRecordFunc is an optional callback for recording sweep results.
type MetricsRecordFunc func(success bool)

// Checker periodically verifies the audit chain.
type Checker struct {
	verifier Verifier
	enabled  func() bool // settings toggle, read each sweep
	cfg      Config
	logger   *zap.Logger

	onIncident IncidentFunc
	onMetrics  MetricsRecordFunc

	mu        sync.Mutex
	errStreak int
	// alerted latches after the first integrity incident so a standing
	// failure is not re-reported every sweep.
	alerted bool
}

// New creates a Checker. The enabled callback gates each sweep on the
// current settings; pass nil to always sweep.
func New(verifier Verifier, enabled func() bool, cfg Config, logger *zap.Logger) *Checker {
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 15 * time.Minute
	}
	if cfg.SweepTimeout == 0 {
		cfg.SweepTimeout = 5 * time.Minute
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	if enabled == nil {
		enabled = func() bool { return true }
	}

	return &Checker{
		verifier: verifier,
		enabled:  enabled,
		cfg:      cfg,
		logger:   logger,
	}
}

// SetIncidentFunc configures the incident callback.
func (c *Checker) SetIncidentFunc(fn IncidentFunc) { c.onIncident = fn }

// SetMetricsRecord configures the metrics recording callback.
func (c *Checker) SetMetricsRecord(fn MetricsRecordFunc) { c.onMetrics = fn }

// Start runs the sweep loop until quit is signalled.
func (c *Checker) Start(quit <-chan os.Signal) {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SweepTimeout)
			c.Sweep(ctx)
			cancel()
		case <-quit:
			return
		}
	}
}

// Sweep runs one verification pass. Store errors (the database being
// unreachable, for example) are counted against the threshold; a failed hash
// or link check is an immediate incident.
func (c *Checker) Sweep(ctx context.Context) {
	if !c.enabled() {
		return
	}

	err := c.verifier.Verify(ctx)
	if c.onMetrics != nil {
		c.onMetrics(err == nil)
	}

	if err == nil {
		c.mu.Lock()
		c.errStreak = 0
		c.alerted = false
		c.mu.Unlock()
		c.logger.Debug("integrity sweep passed")
		return
	}

	var verr *ledger.VerifyError
	if errors.As(err, &verr) {
		c.mu.Lock()
		first := !c.alerted
		c.alerted = true
		c.mu.Unlock()

		c.logger.Error("integrity sweep FAILED, chain does not verify",
			zap.String("entry_id", verr.EntryID),
			zap.String("reason", verr.Reason),
		)
		if first && c.onIncident != nil {
			c.onIncident(ctx, verr.Error())
		}
		return
	}

	c.mu.Lock()
	c.errStreak++
	streak := c.errStreak
	c.mu.Unlock()

	c.logger.Warn("integrity sweep could not run",
		zap.Int("consecutive_errors", streak),
		zap.Error(err),
	)
	if streak == c.cfg.FailThreshold && c.onIncident != nil {
		c.onIncident(ctx, "integrity sweep failing: "+err.Error())
	}
}
