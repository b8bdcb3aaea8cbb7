package presence

import (
	"context"
	"sync"
	"time"

	"github.com/oakmere/fleetstate/internal/state"
)

const (
	defaultCheckInterval   = 10 * time.Minute
	defaultMissingInterval = 8 * time.Hour

	// sweepPageSize is how many silent records one sweep query fetches.
	// Flagged records drop out of the criteria, so the sweep re-queries
	// page one until the backlog is drained.
	sweepPageSize = 100

	// maxSweepIterations caps one sweep so a store that keeps returning
	// rows cannot spin the loop forever.
	maxSweepIterations = 1000
)

// Logger defines the logging interface used by the monitor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds the monitor's sweep timings.
type Config struct {
	// CheckInterval is how often the sweep runs. Default: 10 minutes.
	CheckInterval time.Duration

	// MissingInterval is how long a device may stay silent before it is
	// flagged. Default: 8 hours.
	MissingInterval time.Duration
}

// Monitor periodically flags state records whose devices have gone
// silent past the missing interval.
type Monitor struct {
	manager  *state.Manager
	check    time.Duration
	missing  time.Duration
	now      func() time.Time
	logger   Logger
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewMonitor creates a presence monitor.
//
// Parameters:
//   - manager: State manager used to search and flag records
//   - cfg: Sweep timings (zero values select the defaults)
//
// Returns:
//   - *Monitor: Ready to start (call Start to begin sweeping)
func NewMonitor(manager *state.Manager, cfg Config) *Monitor {
	check := cfg.CheckInterval
	if check <= 0 {
		check = defaultCheckInterval
	}
	missing := cfg.MissingInterval
	if missing <= 0 {
		missing = defaultMissingInterval
	}

	return &Monitor{
		manager: manager,
		check:   check,
		missing: missing,
		now:     time.Now,
		logger:  noopLogger{},
		done:    make(chan struct{}),
	}
}

// SetLogger sets the logger for the monitor.
func (m *Monitor) SetLogger(logger Logger) {
	m.logger = logger
}

// Start begins periodic sweeping. Call Stop to shut down.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.sweepLoop(ctx)
	m.logger.Info("presence monitor started",
		"check_interval", m.check.String(),
		"missing_interval", m.missing.String())
}

// Stop gracefully stops the monitor. Safe to call multiple times.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
	})
}

// sweepLoop runs the periodic sweep until stopped.
func (m *Monitor) sweepLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.check)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			if flagged, err := m.Sweep(ctx); err != nil {
				m.logger.Error("presence sweep failed", "error", err)
			} else if flagged > 0 {
				m.logger.Info("presence sweep flagged devices", "count", flagged)
			}
		}
	}
}

// Sweep flags every record whose last interaction predates the missing
// interval and returns how many were flagged. It is exported so tests
// and operational tooling can trigger a sweep directly.
func (m *Monitor) Sweep(ctx context.Context) (int, error) {
	now := m.now().UTC()
	cutoff := now.Add(-m.missing)
	flagged := 0

	for i := 0; i < maxSweepIterations; i++ {
		results, err := m.manager.SearchStates(ctx, state.SearchCriteria{
			LastInteractionDateBefore: &cutoff,
			ExcludePresenceMissing:    true,
			PageNumber:                1,
			PageSize:                  sweepPageSize,
		})
		if err != nil {
			return flagged, err
		}
		if len(results.Results) == 0 {
			return flagged, nil
		}

		for i := range results.Results {
			st := &results.Results[i]
			if _, err := m.manager.MarkPresenceMissing(ctx, st.ID, now); err != nil {
				m.logger.Warn("flagging presence missing", "state_id", st.ID, "error", err)
				continue
			}
			flagged++
			m.logger.Debug("presence missing", "state_id", st.ID, "device_id", st.DeviceID,
				"last_interaction", st.LastInteractionDate)
		}

		if len(results.Results) < sweepPageSize {
			return flagged, nil
		}
	}

	return flagged, nil
}
