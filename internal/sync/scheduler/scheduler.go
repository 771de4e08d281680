// Package scheduler runs the periodic background work of the sync core: a
// recurring queue drain and a connectivity poll. It owns no policy beyond the
// intervals; the coordinator decides whether a drain actually does anything.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/fieldsync/backend/internal/connectivity"
	"github.com/fieldsync/backend/internal/logging"
)

// Syncer is the slice of the coordinator the scheduler needs.
type Syncer interface {
	Sync(ctx context.Context) error
}

// Default intervals. The drain interval is a safety net for actions whose
// transient failure was not followed by a connectivity transition; the poll
// keeps the monitor's state fresh on platforms without a push signal.
const (
	DefaultDrainInterval = time.Minute
	DefaultPollInterval  = 30 * time.Second
)

// Scheduler drives the coordinator and monitor on timers. Start and Stop are
// not reentrant; a stopped scheduler can be started again.
type Scheduler struct {
	syncer  Syncer
	monitor *connectivity.Monitor

	drainInterval time.Duration
	pollInterval  time.Duration

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// New creates a Scheduler with the default intervals.
func New(syncer Syncer, monitor *connectivity.Monitor) *Scheduler {
	return &Scheduler{
		syncer:        syncer,
		monitor:       monitor,
		drainInterval: DefaultDrainInterval,
		pollInterval:  DefaultPollInterval,
	}
}

// SetIntervals overrides the drain and poll intervals. Zero values keep the
// current setting. Must be called before Start.
func (s *Scheduler) SetIntervals(drain, poll time.Duration) {
	if drain > 0 {
		s.drainInterval = drain
	}
	if poll > 0 {
		s.pollInterval = poll
	}
}

// Start launches the background loops.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(2)
	go s.drainLoop(s.stopCh)
	go s.pollLoop(s.stopCh)

	logging.Info("Scheduler started", map[string]interface{}{
		"drain_interval": s.drainInterval.String(),
		"poll_interval":  s.pollInterval.String(),
	})
}

// Stop halts the loops and waits for them to exit. Safe to call on a stopped
// scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	logging.Info("Scheduler stopped")
}

func (s *Scheduler) drainLoop(stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.syncer.Sync(context.Background()); err != nil {
				logging.Error("Periodic drain failed", err)
			}
		}
	}
}

func (s *Scheduler) pollLoop(stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// IsAvailable feeds the probe answer back into the state
			// machine, so a recovery noticed here triggers a drain through
			// the monitor's transition handlers.
			s.monitor.IsAvailable()
		}
	}
}
