package transfer

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/dittocdn/internal/logger"
)

// DefaultInterval is the scheduler period.
const DefaultInterval = 15 * time.Minute

// SchedulerStats is a snapshot of scheduler activity.
type SchedulerStats struct {
	Runs      int       `json:"runs"`
	Processed int       `json:"processed"`
	Halts     int       `json:"halts"`
	LastRun   time.Time `json:"last_run"`
	LastError string    `json:"last_error,omitempty"`
}

// Scheduler runs the processor every interval until stopped. Runs triggered
// elsewhere (API, CLI) may overlap with scheduled ones; the queue tolerates
// that.
type Scheduler struct {
	processor *Processor
	interval  time.Duration

	stopCh    chan struct{}
	stoppedCh chan struct{}

	mu      sync.Mutex
	started bool
	stats   SchedulerStats
}

// NewScheduler creates a scheduler. interval <= 0 uses DefaultInterval.
func NewScheduler(p *Processor, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		processor: p,
		interval:  interval,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start launches the loop. Calling it twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	logger.Info("Starting queue scheduler", "interval", s.interval)
	go s.loop(ctx)
}

// Stop signals the loop and waits for the run in progress, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	close(s.stopCh)
	select {
	case <-s.stoppedCh:
		logger.Info("Queue scheduler stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Queue scheduler stop timed out")
		return ctx.Err()
	}
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.stoppedCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce processes one page and records it in the stats.
func (s *Scheduler) RunOnce(ctx context.Context) {
	report, err := s.processor.Process(ctx, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Runs++
	s.stats.LastRun = time.Now()
	s.stats.LastError = ""
	if report != nil {
		s.stats.Processed += report.Processed
		s.stats.Halts += len(report.Halts)
		if report.Halted() {
			s.stats.LastError = report.Halts[0].Message
		}
	}
	if err != nil {
		s.stats.LastError = err.Error()
		logger.Error("Scheduled queue run failed", logger.Err(err))
	}
}
