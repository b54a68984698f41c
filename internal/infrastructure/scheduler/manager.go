// Package scheduler provides periodic job management using gocron v2.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/orris-inc/entitlementsync/internal/shared/biztime"
	"github.com/orris-inc/entitlementsync/internal/shared/logger"
)

const (
	DefaultReconcileInterval = 15 * time.Minute
	DefaultStopTimeout       = time.Minute
	reconcileJobName         = "entitlement-reconciler"
)

// BatchJob defines the interface for a scheduled batch processing job.
// Each Execute call processes a batch and returns the number of items processed.
type BatchJob interface {
	Execute(ctx context.Context) (int, error)
}

// Option customizes a SchedulerManager.
type Option func(*SchedulerManager)

// WithStopTimeout bounds how long Stop lets gocron wait for a running job.
// It should cover at least one ledger sync.
func WithStopTimeout(d time.Duration) Option {
	return func(m *SchedulerManager) {
		if d > 0 {
			m.stopTimeout = d
		}
	}
}

// SchedulerManager owns the gocron scheduler running the periodic
// reconciliation. Once Stop returns no job runs again, including jobs that
// were already due, and a run in progress has returned.
type SchedulerManager struct {
	scheduler   gocron.Scheduler
	logger      logger.Interface
	stopTimeout time.Duration

	// runMu orders the stopped check of a starting run against Stop, so
	// Stop's wait on running cannot miss a run.
	runMu      sync.Mutex
	stopped    atomic.Bool
	running    sync.WaitGroup
	stopCtx    context.Context
	stopCancel context.CancelFunc
	stopOnce   sync.Once
	stopErr    error

	// Track whether the scheduler has been started
	started   bool
	startedMu sync.Mutex
}

// NewSchedulerManager creates a new SchedulerManager instance.
func NewSchedulerManager(log logger.Interface, opts ...Option) (*SchedulerManager, error) {
	m := &SchedulerManager{
		logger:      log,
		stopTimeout: DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}

	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(biztime.Location()),
		gocron.WithStopTimeout(m.stopTimeout),
	)
	if err != nil {
		return nil, err
	}

	m.scheduler = scheduler
	m.stopCtx, m.stopCancel = context.WithCancel(context.Background())
	return m, nil
}

// RegisterReconciliationJob runs job every interval, starting immediately.
// A run that is still busy when the next tick is due causes that tick to be
// skipped rather than queued. Each run is bounded by timeout.
func (m *SchedulerManager) RegisterReconciliationJob(job BatchJob, interval, timeout time.Duration) error {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}

	_, err := m.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if !m.beginRun() {
				return
			}
			defer m.running.Done()

			ctx, cancel := context.WithTimeout(m.stopCtx, timeout)
			defer cancel()
			m.runReconciliation(ctx, job)
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("entitlement", "reconcile"),
		gocron.WithName(reconcileJobName),
	)
	if err != nil {
		return err
	}

	m.logger.Infow("registered reconciliation job", "interval", interval.String())
	return nil
}

func (m *SchedulerManager) beginRun() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.stopped.Load() {
		return false
	}
	m.running.Add(1)
	return true
}

func (m *SchedulerManager) runReconciliation(ctx context.Context, job BatchJob) {
	startTime := biztime.NowUTC()

	synced, err := job.Execute(ctx)
	if err != nil {
		m.logger.Errorw("periodic reconciliation failed",
			"synced", synced,
			"error", err,
			"duration", time.Since(startTime),
		)
		return
	}

	m.logger.Infow("periodic reconciliation completed",
		"synced", synced,
		"duration", time.Since(startTime),
	)
}

// ========================================
// Scheduler Lifecycle Methods
// ========================================

// Start starts the scheduler and all registered jobs. It is a no-op after Stop.
func (m *SchedulerManager) Start() {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()

	if m.started || m.stopped.Load() {
		return
	}

	m.scheduler.Start()
	m.started = true
	m.logger.Infow("scheduler manager started", "job_count", len(m.scheduler.Jobs()))
}

// Stop cancels a running job's context, shuts the scheduler down and waits
// until the running job has returned. It is idempotent; later calls return
// the first call's result.
func (m *SchedulerManager) Stop() error {
	m.stopOnce.Do(func() {
		m.runMu.Lock()
		m.stopped.Store(true)
		m.runMu.Unlock()

		m.stopCancel()

		m.startedMu.Lock()
		defer m.startedMu.Unlock()

		if m.started {
			m.logger.Infow("stopping scheduler manager")
		}

		// Shutdown also releases the goroutine NewScheduler spawned, so it
		// runs even when Start never did.
		m.stopErr = m.scheduler.Shutdown()
		m.running.Wait()
		m.started = false

		if m.stopErr != nil {
			m.logger.Errorw("scheduler manager shutdown with error", "error", m.stopErr)
			return
		}
		m.logger.Infow("scheduler manager stopped")
	})
	return m.stopErr
}

// IsStarted returns whether the scheduler is running.
func (m *SchedulerManager) IsStarted() bool {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()
	return m.started
}

// Jobs returns all registered jobs for inspection.
func (m *SchedulerManager) Jobs() []gocron.Job {
	return m.scheduler.Jobs()
}
