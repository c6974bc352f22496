package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"mail-digest-go/internal/config"
	"mail-digest-go/internal/digest"
	"mail-digest-go/internal/model"
)

// DigestRunner is the part of the workflow controller the weekly job drives
type DigestRunner interface {
	PrepareDigest(ctx context.Context, s digest.Settings) (*digest.PrepareResult, error)
	NotifyValidators(ctx context.Context, s digest.Settings, id uint) (*model.Digest, error)
}

// IngestRunner fills the mailing log
type IngestRunner interface {
	Run(ctx context.Context) (int64, error)
}

// SettingsSource returns the current digest settings
type SettingsSource interface {
	Settings() digest.Settings
}

// Scheduler runs the weekly digest job and the periodic mailing ingestion
type Scheduler struct {
	cron        *cron.Cron
	digestEntry cron.EntryID
	ingestEntry cron.EntryID
	config      *config.SchedulerConfig
	digests     DigestRunner
	ingester    IngestRunner
	settings    SettingsSource
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	isRunning   bool
	closing     bool
	mu          sync.RWMutex
}

// NewScheduler creates a new scheduler. ingester may be nil when the mailing
// log is fed by another process.
func NewScheduler(cfg *config.SchedulerConfig, digests DigestRunner, ingester IngestRunner, settings SettingsSource) *Scheduler {
	return &Scheduler{
		config:   cfg,
		digests:  digests,
		ingester: ingester,
		settings: settings,
	}
}

// DigestCron returns the cron expression of the weekly digest job.
func DigestCron(cfg *config.SchedulerConfig) string {
	return fmt.Sprintf("0 0 %d * * %d", cfg.Hour, cfg.WeekDay)
}

// ErrClosing is returned for runs requested after Wait has been called.
var ErrClosing = errors.New("scheduler is shutting down")

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return ErrClosing
	}
	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	c := cron.New(cron.WithSeconds())

	digestEntry, err := c.AddFunc(DigestCron(s.config), s.runDigest)
	if err != nil {
		return fmt.Errorf("failed to add digest job: %w", err)
	}

	var ingestEntry cron.EntryID
	if s.ingester != nil {
		ingestEntry, err = c.AddFunc(fmt.Sprintf("@every %dm", s.config.IngestIntervalMinutes), s.runIngest)
		if err != nil {
			return fmt.Errorf("failed to add ingest job: %w", err)
		}
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = c
	s.digestEntry = digestEntry
	s.ingestEntry = ingestEntry
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started: digest at %s, ingestion every %d minutes",
		DigestCron(s.config), s.config.IngestIntervalMinutes)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.cancel()
	ctx := s.cron.Stop()

	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}

	s.isRunning = false
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func (s *Scheduler) jobContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *Scheduler) runDigest() {
	if _, err := s.RunOnce(s.jobContext()); err != nil {
		logrus.Errorf("Scheduled digest run failed: %v", err)
	}
}

func (s *Scheduler) runIngest() {
	if _, err := s.IngestOnce(s.jobContext()); err != nil {
		logrus.Errorf("Scheduled mailing ingestion failed: %v", err)
	}
}

// RunOnce prepares a digest and notifies the validators. An inactive digest
// or empty selection is not an error.
func (s *Scheduler) RunOnce(ctx context.Context) (*digest.PrepareResult, error) {
	if err := s.track(); err != nil {
		return nil, err
	}
	defer s.wg.Done()

	settings := s.settings.Settings()
	if !settings.Active {
		logrus.Info("Digest is inactive, skipping scheduled run")
		return &digest.PrepareResult{Empty: true}, nil
	}

	startTime := time.Now()
	logrus.Info("Starting digest run")

	res, err := s.digests.PrepareDigest(ctx, settings)
	if err != nil {
		if errors.Is(err, digest.ErrPrepareInProgress) {
			logrus.Warn("Another digest preparation is in progress, skipping")
			return nil, err
		}
		return nil, fmt.Errorf("failed to prepare digest: %w", err)
	}
	if res.Empty {
		logrus.Info("Nothing to digest this week")
		return res, nil
	}

	if _, err := s.digests.NotifyValidators(ctx, settings, res.Digest.ID); err != nil {
		return res, fmt.Errorf("digest %d created but validators were not notified: %w", res.Digest.ID, err)
	}

	logrus.Infof("Digest run completed in %v", time.Since(startTime))
	return res, nil
}

// IngestOnce runs mailing ingestion once.
func (s *Scheduler) IngestOnce(ctx context.Context) (int64, error) {
	if s.ingester == nil {
		return 0, nil
	}
	if err := s.track(); err != nil {
		return 0, err
	}
	defer s.wg.Done()
	return s.ingester.Run(ctx)
}

// track registers a job with the wait group unless shutdown has begun.
func (s *Scheduler) track() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return ErrClosing
	}
	s.wg.Add(1)
	return nil
}

// GetNextRun returns the time of the next scheduled digest run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.digestEntry).Next
}

// GetLastRun returns the time of the last scheduled digest run
func (s *Scheduler) GetLastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.digestEntry).Prev
}

// Wait waits for running jobs to finish. Runs requested afterwards fail
// with ErrClosing.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.wg.Wait()
}
