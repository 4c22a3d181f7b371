// Package scheduler runs the daily billing sweep: recurring expansion,
// transaction generation and overdue flagging for every active account.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobStatus represents the status of a scheduled job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// JobKind names one step of the billing sweep
type JobKind string

const (
	JobKindExpandRecurring      JobKind = "expand_recurring"
	JobKindGenerateTransactions JobKind = "generate_transactions"
	JobKindFlagOverdue          JobKind = "flag_overdue"
)

// AllJobKinds returns the sweep steps in the order they must run: children
// exist before generation bills them, and invoices exist before they can
// fall overdue.
func AllJobKinds() []JobKind {
	return []JobKind{JobKindExpandRecurring, JobKindGenerateTransactions, JobKindFlagOverdue}
}

// ParseJobKind validates a step name
func ParseJobKind(s string) (JobKind, error) {
	for _, k := range AllJobKinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", ErrUnknownJobKind
}

// Job is one account's pass over a list of sweep steps
type Job struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	Kinds       []JobKind
	AsOf        time.Time
	Status      JobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
}

// NewJob creates a new job instance
func NewJob(accountID uuid.UUID, kinds []JobKind, asOf time.Time, maxRetries int) *Job {
	return &Job{
		ID:         uuid.New(),
		AccountID:  accountID,
		Kinds:      kinds,
		AsOf:       asOf,
		Status:     JobStatusPending,
		MaxRetries: maxRetries,
	}
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete marks the job as successful
func (j *Job) Complete() {
	now := time.Now()
	j.Status = JobStatusSuccess
	j.CompletedAt = &now
}

// Fail marks the job as failed
func (j *Job) Fail(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry returns true if the job should be retried
func (j *Job) ShouldRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// ScheduleRetry resets the job for another attempt
func (j *Job) ScheduleRetry() {
	j.RetryCount++
	j.Status = JobStatusPending
	j.Error = ""
}

// JobExecutor executes sweep jobs
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
	QueueSize         int
}

// DefaultSchedulerConfig returns default scheduler configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxConcurrentJobs: 3,
		JobTimeout:        30 * time.Minute,
		RetryAttempts:     3,
		RetryDelay:        5 * time.Minute,
		QueueSize:         100,
	}
}

// Validate rejects negative limits. Zero values take NewScheduler defaults.
func (c SchedulerConfig) Validate() error {
	switch {
	case c.MaxConcurrentJobs < 0, c.QueueSize < 0, c.RetryAttempts < 0:
		return fmt.Errorf("%w: negative worker, queue or retry count", ErrInvalidConfig)
	case c.JobTimeout < 0, c.RetryDelay < 0:
		return fmt.Errorf("%w: negative duration", ErrInvalidConfig)
	}
	return nil
}

// Scheduler runs submitted jobs on a fixed worker pool
type Scheduler struct {
	config   SchedulerConfig
	executor JobExecutor
	logger   *zap.Logger

	jobs      chan *Job
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	retries   map[uuid.UUID]*time.Timer
	onDone    func(*Job)
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config SchedulerConfig, executor JobExecutor, logger *zap.Logger) *Scheduler {
	if config.MaxConcurrentJobs <= 0 {
		config.MaxConcurrentJobs = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		config:   config,
		executor: executor,
		logger:   logger,
		jobs:     make(chan *Job, config.QueueSize),
		retries:  make(map[uuid.UUID]*time.Timer),
	}
}

// OnJobDone registers a hook called after every finished attempt that will
// not be retried
func (s *Scheduler) OnJobDone(fn func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDone = fn
}

// Start starts the worker pool
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(s.ctx, i)
	}

	s.logger.Info("Billing scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels running jobs and waits for the workers to exit. Pending
// retries are dropped.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	for id, timer := range s.retries {
		timer.Stop()
		delete(s.retries, id)
	}
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Billing scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Billing scheduler stop timed out")
		return ctx.Err()
	}
}

// SubmitJob queues a job without blocking
func (s *Scheduler) SubmitJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}

	select {
	case s.jobs <- job:
		s.logger.Debug("Job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("account_id", job.AccountID.String()),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

// ScheduleSweep submits the full sweep for each account
func (s *Scheduler) ScheduleSweep(accountIDs []uuid.UUID, asOf time.Time) error {
	for _, id := range accountIDs {
		if err := s.SubmitJob(NewJob(id, AllJobKinds(), asOf, s.config.RetryAttempts)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.jobs:
			s.processJob(ctx, job, workerID)
		}
	}
}

func (s *Scheduler) processJob(ctx context.Context, job *Job, workerID int) {
	job.Start()
	log := s.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("account_id", job.AccountID.String()),
	)
	log.Info("Processing job", zap.Int("attempt", job.RetryCount+1))

	jobCtx := ctx
	if s.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, s.config.JobTimeout)
		defer cancel()
	}

	if err := s.executor.Execute(jobCtx, job); err != nil {
		job.Fail(err.Error())
		log.Error("Job failed", zap.Error(err))
		if job.ShouldRetry() && ctx.Err() == nil {
			job.ScheduleRetry()
			s.retryLater(job)
			log.Info("Job scheduled for retry",
				zap.Int("retry_count", job.RetryCount),
				zap.Int("max_retries", job.MaxRetries),
			)
			return
		}
		s.finished(job)
		return
	}

	job.Complete()
	log.Info("Job completed successfully")
	s.finished(job)
}

func (s *Scheduler) retryLater(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return
	}
	s.retries[job.ID] = time.AfterFunc(s.config.RetryDelay, func() {
		s.mu.Lock()
		delete(s.retries, job.ID)
		s.mu.Unlock()
		if err := s.SubmitJob(job); err != nil {
			s.logger.Warn("Failed to re-queue job for retry",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
		}
	})
}

func (s *Scheduler) finished(job *Job) {
	s.mu.Lock()
	fn := s.onDone
	s.mu.Unlock()
	if fn != nil {
		fn(job)
	}
}
