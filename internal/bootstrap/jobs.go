package bootstrap

import (
	"context"
	"time"

	billingapp "github.com/edubill/backend/internal/application/billing"
	"github.com/edubill/backend/internal/domain/agency"
	"github.com/edubill/backend/internal/infrastructure/config"
	"github.com/edubill/backend/internal/infrastructure/scheduler"
	"github.com/edubill/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SweepSteps binds each billing sweep step to the services. Steps run as the
// account's system caller.
func (s *Services) SweepSteps() map[scheduler.JobKind]scheduler.StepFunc {
	steps := map[scheduler.JobKind]scheduler.StepFunc{
		scheduler.JobKindExpandRecurring: func(ctx context.Context, accountID uuid.UUID, _ time.Time) ([]zap.Field, error) {
			summary, err := s.Schedule.ExpandPending(ctx, agency.SystemCaller(accountID))
			return []zap.Field{
				zap.Int("expanded", summary.Expanded),
				zap.Int("children", summary.Children),
				zap.Int("already_expanded", summary.AlreadyExpanded),
				zap.Int("failed", summary.Failed),
			}, err
		},
		scheduler.JobKindGenerateTransactions: func(ctx context.Context, accountID uuid.UUID, asOf time.Time) ([]zap.Field, error) {
			result, err := s.Transactions.GenerateFromScheduleItems(ctx, agency.SystemCaller(accountID), billingapp.GenerateRequest{DueDate: &asOf})
			if err != nil {
				return nil, err
			}
			return []zap.Field{
				zap.Int("created", len(result.Created)),
				zap.Int("skipped", result.Skipped()),
				zap.Int("failed", len(result.Failed)),
			}, nil
		},
		scheduler.JobKindFlagOverdue: func(ctx context.Context, accountID uuid.UUID, asOf time.Time) ([]zap.Field, error) {
			result, err := s.Transactions.FlagOverdue(ctx, agency.SystemCaller(accountID), &asOf)
			return []zap.Field{
				zap.Int("examined", result.Examined),
				zap.Int("flagged", result.Flagged),
				zap.Int("conflicts", result.Conflicts),
				zap.Int("failed", result.Failed),
			}, err
		},
	}
	for kind, step := range steps {
		steps[kind] = profiled(kind, step)
	}
	return steps
}

func profiled(kind scheduler.JobKind, step scheduler.StepFunc) scheduler.StepFunc {
	return func(ctx context.Context, accountID uuid.UUID, asOf time.Time) (fields []zap.Field, err error) {
		telemetry.ProfileSweepStep(ctx, string(kind), accountID, func(ctx context.Context) {
			fields, err = step(ctx, accountID, asOf)
		})
		return fields, err
	}
}

// Jobs is the running daily sweep: a worker pool fed by a once-a-day trigger
type Jobs struct {
	Scheduler *scheduler.Scheduler
	Trigger   *scheduler.CronTrigger
}

// StartJobs starts the billing sweep described by cfg
func StartJobs(ctx context.Context, cfg config.SchedulerConfig, services *Services, log *zap.Logger) (*Jobs, error) {
	poolCfg := scheduler.SchedulerConfig{
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		JobTimeout:        cfg.JobTimeout,
		RetryAttempts:     cfg.RetryAttempts,
		RetryDelay:        cfg.RetryDelay,
	}
	if err := poolCfg.Validate(); err != nil {
		return nil, err
	}
	sched := scheduler.NewScheduler(poolCfg, scheduler.NewSweepExecutor(services.SweepSteps(), log.Named("sweep")), log)

	hour, minute := scheduler.ParseCronSchedule(cfg.DailyCron)
	trigger := scheduler.NewCronTrigger(scheduler.CronTriggerConfig{
		DailyHour:     hour,
		DailyMinute:   minute,
		CheckInterval: time.Minute,
	}, sched, services.Accounts, log.Named("cron"))

	if err := sched.Start(ctx); err != nil {
		return nil, err
	}
	if err := trigger.Start(ctx); err != nil {
		_ = sched.Stop(ctx)
		return nil, err
	}
	return &Jobs{Scheduler: sched, Trigger: trigger}, nil
}

// Stop halts the trigger then drains the workers
func (j *Jobs) Stop(ctx context.Context) error {
	if err := j.Trigger.Stop(ctx); err != nil {
		return err
	}
	return j.Scheduler.Stop(ctx)
}
