package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StepFunc runs one sweep step for an account and returns summary fields
// for the job log
type StepFunc func(ctx context.Context, accountID uuid.UUID, asOf time.Time) ([]zap.Field, error)

// SweepExecutor runs a job's steps in order. A failed step does not stop the
// later ones; their errors are joined.
type SweepExecutor struct {
	steps  map[JobKind]StepFunc
	logger *zap.Logger
}

// NewSweepExecutor creates an executor over the given steps
func NewSweepExecutor(steps map[JobKind]StepFunc, logger *zap.Logger) *SweepExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepExecutor{steps: steps, logger: logger}
}

// Execute implements JobExecutor
func (e *SweepExecutor) Execute(ctx context.Context, job *Job) error {
	kinds := job.Kinds
	if len(kinds) == 0 {
		kinds = AllJobKinds()
	}

	var errs []error
	for _, kind := range kinds {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		step, ok := e.steps[kind]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnknownJobKind, kind))
			continue
		}

		start := time.Now()
		fields, err := step(ctx, job.AccountID, job.AsOf)
		fields = append(fields,
			zap.String("step", string(kind)),
			zap.String("account_id", job.AccountID.String()),
			zap.Duration("duration", time.Since(start)),
		)
		if err != nil {
			e.logger.Error("Sweep step failed", append(fields, zap.Error(err))...)
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
			continue
		}
		e.logger.Info("Sweep step completed", fields...)
	}
	return errors.Join(errs...)
}
