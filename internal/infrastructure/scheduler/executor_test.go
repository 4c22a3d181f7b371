package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestSweepExecutor_RunsStepsInOrder(t *testing.T) {
	accountID := uuid.New()
	asOf := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var order []JobKind
	step := func(kind JobKind) StepFunc {
		return func(_ context.Context, id uuid.UUID, at time.Time) ([]zap.Field, error) {
			assert.Equal(t, accountID, id)
			assert.True(t, asOf.Equal(at))
			order = append(order, kind)
			return []zap.Field{zap.Int("count", 1)}, nil
		}
	}
	exec := NewSweepExecutor(map[JobKind]StepFunc{
		JobKindFlagOverdue:          step(JobKindFlagOverdue),
		JobKindExpandRecurring:      step(JobKindExpandRecurring),
		JobKindGenerateTransactions: step(JobKindGenerateTransactions),
	}, zaptest.NewLogger(t))

	require.NoError(t, exec.Execute(context.Background(), NewJob(accountID, nil, asOf, 0)))
	assert.Equal(t, AllJobKinds(), order)
}

func TestSweepExecutor_ContinuesPastFailures(t *testing.T) {
	boom := errors.New("lock store unavailable")
	ran := 0
	exec := NewSweepExecutor(map[JobKind]StepFunc{
		JobKindExpandRecurring: func(context.Context, uuid.UUID, time.Time) ([]zap.Field, error) {
			ran++
			return nil, boom
		},
		JobKindFlagOverdue: func(context.Context, uuid.UUID, time.Time) ([]zap.Field, error) {
			ran++
			return nil, nil
		},
	}, zaptest.NewLogger(t))

	err := exec.Execute(context.Background(), NewJob(uuid.New(), AllJobKinds(), time.Now(), 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrUnknownJobKind, "generate_transactions has no step")
	assert.Equal(t, 2, ran)
}

func TestSweepExecutor_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	exec := NewSweepExecutor(map[JobKind]StepFunc{
		JobKindExpandRecurring: func(context.Context, uuid.UUID, time.Time) ([]zap.Field, error) {
			t.Fatal("step must not run")
			return nil, nil
		},
	}, nil)

	err := exec.Execute(ctx, NewJob(uuid.New(), []JobKind{JobKindExpandRecurring}, time.Now(), 0))
	assert.ErrorIs(t, err, context.Canceled)
}
