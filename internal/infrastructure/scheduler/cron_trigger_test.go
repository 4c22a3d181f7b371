package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type staticAccounts struct {
	ids []uuid.UUID
	err error
}

func (s staticAccounts) ListActiveAccountIDs(context.Context) ([]uuid.UUID, error) {
	return s.ids, s.err
}

func TestParseCronSchedule(t *testing.T) {
	tests := []struct {
		expr         string
		hour, minute int
	}{
		{"0 2 * * *", 2, 0},
		{"30 4 * * *", 4, 30},
		{"15 23 * * *", 23, 15},
		{"", 2, 0},
		{"*/5", 2, 0},
		{"61 25 * * *", 2, 0},
		{"x 6 * * *", 6, 0},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			h, m := ParseCronSchedule(tt.expr)
			assert.Equal(t, tt.hour, h)
			assert.Equal(t, tt.minute, m)
		})
	}
}

func newTriggerHarness(t *testing.T, accounts AccountProvider) (*CronTrigger, <-chan *Job) {
	t.Helper()
	s := NewScheduler(testConfig(), funcExecutor(func(context.Context, *Job) error { return nil }), zaptest.NewLogger(t))
	done := collectDone(s)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	trigger := NewCronTrigger(CronTriggerConfig{DailyHour: 2, DailyMinute: 30}, s, accounts, zaptest.NewLogger(t))
	return trigger, done
}

func TestCronTrigger_FiresOncePerDay(t *testing.T) {
	account := uuid.New()
	trigger, done := newTriggerHarness(t, staticAccounts{ids: []uuid.UUID{account}})
	ctx := context.Background()

	trigger.now = func() time.Time { return time.Date(2026, 5, 4, 2, 29, 0, 0, time.UTC) }
	assert.False(t, trigger.checkAndTrigger(ctx), "before the daily time")

	trigger.now = func() time.Time { return time.Date(2026, 5, 4, 2, 30, 0, 0, time.UTC) }
	assert.True(t, trigger.checkAndTrigger(ctx))
	job := waitJob(t, done)
	assert.Equal(t, account, job.AccountID)
	assert.Equal(t, 4, job.AsOf.Day())

	trigger.now = func() time.Time { return time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC) }
	assert.False(t, trigger.checkAndTrigger(ctx), "already ran today")

	trigger.now = func() time.Time { return time.Date(2026, 5, 5, 3, 0, 0, 0, time.UTC) }
	assert.True(t, trigger.checkAndTrigger(ctx), "late tick on the next day still fires")
	waitJob(t, done)
}

func TestCronTrigger_ProviderFailureRetriesNextTick(t *testing.T) {
	trigger, _ := newTriggerHarness(t, staticAccounts{err: errors.New("db down")})
	trigger.now = func() time.Time { return time.Date(2026, 5, 4, 3, 0, 0, 0, time.UTC) }

	assert.False(t, trigger.checkAndTrigger(context.Background()))
	assert.Empty(t, trigger.lastRunDate)
}

func TestCronTrigger_TriggerNow(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	trigger, done := newTriggerHarness(t, staticAccounts{ids: ids})

	require.NoError(t, trigger.TriggerNow(context.Background()))
	got := map[uuid.UUID]bool{}
	for range ids {
		got[waitJob(t, done).AccountID] = true
	}
	assert.Len(t, got, 2)
}

func TestCronTrigger_StartStop(t *testing.T) {
	trigger, _ := newTriggerHarness(t, staticAccounts{})
	require.NoError(t, trigger.Start(context.Background()))
	require.NoError(t, trigger.Start(context.Background()))
	require.NoError(t, trigger.Stop(context.Background()))
	require.NoError(t, trigger.Stop(context.Background()))
}
