package scheduler

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AccountProvider lists the accounts the daily sweep covers
type AccountProvider interface {
	ListActiveAccountIDs(ctx context.Context) ([]uuid.UUID, error)
}

// CronTriggerConfig holds configuration for the cron trigger
type CronTriggerConfig struct {
	DailyHour   int
	DailyMinute int

	// CheckInterval is how often to check if it's time to run
	CheckInterval time.Duration

	// Location interprets DailyHour and DailyMinute; UTC when nil
	Location *time.Location
}

// DefaultCronTriggerConfig returns default cron trigger configuration
func DefaultCronTriggerConfig() CronTriggerConfig {
	return CronTriggerConfig{
		DailyHour:     2,
		DailyMinute:   0,
		CheckInterval: time.Minute,
	}
}

// ParseCronSchedule reads the minute and hour of a "minute hour * * *"
// expression. Anything unparseable falls back to 02:00.
func ParseCronSchedule(expr string) (hour, minute int) {
	hour, minute = 2, 0
	parts := strings.Fields(expr)
	if len(parts) < 2 {
		return hour, minute
	}
	minute = parseIntOrDefault(parts[0], 0, 0, 59)
	hour = parseIntOrDefault(parts[1], 2, 0, 23)
	return hour, minute
}

func parseIntOrDefault(s string, def, lo, hi int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return def
	}
	return n
}

// CronTrigger submits the daily billing sweep once per day
type CronTrigger struct {
	config    CronTriggerConfig
	scheduler *Scheduler
	accounts  AccountProvider
	logger    *zap.Logger
	now       func() time.Time

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	isRunning   bool
	lastRunDate string
}

// NewCronTrigger creates a new cron trigger
func NewCronTrigger(
	config CronTriggerConfig,
	scheduler *Scheduler,
	accounts AccountProvider,
	logger *zap.Logger,
) *CronTrigger {
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CronTrigger{
		config:    config,
		scheduler: scheduler,
		accounts:  accounts,
		logger:    logger,
		now:       time.Now,
	}
}

// Start starts the cron trigger
func (c *CronTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isRunning {
		return nil
	}
	c.isRunning = true

	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Cron trigger started",
		zap.Int("daily_hour", c.config.DailyHour),
		zap.Int("daily_minute", c.config.DailyMinute),
		zap.Duration("check_interval", c.config.CheckInterval),
	)
	return nil
}

// Stop stops the cron trigger
func (c *CronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.cancel()
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Cron trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CronTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAndTrigger(ctx)
		}
	}
}

// checkAndTrigger fires at most once per calendar day, on or after the
// configured time, so a late tick still runs the day's sweep
func (c *CronTrigger) checkAndTrigger(ctx context.Context) bool {
	now := c.now().In(c.config.Location)
	today := now.Format("2006-01-02")

	c.mu.Lock()
	if c.lastRunDate == today {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	if now.Hour() < c.config.DailyHour ||
		(now.Hour() == c.config.DailyHour && now.Minute() < c.config.DailyMinute) {
		return false
	}

	if err := c.trigger(ctx, now); err != nil {
		c.logger.Error("Daily billing sweep not scheduled", zap.Error(err))
		return false
	}

	c.mu.Lock()
	c.lastRunDate = today
	c.mu.Unlock()
	return true
}

// TriggerNow submits the sweep for every active account immediately
func (c *CronTrigger) TriggerNow(ctx context.Context) error {
	return c.trigger(ctx, c.now().In(c.config.Location))
}

func (c *CronTrigger) trigger(ctx context.Context, asOf time.Time) error {
	ids, err := c.accounts.ListActiveAccountIDs(ctx)
	if err != nil {
		return err
	}
	c.logger.Info("Scheduling daily billing sweep",
		zap.Int("accounts", len(ids)),
		zap.Time("as_of", asOf),
	)
	return c.scheduler.ScheduleSweep(ids, asOf)
}
