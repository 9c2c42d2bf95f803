package scheduler

import (
	"context"
	"time"

	"github.com/Dauren2214/EventMinder/pkg/logger"
	"github.com/robfig/cron/v3"
)

// staleAfter is how long past its delivery time a scheduled reminder may sit
// (skipped as an orphan, or never picked up) before the sweep cancels it.
const staleAfter = 24 * time.Hour

// Optimizer runs the batch engagement-optimization pass.
// Satisfied by services.OptimizerService.
type Optimizer interface {
	OptimizeAllUpcoming(ctx context.Context) error
}

// StaleCleaner cancels scheduled reminders whose delivery time is long past.
// Satisfied by repository.ReminderRepository.
type StaleCleaner interface {
	CancelStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// StartReminderCronJobs registers the periodic maintenance jobs: the nightly
// optimization batch and the hourly stale-reminder sweep.
func StartReminderCronJobs(optimizer Optimizer, cleaner StaleCleaner) *cron.Cron {
	c := cron.New()

	// Nightly optimization batch
	c.AddFunc("0 3 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := optimizer.OptimizeAllUpcoming(ctx); err != nil {
			logger.Log.WithError(err).Error("Nightly optimization batch failed")
		}
	})

	// Stale reminder sweep
	c.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		cancelled, err := cleaner.CancelStale(ctx, time.Now().Add(-staleAfter))
		if err != nil {
			logger.Log.WithError(err).Error("Stale reminder sweep failed")
			return
		}
		if cancelled > 0 {
			logger.Log.WithField("cancelled", cancelled).Info("Stale reminders swept")
		}
	})

	c.Start()
	return c
}
