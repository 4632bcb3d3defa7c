// Package jobs schedules and runs background maintenance jobs.
package jobs

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Job ids.
const (
	RefreshAllID    = "refresh-all"
	ReloadPluginsID = "reload-plugins"
)

// Refresher re-runs every visible task.
type Refresher interface {
	RefreshAll(ctx context.Context) error
}

// Purger drops cached strategy resolutions.
type Purger interface {
	Purge()
}

// RegisterDefaults registers the built-in jobs.
func RegisterDefaults(jm *JobManager, tasks Refresher, plugins Purger) {
	jm.Register(RefreshAllID, "Refresh all tasks", tasks.RefreshAll)
	jm.Register(ReloadPluginsID, "Reload plugin scripts", func(context.Context) error {
		plugins.Purge()
		return nil
	})
}

// StartJobs starts the scheduler. An interval of zero minutes disables the
// periodic refresh and returns a nil scheduler.
func StartJobs(jm *JobManager, interval int, logger *zap.Logger) *gocron.Scheduler {
	if interval <= 0 {
		logger.Info("Refresh interval is 0, scheduled refresh is disabled.")
		return nil
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	logger.Info("Scheduling job", zap.String("job", RefreshAllID), zap.Int("interval_minutes", interval))
	_, err := s.Every(interval).Minutes().WaitForSchedule().Do(func() {
		logger.Info("Scheduler is triggering job", zap.String("job", RefreshAllID))
		// Go through the manager so a manual run is never doubled up.
		if err := jm.RunJob(RefreshAllID); err != nil {
			logger.Warn("Scheduled job could not start", zap.String("job", RefreshAllID), zap.Error(err))
		}
	})
	if err != nil {
		logger.Error("Error scheduling job", zap.String("job", RefreshAllID), zap.Error(err))
		return nil
	}

	logger.Info("Starting background job scheduler...")
	s.StartAsync()
	return s
}
