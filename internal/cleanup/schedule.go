package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner is one scheduled unit of work.
type Runner func(ctx context.Context) error

// RunScheduled calls run on every activation of the cron spec (standard
// five-field syntax or descriptors such as "@hourly") until ctx is canceled.
// Activations never overlap: one that fires while the previous run is still
// going is skipped. Run errors are logged and do not stop the schedule.
func RunScheduled(ctx context.Context, spec string, run Runner, logger *slog.Logger) error {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("cleanup: parsing schedule %q: %w", spec, err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	c.Schedule(sched, cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}

		started := time.Now()
		if err := run(ctx); err != nil {
			logger.Error("scheduled cleanup failed", slog.String("error", err.Error()))
			return
		}

		logger.Info("scheduled cleanup finished", slog.Duration("elapsed", time.Since(started)))
	}))

	logger.Info("cleanup scheduled",
		slog.String("schedule", spec),
		slog.Time("next_run", sched.Next(time.Now())),
	)

	c.Start()
	<-ctx.Done()

	// Wait for a run in progress; it sees the canceled context.
	<-c.Stop().Done()

	return nil
}
