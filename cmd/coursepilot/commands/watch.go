package commands

import (
	"context"
	"coursepilot/internal/components/chrono"
	"coursepilot/internal/components/telemetry"
	"coursepilot/internal/lms/orchestrator"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var watchSchedule string

func init() {
	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "", "A cron spec for when to run, overrides watch_schedule.")
	rootCmd.AddCommand(watchCmd)
}

// watchRun executes one scheduled run, a run that is still going when the next tick fires is left
// alone.
func watchRun(ctx context.Context, e *env) {
	result, err := e.orchestrator.Run(ctx)
	if errors.Is(err, orchestrator.ErrAlreadyRunning) {
		return
	}
	if err != nil {
		slog.Error("scheduled run failed", "run", e.runId, "err", err)
	}
	renderRunResult(os.Stdout, result)
}

var watchCmd = &cobra.Command{
	Use:   "watch [--schedule <cron spec>]",
	Short: "Runs right away and then again on a schedule until interrupted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setupCourse()
		if err != nil {
			return err
		}
		schedule := e.config.WatchSchedule
		if watchSchedule != "" {
			schedule = watchSchedule
		}

		ctx := cmd.Context()
		startPerfStats(ctx, e.config)

		cron := chrono.NewStandardCron(telemetry.NewScopedAPI("watch", e.tel), nil)
		err = cron.Cron(schedule, func() {
			watchRun(ctx, e)
		})
		if err != nil {
			<-cron.Stop().Done()
			return err
		}

		slog.Info("watching course", "schedule", schedule, "course", e.config.CourseUrl)
		watchRun(ctx, e)

		<-ctx.Done()
		<-cron.Stop().Done()
		return nil
	},
}
