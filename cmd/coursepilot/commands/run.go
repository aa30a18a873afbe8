package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [--course <url>] [--cookie <header>]",
	Short: "Completes every pending activity of the course.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setupCourse()
		if err != nil {
			return err
		}
		startPerfStats(cmd.Context(), e.config)

		slog.Info("starting run", "run", e.runId, "course", e.config.CourseUrl)
		result, err := e.orchestrator.Run(cmd.Context())
		renderRunResult(os.Stdout, result)
		return err
	},
}
