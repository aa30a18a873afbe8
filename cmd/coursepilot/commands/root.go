package commands

import (
	"context"
	"coursepilot/internal/components/telemetry"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	configPath string
	courseUrl  string
	cookie     string
	verbose    bool
	maxPasses  int
	dumpDir    string
)

var otelProviders telemetry.Telemetry

var rootCmd = &cobra.Command{
	Use:          "coursepilot",
	Short:        "coursepilot completes the pending activities of a course on the learning platform.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(verbose)
		providers, err := telemetry.SetupFromEnv(cmd.Context(), "coursepilot")
		if err != nil {
			slog.Warn("failed to setup telemetry", "err", err)
			return
		}
		otelProviders = providers
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		err := otelProviders.Shutdown(ctx)
		if err != nil {
			slog.Warn("failed to flush telemetry", "err", err)
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "config.json5", "The config file to read.")
	flags.StringVar(&courseUrl, "course", "", "The course page to work on, overrides course_url.")
	flags.StringVar(&cookie, "cookie", "", "A Cookie header of a logged in session, overrides cookies.")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log debug output.")
	flags.IntVar(&maxPasses, "max-passes", 0, "The maximum number of passes over the course, overrides max_passes.")
	flags.StringVar(&dumpDir, "dump-dir", "", "Write every http exchange to a file in this directory.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
