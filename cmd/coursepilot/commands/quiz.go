package commands

import (
	"coursepilot/internal/components/chrono"
	"coursepilot/internal/components/telemetry"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(quizCmd)
}

var quizCmd = &cobra.Command{
	Use:   "quiz <exam url>",
	Short: "Answers and submits a single quiz.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		// the quiz url stands in for the course
		cfg.CourseUrl = ""
		e, err := newEnv(cfg, telemetry.SlogAPI{}, chrono.NewStandardTime())
		if err != nil {
			return err
		}

		result, err := e.flow.Run(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("quiz attempt: %w", err)
		}

		t := NewTable(os.Stdout)
		t.AppendHeader(table.Row{"Context", "Attempt", "Answer", "Finished at"})
		t.AppendRow(table.Row{result.Exam.ContextId, result.AttemptId, result.Answer.Value, result.FinalUrl})
		t.Render()
		return nil
	},
}
