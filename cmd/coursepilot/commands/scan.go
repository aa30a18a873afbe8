package commands

import (
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(scanCmd)
}

var scanCmd = &cobra.Command{
	Use:   "scan [--course <url>]",
	Short: "Lists the activities of the course and how they would be handled, without completing anything.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setupCourse()
		if err != nil {
			return err
		}
		scan, err := e.orchestrator.Scan(cmd.Context())
		if err != nil {
			return err
		}
		renderScan(os.Stdout, scan)
		return nil
	},
}
