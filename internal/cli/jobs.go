package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"secondbrain/internal/ui"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect ingestion jobs",
}

var jobsGetCmd = &cobra.Command{
	Use:   "get [job-id]",
	Short: "Show the progress of an ingestion job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsGet,
}

func init() {
	jobsCmd.AddCommand(jobsGetCmd)
	rootCmd.AddCommand(jobsCmd)
}

func runJobsGet(cmd *cobra.Command, args []string) error {
	job, err := client.GetJob(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}

	ui.NewEnhancedDisplay(cmd.OutOrStdout()).PrintJob(job)
	return nil
}
