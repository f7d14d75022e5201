package main

import (
	"github.com/spf13/cobra"

	"github.com/docmill/docmill/internal/queue"
)

var runMsg queue.Message

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one extraction job directly, bypassing the queue",
	Long: `Run a single job in-process. Useful for local debugging and for
re-running a job from its checkpoint: an existing job directory resumes
from the last completed stage.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := buildEnv()
		if err != nil {
			return err
		}

		body, err := runMsg.Encode()
		if err != nil {
			return err
		}
		msg, err := queue.ParseMessage(body)
		if err != nil {
			return err
		}

		runner, cleanup, err := env.newRunner()
		if err != nil {
			return err
		}
		defer cleanup()

		return runner.Run(cmd.Context(), msg)
	},
}

func init() {
	runCmd.Flags().StringVar(&runMsg.JobID, "job-id", "", "job identifier (required)")
	runCmd.Flags().StringVar(&runMsg.SourceLocator, "source", "", "source locator, store://bucket/key (required)")
	runCmd.Flags().StringVar(&runMsg.UserID, "user", "local", "user id")
	runCmd.Flags().StringVar(&runMsg.TenantID, "tenant", "local", "tenant id")
	runCmd.Flags().StringVar(&runMsg.CustomerID, "customer", "", "customer id")
	runCmd.Flags().StringVar(&runMsg.ProjectID, "project", "", "project id")
	runCmd.Flags().StringVar(&runMsg.Filename, "filename", "", "original filename (required)")
	runCmd.Flags().IntVar(&runMsg.Version, "file-version", 1, "file version")
	runCmd.MarkFlagRequired("job-id")
	runCmd.MarkFlagRequired("source")
	runCmd.MarkFlagRequired("filename")

	rootCmd.AddCommand(runCmd)
}
