package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/docmill/docmill/internal/queue"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the job queue",
}

var sendMsg queue.Message

var queueSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Enqueue one extraction job",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := buildEnv()
		if err != nil {
			return err
		}

		body, err := sendMsg.Encode()
		if err != nil {
			return err
		}
		// Round-trip through the validator so a bad send fails here, not
		// in a worker.
		if _, err := queue.ParseMessage(body); err != nil {
			return err
		}

		rdb := env.newRedis()
		defer rdb.Close()

		if err := env.newQueue(rdb).Enqueue(cmd.Context(), body); err != nil {
			return err
		}
		fmt.Printf("enqueued job %s\n", sendMsg.JobID)
		return nil
	},
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print queue depths",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := buildEnv()
		if err != nil {
			return err
		}

		rdb := env.newRedis()
		defer rdb.Close()

		stats, err := env.newQueue(rdb).Depths(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

var queuePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every queued, in-flight and dead-lettered job",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := buildEnv()
		if err != nil {
			return err
		}

		rdb := env.newRedis()
		defer rdb.Close()

		if err := env.newQueue(rdb).Purge(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("queue purged")
		return nil
	},
}

func init() {
	queueSendCmd.Flags().StringVar(&sendMsg.JobID, "job-id", "", "job identifier (required)")
	queueSendCmd.Flags().StringVar(&sendMsg.SourceLocator, "source", "", "source locator, store://bucket/key (required)")
	queueSendCmd.Flags().StringVar(&sendMsg.UserID, "user", "", "user id (required)")
	queueSendCmd.Flags().StringVar(&sendMsg.TenantID, "tenant", "", "tenant id (required)")
	queueSendCmd.Flags().StringVar(&sendMsg.CustomerID, "customer", "", "customer id")
	queueSendCmd.Flags().StringVar(&sendMsg.ProjectID, "project", "", "project id")
	queueSendCmd.Flags().StringVar(&sendMsg.Filename, "filename", "", "original filename (required)")
	queueSendCmd.Flags().IntVar(&sendMsg.Version, "file-version", 1, "file version")
	queueSendCmd.MarkFlagRequired("job-id")
	queueSendCmd.MarkFlagRequired("source")
	queueSendCmd.MarkFlagRequired("user")
	queueSendCmd.MarkFlagRequired("tenant")
	queueSendCmd.MarkFlagRequired("filename")

	queueCmd.AddCommand(queueSendCmd, queueStatusCmd, queuePurgeCmd)
	rootCmd.AddCommand(queueCmd)
}
