package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/docmill/docmill/internal/worker"
)

var workerSlot int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a single queue worker",
	Long: `Run one queue consumer in the foreground. Normally spawned by
"docmill supervise"; running it directly is useful for debugging.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := buildEnv()
		if err != nil {
			return err
		}

		rdb := env.newRedis()
		defer rdb.Close()

		runner, cleanup, err := env.newRunner()
		if err != nil {
			return err
		}
		defer cleanup()

		w := worker.New(env.newQueue(rdb), runner, env.cfg.Worker.PollWait, workerSlot, env.logger)
		if err := w.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	workerCmd.Flags().IntVar(&workerSlot, "slot", 0, "worker slot index (set by the supervisor)")

	rootCmd.AddCommand(workerCmd)
}
