package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/docmill/docmill/internal/queue"
	"github.com/docmill/docmill/internal/worker"
)

var superviseCmd = &cobra.Command{
	Use:   "supervise",
	Short: "Run the worker pool under supervision",
	Long: `Start the configured number of worker processes and keep them alive.
A worker that exits for any reason is respawned into its slot on the next
liveness tick. Also serves /healthz and /status, and periodically requeues
jobs abandoned by dead workers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := buildEnv()
		if err != nil {
			return err
		}

		exe, err := os.Executable()
		if err != nil {
			return err
		}
		spawn := func(slot int) (*exec.Cmd, error) {
			wargs := []string{"worker", "--slot", fmt.Sprint(slot)}
			if cfgFile != "" {
				wargs = append(wargs, "--config", cfgFile)
			}
			if homeDir != "" {
				wargs = append(wargs, "--home", homeDir)
			}
			if verbose {
				wargs = append(wargs, "--verbose")
			}
			c := exec.Command(exe, wargs...)
			c.Stdout = os.Stdout
			c.Stderr = os.Stderr
			return c, nil
		}

		rdb := env.newRedis()
		defer rdb.Close()
		q := env.newQueue(rdb)

		sup := worker.NewSupervisor(env.cfg.Worker.Count, spawn, env.cfg.Worker.LivenessIv, env.logger)
		status := worker.NewStatusServer(sup, q, env.logger)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		errCh := make(chan error, 3)
		go func() { errCh <- sup.Run(ctx) }()
		go func() { errCh <- status.Serve(ctx, env.cfg.Worker.StatusAddr) }()
		go func() { errCh <- requeueLoop(ctx, q, env) }()

		err = <-errCh
		cancel()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

// requeueLoop periodically returns abandoned processing-list payloads to
// pending so another worker picks them up.
func requeueLoop(ctx context.Context, q *queue.Queue, env *env) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			moved, err := q.RequeueStale(ctx, int64(env.cfg.Worker.Count))
			if err != nil {
				env.logger.Warn("failed to requeue stale jobs", "error", err)
			} else if moved > 0 {
				env.logger.Info("requeued stale jobs", "count", moved)
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(superviseCmd)
}
