// Package worker runs queue consumers and the supervisor that keeps a pool
// of them alive as separate OS processes.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/docmill/docmill/internal/queue"
)

// JobQueue is the slice of queue.Queue the worker needs.
type JobQueue interface {
	Claim(ctx context.Context, wait time.Duration) (string, error)
	Ack(ctx context.Context, payload string) error
}

// JobRunner executes one parsed job. Satisfied by pipeline.Runner.
type JobRunner interface {
	Run(ctx context.Context, msg *queue.Message) error
}

// Worker consumes jobs from the queue and runs them through the pipeline.
type Worker struct {
	queue    JobQueue
	runner   JobRunner
	pollWait time.Duration
	logger   *slog.Logger
}

// New creates a Worker. slot identifies the process in logs.
func New(q JobQueue, runner JobRunner, pollWait time.Duration, slot int, logger *slog.Logger) *Worker {
	if pollWait <= 0 {
		pollWait = 20 * time.Second
	}
	return &Worker{
		queue:    q,
		runner:   runner,
		pollWait: pollWait,
		logger:   logger.With("component", "worker", "slot", slot),
	}
}

// Run is the consume loop. A message is acknowledged only after the
// pipeline finishes; every failure leaves it on the processing list for
// redelivery, and the queue's receive cap eventually dead-letters it.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started")
	for {
		if err := ctx.Err(); err != nil {
			w.logger.Info("worker stopping")
			return err
		}

		payload, err := w.queue.Claim(ctx, w.pollWait)
		if err != nil {
			if errors.Is(err, queue.ErrQueueEmpty) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("failed to claim message", "error", err)
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		w.handle(ctx, payload)
	}
}

func (w *Worker) handle(ctx context.Context, payload string) {
	msg, err := queue.ParseMessage([]byte(payload))
	if err != nil {
		// Malformed payloads never reach the pipeline. Left unacked, they
		// cycle through redelivery into the dead-letter list.
		w.logger.Error("rejecting malformed message", "error", err)
		return
	}

	log := w.logger.With("job", msg.JobID)
	start := time.Now()

	if err := w.runner.Run(ctx, msg); err != nil {
		log.Error("job failed, leaving for redelivery", "error", err, "elapsed", time.Since(start))
		return
	}

	if err := w.queue.Ack(ctx, payload); err != nil {
		log.Error("failed to ack completed job", "error", err)
		return
	}
	log.Info("job acked", "elapsed", time.Since(start))
}
