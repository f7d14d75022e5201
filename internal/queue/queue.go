// Package queue implements the job queue on Redis lists.
//
// Delivery contract: Claim moves a payload from the pending list onto a
// processing list (the visibility mechanism), Ack removes it, and
// RequeueStale moves abandoned payloads back so the queue's own redelivery
// retries them. A payload that has been received more than MaxReceive times
// is parked on the dead-letter list.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrQueueEmpty indicates no message arrived within the poll window.
	ErrQueueEmpty = errors.New("queue empty")

	// ErrInvalidMessage indicates a payload that failed schema validation.
	ErrInvalidMessage = errors.New("invalid queue message")
)

// Keys names the Redis keys backing one queue.
type Keys struct {
	Pending    string
	Processing string
	DeadLetter string
	Receipts   string // hash payload -> receive count
	Claims     string // hash payload -> unix time of the current claim
}

// Stats reports approximate queue depths.
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	DeadLetter int64 `json:"dead_letter"`
}

// Queue is a reliable Redis-list queue for job payloads.
type Queue struct {
	rdb        *redis.Client
	keys       Keys
	maxReceive int
	visibility time.Duration
}

// New creates a queue over an existing Redis client. visibility is how long
// a claimed payload stays invisible to RequeueStale; it must comfortably
// exceed the longest expected job.
func New(rdb *redis.Client, keys Keys, maxReceive int, visibility time.Duration) *Queue {
	if maxReceive <= 0 {
		maxReceive = 5
	}
	if visibility <= 0 {
		visibility = 15 * time.Minute
	}
	return &Queue{rdb: rdb, keys: keys, maxReceive: maxReceive, visibility: visibility}
}

// Enqueue pushes a raw payload onto the pending list.
func (q *Queue) Enqueue(ctx context.Context, payload []byte) error {
	return q.rdb.LPush(ctx, q.keys.Pending, payload).Err()
}

// Claim long-polls for one payload, atomically moving it to the processing
// list. Returns ErrQueueEmpty when nothing arrives within wait. A payload
// over the receive cap is parked on the dead-letter list and the next one
// is attempted.
func (q *Queue) Claim(ctx context.Context, wait time.Duration) (string, error) {
	for {
		payload, err := q.rdb.BRPopLPush(ctx, q.keys.Pending, q.keys.Processing, wait).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return "", ErrQueueEmpty
			}
			return "", fmt.Errorf("claim: %w", err)
		}

		n, err := q.rdb.HIncrBy(ctx, q.keys.Receipts, payload, 1).Result()
		if err != nil {
			return "", fmt.Errorf("claim receipt: %w", err)
		}
		if int(n) <= q.maxReceive {
			// Stamp the claim so RequeueStale can tell an in-flight
			// payload from an abandoned one.
			if err := q.rdb.HSet(ctx, q.keys.Claims, payload, time.Now().Unix()).Err(); err != nil {
				return "", fmt.Errorf("claim stamp: %w", err)
			}
			return payload, nil
		}

		// Past the receive cap: park it and keep polling.
		pipe := q.rdb.TxPipeline()
		pipe.LRem(ctx, q.keys.Processing, 1, payload)
		pipe.LPush(ctx, q.keys.DeadLetter, payload)
		pipe.HDel(ctx, q.keys.Receipts, payload)
		pipe.HDel(ctx, q.keys.Claims, payload)
		if _, err := pipe.Exec(ctx); err != nil {
			return "", fmt.Errorf("dead-letter: %w", err)
		}
	}
}

// Ack removes a successfully processed payload. This is the only path that
// deletes a message; every failure leaves it for redelivery.
func (q *Queue) Ack(ctx context.Context, payload string) error {
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.keys.Processing, 1, payload)
	pipe.HDel(ctx, q.keys.Receipts, payload)
	pipe.HDel(ctx, q.keys.Claims, payload)
	_, err := pipe.Exec(ctx)
	return err
}

// RequeueStale moves up to max abandoned payloads from the processing list
// back to pending. A payload is abandoned only when its claim stamp is older
// than the visibility window (or missing entirely); anything younger is
// still owned by a live worker and stays put.
func (q *Queue) RequeueStale(ctx context.Context, max int64) (int64, error) {
	payloads, err := q.rdb.LRange(ctx, q.keys.Processing, 0, -1).Result()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-q.visibility).Unix()
	var moved int64
	for _, payload := range payloads {
		if moved >= max {
			break
		}

		claimed, err := q.rdb.HGet(ctx, q.keys.Claims, payload).Int64()
		switch {
		case err == nil && claimed > cutoff:
			continue
		case err != nil && !errors.Is(err, redis.Nil):
			return moved, err
		}

		pipe := q.rdb.TxPipeline()
		pipe.LRem(ctx, q.keys.Processing, 1, payload)
		pipe.LPush(ctx, q.keys.Pending, payload)
		pipe.HDel(ctx, q.keys.Claims, payload)
		if _, err := pipe.Exec(ctx); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// Depths returns the current queue statistics.
func (q *Queue) Depths(ctx context.Context) (Stats, error) {
	var s Stats
	var err error
	if s.Pending, err = q.rdb.LLen(ctx, q.keys.Pending).Result(); err != nil {
		return s, err
	}
	if s.Processing, err = q.rdb.LLen(ctx, q.keys.Processing).Result(); err != nil {
		return s, err
	}
	if s.DeadLetter, err = q.rdb.LLen(ctx, q.keys.DeadLetter).Result(); err != nil {
		return s, err
	}
	return s, nil
}

// Purge deletes every queue key. Destructive; used by the queue purge CLI.
func (q *Queue) Purge(ctx context.Context) error {
	return q.rdb.Del(ctx, q.keys.Pending, q.keys.Processing, q.keys.DeadLetter, q.keys.Receipts, q.keys.Claims).Err()
}
