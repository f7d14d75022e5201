package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
)

// maxRetryDelay caps the linear backoff between chunk attempts.
const maxRetryDelay = 30 * time.Second

// Chunk is one contiguous page range submitted as its own remote job.
// PageOffset is what gets added to chunk-relative page numbers, always
// Index * chunk size regardless of how many pages the final chunk holds.
type Chunk struct {
	Index      int
	Locator    string
	Pages      int
	PageOffset int
}

// Options sizes the orchestrator.
type Options struct {
	ChunkSize    int
	Parallelism  int
	MaxAttempts  int
	RetryDelay   time.Duration
	PollInterval time.Duration
	PollBudget   int
}

// Orchestrator fans chunks out to the analysis service with bounded
// parallelism and reassembles results in chunk order.
type Orchestrator struct {
	client Client
	opts   Options
	logger *slog.Logger
}

// NewOrchestrator creates an orchestrator over client.
func NewOrchestrator(client Client, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	return &Orchestrator{
		client: client,
		opts:   opts,
		logger: logger.With("component", "analysis"),
	}
}

// MakeChunks pairs uploaded chunk locators with their page ranges. Locators
// must be in ascending page order, as produced by SplitPDF.
func MakeChunks(locators []string, pageCount, chunkSize int) []Chunk {
	chunks := make([]Chunk, 0, len(locators))
	for i, loc := range locators {
		pages := chunkSize
		if rem := pageCount - i*chunkSize; rem < pages {
			pages = rem
		}
		chunks = append(chunks, Chunk{
			Index:      i,
			Locator:    loc,
			Pages:      pages,
			PageOffset: i * chunkSize,
		})
	}
	return chunks
}

// Run analyzes every chunk and returns the concatenated blocks, chunk order
// first, with page numbers rewritten to document-global values. Any chunk
// that exhausts its attempts fails the whole run.
func (o *Orchestrator) Run(ctx context.Context, chunks []Chunk) ([]Block, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([][]Block, len(chunks))
	sem := make(chan struct{}, o.opts.Parallelism)

	var wg sync.WaitGroup
	var once sync.Once
	var firstErr error

	for _, chunk := range chunks {
		wg.Add(1)
		go func(chunk Chunk) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			blocks, err := o.runChunk(ctx, chunk)
			if err != nil {
				once.Do(func() {
					firstErr = fmt.Errorf("%w: chunk %d: %v", ErrChunkFailed, chunk.Index, err)
					cancel()
				})
				return
			}
			results[chunk.Index] = blocks
		}(chunk)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var blocks []Block
	for _, chunkBlocks := range results {
		blocks = append(blocks, chunkBlocks...)
	}
	return blocks, nil
}

// runChunk drives one chunk through submit/poll with linear-backoff retries.
func (o *Orchestrator) runChunk(ctx context.Context, chunk Chunk) ([]Block, error) {
	log := o.logger.With("chunk", chunk.Index, "pages", chunk.Pages)

	return retry.DoWithData(
		func() ([]Block, error) {
			return o.processOnce(ctx, chunk, log)
		},
		retry.Context(ctx),
		retry.Attempts(uint(o.opts.MaxAttempts)),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			d := o.opts.RetryDelay * time.Duration(n+1)
			if d > maxRetryDelay {
				d = maxRetryDelay
			}
			return d
		}),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("retrying analysis chunk", "attempt", n+1, "error", err)
		}),
	)
}

func (o *Orchestrator) processOnce(ctx context.Context, chunk Chunk, log *slog.Logger) ([]Block, error) {
	jobID, err := o.client.Submit(ctx, chunk.Locator)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	log.Debug("submitted analysis chunk", "remote_job", jobID)

	for i := 0; i < o.opts.PollBudget; i++ {
		state, blocks, err := o.client.Poll(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("poll: %w", err)
		}

		switch state {
		case StateSucceeded:
			// Rewrite chunk-relative pages to document-global ones.
			for j := range blocks {
				blocks[j].Page += chunk.PageOffset
			}
			log.Debug("analysis chunk succeeded", "remote_job", jobID, "blocks", len(blocks))
			return blocks, nil
		case StateFailed:
			return nil, fmt.Errorf("remote job %s failed", jobID)
		}

		select {
		case <-time.After(o.opts.PollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, retry.Unrecoverable(fmt.Errorf("%w: remote job %s", ErrAnalysisTimeout, jobID))
}
