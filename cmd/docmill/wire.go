package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/docmill/docmill/internal/analysis"
	"github.com/docmill/docmill/internal/bookkeeping"
	"github.com/docmill/docmill/internal/classify"
	"github.com/docmill/docmill/internal/config"
	"github.com/docmill/docmill/internal/convert"
	"github.com/docmill/docmill/internal/home"
	"github.com/docmill/docmill/internal/pipeline"
	"github.com/docmill/docmill/internal/queue"
	"github.com/docmill/docmill/internal/render"
	"github.com/docmill/docmill/internal/storage"
	"github.com/docmill/docmill/internal/vision"
)

// env bundles what every command needs before doing real work.
type env struct {
	home   *home.Dir
	cfg    *config.Config
	logger *slog.Logger
}

func buildEnv() (*env, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, err
	}

	file := cfgFile
	if file == "" && h.ConfigExists() {
		file = h.ConfigPath()
	}
	cm, err := config.NewManager(file)
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	return &env{home: h, cfg: cm.Get(), logger: logger}, nil
}

func (e *env) newRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     e.cfg.Redis.Addr,
		Password: config.ResolveEnvVars(e.cfg.Redis.Password),
		DB:       e.cfg.Redis.DB,
	})
}

func (e *env) newQueue(rdb *redis.Client) *queue.Queue {
	return queue.New(rdb, queue.Keys{
		Pending:    e.cfg.Queue.PendingKey,
		Processing: e.cfg.Queue.ProcessingKey,
		DeadLetter: e.cfg.Queue.DeadLetterKey,
		Receipts:   e.cfg.Queue.ReceiptsKey,
		Claims:     e.cfg.Queue.ClaimsKey,
	}, e.cfg.Queue.MaxReceive, e.cfg.Queue.VisibilityTimeout)
}

func (e *env) newStore() (storage.ObjectStore, error) {
	root := e.cfg.StoreRoot
	if root == "" {
		root = filepath.Join(e.home.Path(), "store")
	}
	return storage.NewDirStore(root)
}

func (e *env) newPolicy() classify.Policy {
	c := e.cfg.Classify
	pol := classify.DefaultPolicy()
	pol.TextRatioMax = c.TextRatioMax
	pol.TextLenMax = c.TextLenMax
	pol.WordCountMax = c.WordCountMax
	pol.VarianceMin = c.VarianceMin
	pol.VarianceHigh = c.VarianceHigh
	pol.TextlessLen = c.TextlessLen
	pol.OCRTriggerLen = c.OCRTriggerLen
	pol.OCRMinChars = c.OCRMinChars
	pol.FailsafeTextLen = c.FailsafeTextLen
	pol.FailsafeWords = c.FailsafeWords
	return pol
}

// newRunner wires the full pipeline. The returned cleanup closes the
// bookkeeping store.
func (e *env) newRunner() (*pipeline.Runner, func(), error) {
	if e.cfg.Analysis.Endpoint == "" {
		return nil, nil, fmt.Errorf("analysis.endpoint must be configured")
	}

	store, err := e.newStore()
	if err != nil {
		return nil, nil, err
	}

	analysisClient := analysis.NewHTTPClient(
		e.cfg.Analysis.Endpoint,
		config.ResolveEnvVars(e.cfg.Analysis.APIKey),
	)
	analyzer := analysis.NewOrchestrator(analysisClient, analysis.Options{
		ChunkSize:    e.cfg.Analysis.ChunkSize,
		Parallelism:  e.cfg.Analysis.Parallelism,
		MaxAttempts:  e.cfg.Analysis.MaxAttempts,
		RetryDelay:   e.cfg.Analysis.RetryDelay,
		PollInterval: e.cfg.Analysis.PollInterval,
		PollBudget:   e.cfg.Analysis.PollBudget,
	}, e.logger)

	var reasoner vision.Reasoner
	if e.cfg.Vision.Enabled {
		key := config.ResolveEnvVars(e.cfg.Vision.APIKey)
		if key == "" {
			e.logger.Warn("vision enabled but api key unresolved, disabling chart analysis")
		} else {
			reasoner = vision.NewOpenAIClient(key, e.cfg.Vision.Model, "")
		}
	}

	bookPath := e.cfg.Bookkeeping
	if bookPath == "" {
		bookPath = e.home.BookkeepingPath()
	}
	books, err := bookkeeping.Open(bookPath)
	if err != nil {
		return nil, nil, err
	}

	runner := pipeline.NewRunner(pipeline.Deps{
		Home:       e.home,
		Cfg:        e.cfg,
		Store:      store,
		Converter:  convert.New(e.cfg.Convert.SofficePath),
		OpenPages:  render.OpenPoppler,
		Classifier: classify.New(e.newPolicy(), classify.TesseractOCR{Path: e.cfg.Classify.TesseractPath}, e.logger),
		Analyzer:   analyzer,
		Reasoner:   reasoner,
		Books:      books,
		Logger:     e.logger,
	})
	return runner, func() { books.Close() }, nil
}
