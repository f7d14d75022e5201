package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/docmill/docmill/internal/analysis"
	"github.com/docmill/docmill/internal/bookkeeping"
	"github.com/docmill/docmill/internal/classify"
	"github.com/docmill/docmill/internal/config"
	"github.com/docmill/docmill/internal/convert"
	"github.com/docmill/docmill/internal/home"
	"github.com/docmill/docmill/internal/queue"
	"github.com/docmill/docmill/internal/render"
	"github.com/docmill/docmill/internal/storage"
	"github.com/docmill/docmill/internal/vision"
)

// Deps are the collaborators a Runner needs. Reasoner may be nil to
// disable vision; Books may be nil to skip bookkeeping.
type Deps struct {
	Home       *home.Dir
	Cfg        *config.Config
	Store      storage.ObjectStore
	Converter  *convert.Converter
	OpenPages  render.Opener
	Split      analysis.SplitFunc
	Classifier *classify.Classifier
	Analyzer   *analysis.Orchestrator
	Reasoner   vision.Reasoner
	Books      *bookkeeping.Store
	Logger     *slog.Logger
}

// Runner executes jobs end to end.
type Runner struct {
	deps   Deps
	logger *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(deps Deps) *Runner {
	if deps.Split == nil {
		deps.Split = analysis.SplitPDF
	}
	return &Runner{
		deps:   deps,
		logger: deps.Logger.With("component", "pipeline"),
	}
}

// Run drives one job through every stage, skipping those the checkpoint
// already covers. Any error leaves the checkpoint at the last completed
// stage; the next delivery resumes from there.
func (r *Runner) Run(ctx context.Context, msg *queue.Message) error {
	jc, err := Build(r.deps.Home, msg.JobID, msg.SourceLocator, r.deps.Cfg.MaxPages)
	if err != nil {
		return err
	}
	log, closeLog := r.jobLogger(jc)
	defer closeLog()
	jc.Log = log
	log.Info("starting job", "resume_from", string(jc.Status.LastStage))

	type step struct {
		stage Stage
		run   func(context.Context, *JobContext, *queue.Message) error
	}
	foreground := []step{
		{StageDownload, r.stageDownload},
		{StageConvert, r.stageConvert},
		{StageClassify, r.stageClassify},
		{StageRotate, r.stageRotate},
		{StageUpload, r.stageUpload},
	}

	for _, s := range foreground {
		if err := r.runStage(ctx, jc, msg, s.stage, s.run, log); err != nil {
			return err
		}
	}

	// Vision runs in the background alongside remote analysis. It waits on
	// the analysis output file, so it is started before analyze and joined
	// before unify consumes its results.
	visionDone := r.startVision(ctx, jc, log)

	if err := r.runStage(ctx, jc, msg, StageAnalyze, r.stageAnalyze, log); err != nil {
		<-visionDone
		return err
	}

	if visionErr := <-visionDone; visionErr != nil {
		// Vision is additive: the document ships without chart
		// annotations rather than failing the job.
		log.Warn("vision stage failed, continuing without chart annotations", "error", visionErr)
		jc.Status.VisionError = visionErr.Error()
	}
	for _, stage := range []Stage{StageRenderVision, StageVision} {
		if !jc.Covers(stage) {
			if err := jc.Checkpoint(stage); err != nil {
				return err
			}
		}
	}

	for _, s := range []step{{StageUnify, r.stageUnify}, {StagePublish, r.stagePublish}} {
		if err := r.runStage(ctx, jc, msg, s.stage, s.run, log); err != nil {
			return err
		}
	}

	log.Info("job complete", "pages", jc.Status.PageCount, "output", jc.Status.OutputKey)
	return nil
}

func (r *Runner) runStage(ctx context.Context, jc *JobContext, msg *queue.Message,
	stage Stage, run func(context.Context, *JobContext, *queue.Message) error, log *slog.Logger) error {

	if jc.Covers(stage) {
		log.Debug("skipping completed stage", "stage", string(stage))
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	log.Info("running stage", "stage", string(stage))
	if err := run(ctx, jc, msg); err != nil {
		return fmt.Errorf("stage %s: %w", stage, err)
	}
	return jc.Checkpoint(stage)
}

// startVision launches the background vision task and returns its join
// channel. The channel always receives exactly one value.
func (r *Runner) startVision(ctx context.Context, jc *JobContext, log *slog.Logger) <-chan error {
	done := make(chan error, 1)
	if r.deps.Reasoner == nil || !r.deps.Cfg.Vision.Enabled || jc.Covers(StageVision) {
		done <- nil
		return done
	}
	go func() {
		done <- r.runVision(ctx, jc, log)
	}()
	return done
}

// jobLogger tees the runner's logger into the job's log file, so a job's
// history survives worker restarts next to its checkpoint. Falls back to
// the plain logger when the file cannot be opened.
func (r *Runner) jobLogger(jc *JobContext) (*slog.Logger, func()) {
	f, err := os.OpenFile(jc.Home.LogPath(jc.Status.JobID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		base := r.logger.With("job", jc.Status.JobID)
		base.Warn("failed to open job log file", "error", err)
		return base, func() {}
	}

	fileHandler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
	log := slog.New(teeHandler{r.logger.Handler(), fileHandler}).With("job", jc.Status.JobID)
	return log, func() { f.Close() }
}

// teeHandler fans every record out to both handlers.
type teeHandler struct {
	a, b slog.Handler
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.a.Enabled(ctx, level) || t.b.Enabled(ctx, level)
}

func (t teeHandler) Handle(ctx context.Context, rec slog.Record) error {
	var err error
	if t.a.Enabled(ctx, rec.Level) {
		err = t.a.Handle(ctx, rec.Clone())
	}
	if t.b.Enabled(ctx, rec.Level) {
		if e := t.b.Handle(ctx, rec.Clone()); err == nil {
			err = e
		}
	}
	return err
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return teeHandler{t.a.WithAttrs(attrs), t.b.WithAttrs(attrs)}
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return teeHandler{t.a.WithGroup(name), t.b.WithGroup(name)}
}

// openPages opens a possibly page-capped view of a PDF.
func (r *Runner) openPages(path string, maxPages int) (render.PageSource, func(), error) {
	src, err := r.deps.OpenPages(path)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if c, ok := src.(io.Closer); ok {
			c.Close()
		}
	}
	if maxPages > 0 && src.PageCount() > maxPages {
		return cappedSource{PageSource: src, pages: maxPages}, closer, nil
	}
	return src, closer, nil
}

// cappedSource hides pages past the configured maximum.
type cappedSource struct {
	render.PageSource
	pages int
}

func (c cappedSource) PageCount() int { return c.pages }
