package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/docmill/docmill/internal/analysis"
	"github.com/docmill/docmill/internal/bookkeeping"
	"github.com/docmill/docmill/internal/classify"
	"github.com/docmill/docmill/internal/queue"
	"github.com/docmill/docmill/internal/rotate"
	"github.com/docmill/docmill/internal/storage"
	"github.com/docmill/docmill/internal/unify"
	"github.com/docmill/docmill/internal/vision"
)

func (jc *JobContext) sourcePath() string {
	return jc.Home.SourcePath(jc.Status.JobID) + jc.Status.SourceExt
}

func (r *Runner) stageDownload(ctx context.Context, jc *JobContext, msg *queue.Message) error {
	bucket, key, err := storage.ParseLocator(msg.SourceLocator)
	if err != nil {
		return err
	}

	jc.Status.SourceExt = strings.ToLower(path.Ext(key))
	dest := jc.sourcePath()
	if err := r.deps.Store.Download(bucket, key, dest); err != nil {
		return fmt.Errorf("download %s: %w", msg.SourceLocator, err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return fmt.Errorf("source object %s is empty", msg.SourceLocator)
	}
	return nil
}

func (r *Runner) stageConvert(ctx context.Context, jc *JobContext, msg *queue.Message) error {
	localPDF := jc.Home.LocalPDFPath(jc.Status.JobID)
	if err := r.deps.Converter.ToPDF(ctx, jc.sourcePath(), localPDF); err != nil {
		return err
	}

	src, closeSrc, err := r.openPages(localPDF, 0)
	if err != nil {
		return err
	}
	defer closeSrc()

	if src.PageCount() == 0 {
		return fmt.Errorf("converted PDF has no pages")
	}
	jc.Status.PageCount = src.PageCount()
	return nil
}

func (r *Runner) stageClassify(ctx context.Context, jc *JobContext, msg *queue.Message) error {
	src, closeSrc, err := r.openPages(jc.Home.LocalPDFPath(jc.Status.JobID), jc.Status.PageCount)
	if err != nil {
		return err
	}
	defer closeSrc()

	results, err := r.deps.Classifier.Run(ctx, src)
	if err != nil {
		return err
	}
	jc.Status.TextPages, jc.Status.ImagePages, jc.Status.ChartPages = classify.Split(results)
	return nil
}

func (r *Runner) stageRotate(ctx context.Context, jc *JobContext, msg *queue.Message) error {
	localPDF := jc.Home.LocalPDFPath(jc.Status.JobID)
	src, closeSrc, err := r.openPages(localPDF, jc.Status.PageCount)
	if err != nil {
		return err
	}
	defer closeSrc()

	rotations, err := rotate.Plan(ctx, src, jc.Log)
	if err != nil {
		return err
	}
	jc.Status.RotatedPages = rotations
	return rotate.Apply(localPDF, jc.Home.NormalizedPDFPath(jc.Status.JobID), rotations)
}

func (r *Runner) stageUpload(ctx context.Context, jc *JobContext, msg *queue.Message) error {
	chunkPaths, err := r.deps.Split(
		jc.Home.NormalizedPDFPath(jc.Status.JobID),
		jc.Home.ChunksDir(jc.Status.JobID),
		jc.Status.PageCount,
		r.deps.Cfg.Analysis.ChunkSize,
	)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(chunkPaths))
	for i, p := range chunkPaths {
		key := fmt.Sprintf("%s/chunk_%04d.pdf", jc.Status.JobID, i)
		if err := r.deps.Store.Upload(p, r.deps.Cfg.Buckets.Analysis, key); err != nil {
			return fmt.Errorf("upload chunk %d: %w", i, err)
		}
		keys = append(keys, key)
	}
	jc.Status.ChunkKeys = keys
	return nil
}

func (r *Runner) stageAnalyze(ctx context.Context, jc *JobContext, msg *queue.Message) error {
	locators := make([]string, 0, len(jc.Status.ChunkKeys))
	for _, key := range jc.Status.ChunkKeys {
		locators = append(locators, storage.Locator(r.deps.Cfg.Buckets.Analysis, key))
	}

	chunks := analysis.MakeChunks(locators, jc.Status.PageCount, r.deps.Cfg.Analysis.ChunkSize)
	blocks, err := r.deps.Analyzer.Run(ctx, chunks)
	if err != nil {
		return err
	}
	return writeJSONAtomic(jc.Home.AnalysisRawPath(jc.Status.JobID), blocks)
}

// runVision is the background half of the pipeline. It waits for the
// analysis output, then annotates figures on every image and chart page.
func (r *Runner) runVision(ctx context.Context, jc *JobContext, log *slog.Logger) error {
	rawPath := jc.Home.AnalysisRawPath(jc.Status.JobID)
	if err := waitForFile(ctx, rawPath, r.deps.Cfg.Vision.WaitBudget); err != nil {
		return err
	}

	var blocks []analysis.Block
	if err := readJSON(rawPath, &blocks); err != nil {
		return err
	}

	pages := visionPages(jc.Status.ImagePages, jc.Status.ChartPages)
	figures := vision.SelectFigures(blocks, pages)
	if len(figures) == 0 {
		return writeJSONAtomic(jc.Home.VisionResultPath(jc.Status.JobID), []vision.Annotation{})
	}

	src, closeSrc, err := r.openPages(jc.Home.NormalizedPDFPath(jc.Status.JobID), jc.Status.PageCount)
	if err != nil {
		return err
	}
	defer closeSrc()

	opts := vision.Options{
		Concurrency: r.deps.Cfg.Vision.Concurrency,
		Retries:     r.deps.Cfg.Vision.Retries,
		RenderDPI:   r.deps.Cfg.Vision.RenderDPI,
	}
	if r.deps.Cfg.Vision.KeepImages {
		opts.KeepDir = jc.Home.VisionDir(jc.Status.JobID)
		opts.PathFor = func(page, figure int) string {
			return jc.Home.FigureImagePath(jc.Status.JobID, page, figure)
		}
	}

	annotator := vision.NewAnnotator(r.deps.Reasoner, opts, log)
	annotations := annotator.AnnotateAll(ctx, src, figures)
	return writeJSONAtomic(jc.Home.VisionResultPath(jc.Status.JobID), annotations)
}

// visionPages converts the 0-indexed classifier page lists into the sorted
// 1-indexed set of pages worth sending to the vision model.
func visionPages(imagePages, chartPages []int) []int {
	set := make(map[int]struct{})
	for _, p := range imagePages {
		set[p+1] = struct{}{}
	}
	for _, p := range chartPages {
		set[p+1] = struct{}{}
	}
	pages := make([]int, 0, len(set))
	for p := range set {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

func (r *Runner) stageUnify(ctx context.Context, jc *JobContext, msg *queue.Message) error {
	var blocks []analysis.Block
	if err := readJSON(jc.Home.AnalysisRawPath(jc.Status.JobID), &blocks); err != nil {
		return err
	}

	items := unify.Extract(blocks)

	var annotations []vision.Annotation
	visionPath := jc.Home.VisionResultPath(jc.Status.JobID)
	if _, err := os.Stat(visionPath); err == nil {
		if err := readJSON(visionPath, &annotations); err != nil {
			return err
		}
	}
	var notes []unify.ChartNote
	for _, a := range annotations {
		if a.OK {
			notes = append(notes, unify.ChartNote{Page: a.Page, Top: a.Top, Text: a.Text})
		}
	}
	items = unify.WithCharts(items, notes)

	doc := unify.Compose(msg.Filename, jc.Status.PageCount, items)
	return writeFileAtomic(jc.Home.FinalDocPath(jc.Status.JobID), []byte(doc))
}

func (r *Runner) stagePublish(ctx context.Context, jc *JobContext, msg *queue.Message) error {
	outKey := path.Join(msg.TenantID, fmt.Sprintf("%s_v%d.md", jc.Status.JobID, msg.Version))
	finalDoc := jc.Home.FinalDocPath(jc.Status.JobID)
	if err := r.deps.Store.Upload(finalDoc, r.deps.Cfg.Buckets.Output, outKey); err != nil {
		return err
	}
	jc.Status.OutputKey = outKey

	r.record(ctx, jc, msg, storage.Locator(r.deps.Cfg.Buckets.Output, outKey))
	r.cleanup(jc)
	return nil
}

// record writes bookkeeping rows. Failures are logged, never fatal; the
// document is already published.
func (r *Runner) record(ctx context.Context, jc *JobContext, msg *queue.Message, outputLocator string) {
	if r.deps.Books == nil {
		return
	}
	log := jc.Log

	_, err := r.deps.Books.RecordFileVersion(ctx, bookkeeping.FileVersion{
		ExternalFileID: msg.JobID,
		UserID:         msg.UserID,
		TenantID:       msg.TenantID,
		CustomerID:     msg.CustomerID,
		ProjectID:      msg.ProjectID,
		Filename:       msg.Filename,
		SourceLocator:  msg.SourceLocator,
		OutputLocator:  outputLocator,
		Version:        msg.Version,
	})
	if err != nil {
		log.Warn("failed to record file version", "error", err)
	}

	var inSize, outSize int64
	if info, err := os.Stat(jc.sourcePath()); err == nil {
		inSize = info.Size()
	}
	if info, err := os.Stat(jc.Home.FinalDocPath(jc.Status.JobID)); err == nil {
		outSize = info.Size()
	}
	if _, err := r.deps.Books.RecordUsage(ctx, bookkeeping.Usage{
		UserID:     msg.UserID,
		TenantID:   msg.TenantID,
		CustomerID: msg.CustomerID,
		ProjectID:  msg.ProjectID,
		TaskType:   "document_extraction",
		InputSize:  inSize,
		OutputSize: outSize,
	}); err != nil {
		log.Warn("failed to record usage", "error", err)
	}
}

// cleanup drops the large intermediates; the checkpoint, the analysis
// output and the final document stay for inspection.
func (r *Runner) cleanup(jc *JobContext) {
	jobID := jc.Status.JobID
	os.Remove(jc.sourcePath())
	os.Remove(jc.Home.LocalPDFPath(jobID))
	os.Remove(jc.Home.NormalizedPDFPath(jobID))
	os.RemoveAll(jc.Home.ChunksDir(jobID))
	if !r.deps.Cfg.Vision.KeepImages {
		os.RemoveAll(jc.Home.VisionDir(jobID))
	}
}

func waitForFile(ctx context.Context, path string, budget time.Duration) error {
	deadline := time.Now().Add(budget)
	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for %s", path)
		}
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
