package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docmill/docmill/internal/analysis"
	"github.com/docmill/docmill/internal/classify"
	"github.com/docmill/docmill/internal/config"
	"github.com/docmill/docmill/internal/convert"
	"github.com/docmill/docmill/internal/queue"
	"github.com/docmill/docmill/internal/render"
	"github.com/docmill/docmill/internal/storage"
)

// fakeSource is a uniform gray document; every page classifies as text.
type fakeSource struct {
	pages int
}

func (f *fakeSource) PageCount() int { return f.pages }

func (f *fakeSource) RenderGray(ctx context.Context, page, dpi int) (*image.Gray, error) {
	return image.NewGray(image.Rect(0, 0, 32, 32)), nil
}

func (f *fakeSource) RenderRegionPNG(ctx context.Context, page, dpi int, r render.Region) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *fakeSource) TextLayer(ctx context.Context, page int) (render.TextLayer, error) {
	return render.TextLayer{
		Text:   strings.Repeat("plain prose text for one page. ", 20),
		Width:  612,
		Height: 792,
	}, nil
}

// fakeAnalysis serves one LINE block per chunk, or fails when told to.
type fakeAnalysis struct {
	mu      sync.Mutex
	submits int
	fail    bool
}

func (f *fakeAnalysis) Submit(ctx context.Context, locator string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", fmt.Errorf("analysis service unavailable")
	}
	f.submits++
	return locator, nil
}

func (f *fakeAnalysis) Poll(ctx context.Context, jobID string) (analysis.JobState, []analysis.Block, error) {
	// The remote job id is the chunk locator; recover the chunk index
	// from its object key.
	var idx int
	if i := strings.LastIndex(jobID, "chunk_"); i >= 0 {
		fmt.Sscanf(jobID[i:], "chunk_%04d.pdf", &idx)
	}
	blocks := []analysis.Block{{
		ID:       fmt.Sprintf("line-%d", idx),
		Type:     analysis.BlockLine,
		Page:     1,
		Text:     fmt.Sprintf("line from chunk %d", idx),
		Geometry: analysis.Geometry{Top: 0.1},
	}}
	return analysis.StateSucceeded, blocks, nil
}

func (f *fakeAnalysis) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

func fakeSplit(t *testing.T) analysis.SplitFunc {
	t.Helper()
	return func(pdfPath, outDir string, pageCount, chunkSize int) ([]string, error) {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return nil, err
		}
		var paths []string
		for i := 0; i*chunkSize < pageCount; i++ {
			p := fmt.Sprintf("%s/chunk_%04d.pdf", outDir, i)
			if err := os.WriteFile(p, []byte("chunk"), 0o644); err != nil {
				return nil, err
			}
			paths = append(paths, p)
		}
		return paths, nil
	}
}

func testRunner(t *testing.T, client analysis.Client) (*Runner, storage.ObjectStore, *config.Config) {
	t.Helper()
	h := testHome(t)

	store, err := storage.NewDirStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Vision.Enabled = false
	cfg.Analysis.ChunkSize = 2
	cfg.Analysis.Parallelism = 2
	cfg.Analysis.MaxAttempts = 1
	cfg.Analysis.RetryDelay = time.Millisecond
	cfg.Analysis.PollInterval = time.Millisecond
	cfg.Analysis.PollBudget = 10

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner := NewRunner(Deps{
		Home:       h,
		Cfg:        &cfg,
		Store:      store,
		Converter:  convert.New(""),
		OpenPages:  func(path string) (render.PageSource, error) { return &fakeSource{pages: 3}, nil },
		Split:      fakeSplit(t),
		Classifier: classify.New(classify.DefaultPolicy(), nil, logger),
		Analyzer: analysis.NewOrchestrator(client, analysis.Options{
			ChunkSize:    cfg.Analysis.ChunkSize,
			Parallelism:  cfg.Analysis.Parallelism,
			MaxAttempts:  cfg.Analysis.MaxAttempts,
			RetryDelay:   cfg.Analysis.RetryDelay,
			PollInterval: cfg.Analysis.PollInterval,
			PollBudget:   cfg.Analysis.PollBudget,
		}, logger),
		Logger: logger,
	})
	return runner, store, &cfg
}

func testMessage() *queue.Message {
	return &queue.Message{
		JobID:         "job1",
		SourceLocator: "store://source/docs/report.pdf",
		UserID:        "u1",
		TenantID:      "tenant1",
		Filename:      "report.pdf",
		Version:       1,
	}
}

func TestRunnerEndToEnd(t *testing.T) {
	client := &fakeAnalysis{}
	runner, store, cfg := testRunner(t, client)

	if err := store.Put(cfg.Buckets.Source, "docs/report.pdf", []byte("%PDF-1.4 test")); err != nil {
		t.Fatal(err)
	}

	msg := testMessage()
	if err := runner.Run(context.Background(), msg); err != nil {
		t.Fatalf("Run: %v", err)
	}

	out, err := store.Get(cfg.Buckets.Output, "tenant1/job1_v1.md")
	if err != nil {
		t.Fatalf("published document missing: %v", err)
	}
	doc := string(out)

	if !strings.HasPrefix(doc, "# report.pdf") {
		t.Errorf("document title missing:\n%s", doc)
	}
	for page := 1; page <= 3; page++ {
		if !strings.Contains(doc, fmt.Sprintf("## Page %d", page)) {
			t.Errorf("missing page marker %d:\n%s", page, doc)
		}
	}

	// Chunk 1 carries offset 2: its page-1 line lands on document page 3.
	p1 := strings.Index(doc, "## Page 1")
	p3 := strings.Index(doc, "## Page 3")
	l0 := strings.Index(doc, "line from chunk 0")
	l1 := strings.Index(doc, "line from chunk 1")
	if !(p1 < l0 && l0 < p3) {
		t.Errorf("chunk 0 line not under page 1:\n%s", doc)
	}
	if l1 < p3 {
		t.Errorf("chunk 1 line not under page 3:\n%s", doc)
	}

	if got := client.submitCount(); got != 2 {
		t.Errorf("submit count = %d, want 2", got)
	}

	// The job's history lands in its log file, next to the checkpoint.
	logData, err := os.ReadFile(runner.deps.Home.LogPath(msg.JobID))
	if err != nil {
		t.Fatalf("job log missing: %v", err)
	}
	for _, want := range []string{"starting job", "job complete", "stage=publish"} {
		if !strings.Contains(string(logData), want) {
			t.Errorf("job log missing %q:\n%s", want, logData)
		}
	}
}

func TestRunnerSkipsCompletedStages(t *testing.T) {
	client := &fakeAnalysis{}
	runner, store, cfg := testRunner(t, client)

	if err := store.Put(cfg.Buckets.Source, "docs/report.pdf", []byte("%PDF-1.4 test")); err != nil {
		t.Fatal(err)
	}

	msg := testMessage()
	if err := runner.Run(context.Background(), msg); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	first := client.submitCount()

	// Redelivery of a completed job must not redo any remote work.
	if err := runner.Run(context.Background(), msg); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if got := client.submitCount(); got != first {
		t.Errorf("redelivery resubmitted chunks: %d -> %d", first, got)
	}
}

func TestRunnerResumesAfterAnalysisFailure(t *testing.T) {
	client := &fakeAnalysis{fail: true}
	runner, store, cfg := testRunner(t, client)

	if err := store.Put(cfg.Buckets.Source, "docs/report.pdf", []byte("%PDF-1.4 test")); err != nil {
		t.Fatal(err)
	}

	msg := testMessage()
	err := runner.Run(context.Background(), msg)
	if err == nil {
		t.Fatal("expected analysis failure")
	}

	// The checkpoint stops at upload; everything before it is done.
	jc, buildErr := Build(runner.deps.Home, msg.JobID, msg.SourceLocator, cfg.MaxPages)
	if buildErr != nil {
		t.Fatal(buildErr)
	}
	if jc.Status.LastStage != StageUpload {
		t.Fatalf("LastStage = %q, want %q", jc.Status.LastStage, StageUpload)
	}

	// The service recovers; the retried delivery finishes the job.
	client.mu.Lock()
	client.fail = false
	client.mu.Unlock()

	if err := runner.Run(context.Background(), msg); err != nil {
		t.Fatalf("resumed Run: %v", err)
	}
	if _, err := store.Get(cfg.Buckets.Output, "tenant1/job1_v1.md"); err != nil {
		t.Fatalf("published document missing after resume: %v", err)
	}
}
