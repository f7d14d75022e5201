package vision

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/docmill/docmill/internal/render"
)

// Options sizes the annotator.
type Options struct {
	Concurrency int
	Retries     int
	RenderDPI   int
	// KeepDir, when set, receives a copy of every rendered figure for
	// debugging. Naming is delegated to PathFor.
	KeepDir string
	PathFor func(page, figure int) string
}

// Annotator runs figures through a Reasoner with bounded concurrency.
type Annotator struct {
	reasoner Reasoner
	opts     Options
	logger   *slog.Logger
}

// NewAnnotator creates an Annotator.
func NewAnnotator(reasoner Reasoner, opts Options, logger *slog.Logger) *Annotator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = min(5, runtime.NumCPU())
	}
	if opts.RenderDPI <= 0 {
		opts.RenderDPI = 200
	}
	return &Annotator{
		reasoner: reasoner,
		opts:     opts,
		logger:   logger.With("component", "vision"),
	}
}

// AnnotateAll renders and analyzes every figure. Per-figure failures yield
// an Annotation with OK=false; the slice is ordered by (page, top).
func (a *Annotator) AnnotateAll(ctx context.Context, src render.PageSource, figures []Figure) []Annotation {
	annotations := make([]Annotation, len(figures))
	sem := make(chan struct{}, a.opts.Concurrency)

	var wg sync.WaitGroup
	for i, fig := range figures {
		wg.Add(1)
		go func(i int, fig Figure) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				annotations[i] = Annotation{Page: fig.Page, Top: fig.Top}
				return
			}

			annotations[i] = a.annotateOne(ctx, src, fig)
		}(i, fig)
	}
	wg.Wait()

	sort.SliceStable(annotations, func(i, j int) bool {
		if annotations[i].Page != annotations[j].Page {
			return annotations[i].Page < annotations[j].Page
		}
		return annotations[i].Top < annotations[j].Top
	})
	return annotations
}

func (a *Annotator) annotateOne(ctx context.Context, src render.PageSource, fig Figure) Annotation {
	ann := Annotation{Page: fig.Page, Top: fig.Top}
	log := a.logger.With("page", fig.Page, "figure", fig.Index)

	png, err := src.RenderRegionPNG(ctx, fig.Page-1, a.opts.RenderDPI, fig.Region)
	if err != nil {
		log.Warn("failed to render figure", "error", err)
		return ann
	}
	if a.opts.KeepDir != "" && a.opts.PathFor != nil {
		if err := os.WriteFile(a.opts.PathFor(fig.Page, fig.Index), png, 0o644); err != nil {
			log.Debug("failed to keep figure image", "error", err)
		}
	}

	for attempt := 0; attempt <= a.opts.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt+1) * 2 * time.Second):
			case <-ctx.Done():
				return ann
			}
		}

		text, err := a.reasoner.AnalyzeFigure(ctx, png)
		if err != nil {
			log.Warn("vision analysis failed", "attempt", attempt+1, "error", err)
			continue
		}
		ann.Text = text
		ann.OK = true
		return ann
	}
	return ann
}
