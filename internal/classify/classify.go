package classify

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/docmill/docmill/internal/render"
)

// Kind is the page verdict.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Reasons name the rule that produced an image verdict (or cleared one).
const (
	ReasonSparseCoverage = "A" // low coverage ratio with busy raster
	ReasonSparseText     = "B" // little text, mid-band variance
	ReasonNoTextLayer    = "C" // effectively no text layer
	ReasonOCRRescue      = "E" // OCR found enough text after all
	ReasonVolumeFailsafe = "F" // too much text to plausibly be an image
)

// Result is the classification of one page.
type Result struct {
	Page   int    `json:"page"`
	Kind   Kind   `json:"kind"`
	Chart  bool   `json:"chart"`
	Reason string `json:"reason,omitempty"`
}

// OCRClient recognizes text in a page render. Implementations must be safe
// for concurrent use. Failures degrade the classifier, never abort it.
type OCRClient interface {
	Recognize(ctx context.Context, img *image.Gray) (string, error)
}

// Classifier applies a Policy across the pages of a document.
type Classifier struct {
	policy Policy
	ocr    OCRClient // may be nil
	dpi    int
	logger *slog.Logger
}

// New creates a Classifier. ocr may be nil to disable the OCR fallback.
func New(policy Policy, ocr OCRClient, logger *slog.Logger) *Classifier {
	return &Classifier{
		policy: policy,
		ocr:    ocr,
		dpi:    120,
		logger: logger.With("component", "classify"),
	}
}

var (
	fiscalPattern  = regexp.MustCompile(`\bFY\d{2}\b`)
	digitPattern   = regexp.MustCompile(`\d`)
	numericPattern = regexp.MustCompile(`[\d.,%]`)
)

// IsChartLike reports whether page text reads like chart axis labels and
// data points rather than prose.
func (p Policy) IsChartLike(text string) bool {
	if text == "" {
		return false
	}

	cues := 0
	if len(fiscalPattern.FindAllString(text, -1)) >= p.ChartFiscalHits {
		cues++
	}
	if strings.Count(text, "%") >= p.ChartPercentHits {
		cues++
	}
	currency := strings.Count(text, "$") + strings.Count(text, "₹") + strings.Count(text, "€")
	for _, w := range []string{"crore", "million", "billion", "lakh"} {
		currency += strings.Count(strings.ToLower(text), w)
	}
	if currency >= p.ChartCurrencyHits {
		cues++
	}
	if len(digitPattern.FindAllString(text, -1)) >= p.ChartDigitHits {
		cues++
	}

	compact := strings.Join(strings.Fields(text), "")
	if len(compact) == 0 {
		return false
	}
	numericRatio := float64(len(numericPattern.FindAllString(compact, -1))) / float64(len(compact))

	return numericRatio >= p.ChartNumericRatio && cues >= p.ChartMinCues
}

// Decide applies the decision rules to one page's stats. The raster and OCR
// client are only consulted for the OCR fallback.
func (c *Classifier) Decide(ctx context.Context, page int, stats PageStats, img *image.Gray) Result {
	p := c.policy
	res := Result{Page: page, Kind: KindText, Chart: p.IsChartLike(stats.Text)}

	switch {
	case stats.WordCount == 0 && stats.TextLen < p.TextlessLen && stats.Variance >= p.VarianceMin:
		res.Kind, res.Reason = KindImage, ReasonNoTextLayer
	case stats.TextRatio <= p.TextRatioMax && stats.TextLen < p.TextLenMax &&
		stats.WordCount < p.WordCountMax &&
		stats.Variance >= p.VarianceMin && stats.Variance < p.VarianceHigh:
		res.Kind, res.Reason = KindImage, ReasonSparseText
	case stats.TextRatio <= p.TextRatioMax/2 && stats.Variance >= p.VarianceMin*1.3:
		res.Kind, res.Reason = KindImage, ReasonSparseCoverage
	}

	// OCR rescue: a page with almost no text layer may still carry real
	// text in the raster. Recognizing enough of it clears the verdict, and
	// the recognized text becomes the page's text from here on, so the
	// chart cues see what the raster actually says.
	if res.Kind == KindImage && stats.TextLen < p.OCRTriggerLen && c.ocr != nil {
		recognized, err := c.ocr.Recognize(ctx, img)
		if err != nil {
			c.logger.Debug("ocr fallback failed", "page", page, "error", err)
		} else if text := strings.TrimSpace(recognized); len(text) >= p.OCRMinChars {
			stats = stats.WithText(text)
			res.Kind, res.Reason = KindText, ReasonOCRRescue
			res.Chart = p.IsChartLike(text)
		}
	}

	// Volume failsafe: pages carrying this much text are text pages no
	// matter what the raster looks like, unless they read like a chart.
	if res.Kind == KindImage && !res.Chart &&
		(stats.TextLen >= p.FailsafeTextLen || stats.WordCount >= p.FailsafeWords) {
		res.Kind, res.Reason = KindText, ReasonVolumeFailsafe
	}

	return res
}

// Run classifies every page of src in parallel and returns results ordered
// by page index.
func (c *Classifier) Run(ctx context.Context, src render.PageSource) ([]Result, error) {
	pageCount := src.PageCount()
	results := make([]Result, pageCount)
	errs := make([]error, pageCount)

	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}
	if workers > pageCount {
		workers = pageCount
	}

	pages := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for page := range pages {
				results[page], errs[page] = c.classifyPage(ctx, src, page)
			}
		}()
	}
	for page := 0; page < pageCount; page++ {
		pages <- page
	}
	close(pages)
	wg.Wait()

	for page, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("failed to classify page %d: %w", page, err)
		}
	}
	return results, nil
}

func (c *Classifier) classifyPage(ctx context.Context, src render.PageSource, page int) (Result, error) {
	layer, err := src.TextLayer(ctx, page)
	if err != nil {
		return Result{}, err
	}
	img, err := src.RenderGray(ctx, page, c.dpi)
	if err != nil {
		return Result{}, err
	}

	stats := StatsFromPage(layer, img)
	res := c.Decide(ctx, page, stats, img)
	c.logger.Debug("classified page",
		"page", page,
		"kind", res.Kind,
		"chart", res.Chart,
		"reason", res.Reason,
		"text_len", stats.TextLen,
		"variance", fmt.Sprintf("%.0f", stats.Variance),
	)
	return res, nil
}

// Split partitions results into sorted page index lists.
func Split(results []Result) (textPages, imagePages, chartPages []int) {
	for _, r := range results {
		if r.Kind == KindImage {
			imagePages = append(imagePages, r.Page)
		} else {
			textPages = append(textPages, r.Page)
		}
		if r.Chart {
			chartPages = append(chartPages, r.Page)
		}
	}
	sort.Ints(textPages)
	sort.Ints(imagePages)
	sort.Ints(chartPages)
	return textPages, imagePages, chartPages
}
