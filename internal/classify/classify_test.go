package classify

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func testClassifier(ocr OCRClient) *Classifier {
	return New(DefaultPolicy(), ocr, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type fakeOCR struct {
	text string
	err  error
}

func (f fakeOCR) Recognize(ctx context.Context, img *image.Gray) (string, error) {
	return f.text, f.err
}

func TestDecideRules(t *testing.T) {
	prose := strings.Repeat("ordinary business prose with words. ", 30)

	tests := []struct {
		name       string
		stats      PageStats
		wantKind   Kind
		wantReason string
	}{
		{
			name:       "clean text page",
			stats:      PageStats{Text: prose, TextLen: len(prose), WordCount: 180, TextRatio: 0.4, Variance: 200},
			wantKind:   KindText,
			wantReason: "",
		},
		{
			name:       "no text layer with busy raster",
			stats:      PageStats{Text: "", TextLen: 0, Variance: 1500},
			wantKind:   KindImage,
			wantReason: ReasonNoTextLayer,
		},
		{
			name:       "sparse text in mid variance band",
			stats:      PageStats{Text: "Figure 3", TextLen: 200, WordCount: 40, TextRatio: 0.05, Variance: 2000},
			wantKind:   KindImage,
			wantReason: ReasonSparseText,
		},
		{
			// Few words, but they cover a lot of the page (large-print
			// headings): not a sparse-text page.
			name:       "sparse text with high coverage stays text",
			stats:      PageStats{Text: "BIG HEADING", TextLen: 100, WordCount: 50, TextRatio: 0.5, Variance: 2000},
			wantKind:   KindText,
			wantReason: "",
		},
		{
			name:       "low coverage with very busy raster",
			stats:      PageStats{Text: prose[:300], TextLen: 300, WordCount: 100, TextRatio: 0.02, Variance: 12000},
			wantKind:   KindImage,
			wantReason: ReasonSparseCoverage,
		},
		{
			name:       "blank page stays text",
			stats:      PageStats{Text: "", TextLen: 0, Variance: 10},
			wantKind:   KindText,
			wantReason: "",
		},
	}

	c := testClassifier(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Decide(context.Background(), 0, tt.stats, nil)
			if res.Kind != tt.wantKind || res.Reason != tt.wantReason {
				t.Errorf("Decide = (%s, %q), want (%s, %q)",
					res.Kind, res.Reason, tt.wantKind, tt.wantReason)
			}
		})
	}
}

func TestDecideOCRRescue(t *testing.T) {
	// No text layer, busy raster: image candidate. OCR finds real text.
	stats := PageStats{Text: "", TextLen: 0, Variance: 1500}

	c := testClassifier(fakeOCR{text: strings.Repeat("recovered words ", 20)})
	res := c.Decide(context.Background(), 0, stats, nil)
	if res.Kind != KindText || res.Reason != ReasonOCRRescue {
		t.Errorf("Decide = (%s, %q), want rescued text page", res.Kind, res.Reason)
	}

	// OCR finding almost nothing leaves the image verdict alone.
	c = testClassifier(fakeOCR{text: "a b"})
	res = c.Decide(context.Background(), 0, stats, nil)
	if res.Kind != KindImage {
		t.Errorf("Kind = %s, want image when OCR finds too little", res.Kind)
	}

	// OCR failure degrades silently to the raster verdict.
	c = testClassifier(fakeOCR{err: fmt.Errorf("tesseract missing")})
	res = c.Decide(context.Background(), 0, stats, nil)
	if res.Kind != KindImage || res.Reason != ReasonNoTextLayer {
		t.Errorf("Decide = (%s, %q), want unchanged image verdict", res.Kind, res.Reason)
	}
}

func TestDecideOCRTextDrivesChartCues(t *testing.T) {
	// The text layer is empty, so the chart cues see nothing until OCR
	// supplies the page's text. Recognized axis labels must set the flag.
	stats := PageStats{Text: "", TextLen: 0, Variance: 1500}
	chartText := strings.Repeat("FY21 FY22 FY23 FY24 10% 20% 30% 40% 50% 60% ", 5)

	c := testClassifier(fakeOCR{text: chartText})
	res := c.Decide(context.Background(), 0, stats, nil)
	if res.Kind != KindText || res.Reason != ReasonOCRRescue {
		t.Fatalf("Decide = (%s, %q), want rescued page", res.Kind, res.Reason)
	}
	if !res.Chart {
		t.Error("Chart flag not set from recognized text")
	}
}

func TestDecideVolumeFailsafe(t *testing.T) {
	prose := strings.Repeat("word ", 200) // 1000 chars, 200 words

	// Heavy text with an image-looking raster: failsafe forces text.
	stats := PageStats{Text: prose, TextLen: len(prose), WordCount: 200, TextRatio: 0.02, Variance: 12000}
	c := testClassifier(nil)
	res := c.Decide(context.Background(), 0, stats, nil)
	if res.Kind != KindText || res.Reason != ReasonVolumeFailsafe {
		t.Errorf("Decide = (%s, %q), want failsafe text", res.Kind, res.Reason)
	}

	// The same volume of chart-like text keeps the image verdict.
	chart := strings.Repeat("FY21 FY22 FY23 12% 34% 56% 78% 90% 11% $120 $340 ", 20)
	stats = PageStats{Text: chart, TextLen: len(chart), WordCount: 240, TextRatio: 0.02, Variance: 12000}
	res = c.Decide(context.Background(), 0, stats, nil)
	if res.Kind != KindImage {
		t.Errorf("Kind = %s, want image for chart-like failsafe candidate", res.Kind)
	}
	if !res.Chart {
		t.Error("Chart flag not set")
	}
}

func TestIsChartLike(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"prose", strings.Repeat("plain sentences about the business. ", 20), false},
		{"empty", "", false},
		{
			"fiscal year axis labels",
			strings.Repeat("FY21 FY22 FY23 FY24 10% 20% 30% 40% 50% 60% ", 5),
			true,
		},
		{
			"currency heavy",
			strings.Repeat("$120 $340 $560 12.5 34.5 56.5 crore million 99% 98% 97% 96% 95% 94% ", 4),
			true,
		},
		{
			"numbers without cues",
			"1 2 3",
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.IsChartLike(tt.text); got != tt.want {
				t.Errorf("IsChartLike = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSplit(t *testing.T) {
	results := []Result{
		{Page: 2, Kind: KindImage},
		{Page: 0, Kind: KindText},
		{Page: 1, Kind: KindText, Chart: true},
	}
	text, images, charts := Split(results)

	if fmt.Sprint(text) != "[0 1]" {
		t.Errorf("text = %v", text)
	}
	if fmt.Sprint(images) != "[2]" {
		t.Errorf("images = %v", images)
	}
	if fmt.Sprint(charts) != "[1]" {
		t.Errorf("charts = %v", charts)
	}
}
