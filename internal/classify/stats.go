package classify

import (
	"image"
	"regexp"
	"strings"

	"github.com/docmill/docmill/internal/render"
)

// PageStats are the measurements the decision rules run against.
type PageStats struct {
	Text      string
	TextLen   int
	WordCount int
	TextRatio float64 // fraction of page area covered by word boxes
	Variance  float64 // Laplacian variance of the grayscale render
}

var wordPattern = regexp.MustCompile(`\w+`)

// StatsFromPage derives PageStats from a text layer and a grayscale render.
func StatsFromPage(layer render.TextLayer, img *image.Gray) PageStats {
	text := strings.TrimSpace(layer.Text)
	s := PageStats{
		Text:      text,
		TextLen:   len(text),
		WordCount: len(wordPattern.FindAllString(text, -1)),
		Variance:  LaplacianVariance(img),
	}

	if layer.Width > 0 && layer.Height > 0 {
		var covered float64
		for _, w := range layer.Words {
			covered += (w.X1 - w.X0) * (w.Y1 - w.Y0)
		}
		s.TextRatio = covered / (layer.Width * layer.Height)
	}
	return s
}

// WithText rebuilds the text-derived measurements around replacement text,
// keeping the raster-derived ones. Used when OCR supplies the page's text.
func (s PageStats) WithText(text string) PageStats {
	text = strings.TrimSpace(text)
	s.Text = text
	s.TextLen = len(text)
	s.WordCount = len(wordPattern.FindAllString(text, -1))
	return s
}

// LaplacianVariance measures raster busyness: near zero for blank pages,
// high for scans, photos and dense figures.
func LaplacianVariance(img *image.Gray) float64 {
	if img == nil {
		return 0
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	n := float64((w - 2) * (h - 2))
	var sum, sumSq float64
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		for x := b.Min.X + 1; x < b.Max.X-1; x++ {
			c := float64(img.GrayAt(x, y).Y)
			lap := float64(img.GrayAt(x-1, y).Y) +
				float64(img.GrayAt(x+1, y).Y) +
				float64(img.GrayAt(x, y-1).Y) +
				float64(img.GrayAt(x, y+1).Y) - 4*c
			sum += lap
			sumSq += lap * lap
		}
	}
	mean := sum / n
	return sumSq/n - mean*mean
}
