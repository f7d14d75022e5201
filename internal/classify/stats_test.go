package classify

import (
	"image"
	"image/color"
	"testing"

	"github.com/docmill/docmill/internal/render"
)

func TestLaplacianVariance(t *testing.T) {
	flat := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range flat.Pix {
		flat.Pix[i] = 128
	}
	if v := LaplacianVariance(flat); v != 0 {
		t.Errorf("flat image variance = %v, want 0", v)
	}

	// A checkerboard is maximally busy.
	busy := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if (x+y)%2 == 0 {
				busy.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	if v := LaplacianVariance(busy); v <= 1000 {
		t.Errorf("checkerboard variance = %v, want large", v)
	}

	if v := LaplacianVariance(nil); v != 0 {
		t.Errorf("nil image variance = %v, want 0", v)
	}
}

func TestStatsFromPage(t *testing.T) {
	layer := render.TextLayer{
		Text:   "Quarterly revenue grew 12 percent",
		Width:  100,
		Height: 100,
		Words: []render.Word{
			{Text: "Quarterly", X0: 0, Y0: 0, X1: 20, Y1: 10},
			{Text: "revenue", X0: 22, Y0: 0, X1: 40, Y1: 10},
		},
	}
	img := image.NewGray(image.Rect(0, 0, 16, 16))

	s := StatsFromPage(layer, img)
	if s.WordCount != 5 {
		t.Errorf("WordCount = %d, want 5", s.WordCount)
	}
	if s.TextLen != len(layer.Text) {
		t.Errorf("TextLen = %d", s.TextLen)
	}
	// Covered area: 20*10 + 18*10 = 380 of 10000.
	if s.TextRatio < 0.037 || s.TextRatio > 0.039 {
		t.Errorf("TextRatio = %v, want ~0.038", s.TextRatio)
	}
}

func TestStatsFromPageZeroDimensions(t *testing.T) {
	s := StatsFromPage(render.TextLayer{Text: "x"}, nil)
	if s.TextRatio != 0 {
		t.Errorf("TextRatio = %v, want 0 for zero-size page", s.TextRatio)
	}
}
