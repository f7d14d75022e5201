// Package render provides access to rendered page rasters and text layers
// of a normalized PDF. The production implementation shells out to poppler;
// consumers only see the PageSource interface.
package render

import (
	"context"
	"image"
)

// Word is one word of the page text layer with its bounding box in page
// coordinate units.
type Word struct {
	Text string
	X0   float64
	Y0   float64
	X1   float64
	Y1   float64
}

// TextLayer is the extractable text of one page.
type TextLayer struct {
	Text   string
	Words  []Word
	Width  float64
	Height float64
}

// Region is a normalized rectangle on a page (0..1 in both axes).
type Region struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// PageSource exposes the pages of one document. Pages are 0-indexed.
type PageSource interface {
	// PageCount returns the number of pages.
	PageCount() int

	// RenderGray rasterizes a page to grayscale at the given DPI.
	RenderGray(ctx context.Context, page, dpi int) (*image.Gray, error)

	// RenderRegionPNG rasterizes a normalized region of a page to PNG bytes.
	RenderRegionPNG(ctx context.Context, page, dpi int, r Region) ([]byte, error)

	// TextLayer extracts the text and word boxes of a page.
	TextLayer(ctx context.Context, page int) (TextLayer, error)
}

// Opener builds a PageSource for a PDF on disk.
type Opener func(path string) (PageSource, error)
