// Package vision extracts data from chart and figure regions using a
// multimodal model. It is strictly additive: failures degrade to a
// document without chart annotations, never to a failed job.
package vision

import (
	"github.com/docmill/docmill/internal/analysis"
	"github.com/docmill/docmill/internal/render"
)

// Figure is one region worth sending to the vision model. Page is
// 1-indexed, matching the analysis block stream.
type Figure struct {
	Page   int
	Index  int
	Top    float64
	Region render.Region
}

// Annotation is the model's reading of one figure.
type Annotation struct {
	Page int     `json:"page"`
	Top  float64 `json:"top"`
	Text string  `json:"text"`
	OK   bool    `json:"ok"`
}

const (
	minFigureArea = 0.01
	minFigureSide = 0.08
	headerBandTop = 0.08
	headerBandH   = 0.15
)

// relevantFigure filters out decorations: tiny marks, thin rules and the
// logo band at the very top of a page.
func relevantFigure(g analysis.Geometry) bool {
	if g.Width*g.Height < minFigureArea {
		return false
	}
	if g.Width < minFigureSide || g.Height < minFigureSide {
		return false
	}
	if g.Top < headerBandTop && g.Height < headerBandH {
		return false
	}
	return true
}

// SelectFigures picks the figures to analyze on the given pages. A page
// flagged for analysis that has no usable figure block falls back to the
// full page, which covers flowcharts the layout service does not box.
func SelectFigures(blocks []analysis.Block, pages []int) []Figure {
	byPage := make(map[int][]analysis.Block)
	for _, b := range blocks {
		if b.Type == analysis.BlockFigure {
			byPage[b.Page] = append(byPage[b.Page], b)
		}
	}

	var figures []Figure
	for _, page := range pages {
		kept := 0
		for _, b := range byPage[page] {
			if !relevantFigure(b.Geometry) {
				continue
			}
			figures = append(figures, Figure{
				Page:  page,
				Index: kept,
				Top:   b.Geometry.Top,
				Region: render.Region{
					Left:   b.Geometry.Left,
					Top:    b.Geometry.Top,
					Width:  b.Geometry.Width,
					Height: b.Geometry.Height,
				},
			})
			kept++
		}
		if kept == 0 {
			figures = append(figures, Figure{
				Page:   page,
				Index:  0,
				Top:    0,
				Region: render.Region{Left: 0, Top: 0, Width: 1, Height: 1},
			})
		}
	}
	return figures
}
