package vision

import (
	"testing"

	"github.com/docmill/docmill/internal/analysis"
)

func TestRelevantFigure(t *testing.T) {
	tests := []struct {
		name string
		geom analysis.Geometry
		want bool
	}{
		{"large chart", analysis.Geometry{Left: 0.1, Top: 0.3, Width: 0.8, Height: 0.4}, true},
		{"tiny bullet mark", analysis.Geometry{Left: 0.05, Top: 0.5, Width: 0.02, Height: 0.02}, false},
		{"thin horizontal rule", analysis.Geometry{Left: 0.1, Top: 0.5, Width: 0.8, Height: 0.01}, false},
		{"thin vertical rule", analysis.Geometry{Left: 0.5, Top: 0.1, Width: 0.01, Height: 0.8}, false},
		{"logo in header band", analysis.Geometry{Left: 0.02, Top: 0.02, Width: 0.2, Height: 0.1}, false},
		{"tall figure starting in header band", analysis.Geometry{Left: 0.1, Top: 0.05, Width: 0.8, Height: 0.5}, true},
		{"square figure mid page", analysis.Geometry{Left: 0.3, Top: 0.4, Width: 0.3, Height: 0.3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := relevantFigure(tt.geom); got != tt.want {
				t.Errorf("relevantFigure(%+v) = %v, want %v", tt.geom, got, tt.want)
			}
		})
	}
}

func TestSelectFiguresKeepsUsableBlocks(t *testing.T) {
	blocks := []analysis.Block{
		{ID: "f1", Type: analysis.BlockFigure, Page: 2,
			Geometry: analysis.Geometry{Left: 0.1, Top: 0.2, Width: 0.8, Height: 0.3}},
		{ID: "f2", Type: analysis.BlockFigure, Page: 2,
			Geometry: analysis.Geometry{Left: 0.1, Top: 0.6, Width: 0.8, Height: 0.3}},
		{ID: "rule", Type: analysis.BlockFigure, Page: 2,
			Geometry: analysis.Geometry{Left: 0.1, Top: 0.5, Width: 0.8, Height: 0.005}},
		{ID: "t1", Type: analysis.BlockTable, Page: 2,
			Geometry: analysis.Geometry{Left: 0.1, Top: 0.1, Width: 0.8, Height: 0.8}},
	}

	figs := SelectFigures(blocks, []int{2})
	if len(figs) != 2 {
		t.Fatalf("got %d figures, want 2", len(figs))
	}
	if figs[0].Index != 0 || figs[1].Index != 1 {
		t.Errorf("indexes = %d, %d", figs[0].Index, figs[1].Index)
	}
	if figs[0].Page != 2 || figs[0].Region.Width != 0.8 {
		t.Errorf("figure 0 = %+v", figs[0])
	}
}

func TestSelectFiguresFullPageFallback(t *testing.T) {
	// Page 3 is flagged but has no figure blocks at all; page 4 has only
	// a decoration. Both must fall back to the full page.
	blocks := []analysis.Block{
		{ID: "dot", Type: analysis.BlockFigure, Page: 4,
			Geometry: analysis.Geometry{Left: 0.0, Top: 0.0, Width: 0.01, Height: 0.01}},
	}

	figs := SelectFigures(blocks, []int{3, 4})
	if len(figs) != 2 {
		t.Fatalf("got %d figures, want 2", len(figs))
	}
	for i, page := range []int{3, 4} {
		f := figs[i]
		if f.Page != page || f.Index != 0 {
			t.Errorf("figure %d = %+v", i, f)
		}
		if f.Region.Left != 0 || f.Region.Top != 0 || f.Region.Width != 1 || f.Region.Height != 1 {
			t.Errorf("figure %d region = %+v, want full page", i, f.Region)
		}
	}
}

func TestSelectFiguresIgnoresUnflaggedPages(t *testing.T) {
	blocks := []analysis.Block{
		{ID: "f1", Type: analysis.BlockFigure, Page: 1,
			Geometry: analysis.Geometry{Left: 0.1, Top: 0.2, Width: 0.8, Height: 0.3}},
	}
	if figs := SelectFigures(blocks, nil); len(figs) != 0 {
		t.Errorf("got %d figures for empty page list", len(figs))
	}
}
