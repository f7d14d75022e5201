// Package unify reconciles the block streams of a job - layout-analysis
// tables and lines plus vision chart annotations - into one markdown
// document in reading order.
package unify

import (
	"fmt"
	"strings"

	"github.com/docmill/docmill/internal/analysis"
)

// rawTable is one TABLE block materialized as a dense grid. Rows and
// columns are dense: cell indices are 1-based in the block stream and any
// missing cell becomes the empty string.
type rawTable struct {
	Page    int
	Top     float64
	Grid    [][]string
	wordIDs map[string]struct{}
}

func blockIndex(blocks []analysis.Block) map[string]analysis.Block {
	byID := make(map[string]analysis.Block, len(blocks))
	for _, b := range blocks {
		byID[b.ID] = b
	}
	return byID
}

// cellText joins the WORD children of a cell. The word ids seen are added
// to words, which later drives duplicate-line suppression.
func cellText(cell analysis.Block, byID map[string]analysis.Block, words map[string]struct{}) string {
	var parts []string
	for _, id := range cell.ChildIDs {
		child, ok := byID[id]
		if !ok || child.Type != analysis.BlockWord {
			continue
		}
		words[id] = struct{}{}
		if child.Text != "" {
			parts = append(parts, child.Text)
		}
	}
	return strings.Join(parts, " ")
}

// extractTables materializes every TABLE block into a rawTable.
func extractTables(blocks []analysis.Block, byID map[string]analysis.Block) []rawTable {
	var tables []rawTable
	for _, b := range blocks {
		if b.Type != analysis.BlockTable {
			continue
		}

		words := make(map[string]struct{})
		type cellEntry struct {
			row, col int
			text     string
		}
		var cells []cellEntry
		maxRow, maxCol := 0, 0
		for _, id := range b.ChildIDs {
			cell, ok := byID[id]
			if !ok || cell.Type != analysis.BlockCell {
				continue
			}
			if cell.RowIndex > maxRow {
				maxRow = cell.RowIndex
			}
			if cell.ColumnIndex > maxCol {
				maxCol = cell.ColumnIndex
			}
			cells = append(cells, cellEntry{cell.RowIndex, cell.ColumnIndex, cellText(cell, byID, words)})
		}
		if maxRow == 0 || maxCol == 0 {
			continue
		}

		grid := make([][]string, maxRow)
		for i := range grid {
			grid[i] = make([]string, maxCol)
		}
		for _, c := range cells {
			grid[c.row-1][c.col-1] = c.text
		}

		tables = append(tables, rawTable{
			Page:    b.Page,
			Top:     b.Geometry.Top,
			Grid:    grid,
			wordIDs: words,
		})
	}
	return tables
}

// normalizeHeader cleans one header cell for markdown; blank headers fall
// back to positional names so every column stays addressable.
func normalizeHeader(s string, col int) string {
	s = strings.TrimSpace(strings.NewReplacer("|", " ", "\n", " ").Replace(s))
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return fmt.Sprintf("Col%d", col+1)
	}
	return s
}

func escapeCell(s string) string {
	s = strings.NewReplacer("|", "\\|", "\n", " ").Replace(s)
	return strings.TrimSpace(s)
}

// renderMarkdown renders a grid as a pipe table. The first row is the
// header. Short body rows are padded to the header width, long ones
// truncated to it.
func renderMarkdown(grid [][]string) string {
	if len(grid) == 0 || len(grid[0]) == 0 {
		return ""
	}

	width := len(grid[0])
	var sb strings.Builder

	sb.WriteString("|")
	for col, h := range grid[0] {
		sb.WriteString(" " + normalizeHeader(h, col) + " |")
	}
	sb.WriteString("\n|")
	for range grid[0] {
		sb.WriteString(" --- |")
	}
	sb.WriteString("\n")

	for _, row := range grid[1:] {
		sb.WriteString("|")
		for col := 0; col < width; col++ {
			cell := ""
			if col < len(row) {
				cell = escapeCell(row[col])
			}
			sb.WriteString(" " + cell + " |")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
