package unify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/docmill/docmill/internal/analysis"
)

// Kind distinguishes the content streams feeding the final document.
type Kind string

const (
	KindLine  Kind = "line"
	KindTable Kind = "table"
	KindChart Kind = "chart"
)

// Item is one reading-order unit of the final document. Page is 1-indexed;
// Top is the normalized vertical position used for within-page ordering.
type Item struct {
	Page    int
	Top     float64
	Kind    Kind
	Content string
}

// ChartNote is a vision annotation placed at a figure's position.
type ChartNote struct {
	Page int     `json:"page"`
	Top  float64 `json:"top"`
	Text string  `json:"text"`
}

// lineTableOverlap is the fraction of a line's words that must belong to a
// table before the line is dropped as a duplicate rendering.
const lineTableOverlap = 0.9

// Extract turns a block stream into reading-order items: merged tables plus
// the lines that are not already covered by a table.
func Extract(blocks []analysis.Block) []Item {
	byID := blockIndex(blocks)
	raw := extractTables(blocks, byID)

	tableWords := make(map[string]struct{})
	for _, t := range raw {
		for id := range t.wordIDs {
			tableWords[id] = struct{}{}
		}
	}

	var items []Item
	for _, mt := range mergeTables(raw) {
		md := renderMarkdown(mt.Grid)
		if md == "" {
			continue
		}
		items = append(items, Item{
			Page:    mt.PageStart,
			Top:     mt.Top,
			Kind:    KindTable,
			Content: md,
		})
	}

	for _, b := range blocks {
		if b.Type != analysis.BlockLine || strings.TrimSpace(b.Text) == "" {
			continue
		}
		if lineInsideTable(b, byID, tableWords) {
			continue
		}
		items = append(items, Item{
			Page:    b.Page,
			Top:     b.Geometry.Top,
			Kind:    KindLine,
			Content: strings.TrimSpace(b.Text),
		})
	}

	sortItems(items)
	return items
}

// lineInsideTable reports whether nearly all of a line's words were already
// consumed by table cells.
func lineInsideTable(line analysis.Block, byID map[string]analysis.Block, tableWords map[string]struct{}) bool {
	total, inTable := 0, 0
	for _, id := range line.ChildIDs {
		child, ok := byID[id]
		if !ok || child.Type != analysis.BlockWord {
			continue
		}
		total++
		if _, ok := tableWords[id]; ok {
			inTable++
		}
	}
	if total == 0 {
		return false
	}
	return float64(inTable)/float64(total) > lineTableOverlap
}

// WithCharts splices chart annotations into the item stream at their figure
// positions and restores global order.
func WithCharts(items []Item, notes []ChartNote) []Item {
	for _, n := range notes {
		text := strings.TrimSpace(n.Text)
		if text == "" {
			continue
		}
		items = append(items, Item{
			Page:    n.Page,
			Top:     n.Top,
			Kind:    KindChart,
			Content: "> **Chart:** " + text,
		})
	}
	sortItems(items)
	return items
}

func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Page != items[j].Page {
			return items[i].Page < items[j].Page
		}
		return items[i].Top < items[j].Top
	})
}

// Compose renders the final markdown document. Every page from 1 to
// pageCount gets a section marker, including pages with no content.
func Compose(filename string, pageCount int, items []Item) string {
	var sb strings.Builder
	sb.WriteString("# " + strings.TrimSpace(filename) + "\n")

	byPage := make(map[int][]Item)
	for _, it := range items {
		byPage[it.Page] = append(byPage[it.Page], it)
	}

	for page := 1; page <= pageCount; page++ {
		sb.WriteString(fmt.Sprintf("\n## Page %d\n", page))
		for _, it := range byPage[page] {
			sb.WriteString("\n" + it.Content + "\n")
		}
	}
	return sb.String()
}
