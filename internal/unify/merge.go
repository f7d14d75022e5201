package unify

import (
	"sort"
	"strings"
	"unicode"
)

// mergedTable is a table after cross-page reconciliation.
type mergedTable struct {
	PageStart int
	PageEnd   int
	Top       float64
	Grid      [][]string
}

const headerSimilarity = 0.7

// mergeTables reconciles tables that continue across page boundaries. Two
// tables merge only when the later one starts on the same or the next page
// and either repeats the header, continues the column signature, or is a
// transposed rendering of the same columns. Everything else stays separate.
func mergeTables(raw []rawTable) []mergedTable {
	sort.SliceStable(raw, func(i, j int) bool {
		if raw[i].Page != raw[j].Page {
			return raw[i].Page < raw[j].Page
		}
		return raw[i].Top < raw[j].Top
	})

	var merged []mergedTable
	for _, t := range raw {
		if len(t.Grid) == 0 {
			continue
		}
		if len(merged) > 0 {
			prev := &merged[len(merged)-1]
			if rows, ok := continuationRows(prev, t); ok {
				prev.Grid = append(prev.Grid, rows...)
				prev.PageEnd = t.Page
				continue
			}
		}
		merged = append(merged, mergedTable{
			PageStart: t.Page,
			PageEnd:   t.Page,
			Top:       t.Top,
			Grid:      t.Grid,
		})
	}
	return merged
}

// continuationRows decides whether t continues prev and returns the body
// rows to append.
func continuationRows(prev *mergedTable, t rawTable) ([][]string, bool) {
	pageDiff := t.Page - prev.PageEnd
	if pageDiff < 0 || pageDiff > 1 {
		return nil, false
	}

	if len(t.Grid[0]) == len(prev.Grid[0]) {
		// Repeated header: drop it, keep the body.
		if headerJaccard(prev.Grid[0], t.Grid[0]) > headerSimilarity {
			return t.Grid[1:], true
		}
		// Headerless continuation: the data shape must match.
		if signaturesEqual(columnSignature(t.Grid), columnSignature(prev.Grid)) {
			return t.Grid, true
		}
	}

	// Transposed continuation: some producers flip orientation mid-table.
	if tr := transpose(t.Grid); len(tr) > 0 && len(tr[0]) == len(prev.Grid[0]) {
		sig, prevSig := columnSignature(tr), columnSignature(prev.Grid)
		if signaturesEqual(sig, prevSig) {
			return tr, true
		}
		// Column order came out mirrored: the fragment's first column lines
		// up with the current table's last. Un-mirror every row.
		if signaturesEqual(reversed(sig), prevSig) {
			for i, row := range tr {
				tr[i] = reversed(row)
			}
			return tr, true
		}
	}

	return nil, false
}

// headerJaccard measures header similarity as Jaccard overlap of the
// lower-cased cell token sets.
func headerJaccard(a, b []string) float64 {
	setA := headerSet(a)
	setB := headerSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}

	inter := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func headerSet(cells []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, c := range cells {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			set[c] = struct{}{}
		}
	}
	return set
}

// columnSignature classifies each column as numeric, alpha or mixed by
// sampling up to five body cells.
func columnSignature(grid [][]string) []string {
	if len(grid) == 0 {
		return nil
	}
	body := grid
	if len(grid) > 1 {
		body = grid[1:]
	}

	sig := make([]string, len(grid[0]))
	for col := range sig {
		numeric, alpha := 0, 0
		sampled := 0
		for _, row := range body {
			if sampled == 5 {
				break
			}
			if col >= len(row) || strings.TrimSpace(row[col]) == "" {
				continue
			}
			sampled++
			if isNumericCell(row[col]) {
				numeric++
			} else {
				alpha++
			}
		}
		switch {
		case sampled == 0:
			sig[col] = "empty"
		case numeric == sampled:
			sig[col] = "num"
		case alpha == sampled:
			sig[col] = "alpha"
		default:
			sig[col] = "mixed"
		}
	}
	return sig
}

func isNumericCell(s string) bool {
	hasDigit := false
	for _, r := range strings.TrimSpace(s) {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(".,%-()$₹€ ", r):
		default:
			return false
		}
	}
	return hasDigit
}

func signaturesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		// Empty columns match anything; there is no evidence either way.
		if a[i] == "empty" || b[i] == "empty" {
			continue
		}
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func reversed(s []string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}

func transpose(grid [][]string) [][]string {
	if len(grid) == 0 || len(grid[0]) == 0 {
		return nil
	}
	out := make([][]string, len(grid[0]))
	for i := range out {
		out[i] = make([]string, len(grid))
		for j := range grid {
			if i < len(grid[j]) {
				out[i][j] = grid[j][i]
			}
		}
	}
	return out
}
