// Package classify decides, per page, whether extractable text can be
// trusted or the page must be treated as an image, and flags pages whose
// text is dominated by chart-like numeric content.
package classify

// Policy carries every threshold the page classifier consults. The zero
// value is unusable; start from DefaultPolicy and override.
type Policy struct {
	// TextRatioMax is the maximum fraction of page area covered by word
	// boxes below which a page is suspiciously sparse.
	TextRatioMax float64

	// TextLenMax and WordCountMax bound what still counts as sparse text.
	TextLenMax   int
	WordCountMax int

	// VarianceMin and VarianceHigh bracket the raster variance band in
	// which sparse text indicates a scanned or image-heavy page.
	VarianceMin  float64
	VarianceHigh float64

	// TextlessLen is the text length under which a page is considered to
	// have no usable text layer at all.
	TextlessLen int

	// OCRTriggerLen is the text length under which the OCR fallback runs;
	// OCRMinChars is how much recognized text rescues the page.
	OCRTriggerLen int
	OCRMinChars   int

	// FailsafeTextLen and FailsafeWords force a text verdict regardless of
	// raster evidence, unless the page reads like a chart.
	FailsafeTextLen int
	FailsafeWords   int

	// Chart detection cues.
	ChartNumericRatio float64
	ChartMinCues      int
	ChartFiscalHits   int
	ChartPercentHits  int
	ChartCurrencyHits int
	ChartDigitHits    int
}

// DefaultPolicy returns the tuned production thresholds.
func DefaultPolicy() Policy {
	return Policy{
		TextRatioMax:      0.07,
		TextLenMax:        450,
		WordCountMax:      120,
		VarianceMin:       900,
		VarianceHigh:      9000,
		TextlessLen:       30,
		OCRTriggerLen:     25,
		OCRMinChars:       100,
		FailsafeTextLen:   700,
		FailsafeWords:     160,
		ChartNumericRatio: 0.28,
		ChartMinCues:      2,
		ChartFiscalHits:   3,
		ChartPercentHits:  6,
		ChartCurrencyHits: 2,
		ChartDigitHits:    200,
	}
}
