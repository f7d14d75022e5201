// Package analysis submits documents to the external layout-analysis
// service in page chunks and reassembles the per-chunk results into one
// block list with document-global page numbers.
package analysis

import "errors"

var (
	// ErrChunkFailed indicates a chunk exhausted its attempts; the whole
	// job fails, partial results are never published.
	ErrChunkFailed = errors.New("analysis chunk failed")

	// ErrAnalysisTimeout indicates a remote job stayed pending past the
	// poll budget.
	ErrAnalysisTimeout = errors.New("analysis poll budget exhausted")
)

// BlockType enumerates the layout element kinds the service reports.
type BlockType string

const (
	BlockPage   BlockType = "PAGE"
	BlockLine   BlockType = "LINE"
	BlockWord   BlockType = "WORD"
	BlockTable  BlockType = "TABLE"
	BlockCell   BlockType = "CELL"
	BlockFigure BlockType = "FIGURE"
)

// Geometry is a normalized bounding box (fractions of page dimensions).
type Geometry struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Block is one layout element. Page is 1-indexed; within a raw chunk result
// it is chunk-relative, after reassembly it is document-global.
type Block struct {
	ID          string    `json:"id"`
	Type        BlockType `json:"type"`
	Page        int       `json:"page"`
	Text        string    `json:"text,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
	RowIndex    int       `json:"rowIndex,omitempty"`
	ColumnIndex int       `json:"columnIndex,omitempty"`
	RowSpan     int       `json:"rowSpan,omitempty"`
	ColumnSpan  int       `json:"columnSpan,omitempty"`
	Geometry    Geometry  `json:"geometry"`
	ChildIDs    []string  `json:"childIds,omitempty"`
}

// JobState is the lifecycle state of one remote analysis job.
type JobState string

const (
	StatePending   JobState = "PENDING"
	StateSucceeded JobState = "SUCCEEDED"
	StateFailed    JobState = "FAILED"
)
