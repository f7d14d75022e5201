package pipeline

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/docmill/docmill/internal/home"
)

// Status is the durable checkpoint of one job. It lives in the job
// directory as status.json and is rewritten atomically after every stage.
type Status struct {
	JobID         string      `json:"job_id"`
	SourceLocator string      `json:"source_locator"`
	LastStage     Stage       `json:"last_stage"`
	SourceExt     string      `json:"source_ext,omitempty"`
	PageCount     int         `json:"page_count,omitempty"`
	TextPages     []int       `json:"text_pages,omitempty"`
	ImagePages    []int       `json:"image_pages,omitempty"`
	ChartPages    []int       `json:"chart_pages,omitempty"`
	RotatedPages  map[int]int `json:"rotated_pages,omitempty"`
	ChunkKeys     []string    `json:"chunk_keys,omitempty"`
	OutputKey     string      `json:"output_key,omitempty"`
	VisionError   string      `json:"vision_error,omitempty"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// JobContext binds a job's checkpoint to its on-disk layout. Log is the
// job-scoped logger, set by the Runner before any stage runs.
type JobContext struct {
	Home   *home.Dir
	Status Status
	Log    *slog.Logger

	maxPages   int
	statusPath string
}

// Build loads (or initializes) the job context for jobID. An existing
// checkpoint for a different source locator is rejected rather than
// silently resumed against the wrong document.
func Build(h *home.Dir, jobID, sourceLocator string, maxPages int) (*JobContext, error) {
	if err := h.EnsureJobDir(jobID); err != nil {
		return nil, err
	}

	jc := &JobContext{
		Home:       h,
		Log:        slog.Default(),
		maxPages:   maxPages,
		statusPath: h.StatusPath(jobID),
		Status: Status{
			JobID:         jobID,
			SourceLocator: sourceLocator,
		},
	}

	data, err := os.ReadFile(jc.statusPath)
	switch {
	case os.IsNotExist(err):
		return jc, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("corrupt checkpoint %s: %w", jc.statusPath, err)
	}
	if !st.LastStage.Valid() {
		return nil, fmt.Errorf("corrupt checkpoint %s: unknown stage %q", jc.statusPath, st.LastStage)
	}
	if st.SourceLocator != "" && st.SourceLocator != sourceLocator {
		return nil, fmt.Errorf("checkpoint for job %s belongs to %s, refusing to resume against %s",
			jobID, st.SourceLocator, sourceLocator)
	}

	st.JobID = jobID
	st.SourceLocator = sourceLocator
	jc.Status = st
	jc.clamp()
	return jc, nil
}

// Covers reports whether the checkpoint says stage is already done.
func (jc *JobContext) Covers(stage Stage) bool {
	return jc.Status.LastStage.Covers(stage)
}

// Checkpoint marks stage complete and persists the status atomically.
func (jc *JobContext) Checkpoint(stage Stage) error {
	jc.Status.LastStage = stage
	jc.Status.UpdatedAt = time.Now().UTC()
	jc.clamp()

	data, err := json.MarshalIndent(jc.Status, "", "  ")
	if err != nil {
		return err
	}

	// Write-then-rename keeps a crash from ever leaving a torn checkpoint.
	tmp := jc.statusPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, jc.statusPath)
}

// clamp enforces the page cap on the checkpoint. Counts are cut to the cap
// and page index lists drop entries past it.
func (jc *JobContext) clamp() {
	if jc.maxPages <= 0 {
		return
	}
	if jc.Status.PageCount > jc.maxPages {
		jc.Status.PageCount = jc.maxPages
	}
	jc.Status.TextPages = ClampPages(jc.Status.TextPages, jc.maxPages)
	jc.Status.ImagePages = ClampPages(jc.Status.ImagePages, jc.maxPages)
	jc.Status.ChartPages = ClampPages(jc.Status.ChartPages, jc.maxPages)
}

// ClampPages filters 0-indexed page lists to pages below max.
func ClampPages(pages []int, max int) []int {
	if pages == nil {
		return nil
	}
	out := pages[:0]
	for _, p := range pages {
		if p < max {
			out = append(out, p)
		}
	}
	return out
}
