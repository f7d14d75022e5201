package pipeline

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/docmill/docmill/internal/home"
)

func testHome(t *testing.T) *home.Dir {
	t.Helper()
	h, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("home.New: %v", err)
	}
	if err := h.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists: %v", err)
	}
	return h
}

func TestClampPages(t *testing.T) {
	tests := []struct {
		name  string
		pages []int
		max   int
		want  []int
	}{
		{"drops pages past the cap", []int{0, 1, 2, 3}, 3, []int{0, 1, 2}},
		{"all within cap", []int{0, 2}, 5, []int{0, 2}},
		{"nil stays nil", nil, 3, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClampPages(append([]int(nil), tt.pages...), tt.max)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ClampPages(%v, %d) = %v, want %v", tt.pages, tt.max, got, tt.want)
			}
		})
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	h := testHome(t)

	jc, err := Build(h, "job1", "store://source/a.pdf", 200)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	jc.Status.PageCount = 7
	jc.Status.TextPages = []int{0, 1, 3}
	jc.Status.RotatedPages = map[int]int{2: 90}
	if err := jc.Checkpoint(StageClassify); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	// A fresh context for the same job resumes from the checkpoint.
	resumed, err := Build(h, "job1", "store://source/a.pdf", 200)
	if err != nil {
		t.Fatalf("Build resume: %v", err)
	}
	if resumed.Status.LastStage != StageClassify {
		t.Errorf("LastStage = %q, want %q", resumed.Status.LastStage, StageClassify)
	}
	if resumed.Status.PageCount != 7 {
		t.Errorf("PageCount = %d, want 7", resumed.Status.PageCount)
	}
	if !reflect.DeepEqual(resumed.Status.TextPages, []int{0, 1, 3}) {
		t.Errorf("TextPages = %v", resumed.Status.TextPages)
	}
	if resumed.Status.RotatedPages[2] != 90 {
		t.Errorf("RotatedPages = %v", resumed.Status.RotatedPages)
	}

	// The temp file from the atomic write must not linger.
	if _, err := os.Stat(h.StatusPath("job1") + ".tmp"); !os.IsNotExist(err) {
		t.Error("atomic write left a .tmp file behind")
	}
}

func TestBuildClampsOversizedCheckpoint(t *testing.T) {
	h := testHome(t)

	jc, err := Build(h, "job1", "store://source/a.pdf", 200)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	jc.Status.PageCount = 10
	jc.Status.TextPages = []int{0, 1, 2, 3}
	jc.Status.ImagePages = []int{4, 9}
	if err := jc.Checkpoint(StageClassify); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	// Resume under a smaller page cap.
	resumed, err := Build(h, "job1", "store://source/a.pdf", 3)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if resumed.Status.PageCount != 3 {
		t.Errorf("PageCount = %d, want 3", resumed.Status.PageCount)
	}
	if !reflect.DeepEqual(resumed.Status.TextPages, []int{0, 1, 2}) {
		t.Errorf("TextPages = %v, want [0 1 2]", resumed.Status.TextPages)
	}
	if len(resumed.Status.ImagePages) != 0 {
		t.Errorf("ImagePages = %v, want empty", resumed.Status.ImagePages)
	}
}

func TestBuildRejectsLocatorMismatch(t *testing.T) {
	h := testHome(t)

	jc, err := Build(h, "job1", "store://source/a.pdf", 200)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := jc.Checkpoint(StageDownload); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	if _, err := Build(h, "job1", "store://source/other.pdf", 200); err == nil {
		t.Fatal("expected error resuming against a different source locator")
	}
}

func TestBuildRejectsCorruptCheckpoint(t *testing.T) {
	h := testHome(t)
	if err := h.EnsureJobDir("job1"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(h.StatusPath("job1"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Build(h, "job1", "store://source/a.pdf", 200); err == nil {
		t.Fatal("expected error for corrupt checkpoint")
	}

	if err := os.WriteFile(h.StatusPath("job1"),
		[]byte(`{"job_id":"job1","last_stage":"warp"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Build(h, "job1", "store://source/a.pdf", 200); err == nil {
		t.Fatal("expected error for unknown stage in checkpoint")
	}
}

func TestJobDirLayout(t *testing.T) {
	h := testHome(t)
	if _, err := Build(h, "job1", "store://source/a.pdf", 200); err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, dir := range []string{h.JobDir("job1"), h.PagesDir("job1"), h.VisionDir("job1")} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("expected directory %s", dir)
		}
	}
	if got := h.FigureImagePath("job1", 3, 1); filepath.Base(got) != "page_0003_figure_0001.png" {
		t.Errorf("FigureImagePath = %s", got)
	}
}
