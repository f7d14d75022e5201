package home

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewDefaultsToUserHome(t *testing.T) {
	d, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !strings.HasSuffix(d.Path(), DefaultDirName) {
		t.Errorf("Path() = %q, want %s suffix", d.Path(), DefaultDirName)
	}
}

func TestEnsureExists(t *testing.T) {
	root := filepath.Join(t.TempDir(), "home")
	d, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists: %v", err)
	}

	for _, p := range []string{d.DataPath(), filepath.Join(root, JobsDirName)} {
		if fi, err := os.Stat(p); err != nil || !fi.IsDir() {
			t.Errorf("missing directory %s", p)
		}
	}
	if d.ConfigExists() {
		t.Error("ConfigExists true before config written")
	}
}

func TestJobPathsLiveUnderJobDir(t *testing.T) {
	d, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := d.EnsureJobDir("job1"); err != nil {
		t.Fatalf("EnsureJobDir: %v", err)
	}

	jobDir := d.JobDir("job1")
	for name, p := range map[string]string{
		"status":     d.StatusPath("job1"),
		"normalized": d.NormalizedPDFPath("job1"),
		"chunks":     d.ChunksDir("job1"),
		"analysis":   d.AnalysisRawPath("job1"),
		"vision":     d.VisionResultPath("job1"),
		"final":      d.FinalDocPath("job1"),
	} {
		if !strings.HasPrefix(p, jobDir+string(filepath.Separator)) {
			t.Errorf("%s path %q not under job dir %q", name, p, jobDir)
		}
	}

	// Source and converted PDF live under data/ so re-running a job can
	// skip the download.
	if !strings.HasPrefix(d.SourcePath("job1"), d.DataPath()) {
		t.Errorf("SourcePath = %q", d.SourcePath("job1"))
	}
	if !strings.HasPrefix(d.LocalPDFPath("job1"), d.DataPath()) {
		t.Errorf("LocalPDFPath = %q", d.LocalPDFPath("job1"))
	}
}

func TestFigureImagePath(t *testing.T) {
	d, _ := New("/tmp/h")
	got := d.FigureImagePath("j", 3, 1)
	if filepath.Base(got) != "page_0003_figure_0001.png" {
		t.Errorf("FigureImagePath = %q", got)
	}
}
