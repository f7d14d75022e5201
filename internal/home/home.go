// Package home manages the docmill home directory layout.
//
// Every job gets its own directory under jobs/ with deterministic paths for
// each pipeline artifact, so a different process can locate and resume a
// half-finished job from its ID alone.
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the docmill home directory.
	DefaultDirName = ".docmill"

	// JobsDirName is the subdirectory holding per-job working directories.
	JobsDirName = "jobs"

	// DataDirName is the subdirectory for downloaded source files.
	DataDirName = "data"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the docmill home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.docmill).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}
	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// DataPath returns the path to the data directory.
func (d *Dir) DataPath() string {
	return filepath.Join(d.path, DataDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, p := range []string{d.DataPath(), filepath.Join(d.path, JobsDirName)} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", p, err)
		}
	}
	return nil
}

// JobDir returns the working directory for a job.
func (d *Dir) JobDir(jobID string) string {
	return filepath.Join(d.path, JobsDirName, jobID)
}

// EnsureJobDir creates the working directory tree for a job.
func (d *Dir) EnsureJobDir(jobID string) error {
	for _, p := range []string{d.JobDir(jobID), d.PagesDir(jobID), d.VisionDir(jobID)} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return fmt.Errorf("failed to create job directory %s: %w", p, err)
		}
	}
	return nil
}

// StatusPath returns the checkpoint file for a job.
func (d *Dir) StatusPath(jobID string) string {
	return filepath.Join(d.JobDir(jobID), "status.json")
}

// LogPath returns the per-job log file.
func (d *Dir) LogPath(jobID string) string {
	return filepath.Join(d.JobDir(jobID), "job.log")
}

// SourcePath returns the downloaded source file path (extension appended
// once known).
func (d *Dir) SourcePath(jobID string) string {
	return filepath.Join(d.DataPath(), jobID+".source")
}

// LocalPDFPath returns the converted PDF path for a job.
func (d *Dir) LocalPDFPath(jobID string) string {
	return filepath.Join(d.DataPath(), jobID+".pdf")
}

// NormalizedPDFPath returns the rotation-corrected PDF path.
func (d *Dir) NormalizedPDFPath(jobID string) string {
	return filepath.Join(d.JobDir(jobID), jobID+".normalized.pdf")
}

// PagesDir returns the per-page render directory for a job.
func (d *Dir) PagesDir(jobID string) string {
	return filepath.Join(d.JobDir(jobID), "pages")
}

// ChunksDir returns the directory holding chunk PDFs submitted for analysis.
func (d *Dir) ChunksDir(jobID string) string {
	return filepath.Join(d.JobDir(jobID), "chunks")
}

// VisionDir returns the directory for cropped figure images.
func (d *Dir) VisionDir(jobID string) string {
	return filepath.Join(d.JobDir(jobID), "vision_imgs")
}

// FigureImagePath returns the path for one cropped figure image.
func (d *Dir) FigureImagePath(jobID string, page, figure int) string {
	return filepath.Join(d.VisionDir(jobID), fmt.Sprintf("page_%04d_figure_%04d.png", page, figure))
}

// AnalysisRawPath returns the reassembled raw analysis output for a job.
func (d *Dir) AnalysisRawPath(jobID string) string {
	return filepath.Join(d.JobDir(jobID), "analysis_raw.json")
}

// VisionResultPath returns the vision annotation output for a job.
func (d *Dir) VisionResultPath(jobID string) string {
	return filepath.Join(d.JobDir(jobID), "vision_results.json")
}

// FinalDocPath returns the composed output document for a job.
func (d *Dir) FinalDocPath(jobID string) string {
	return filepath.Join(d.JobDir(jobID), jobID+".md")
}

// BookkeepingPath returns the default path of the bookkeeping database.
func (d *Dir) BookkeepingPath() string {
	return filepath.Join(d.path, "bookkeeping.db")
}
