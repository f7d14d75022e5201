package bookkeeping

import (
	"context"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "books.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordFileVersionKeepsStableFileID(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	fv := FileVersion{
		ExternalFileID: "ext-1",
		UserID:         "u1",
		TenantID:       "t1",
		Filename:       "report.pdf",
		SourceLocator:  "store://source/report.pdf",
		OutputLocator:  "store://output/t1/job_v1.md",
		Version:        1,
	}
	id1, err := s.RecordFileVersion(ctx, fv)
	if err != nil {
		t.Fatalf("RecordFileVersion v1: %v", err)
	}
	if id1 == "" {
		t.Fatal("empty file id")
	}

	fv.Version = 2
	fv.OutputLocator = "store://output/t1/job_v2.md"
	id2, err := s.RecordFileVersion(ctx, fv)
	if err != nil {
		t.Fatalf("RecordFileVersion v2: %v", err)
	}
	if id2 != id1 {
		t.Errorf("file id changed across versions: %s vs %s", id1, id2)
	}

	v, err := s.ActiveVersion(ctx, "t1", "report.pdf")
	if err != nil {
		t.Fatalf("ActiveVersion: %v", err)
	}
	if v != 2 {
		t.Errorf("ActiveVersion = %d, want 2", v)
	}

	// Exactly one active row should remain.
	var active int
	err = s.db.QueryRow(
		`SELECT COUNT(*) FROM file_versions
		 WHERE tenant_id = ? AND filename = ? AND valid_to = ?`,
		"t1", "report.pdf", endOfTime,
	).Scan(&active)
	if err != nil {
		t.Fatal(err)
	}
	if active != 1 {
		t.Errorf("active rows = %d, want 1", active)
	}

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM file_versions`).Scan(&total); err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("total rows = %d, want 2", total)
	}
}

func TestRecordFileVersionSeparateTenants(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	fv := FileVersion{UserID: "u", Filename: "a.pdf", SourceLocator: "store://s/a", Version: 1}

	fv.TenantID = "t1"
	id1, err := s.RecordFileVersion(ctx, fv)
	if err != nil {
		t.Fatal(err)
	}
	fv.TenantID = "t2"
	id2, err := s.RecordFileVersion(ctx, fv)
	if err != nil {
		t.Fatal(err)
	}
	if id1 == id2 {
		t.Error("tenants share a file id")
	}
}

func TestActiveVersionNone(t *testing.T) {
	s := testStore(t)
	v, err := s.ActiveVersion(context.Background(), "t1", "missing.pdf")
	if err != nil {
		t.Fatalf("ActiveVersion: %v", err)
	}
	if v != 0 {
		t.Errorf("ActiveVersion = %d, want 0", v)
	}
}

func TestRecordUsage(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	taskID, err := s.RecordUsage(ctx, Usage{
		UserID:     "u1",
		TenantID:   "t1",
		TaskType:   "document_extraction",
		InputSize:  1024,
		OutputSize: 2048,
	})
	if err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if taskID == "" {
		t.Fatal("empty task id")
	}

	var taskType string
	var inputSize int64
	err = s.db.QueryRow(
		`SELECT task_type, input_size FROM usage_credits WHERE task_id = ?`, taskID,
	).Scan(&taskType, &inputSize)
	if err != nil {
		t.Fatal(err)
	}
	if taskType != "document_extraction" || inputSize != 1024 {
		t.Errorf("stored = %s/%d", taskType, inputSize)
	}
}
