package analysis

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// SplitFunc splits a PDF into chunk files. Injected into the pipeline so
// tests can avoid real PDF surgery.
type SplitFunc func(pdfPath, outDir string, pageCount, chunkSize int) ([]string, error)

// SplitPDF writes chunk PDFs of at most chunkSize pages each into outDir
// and returns their paths in page order. pageCount bounds the split; pages
// past it are never submitted.
func SplitPDF(pdfPath, outDir string, pageCount, chunkSize int) ([]string, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	var paths []string
	for start := 1; start <= pageCount; start += chunkSize {
		end := start + chunkSize - 1
		if end > pageCount {
			end = pageCount
		}

		out := filepath.Join(outDir, fmt.Sprintf("chunk_%04d.pdf", len(paths)))
		pages := []string{fmt.Sprintf("%d-%d", start, end)}
		if err := api.TrimFile(pdfPath, out, pages, nil); err != nil {
			return nil, fmt.Errorf("failed to split pages %d-%d: %w", start, end, err)
		}
		paths = append(paths, out)
	}
	return paths, nil
}
