// Package convert normalizes arbitrary source documents to PDF before the
// pipeline touches them.
package convert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ErrUnsupportedFormat indicates a source extension the converter does not
// handle. These jobs fail before any remote work happens.
var ErrUnsupportedFormat = fmt.Errorf("unsupported source format")

// Converter turns source documents into PDFs.
type Converter struct {
	sofficePath string
}

// New creates a Converter shelling out to the given soffice binary.
func New(sofficePath string) *Converter {
	if sofficePath == "" {
		sofficePath = "soffice"
	}
	return &Converter{sofficePath: sofficePath}
}

// officeExts are handed to LibreOffice. Plain text goes the same route;
// LibreOffice paginates it for free.
var officeExts = map[string]bool{
	".doc": true, ".docx": true, ".odt": true, ".rtf": true,
	".ppt": true, ".pptx": true, ".odp": true,
	".xls": true, ".xlsx": true, ".ods": true,
	".txt": true, ".md": true, ".csv": true,
}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".tif": true, ".tiff": true,
}

// ToPDF converts src (extension decides the route) and writes the result
// to dest. PDFs are copied through unchanged.
func (c *Converter) ToPDF(ctx context.Context, src, dest string) error {
	ext := strings.ToLower(filepath.Ext(src))
	switch {
	case ext == ".pdf":
		return copyFile(src, dest)
	case officeExts[ext]:
		return c.viaSoffice(ctx, src, dest)
	case imageExts[ext]:
		return imageToPDF(src, dest)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// viaSoffice runs a headless LibreOffice conversion. soffice names its
// output after the input; the result is moved to dest afterwards.
func (c *Converter) viaSoffice(ctx context.Context, src, dest string) error {
	outDir, err := os.MkdirTemp("", "docmill-convert-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(outDir)

	cmd := exec.CommandContext(ctx, c.sofficePath,
		"--headless", "--norestore", "--convert-to", "pdf", "--outdir", outDir, src)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("soffice conversion of %s: %w: %s",
			filepath.Base(src), err, strings.TrimSpace(stderr.String()))
	}

	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	produced := filepath.Join(outDir, base+".pdf")
	if _, err := os.Stat(produced); err != nil {
		return fmt.Errorf("soffice produced no output for %s", filepath.Base(src))
	}
	return copyFile(produced, dest)
}

func imageToPDF(src, dest string) error {
	if err := api.ImportImagesFile([]string{src}, dest, nil, nil); err != nil {
		return fmt.Errorf("failed to import image %s: %w", filepath.Base(src), err)
	}
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
