package classify

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strings"
)

// TesseractOCR shells out to the tesseract binary for the OCR fallback.
type TesseractOCR struct {
	// Path is the tesseract binary; defaults to "tesseract" on PATH.
	Path string
}

// Recognize pipes the render through tesseract and returns recognized text.
func (t TesseractOCR) Recognize(ctx context.Context, img *image.Gray) (string, error) {
	bin := t.Path
	if bin == "" {
		bin = "tesseract"
	}

	var in bytes.Buffer
	if err := png.Encode(&in, img); err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, bin, "stdin", "stdout", "-l", "eng")
	cmd.Stdin = &in
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
