package rotate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/docmill/docmill/internal/render"
)

const skewDPI = 120

// Plan estimates per-page corrections for a document. The returned map only
// holds pages that need rotating. Estimation failures on a single page are
// logged and treated as "no correction".
func Plan(ctx context.Context, src render.PageSource, logger *slog.Logger) (map[int]int, error) {
	rotations := make(map[int]int)
	for page := 0; page < src.PageCount(); page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := src.RenderGray(ctx, page, skewDPI)
		if err != nil {
			logger.Warn("skipping skew estimate, render failed", "page", page, "error", err)
			continue
		}
		if rot := Correction(EstimateSkew(img)); rot != 0 {
			rotations[page] = rot
		}
	}
	return rotations, nil
}

// Apply writes a copy of src with the planned rotations applied. Pages are
// grouped per rotation value so pdfcpu runs at most twice.
func Apply(src, dest string, rotations map[int]int) error {
	if err := copyFile(src, dest); err != nil {
		return err
	}
	if len(rotations) == 0 {
		return nil
	}

	byRotation := make(map[int][]string)
	for page, rot := range rotations {
		byRotation[rot] = append(byRotation[rot], strconv.Itoa(page+1))
	}
	for rot, pages := range byRotation {
		if err := api.RotateFile(dest, dest, rot, pages, nil); err != nil {
			return fmt.Errorf("failed to rotate pages %v by %d: %w", pages, rot, err)
		}
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
