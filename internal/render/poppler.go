package render

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PopplerSource renders pages by shelling out to the poppler-utils binaries
// (pdftoppm, pdftotext), the same external-tool pattern used for document
// conversion. Renders are cached per (page, dpi) in a scratch directory.
type PopplerSource struct {
	path      string
	pageCount int
	scratch   string
}

// OpenPoppler builds a PopplerSource for the PDF at path.
func OpenPoppler(path string) (PageSource, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to count pages of %s: %w", path, err)
	}
	scratch, err := os.MkdirTemp("", "docmill-render-*")
	if err != nil {
		return nil, err
	}
	return &PopplerSource{path: path, pageCount: n, scratch: scratch}, nil
}

// Close removes the scratch directory.
func (p *PopplerSource) Close() error {
	return os.RemoveAll(p.scratch)
}

// PageCount returns the number of pages.
func (p *PopplerSource) PageCount() int {
	return p.pageCount
}

func (p *PopplerSource) renderPNG(ctx context.Context, page, dpi int, gray bool) (string, error) {
	mode := "rgb"
	if gray {
		mode = "gray"
	}
	prefix := filepath.Join(p.scratch, fmt.Sprintf("p%04d_d%d_%s", page, dpi, mode))
	out := prefix + fmt.Sprintf("-%d.png", page+1)
	if _, err := os.Stat(out); err == nil {
		return out, nil
	}

	args := []string{"-png", "-r", fmt.Sprint(dpi),
		"-f", fmt.Sprint(page + 1), "-l", fmt.Sprint(page + 1)}
	if gray {
		args = append(args, "-gray")
	}
	args = append(args, p.path, prefix)

	cmd := exec.CommandContext(ctx, "pdftoppm", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pdftoppm page %d: %w: %s", page, err, strings.TrimSpace(stderr.String()))
	}

	// pdftoppm pads the page suffix to the width of the page count.
	matches, _ := filepath.Glob(prefix + "-*.png")
	if len(matches) == 0 {
		return "", fmt.Errorf("pdftoppm produced no output for page %d", page)
	}
	return matches[0], nil
}

// RenderGray rasterizes a page to grayscale at the given DPI.
func (p *PopplerSource) RenderGray(ctx context.Context, page, dpi int) (*image.Gray, error) {
	path, err := p.renderPNG(ctx, page, dpi, true)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode render of page %d: %w", page, err)
	}
	if g, ok := img.(*image.Gray); ok {
		return g, nil
	}
	g := image.NewGray(img.Bounds())
	draw.Draw(g, g.Bounds(), img, img.Bounds().Min, draw.Src)
	return g, nil
}

// RenderRegionPNG rasterizes a normalized region of a page to PNG bytes.
func (p *PopplerSource) RenderRegionPNG(ctx context.Context, page, dpi int, r Region) ([]byte, error) {
	path, err := p.renderPNG(ctx, page, dpi, false)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode render of page %d: %w", page, err)
	}

	b := img.Bounds()
	crop := image.Rect(
		b.Min.X+int(r.Left*float64(b.Dx())),
		b.Min.Y+int(r.Top*float64(b.Dy())),
		b.Min.X+int((r.Left+r.Width)*float64(b.Dx())),
		b.Min.Y+int((r.Top+r.Height)*float64(b.Dy())),
	).Intersect(b)
	if crop.Empty() {
		return nil, fmt.Errorf("empty crop region on page %d", page)
	}

	dst := image.NewRGBA(image.Rect(0, 0, crop.Dx(), crop.Dy()))
	draw.Draw(dst, dst.Bounds(), img, crop.Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// bboxDoc mirrors the XHTML document emitted by pdftotext -bbox.
type bboxDoc struct {
	Pages []struct {
		Width  float64 `xml:"width,attr"`
		Height float64 `xml:"height,attr"`
		Words  []struct {
			XMin float64 `xml:"xMin,attr"`
			YMin float64 `xml:"yMin,attr"`
			XMax float64 `xml:"xMax,attr"`
			YMax float64 `xml:"yMax,attr"`
			Text string  `xml:",chardata"`
		} `xml:"word"`
	} `xml:"body>doc>page"`
}

// TextLayer extracts the text and word boxes of a page via pdftotext.
func (p *PopplerSource) TextLayer(ctx context.Context, page int) (TextLayer, error) {
	cmd := exec.CommandContext(ctx, "pdftotext", "-bbox",
		"-f", fmt.Sprint(page+1), "-l", fmt.Sprint(page+1), p.path, "-")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return TextLayer{}, fmt.Errorf("pdftotext page %d: %w: %s", page, err, strings.TrimSpace(stderr.String()))
	}

	layer, err := parseTextLayer(stdout.Bytes())
	if err != nil {
		return TextLayer{}, fmt.Errorf("failed to parse text layer of page %d: %w", page, err)
	}
	return layer, nil
}

// parseTextLayer decodes pdftotext -bbox output for a single page.
func parseTextLayer(raw []byte) (TextLayer, error) {
	var layer TextLayer

	var doc bboxDoc
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.Strict = false
	if err := dec.Decode(&doc); err != nil {
		return layer, err
	}
	if len(doc.Pages) == 0 {
		return layer, nil
	}

	pg := doc.Pages[0]
	layer.Width = pg.Width
	layer.Height = pg.Height

	var sb strings.Builder
	for _, w := range pg.Words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		layer.Words = append(layer.Words, Word{
			Text: text, X0: w.XMin, Y0: w.YMin, X1: w.XMax, Y1: w.YMax,
		})
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(text)
	}
	layer.Text = sb.String()
	return layer, nil
}
