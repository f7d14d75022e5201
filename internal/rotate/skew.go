// Package rotate normalizes page orientation. Skew is estimated from the
// rendered raster; only orthogonal corrections (90/270) are ever applied,
// small skews are left alone.
package rotate

import (
	"image"
	"math"
	"sort"
)

const (
	edgeThreshold = 60  // gradient magnitude that counts as an edge
	houghVotesMin = 200 // accumulator votes for a detected line
	maxEdgePixels = 200000
)

// EstimateSkew returns the dominant text-line angle of a page render, in
// degrees within [-90, 90). Horizontal text lines sit near 0; a page
// rotated a quarter turn shows up near +/-90. Returns 0 when no dominant
// line is found.
func EstimateSkew(img *image.Gray) float64 {
	if img == nil {
		return 0
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	// Collect edge pixels with a simple gradient filter. Subsample when the
	// page is busy so the accumulator pass stays cheap.
	type pt struct{ x, y int }
	var edges []pt
	stride := 1
	for {
		edges = edges[:0]
		for y := b.Min.Y + 1; y < b.Max.Y-1; y += stride {
			for x := b.Min.X + 1; x < b.Max.X-1; x += stride {
				gx := int(img.GrayAt(x+1, y).Y) - int(img.GrayAt(x-1, y).Y)
				gy := int(img.GrayAt(x, y+1).Y) - int(img.GrayAt(x, y-1).Y)
				if gx*gx+gy*gy >= edgeThreshold*edgeThreshold {
					edges = append(edges, pt{x - b.Min.X, y - b.Min.Y})
				}
			}
		}
		if len(edges) <= maxEdgePixels || stride >= 4 {
			break
		}
		stride *= 2
	}
	if len(edges) == 0 {
		return 0
	}

	// Hough accumulator over the full theta range. Line angle is theta-90,
	// so horizontal lines land at 0 and vertical ones at -90.
	const thetaSteps = 180
	diag := int(math.Hypot(float64(w), float64(h)))
	rhoSteps := 2*diag + 1

	sin := make([]float64, thetaSteps)
	cos := make([]float64, thetaSteps)
	for t := 0; t < thetaSteps; t++ {
		rad := float64(t) * math.Pi / 180
		sin[t] = math.Sin(rad)
		cos[t] = math.Cos(rad)
	}

	acc := make([]int32, thetaSteps*rhoSteps)
	for _, e := range edges {
		for t := 0; t < thetaSteps; t++ {
			rho := int(float64(e.x)*cos[t]+float64(e.y)*sin[t]) + diag
			if rho >= 0 && rho < rhoSteps {
				acc[t*rhoSteps+rho]++
			}
		}
	}

	votesMin := int32(houghVotesMin / (stride * stride))
	if votesMin < 20 {
		votesMin = 20
	}

	var angles []float64
	for t := 0; t < thetaSteps; t++ {
		for r := 0; r < rhoSteps; r++ {
			if acc[t*rhoSteps+r] >= votesMin {
				angles = append(angles, float64(t)-90)
			}
		}
	}
	if len(angles) == 0 {
		return 0
	}

	// Text lines on an upright page sit in the +/-45 band; when any land
	// there, vertical rules (table borders, column separators) must not
	// pull the median toward +/-90. Only a page with no near-horizontal
	// line at all, a quarter-turned one, is judged on the full range.
	nearHorizontal := angles[:0:0]
	for _, a := range angles {
		if a >= -45 && a <= 45 {
			nearHorizontal = append(nearHorizontal, a)
		}
	}
	if len(nearHorizontal) > 0 {
		angles = nearHorizontal
	}

	sort.Float64s(angles)
	return angles[len(angles)/2]
}

// Correction maps a skew estimate to the orthogonal rotation (degrees,
// clockwise) that uprights the page. Pages within the +/-30 degree band are
// considered upright already.
func Correction(skew float64) int {
	switch {
	case skew > 30:
		return 270
	case skew < -30:
		return 90
	default:
		return 0
	}
}
