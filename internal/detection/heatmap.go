package detection

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/disintegration/imaging"

	"github.com/ironsheep/docrect-mcp/internal/geometry"
	"github.com/ironsheep/docrect-mcp/internal/inference"
)

// DecodeHeatmap turns a [1, C, H, W] or [C, H, W] heatmap into a polygon in
// source space. The first four channels are the TL, TR, BR, BL corner maps.
// It returns false when any corner map has no region above threshold.
func DecodeHeatmap(out inference.Output, size geometry.Size, threshold float64) (geometry.SourcePolygon, bool, error) {
	var poly geometry.SourcePolygon

	if len(out.Shape) < 3 {
		return poly, false, fmt.Errorf("heatmap output %q: unexpected shape %v", out.Name, out.Shape)
	}
	h := int(out.Shape[len(out.Shape)-2])
	w := int(out.Shape[len(out.Shape)-1])
	if h <= 0 || w <= 0 {
		return poly, false, fmt.Errorf("heatmap output %q: unexpected shape %v", out.Name, out.Shape)
	}
	plane := h * w
	if len(out.Data) < 4*plane {
		return poly, false, fmt.Errorf("heatmap output %q: %d values, need %d for 4 channels", out.Name, len(out.Data), 4*plane)
	}

	dstW := int(math.Round(size.Width))
	dstH := int(math.Round(size.Height))
	if dstW <= 0 || dstH <= 0 {
		return poly, false, fmt.Errorf("heatmap: empty source size %vx%v", size.Width, size.Height)
	}

	level := thresholdLevel(threshold)
	for c := 0; c < 4; c++ {
		channel := channelImage(out.Data[c*plane:(c+1)*plane], w, h)
		resized := imaging.Resize(channel, dstW, dstH, imaging.Linear)
		mask := binarize(resized, level)

		cx, cy, ok := largestRegionCentroid(mask)
		if !ok {
			return poly, false, nil
		}
		poly[c] = geometry.SourcePoint{X: cx, Y: cy}
	}
	return poly, true, nil
}

// thresholdLevel converts a [0,1] confidence threshold into the lowest 8-bit
// level that passes. Values strictly greater than the threshold pass.
func thresholdLevel(threshold float64) uint8 {
	if threshold < 0 {
		threshold = 0
	}
	v := math.Floor(threshold*255) + 1
	if v > 255 {
		v = 255
	}
	return uint8(v)
}

var (
	maskOn  = color.RGBA{255, 255, 255, 255}
	maskOff = color.RGBA{0, 0, 0, 255}
)

// binarize turns a gray image into a white-on-black mask of the pixels at
// or above level. It compares the channel directly: segment.Threshold ranks
// pixels through a float luminance sum that truncates some gray levels one
// step low.
func binarize(img image.Image, level uint8) *image.RGBA {
	return adjust.Apply(img, func(c color.RGBA) color.RGBA {
		if c.R >= level {
			return maskOn
		}
		return maskOff
	})
}

// channelImage quantises one float confidence plane into an 8-bit gray
// image, clamping to [0,1].
func channelImage(data []float32, w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range data {
		switch {
		case v != v || v <= 0: // NaN or negative
			img.Pix[i] = 0
		case v >= 1:
			img.Pix[i] = 255
		default:
			img.Pix[i] = uint8(math.Round(float64(v) * 255))
		}
	}
	return img
}

// largestRegionCentroid finds the largest 8-connected white region in mask
// and returns its centroid (first moments over zeroth moment).
func largestRegionCentroid(mask *image.RGBA) (float64, float64, bool) {
	b := mask.Bounds()
	width, height := b.Dx(), b.Dy()
	visited := make([]bool, width*height)

	var (
		bestCount          int
		bestSumX, bestSumY float64
	)

	stack := make([]int, 0, 64)
	for start := range visited {
		if visited[start] || mask.Pix[(start/width)*mask.Stride+4*(start%width)] == 0 {
			continue
		}

		// Iterative flood fill; a recursive one overflows on large blobs.
		var count int
		var sumX, sumY float64
		stack = append(stack[:0], start)
		visited[start] = true
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%width, i/width
			count++
			sumX += float64(x)
			sumY += float64(y)

			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= height {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if (dx == 0 && dy == 0) || nx < 0 || nx >= width {
						continue
					}
					j := ny*width + nx
					if visited[j] || mask.Pix[ny*mask.Stride+4*nx] == 0 {
						continue
					}
					visited[j] = true
					stack = append(stack, j)
				}
			}
		}

		if count > bestCount {
			bestCount, bestSumX, bestSumY = count, sumX, sumY
		}
	}

	if bestCount == 0 {
		return 0, 0, false
	}
	n := float64(bestCount)
	return bestSumX/n + float64(b.Min.X), bestSumY/n + float64(b.Min.Y), true
}
