//go:build !opencv

package rectify

import (
	"context"
	"image"
	"math"

	"github.com/ironsheep/docrect-mcp/internal/geometry"
)

const warpBackend = "native"

// ctxCheckRows is how often, in output rows, the warp polls for cancellation.
const ctxCheckRows = 32

// warpPerspective fills a w x h image by mapping each output pixel back into
// src through the inverse of fwd and sampling bilinearly. Samples that fall
// outside src read as opaque black.
func warpPerspective(ctx context.Context, src *image.NRGBA, _ geometry.SourcePolygon, fwd Homography, w, h int) (*image.NRGBA, error) {
	inv, err := fwd.Invert()
	if err != nil {
		return nil, err
	}

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		if y%ctxCheckRows == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+4]
			sx, sy, ok := inv.Apply(float64(x), float64(y))
			if !ok {
				px[0], px[1], px[2], px[3] = 0, 0, 0, 255
				continue
			}
			sampleBilinear(src, sx, sy, px)
		}
	}
	return out, nil
}

// sampleBilinear writes the interpolated colour at (x, y) into dst. Each of
// the four neighbours that lies outside src contributes opaque black.
func sampleBilinear(src *image.NRGBA, x, y float64, dst []uint8) {
	b := src.Bounds()
	if x <= -1 || y <= -1 || x >= float64(b.Dx()) || y >= float64(b.Dy()) {
		dst[0], dst[1], dst[2], dst[3] = 0, 0, 0, 255
		return
	}

	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := x - float64(x0)
	fy := y - float64(y0)

	var acc [4]float64
	weights := [4]float64{(1 - fx) * (1 - fy), fx * (1 - fy), (1 - fx) * fy, fx * fy}
	offsets := [4][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	for i, o := range offsets {
		wgt := weights[i]
		if wgt == 0 {
			continue
		}
		px, py := x0+o[0], y0+o[1]
		if px < 0 || py < 0 || px >= b.Dx() || py >= b.Dy() {
			acc[3] += 255 * wgt
			continue
		}
		p := src.Pix[py*src.Stride+px*4 : py*src.Stride+px*4+4]
		acc[0] += float64(p[0]) * wgt
		acc[1] += float64(p[1]) * wgt
		acc[2] += float64(p[2]) * wgt
		acc[3] += float64(p[3]) * wgt
	}
	for i := range acc {
		dst[i] = clamp8(acc[i])
	}
}

func clamp8(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
