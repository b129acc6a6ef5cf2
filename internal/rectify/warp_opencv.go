//go:build opencv

package rectify

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"

	"github.com/ironsheep/docrect-mcp/internal/geometry"
)

const warpBackend = "opencv"

// warpPerspective delegates the warp to OpenCV. The homography is rebuilt
// from the corners by OpenCV itself so both sides agree on conventions.
func warpPerspective(ctx context.Context, src *image.NRGBA, corners geometry.SourcePolygon, _ Homography, w, h int) (*image.NRGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGBA(src)
	if err != nil {
		return nil, fmt.Errorf("convert source: %w", err)
	}
	defer mat.Close()

	srcPts := make([]gocv.Point2f, 4)
	for i, c := range corners {
		srcPts[i] = gocv.Point2f{X: float32(c.X), Y: float32(c.Y)}
	}
	fw, fh := float32(w), float32(h)
	dstPts := []gocv.Point2f{{X: 0, Y: 0}, {X: fw, Y: 0}, {X: fw, Y: fh}, {X: 0, Y: fh}}

	srcVec := gocv.NewPoint2fVectorFromPoints(srcPts)
	defer srcVec.Close()
	dstVec := gocv.NewPoint2fVectorFromPoints(dstPts)
	defer dstVec.Close()

	m := gocv.GetPerspectiveTransform2f(srcVec, dstVec)
	defer m.Close()
	if m.Empty() {
		return nil, fmt.Errorf("opencv returned an empty perspective transform")
	}

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.WarpPerspectiveWithParams(mat, &dst, m, image.Pt(w, h),
		gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{0, 0, 0, 255})
	if dst.Empty() {
		return nil, fmt.Errorf("opencv warp produced no output")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := dst.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert result: %w", err)
	}
	return imaging.Clone(out), nil
}
