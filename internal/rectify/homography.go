package rectify

import (
	"math"

	"github.com/ironsheep/docrect-mcp/internal/geometry"
	"github.com/ironsheep/docrect-mcp/internal/scanerr"
)

// pivotEpsilon is the smallest pivot accepted by the 8x8 solve.
const pivotEpsilon = 1e-12

// Homography is a row-major 3x3 projective transform with h[8] normalised
// to 1 where possible.
type Homography [9]float64

// SolveHomography returns the transform mapping src[i] onto dst[i].
//
// It sets up the usual 8x8 linear system with h22 = 1 and solves it by
// Gauss-Jordan elimination with partial pivoting. A vanishing pivot or a
// non-finite solution is reported as ErrTransformFailure.
func SolveHomography(src, dst [4]geometry.SourcePoint) (Homography, error) {
	var a [8][8]float64
	var b [8]float64
	for i := 0; i < 4; i++ {
		X, Y := src[i].X, src[i].Y
		x, y := dst[i].X, dst[i].Y
		r := 2 * i

		a[r] = [8]float64{X, Y, 1, 0, 0, 0, -X * x, -Y * x}
		b[r] = x

		a[r+1] = [8]float64{0, 0, 0, X, Y, 1, -X * y, -Y * y}
		b[r+1] = y
	}

	h, ok := solve8x8(a, b)
	if !ok {
		return Homography{}, scanerr.Newf(scanerr.ErrTransformFailure, "homography", "singular system")
	}
	H := Homography{h[0], h[1], h[2], h[3], h[4], h[5], h[6], h[7], 1}
	if !H.finite() {
		return Homography{}, scanerr.Newf(scanerr.ErrTransformFailure, "homography", "non-finite solution")
	}
	return H, nil
}

func solve8x8(m [8][8]float64, v [8]float64) ([8]float64, bool) {
	for col := 0; col < 8; col++ {
		pivot := col
		maxAbs := math.Abs(m[col][col])
		for r := col + 1; r < 8; r++ {
			if a := math.Abs(m[r][col]); a > maxAbs {
				maxAbs, pivot = a, r
			}
		}
		if maxAbs < pivotEpsilon {
			return [8]float64{}, false
		}
		if pivot != col {
			m[col], m[pivot] = m[pivot], m[col]
			v[col], v[pivot] = v[pivot], v[col]
		}

		div := m[col][col]
		for c := col; c < 8; c++ {
			m[col][c] /= div
		}
		v[col] /= div

		for r := 0; r < 8; r++ {
			if r == col || m[r][col] == 0 {
				continue
			}
			f := m[r][col]
			for c := col; c < 8; c++ {
				m[r][c] -= f * m[col][c]
			}
			v[r] -= f * v[col]
		}
	}
	return v, true
}

// Apply maps (x, y) through h. ok is false when the point maps to infinity.
func (h Homography) Apply(x, y float64) (float64, float64, bool) {
	w := h[6]*x + h[7]*y + h[8]
	if w == 0 {
		return 0, 0, false
	}
	return (h[0]*x + h[1]*y + h[2]) / w, (h[3]*x + h[4]*y + h[5]) / w, true
}

// Det returns the determinant.
func (h Homography) Det() float64 {
	return h[0]*(h[4]*h[8]-h[5]*h[7]) -
		h[1]*(h[3]*h[8]-h[5]*h[6]) +
		h[2]*(h[3]*h[7]-h[4]*h[6])
}

// Invert returns the inverse transform, normalised so the last entry is 1
// when it is non-zero.
func (h Homography) Invert() (Homography, error) {
	det := h.Det()
	if math.Abs(det) < pivotEpsilon || math.IsNaN(det) || math.IsInf(det, 0) {
		return Homography{}, scanerr.Newf(scanerr.ErrTransformFailure, "homography", "not invertible (det=%g)", det)
	}

	inv := Homography{
		h[4]*h[8] - h[5]*h[7], h[2]*h[7] - h[1]*h[8], h[1]*h[5] - h[2]*h[4],
		h[5]*h[6] - h[3]*h[8], h[0]*h[8] - h[2]*h[6], h[2]*h[3] - h[0]*h[5],
		h[3]*h[7] - h[4]*h[6], h[1]*h[6] - h[0]*h[7], h[0]*h[4] - h[1]*h[3],
	}
	scale := 1 / det
	if inv[8] != 0 {
		scale = 1 / inv[8]
	}
	for i := range inv {
		inv[i] *= scale
	}
	if !inv.finite() {
		return Homography{}, scanerr.Newf(scanerr.ErrTransformFailure, "homography", "non-finite inverse")
	}
	return inv, nil
}

func (h Homography) finite() bool {
	for _, v := range h {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
