package detection

import (
	"fmt"
	"math"

	"github.com/ironsheep/docrect-mcp/internal/geometry"
	"github.com/ironsheep/docrect-mcp/internal/inference"
)

// DecodePoints reads the point model's outputs: an 8-value vector of
// normalised (x, y) pairs in TL, TR, BR, BL order and a 1-value presence
// score. Outputs are matched by element count, so their order does not
// matter; a single 9-value output is read as coordinates then score.
func DecodePoints(outputs []inference.Output, size geometry.Size, presence float64) (geometry.SourcePolygon, bool, error) {
	var poly geometry.SourcePolygon

	var coords []float32
	var score []float32
	for _, out := range outputs {
		switch len(out.Data) {
		case 8:
			coords = out.Data
		case 1:
			score = out.Data
		case 9:
			coords, score = out.Data[:8], out.Data[8:]
		}
	}
	if coords == nil || score == nil {
		return poly, false, fmt.Errorf("point model: expected 8 coordinates and 1 score across %d outputs", len(outputs))
	}

	// Compare in float32 so a score of exactly the threshold is rejected.
	if s := score[0]; s <= float32(presence) || s != s {
		return poly, false, nil
	}

	for i := range poly {
		x := float64(coords[2*i]) * size.Width
		y := float64(coords[2*i+1]) * size.Height
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			return poly, false, nil
		}
		poly[i] = geometry.SourcePoint{X: x, Y: y}
	}
	return poly, true, nil
}
