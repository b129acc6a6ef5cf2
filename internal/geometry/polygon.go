package geometry

import (
	"fmt"
	"math"
	"sort"

	"github.com/ironsheep/docrect-mcp/internal/scanerr"
)

// Corner indexes a polygon vertex.
type Corner int

const (
	TopLeft Corner = iota
	TopRight
	BottomRight
	BottomLeft
)

var cornerNames = [4]string{"top-left", "top-right", "bottom-right", "bottom-left"}

func (c Corner) String() string {
	if c < TopLeft || c > BottomLeft {
		return fmt.Sprintf("corner(%d)", int(c))
	}
	return cornerNames[c]
}

// ParseCorner accepts a corner name ("top-left") or index ("0".."3").
func ParseCorner(s string) (Corner, error) {
	for i, name := range cornerNames {
		if s == name || s == fmt.Sprint(i) {
			return Corner(i), nil
		}
	}
	return 0, fmt.Errorf("unknown corner: %q", s)
}

// Size is a width/height pair in pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether either dimension is zero or negative.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// SourcePoint is a location in the source image's native pixel space.
type SourcePoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DisplayPoint is a location in viewport (rendered) space.
type DisplayPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SourcePolygon is a document outline in source space, ordered TL, TR, BR, BL.
type SourcePolygon [4]SourcePoint

// DisplayPolygon is a document outline in display space, ordered TL, TR, BR, BL.
type DisplayPolygon [4]DisplayPoint

// NewSourcePolygon builds a polygon from a slice, which must hold exactly
// four points.
func NewSourcePolygon(pts []SourcePoint) (SourcePolygon, error) {
	var poly SourcePolygon
	if len(pts) != 4 {
		return poly, scanerr.Newf(scanerr.ErrInvalidPolygon, "polygon", "need 4 corners, got %d", len(pts))
	}
	copy(poly[:], pts)
	return poly, nil
}

// NewDisplayPolygon builds a polygon from a slice, which must hold exactly
// four points.
func NewDisplayPolygon(pts []DisplayPoint) (DisplayPolygon, error) {
	var poly DisplayPolygon
	if len(pts) != 4 {
		return poly, scanerr.Newf(scanerr.ErrInvalidPolygon, "polygon", "need 4 corners, got %d", len(pts))
	}
	copy(poly[:], pts)
	return poly, nil
}

// Points returns the vertices as a slice.
func (p SourcePolygon) Points() []SourcePoint {
	return p[:]
}

// Distance returns the Euclidean distance between two source points.
func Distance(a, b SourcePoint) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Area returns the unsigned shoelace area of the polygon.
func (p SourcePolygon) Area() float64 {
	var sum float64
	for i := range p {
		j := (i + 1) % len(p)
		sum += p[i].X*p[j].Y - p[j].X*p[i].Y
	}
	return math.Abs(sum) / 2
}

// IsFinite reports whether every coordinate is a finite number.
func (p SourcePolygon) IsFinite() bool {
	for _, pt := range p {
		if math.IsNaN(pt.X) || math.IsInf(pt.X, 0) || math.IsNaN(pt.Y) || math.IsInf(pt.Y, 0) {
			return false
		}
	}
	return true
}

// IsConvex reports whether the vertices, in order, form a strictly convex
// simple quadrilateral. Self-intersecting ("bow tie") and concave outlines
// return false, as do outlines with collinear neighbours.
func (p SourcePolygon) IsConvex() bool {
	var sign float64
	for i := range p {
		a := p[i]
		b := p[(i+1)%4]
		c := p[(i+2)%4]
		cross := (b.X-a.X)*(c.Y-b.Y) - (b.Y-a.Y)*(c.X-b.X)
		if cross == 0 {
			return false
		}
		if sign == 0 {
			sign = cross
			continue
		}
		if (cross > 0) != (sign > 0) {
			return false
		}
	}
	return true
}

// OrderCorners sorts four arbitrary points into TL, TR, BR, BL order.
//
// Points are sorted by angle around their centroid starting from the
// top-left quadrant, which is stable for rotated and perspective-skewed
// quadrilaterals where the x+y / x-y heuristic breaks down.
func OrderCorners(pts []SourcePoint) (SourcePolygon, error) {
	poly, err := NewSourcePolygon(pts)
	if err != nil {
		return poly, err
	}

	var cx, cy float64
	for _, pt := range poly {
		cx += pt.X / 4
		cy += pt.Y / 4
	}

	sorted := poly
	sort.Slice(sorted[:], func(i, j int) bool {
		return math.Atan2(sorted[i].Y-cy, sorted[i].X-cx) < math.Atan2(sorted[j].Y-cy, sorted[j].X-cx)
	})

	// With y pointing down, ascending atan2 walks clockwise on screen:
	// the point with the smallest x+y among them is the top-left start.
	start := 0
	for i, pt := range sorted {
		if pt.X+pt.Y < sorted[start].X+sorted[start].Y {
			start = i
		}
	}

	var out SourcePolygon
	for i := range out {
		out[i] = sorted[(start+i)%4]
	}
	return out, nil
}

// InsetPolygon returns the axis-aligned rectangle inset from the image
// bounds by fx of the width on the left and right and fy of the height on
// the top and bottom.
func InsetPolygon(size Size, fx, fy float64) SourcePolygon {
	left := size.Width * fx
	right := size.Width * (1 - fx)
	top := size.Height * fy
	bottom := size.Height * (1 - fy)
	return SourcePolygon{
		{X: left, Y: top},
		{X: right, Y: top},
		{X: right, Y: bottom},
		{X: left, Y: bottom},
	}
}
