package geometry

import "math"

// Rect is an axis-aligned rectangle in display space, typically the
// viewport the image is rendered into.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DisplayLayout describes where a source image lands inside a viewport
// under contain (aspect-fit) semantics.
//
// X, Y, Width and Height give the rectangle actually covered by the image,
// already including the viewport origin and the centring offset on the
// unconstrained axis. Scale is display pixels per source pixel.
type DisplayLayout struct {
	Viewport Rect    `json:"viewport"`
	Source   Size    `json:"source"`
	Scale    float64 `json:"scale"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
}

// ContainLayout fits an image of the given size into viewport.
//
// When the viewport or the source has no area (e.g. before the UI has laid
// out) the result is the identity layout: scale 1 and no offset, so mapping
// returns points unchanged instead of dividing by zero.
func ContainLayout(viewport Rect, source Size) DisplayLayout {
	if viewport.Width <= 0 || viewport.Height <= 0 || source.Empty() {
		return DisplayLayout{
			Viewport: viewport,
			Source:   source,
			Scale:    1,
			Width:    source.Width,
			Height:   source.Height,
		}
	}

	scale := math.Min(viewport.Width/source.Width, viewport.Height/source.Height)
	w := source.Width * scale
	h := source.Height * scale

	return DisplayLayout{
		Viewport: viewport,
		Source:   source,
		Scale:    scale,
		X:        viewport.X + (viewport.Width-w)/2,
		Y:        viewport.Y + (viewport.Height-h)/2,
		Width:    w,
		Height:   h,
	}
}

// Degenerate reports whether the layout is the identity fallback.
func (l DisplayLayout) Degenerate() bool {
	return l.Viewport.Width <= 0 || l.Viewport.Height <= 0 || l.Source.Empty()
}

// PointToDisplay maps one source point into the viewport.
func (l DisplayLayout) PointToDisplay(p SourcePoint) DisplayPoint {
	if l.Degenerate() {
		return DisplayPoint{X: p.X, Y: p.Y}
	}
	return DisplayPoint{X: p.X*l.Scale + l.X, Y: p.Y*l.Scale + l.Y}
}

// PointToSource maps one viewport point back into source pixels.
func (l DisplayLayout) PointToSource(p DisplayPoint) SourcePoint {
	if l.Degenerate() || l.Scale == 0 {
		return SourcePoint{X: p.X, Y: p.Y}
	}
	return SourcePoint{X: (p.X - l.X) / l.Scale, Y: (p.Y - l.Y) / l.Scale}
}

// ToDisplay maps a source polygon into the viewport.
func (l DisplayLayout) ToDisplay(poly SourcePolygon) DisplayPolygon {
	var out DisplayPolygon
	for i, p := range poly {
		out[i] = l.PointToDisplay(p)
	}
	return out
}

// ToSource maps a display polygon back into source pixels.
func (l DisplayLayout) ToSource(poly DisplayPolygon) SourcePolygon {
	var out SourcePolygon
	for i, p := range poly {
		out[i] = l.PointToSource(p)
	}
	return out
}

// ToDisplay converts a source polygon for an image of sourceSize rendered
// into viewport.
func ToDisplay(poly SourcePolygon, sourceSize Size, viewport Rect) DisplayPolygon {
	return ContainLayout(viewport, sourceSize).ToDisplay(poly)
}

// ToSource is the inverse of ToDisplay.
func ToSource(poly DisplayPolygon, sourceSize Size, viewport Rect) SourcePolygon {
	return ContainLayout(viewport, sourceSize).ToSource(poly)
}
