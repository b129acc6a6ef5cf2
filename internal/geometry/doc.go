// Package geometry holds the point, polygon and layout types shared by the
// document pipeline, and the coordinate mapper that converts between them.
//
// # Coordinate Spaces
//
// Two pixel spaces are in play and they are deliberately separate types:
//
//   - Source space (SourcePoint, SourcePolygon): native pixel coordinates of
//     the decoded image. Detection output and rectifier input live here.
//   - Display space (DisplayPoint, DisplayPolygon): coordinates inside the
//     viewport where the image is rendered with "contain" fit. Drag gestures
//     live here.
//
// A value can only move between spaces through DisplayLayout.ToDisplay and
// DisplayLayout.ToSource (or the package-level ToDisplay/ToSource wrappers),
// so mixing the two is a compile error rather than a runtime bug.
//
// # Corner Order
//
// Polygons always hold exactly four points in top-left, top-right,
// bottom-right, bottom-left order. Index with the Corner constants.
// OrderCorners can sort four arbitrary points into that order.
//
// # Contain Fit
//
// The image is scaled by min(viewportW/imageW, viewportH/imageH) and centred
// on the axis with spare room. A zero-sized viewport (before the first layout
// pass) yields an identity layout that leaves points untouched.
package geometry
