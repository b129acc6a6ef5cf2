// Package detection locates the four corners of a document in a photograph.
//
// Two independently trained models compete in a fixed priority order:
//
//  1. Heatmap model: four per-corner confidence maps. Each map is resized to
//     the source resolution, thresholded, and the centroid of its largest
//     connected region becomes that corner. All four maps must produce a
//     region or the pass is a miss.
//  2. Point model: eight normalised coordinates plus a presence score. A
//     score at or below the presence threshold is a miss; otherwise the
//     coordinates are scaled by the source size.
//
// The heatmap model is tried first because it is more precise when it
// fires; the point model only runs after a heatmap miss.
//
// # Outcomes
//
// Detect reports which model produced the polygon through Result.ModelUsed.
// ModelNone, with a nil polygon, is a normal outcome and never an error:
// callers seed DefaultPolygon instead. Errors are reserved for
// initialization failures (models unavailable), undecodable input and
// context cancellation. An inference failure inside one pass is logged and
// counted as a miss for that pass.
//
// # Coordinate System
//
// Result polygons are in source pixel space, ordered top-left, top-right,
// bottom-right, bottom-left, with the origin at the image's top-left corner.
//
// # Thread Safety
//
// A Detector holds no per-call state. Detect may run concurrently for
// different images; each call allocates its own tensors and masks.
package detection
