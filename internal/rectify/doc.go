// Package rectify performs the perspective correction of a document
// quadrilateral into an upright rectangle.
//
// Output height is the shorter of the two vertical edges and width follows
// from a configurable aspect ratio (16:9 by default). The homography from the
// source corners to the output rectangle is solved in pure Go; the warp uses
// the pure Go sampler unless the binary is built with -tags opencv, in which
// case gocv's WarpPerspective does the resampling. Either way sampling is
// bilinear and locations outside the source read as opaque black.
//
// Input is checked before any warp: non-finite or non-convex corners are
// scanerr.ErrInvalidPolygon, collinear corners and singular transforms are
// scanerr.ErrTransformFailure.
package rectify
