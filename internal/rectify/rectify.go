package rectify

import (
	"context"
	"image"
	"log/slog"
	"math"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/docrect-mcp/internal/geometry"
	"github.com/ironsheep/docrect-mcp/internal/scanerr"
)

// DefaultAspectRatio is the output width:height ratio used when none is
// configured.
const DefaultAspectRatio = 16.0 / 9.0

// minArea is the triangle area, in square pixels, below which corners are
// treated as collinear.
const minArea = 1e-6

// Config controls output framing.
type Config struct {
	// AspectRatio is width divided by height of the rectified output.
	AspectRatio float64
}

// DefaultConfig returns a 16:9 configuration.
func DefaultConfig() Config {
	return Config{AspectRatio: DefaultAspectRatio}
}

// Result is a rectified image together with the geometry that produced it.
type Result struct {
	Image  *image.NRGBA
	Width  int
	Height int

	// Corners are the source-space corners that were rectified, kept so a
	// new editing session can start from them without re-detection.
	Corners geometry.SourcePolygon

	// Homography maps source pixels onto output pixels.
	Homography Homography
}

// Rectifier warps a quadrilateral region of an image into an upright
// rectangle.
type Rectifier struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a rectifier. A non-positive aspect ratio falls back to 16:9.
func New(cfg Config, logger *slog.Logger) *Rectifier {
	if cfg.AspectRatio <= 0 || math.IsNaN(cfg.AspectRatio) || math.IsInf(cfg.AspectRatio, 0) {
		cfg.AspectRatio = DefaultAspectRatio
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Rectifier{cfg: cfg, logger: logger}
}

// AspectRatio returns the configured output ratio.
func (r *Rectifier) AspectRatio() float64 {
	return r.cfg.AspectRatio
}

// Validate checks that corners describe something a homography can be
// solved for: finite coordinates, non-zero area and a convex outline in
// TL, TR, BR, BL order.
func Validate(corners geometry.SourcePolygon) error {
	if !corners.IsFinite() {
		return scanerr.Newf(scanerr.ErrInvalidPolygon, "rectify", "corner coordinates must be finite")
	}
	if collapsed(corners) {
		return scanerr.Newf(scanerr.ErrTransformFailure, "rectify", "polygon has zero area")
	}
	if !corners.IsConvex() {
		return scanerr.Newf(scanerr.ErrInvalidPolygon, "rectify", "corners must form a convex quadrilateral in top-left, top-right, bottom-right, bottom-left order")
	}
	return nil
}

// collapsed reports whether all four corners lie on one line (or point).
// Every triangle of corners is checked rather than the shoelace area, which
// is also zero for a symmetric bow tie.
func collapsed(p geometry.SourcePolygon) bool {
	for i := 0; i < 4; i++ {
		a, b, c := p[i], p[(i+1)%4], p[(i+2)%4]
		cross := (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
		if math.Abs(cross)/2 >= minArea {
			return false
		}
	}
	return true
}

// OutputSize returns the rectified dimensions for corners.
//
// Height is the shorter of the two vertical edges, so perspective skew never
// inflates the output; width follows from the aspect ratio.
func OutputSize(corners geometry.SourcePolygon, aspect float64) (int, int) {
	left := geometry.Distance(corners[geometry.TopLeft], corners[geometry.BottomLeft])
	right := geometry.Distance(corners[geometry.TopRight], corners[geometry.BottomRight])
	h := math.Round(math.Min(left, right))
	w := math.Round(h * aspect)
	return int(w), int(h)
}

// RectifyPoints is Rectify for callers holding a point slice. Anything
// other than four points is rejected with ErrInvalidPolygon.
func (r *Rectifier) RectifyPoints(ctx context.Context, img image.Image, pts []geometry.SourcePoint) (*Result, error) {
	corners, err := geometry.NewSourcePolygon(pts)
	if err != nil {
		return nil, err
	}
	return r.Rectify(ctx, img, corners)
}

// Rectify warps the region of img bounded by corners into a new image.
// The source image is not modified.
func (r *Rectifier) Rectify(ctx context.Context, img image.Image, corners geometry.SourcePolygon) (*Result, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, scanerr.Newf(scanerr.ErrDecode, "rectify", "empty source image")
	}
	if err := Validate(corners); err != nil {
		return nil, err
	}

	w, h := OutputSize(corners, r.cfg.AspectRatio)
	if w < 1 || h < 1 {
		return nil, scanerr.Newf(scanerr.ErrTransformFailure, "rectify", "output would be %dx%d", w, h)
	}

	fw, fh := float64(w), float64(h)
	target := [4]geometry.SourcePoint{{X: 0, Y: 0}, {X: fw, Y: 0}, {X: fw, Y: fh}, {X: 0, Y: fh}}
	H, err := SolveHomography(corners, target)
	if err != nil {
		return nil, err
	}

	src, ok := img.(*image.NRGBA)
	if !ok || src.Bounds().Min != (image.Point{}) {
		src = imaging.Clone(img)
	}

	var out *image.NRGBA
	err = scanerr.Guard(scanerr.ErrTransformFailure, "warp", func() error {
		var err error
		out, err = warpPerspective(ctx, src, corners, H, w, h)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("rectified",
		"src_width", src.Bounds().Dx(), "src_height", src.Bounds().Dy(),
		"width", w, "height", h, "backend", warpBackend)

	return &Result{
		Image:      out,
		Width:      w,
		Height:     h,
		Corners:    corners,
		Homography: H,
	}, nil
}
