package detection

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/ironsheep/docrect-mcp/internal/geometry"
	"github.com/ironsheep/docrect-mcp/internal/inference"
	"github.com/ironsheep/docrect-mcp/internal/preprocess"
	"github.com/ironsheep/docrect-mcp/internal/scanerr"
)

// Model identifies which model produced a detection.
type Model int

const (
	ModelNone Model = iota
	ModelHeatmap
	ModelPoint
)

func (m Model) String() string {
	switch m {
	case ModelHeatmap:
		return "heatmap"
	case ModelPoint:
		return "point"
	default:
		return "none"
	}
}

// MarshalText renders the model name in JSON responses.
func (m Model) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText parses a name written by MarshalText.
func (m *Model) UnmarshalText(b []byte) error {
	for _, c := range []Model{ModelNone, ModelHeatmap, ModelPoint} {
		if c.String() == string(b) {
			*m = c
			return nil
		}
	}
	return fmt.Errorf("unknown model: %q", b)
}

// Result is the outcome of one detection.
type Result struct {
	// Polygon is nil when ModelUsed is ModelNone.
	Polygon *geometry.SourcePolygon `json:"polygon,omitempty"`

	ModelUsed Model `json:"model_used"`

	// Size is the source image size the polygon refers to.
	Size geometry.Size `json:"size"`
}

// Found reports whether a polygon was detected.
func (r *Result) Found() bool {
	return r != nil && r.Polygon != nil && r.ModelUsed != ModelNone
}

// Config holds the detection thresholds.
type Config struct {
	// HeatmapThreshold is the per-pixel confidence a heatmap value must
	// exceed to belong to a corner region.
	HeatmapThreshold float64

	// PresenceThreshold is the point-model score at or below which the
	// document is considered absent.
	PresenceThreshold float64
}

// DefaultConfig returns the thresholds the models were tuned with.
func DefaultConfig() Config {
	return Config{
		HeatmapThreshold:  0.3,
		PresenceThreshold: 0.4,
	}
}

// SessionProvider hands out cached inference sessions.
// *inference.Registry satisfies it.
type SessionProvider interface {
	Session(ctx context.Context, id inference.ModelID) (inference.Session, error)
}

// Detector runs the heatmap-then-point detection chain.
type Detector struct {
	models SessionProvider
	cfg    Config
	logger *slog.Logger
}

// NewDetector creates a detector over the given session provider.
// Zero thresholds in cfg are replaced with their defaults.
func NewDetector(models SessionProvider, cfg Config, logger *slog.Logger) *Detector {
	def := DefaultConfig()
	if cfg.HeatmapThreshold <= 0 {
		cfg.HeatmapThreshold = def.HeatmapThreshold
	}
	if cfg.PresenceThreshold <= 0 {
		cfg.PresenceThreshold = def.PresenceThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{models: models, cfg: cfg, logger: logger}
}

// Detect finds the document corners in img.
func (d *Detector) Detect(ctx context.Context, img image.Image) (*Result, error) {
	if d.models == nil {
		return nil, scanerr.Newf(scanerr.ErrInitialization, "detect", "no models configured")
	}

	tensor, err := preprocess.Preprocess(img)
	if err != nil {
		return nil, scanerr.New(scanerr.ErrDecode, "preprocess", err)
	}
	size := tensor.OriginalSize

	heat, err := d.models.Session(ctx, inference.HeatmapModel)
	if err != nil {
		return nil, err
	}

	if poly, ok := d.runPass(ctx, "heatmap", func() (geometry.SourcePolygon, bool, error) {
		return d.detectHeatmap(ctx, heat, tensor)
	}); ok {
		return &Result{Polygon: &poly, ModelUsed: ModelHeatmap, Size: size}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	point, err := d.models.Session(ctx, inference.PointModel)
	if err != nil {
		return nil, err
	}

	if poly, ok := d.runPass(ctx, "point", func() (geometry.SourcePolygon, bool, error) {
		return d.detectPoint(ctx, point, tensor)
	}); ok {
		return &Result{Polygon: &poly, ModelUsed: ModelPoint, Size: size}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Result{ModelUsed: ModelNone, Size: size}, nil
}

// runPass executes one model pass. Failures, including panics from the
// runtime, are logged and reported as a miss.
func (d *Detector) runPass(ctx context.Context, name string, pass func() (geometry.SourcePolygon, bool, error)) (geometry.SourcePolygon, bool) {
	var (
		poly geometry.SourcePolygon
		ok   bool
	)
	err := scanerr.Guard(scanerr.ErrTransformFailure, name+" inference", func() error {
		var err error
		poly, ok, err = pass()
		return err
	})
	if err != nil {
		if ctx.Err() == nil {
			d.logger.Warn("detection pass failed", "model", name, "error", err)
		}
		return poly, false
	}
	if !ok {
		d.logger.Debug("detection pass missed", "model", name)
	}
	return poly, ok
}

func (d *Detector) detectHeatmap(ctx context.Context, s inference.Session, t *preprocess.Tensor) (geometry.SourcePolygon, bool, error) {
	outputs, err := s.Run(ctx, t.Data, t.Shape())
	if err != nil {
		return geometry.SourcePolygon{}, false, err
	}
	if len(outputs) == 0 {
		return geometry.SourcePolygon{}, false, nil
	}
	return DecodeHeatmap(outputs[0], t.OriginalSize, d.cfg.HeatmapThreshold)
}

func (d *Detector) detectPoint(ctx context.Context, s inference.Session, t *preprocess.Tensor) (geometry.SourcePolygon, bool, error) {
	outputs, err := s.Run(ctx, t.Data, t.Shape())
	if err != nil {
		return geometry.SourcePolygon{}, false, err
	}
	return DecodePoints(outputs, t.OriginalSize, d.cfg.PresenceThreshold)
}
