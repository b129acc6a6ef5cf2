// Package pipeline is the core facade that front ends talk to.
//
// It ties the image store, corner detector, editing sessions, rectifier and
// code extractor together behind operations that map one to one onto user
// actions: detect-then-seed, per-drag updates, commit, cancel, re-edit,
// stateless rectify and QR extraction. It never renders UI; results are
// display-space corners, file references and plain data.
//
// # Last Request Wins
//
// Detection for an image may be requested again before an earlier request
// has finished (for example when the user reopens the same photo). Every
// Begin call takes a generation number for its image reference; when the
// detection returns and a newer Begin has started for the same reference,
// the stale result is dropped and ErrSuperseded is returned.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/ironsheep/docrect-mcp/internal/codes"
	"github.com/ironsheep/docrect-mcp/internal/detection"
	"github.com/ironsheep/docrect-mcp/internal/geometry"
	"github.com/ironsheep/docrect-mcp/internal/imaging"
	"github.com/ironsheep/docrect-mcp/internal/rectify"
	"github.com/ironsheep/docrect-mcp/internal/scanerr"
	"github.com/ironsheep/docrect-mcp/internal/session"
)

var (
	// ErrSuperseded means a newer detection for the same image started
	// before this one finished; its result was discarded.
	ErrSuperseded = errors.New("superseded by a newer request for the same image")

	// ErrUnknownOutput is returned by Reedit for references it did not
	// produce.
	ErrUnknownOutput = errors.New("not a rectified output of this server")
)

// Detector finds document corners. *detection.Detector satisfies it.
type Detector interface {
	Detect(ctx context.Context, img image.Image) (*detection.Result, error)
}

// Deps are the collaborators a Service drives. Detector may be nil, in
// which case every session starts from the default polygon.
type Deps struct {
	Store     *imaging.Store
	Detector  Detector
	Rectifier *rectify.Rectifier
	Extractor *codes.Extractor
}

// Options tune Service behaviour.
type Options struct {
	// OutputDir receives rectified PNGs.
	OutputDir string

	// InsetStyle picks the default polygon used after a detection miss.
	InsetStyle detection.InsetStyle

	Logger *slog.Logger
}

// lineage is what a rectified output remembers about its origin.
type lineage struct {
	sourceRef string
	corners   geometry.SourcePolygon
}

// Service implements the document scanning operations.
type Service struct {
	store     *imaging.Store
	detector  Detector
	rectifier *rectify.Rectifier
	extractor *codes.Extractor
	sessions  *session.Manager

	outputDir string
	inset     detection.InsetStyle
	logger    *slog.Logger

	genMu       sync.Mutex
	generations map[string]uint64

	outMu   sync.RWMutex
	outputs map[string]lineage
}

// New creates a service. Nil collaborators other than Detector get
// defaults.
func New(deps Deps, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if deps.Store == nil {
		deps.Store = imaging.NewStore()
	}
	if deps.Rectifier == nil {
		deps.Rectifier = rectify.New(rectify.DefaultConfig(), opts.Logger)
	}
	if deps.Extractor == nil {
		deps.Extractor = codes.NewExtractor(opts.Logger)
	}
	return &Service{
		store:       deps.Store,
		detector:    deps.Detector,
		rectifier:   deps.Rectifier,
		extractor:   deps.Extractor,
		sessions:    session.NewManager(),
		outputDir:   opts.OutputDir,
		inset:       opts.InsetStyle,
		logger:      opts.Logger,
		generations: make(map[string]uint64),
		outputs:     make(map[string]lineage),
	}
}

// Load decodes the image at path into the store.
func (s *Service) Load(path string) (*imaging.ImageInfo, error) {
	return imaging.LoadImageInfo(s.store, path)
}

// LoadBase64 decodes base64 image bytes into the store under a memory
// reference.
func (s *Service) LoadBase64(data string) (*imaging.ImageInfo, error) {
	buf, err := s.store.DecodeBase64(data)
	if err != nil {
		return nil, err
	}
	return imaging.LoadImageInfo(s.store, buf.Ref)
}

// BeginResult is the seeded session plus how its corners were obtained.
type BeginResult struct {
	session.Snapshot

	Detection *detection.Result `json:"detection"`

	// DetectionError explains why detection did not run, e.g. models that
	// failed to load. Empty on a normal hit or miss.
	DetectionError string `json:"detection_error,omitempty"`
}

// Begin runs detection on the image at ref and opens an editing session
// seeded with the result, projected into viewport. A miss, or detection
// being unavailable, seeds the default polygon instead.
func (s *Service) Begin(ctx context.Context, ref string, viewport geometry.Rect) (*BeginResult, error) {
	buf, err := s.store.Get(ref)
	if err != nil {
		return nil, err
	}
	gen := s.nextGeneration(ref)

	size := buf.Size()
	out := &BeginResult{Detection: &detection.Result{ModelUsed: detection.ModelNone, Size: size}}

	if s.detector == nil {
		out.DetectionError = "corner detection is not available"
	} else {
		res, err := s.detector.Detect(ctx, buf.Image)
		switch {
		case err == nil:
			out.Detection = res
		case errors.Is(err, scanerr.ErrInitialization):
			// Reported once by the model registry at startup.
			s.logger.Debug("corner detection unavailable", "ref", ref, "error", err)
			out.DetectionError = err.Error()
		default:
			return nil, err
		}
	}

	if !s.isCurrent(ref, gen) {
		s.logger.Debug("dropping stale detection", "ref", ref, "generation", gen)
		return nil, ErrSuperseded
	}

	var seed geometry.SourcePolygon
	if out.Detection.Found() {
		seed = *out.Detection.Polygon
	} else {
		seed = detection.DefaultPolygon(size, s.inset, s.rectifier.AspectRatio())
	}

	sess := s.sessions.Open(ref, size, viewport, seed, session.OriginFor(out.Detection.ModelUsed))
	out.Snapshot = sess.Snapshot()

	s.logger.Info("session opened", "session", sess.ID(), "ref", ref, "origin", out.Origin)
	return out, nil
}

func (s *Service) nextGeneration(ref string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.generations[ref]++
	return s.generations[ref]
}

func (s *Service) isCurrent(ref string, gen uint64) bool {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[ref] == gen
}

// Session returns the current state of an editing session.
func (s *Service) Session(id string) (session.Snapshot, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// MoveCorner places one corner of a session at a display-space point.
func (s *Service) MoveCorner(id string, c geometry.Corner, p geometry.DisplayPoint) (session.Snapshot, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	return sess.MoveCorner(c, p)
}

// DragCorner moves one corner of a session by a display-space delta.
func (s *Service) DragCorner(id string, c geometry.Corner, dx, dy float64) (session.Snapshot, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	return sess.DragCorner(c, dx, dy)
}

// Relayout reprojects a session's corners into a new viewport.
func (s *Service) Relayout(id string, viewport geometry.Rect) (session.Snapshot, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	return sess.Relayout(viewport)
}

// RectifyResult describes a rectified image written to disk.
type RectifyResult struct {
	// OutputRef is the path of the written PNG; it can be loaded, rectified
	// again or passed to Reedit.
	OutputRef string `json:"output_ref"`

	SourceRef     string                 `json:"source_ref"`
	Width         int                    `json:"width"`
	Height        int                    `json:"height"`
	SourceCorners geometry.SourcePolygon `json:"source_corners"`

	// Image is the PNG inline, when requested.
	Image *imaging.EncodedImage `json:"image,omitempty"`
}

// Commit rectifies the session's image with its current corners, writes
// the result and closes the session. On failure the session stays open in
// the Editing state.
func (s *Service) Commit(ctx context.Context, id string, inline bool) (*RectifyResult, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	buf, err := s.store.Get(sess.ImageRef())
	if err != nil {
		return nil, err
	}

	var out *RectifyResult
	_, err = sess.CommitWith(ctx, s.rectifier, buf.Image, func(res *rectify.Result) error {
		var err error
		out, err = s.publish(buf.Ref, res, inline)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.sessions.Remove(id)
	s.logger.Info("session committed", "session", id, "output", out.OutputRef)
	return out, nil
}

// Cancel discards a session without side effects.
func (s *Service) Cancel(id string) error {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return err
	}
	if err := sess.Cancel(); err != nil {
		return err
	}
	s.sessions.Remove(id)
	return nil
}

// Reedit opens a new session on the source image of a previous output,
// seeded with the corners that produced it. No detection runs.
func (s *Service) Reedit(outputRef string, viewport geometry.Rect) (session.Snapshot, error) {
	s.outMu.RLock()
	lin, ok := s.outputs[outputRef]
	s.outMu.RUnlock()
	if !ok {
		return session.Snapshot{}, fmt.Errorf("%s: %w", outputRef, ErrUnknownOutput)
	}

	buf, err := s.store.Get(lin.sourceRef)
	if err != nil {
		return session.Snapshot{}, err
	}
	sess := s.sessions.Open(lin.sourceRef, buf.Size(), viewport, lin.corners, session.OriginReedit)
	return sess.Snapshot(), nil
}

// RectifyOptions control a stateless rectification.
type RectifyOptions struct {
	// Reorder sorts the corners into TL, TR, BR, BL first. Without it they
	// must already be in that order.
	Reorder bool

	// Inline returns the PNG base64 encoded along with the file path.
	Inline bool
}

// Rectify warps the image at ref with explicit source-space corners,
// without a session.
func (s *Service) Rectify(ctx context.Context, ref string, corners []geometry.SourcePoint, opts RectifyOptions) (*RectifyResult, error) {
	buf, err := s.store.Get(ref)
	if err != nil {
		return nil, err
	}
	if opts.Reorder {
		poly, err := geometry.OrderCorners(corners)
		if err != nil {
			return nil, err
		}
		corners = poly.Points()
	}
	res, err := s.rectifier.RectifyPoints(ctx, buf.Image, corners)
	if err != nil {
		return nil, err
	}
	return s.publish(buf.Ref, res, opts.Inline)
}

// publish writes a rectification result and remembers its lineage. The
// lineage is recorded only once everything else has succeeded.
func (s *Service) publish(sourceRef string, res *rectify.Result, inline bool) (*RectifyResult, error) {
	out := &RectifyResult{
		SourceRef:     sourceRef,
		Width:         res.Width,
		Height:        res.Height,
		SourceCorners: res.Corners,
	}
	if inline {
		enc, err := imaging.EncodeBase64(res.Image)
		if err != nil {
			return nil, err
		}
		out.Image = enc
	}

	path, err := imaging.Save(s.outputDir, res.Image, s.logger)
	if err != nil {
		return nil, err
	}
	out.OutputRef = path

	s.outMu.Lock()
	s.outputs[path] = lineage{sourceRef: sourceRef, corners: res.Corners}
	s.outMu.Unlock()
	return out, nil
}

// ExtractCode looks for a QR or Data Matrix code in the image at ref.
// Points in the result are in that image's pixel space.
func (s *Service) ExtractCode(ctx context.Context, ref string) (*codes.Result, error) {
	buf, err := s.store.Get(ref)
	if err != nil {
		return nil, err
	}
	return s.extractor.Extract(ctx, buf.Image)
}

// Preview renders a session's current outline over its source image.
func (s *Service) Preview(id string, opts imaging.OverlayOptions) (*imaging.PreviewResult, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	buf, err := s.store.Get(sess.ImageRef())
	if err != nil {
		return nil, err
	}
	return imaging.DrawPolygonOverlay(buf.Image, sess.Snapshot().SourceCorners, opts)
}
