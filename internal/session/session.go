// Package session implements the corner editing state machine that sits
// between detection and rectification.
//
// A Session holds the live display-space polygon together with the layout
// it was computed against. Drags touch exactly one corner and never reorder
// or validate the outline; the rectifier judges the polygon at commit time.
// Only Commit does heavy work, and at most one commit runs per session.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/ironsheep/docrect-mcp/internal/detection"
	"github.com/ironsheep/docrect-mcp/internal/geometry"
	"github.com/ironsheep/docrect-mcp/internal/rectify"
	"github.com/ironsheep/docrect-mcp/internal/scanerr"
)

var (
	// ErrBusy is returned for edits or commits while a commit is running.
	ErrBusy = errors.New("session is committing")

	// ErrClosed is returned once a session is committed or cancelled.
	ErrClosed = errors.New("session is closed")

	// ErrNotFound is returned by Manager for unknown session ids.
	ErrNotFound = errors.New("session not found")
)

// State is a session lifecycle stage.
type State int

const (
	Seeded State = iota
	Editing
	Committing
	Committed
	Cancelled
)

var stateNames = [...]string{"seeded", "editing", "committing", "committed", "cancelled"}

func (s State) String() string {
	if s < Seeded || s > Cancelled {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText renders the state name in JSON responses.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a name written by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state: %q", b)
}

// Origin records where a session's initial corners came from.
type Origin string

const (
	OriginHeatmap Origin = "heatmap"
	OriginPoint   Origin = "point"
	OriginDefault Origin = "default"
	OriginReedit  Origin = "reedit"
)

// OriginFor maps a detection outcome to the origin of the seeded corners.
func OriginFor(m detection.Model) Origin {
	switch m {
	case detection.ModelHeatmap:
		return OriginHeatmap
	case detection.ModelPoint:
		return OriginPoint
	default:
		return OriginDefault
	}
}

// Rectifier is the commit backend. *rectify.Rectifier satisfies it.
type Rectifier interface {
	Rectify(ctx context.Context, img image.Image, corners geometry.SourcePolygon) (*rectify.Result, error)
}

// Snapshot is a consistent copy of a session's observable state.
type Snapshot struct {
	ID            string                  `json:"session_id"`
	ImageRef      string                  `json:"image_ref"`
	State         State                   `json:"state"`
	Origin        Origin                  `json:"origin"`
	Dirty         bool                    `json:"dirty"`
	Corners       geometry.DisplayPolygon `json:"corners"`
	SourceCorners geometry.SourcePolygon  `json:"source_corners"`
	Layout        geometry.DisplayLayout  `json:"layout"`
}

// Session is one corner editing interaction against one source image.
type Session struct {
	id       string
	imageRef string
	origin   Origin

	mu      sync.Mutex
	state   State
	layout  geometry.DisplayLayout
	corners geometry.DisplayPolygon
	dirty   bool
}

// New seeds a session with source-space corners projected into viewport.
func New(id, imageRef string, source geometry.Size, viewport geometry.Rect, seed geometry.SourcePolygon, origin Origin) *Session {
	layout := geometry.ContainLayout(viewport, source)
	return &Session{
		id:       id,
		imageRef: imageRef,
		origin:   origin,
		state:    Seeded,
		layout:   layout,
		corners:  layout.ToDisplay(seed),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// ImageRef returns the reference of the source image being edited.
func (s *Session) ImageRef() string { return s.imageRef }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:            s.id,
		ImageRef:      s.imageRef,
		State:         s.state,
		Origin:        s.origin,
		Dirty:         s.dirty,
		Corners:       s.corners,
		SourceCorners: s.layout.ToSource(s.corners),
		Layout:        s.layout,
	}
}

// editableLocked reports whether corner edits are allowed right now.
func (s *Session) editableLocked() error {
	switch s.state {
	case Seeded, Editing:
		return nil
	case Committing:
		return ErrBusy
	default:
		return ErrClosed
	}
}

// MoveCorner places corner c at p. The other three corners are untouched.
func (s *Session) MoveCorner(c geometry.Corner, p geometry.DisplayPoint) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moveLocked(c, func(geometry.DisplayPoint) geometry.DisplayPoint { return p })
}

// DragCorner moves corner c by (dx, dy) display pixels.
func (s *Session) DragCorner(c geometry.Corner, dx, dy float64) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moveLocked(c, func(cur geometry.DisplayPoint) geometry.DisplayPoint {
		return geometry.DisplayPoint{X: cur.X + dx, Y: cur.Y + dy}
	})
}

func (s *Session) moveLocked(c geometry.Corner, next func(geometry.DisplayPoint) geometry.DisplayPoint) (Snapshot, error) {
	if c < geometry.TopLeft || c > geometry.BottomLeft {
		return Snapshot{}, fmt.Errorf("corner index out of range: %d", int(c))
	}
	if err := s.editableLocked(); err != nil {
		return Snapshot{}, err
	}

	p := next(s.corners[c])
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
		return Snapshot{}, scanerr.Newf(scanerr.ErrInvalidPolygon, "move corner", "coordinates must be finite")
	}

	s.corners[c] = p
	s.dirty = true
	s.state = Editing
	return s.snapshotLocked(), nil
}

// Relayout recomputes the layout for a new viewport and reprojects the
// corners through source space so they stay on the same image features.
func (s *Session) Relayout(viewport geometry.Rect) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Committed || s.state == Cancelled {
		return Snapshot{}, ErrClosed
	}

	src := s.layout.ToSource(s.corners)
	s.layout = geometry.ContainLayout(viewport, s.layout.Source)
	s.corners = s.layout.ToDisplay(src)
	return s.snapshotLocked(), nil
}

// Commit converts the live corners to source space and rectifies img.
//
// While the rectifier runs, edits and further commits fail with ErrBusy. On
// failure the session returns to Editing with its corners intact; on success
// it becomes Committed. If the session is cancelled mid-commit the result is
// discarded and ErrClosed returned.
func (s *Session) Commit(ctx context.Context, r Rectifier, img image.Image) (*rectify.Result, error) {
	return s.CommitWith(ctx, r, img, nil)
}

// CommitWith is Commit with a publish step, such as writing the output,
// that must succeed before the session counts as committed. A publish error
// returns the session to Editing like a rectify error. Cancel waits for a
// running publish.
func (s *Session) CommitWith(ctx context.Context, r Rectifier, img image.Image, publish func(*rectify.Result) error) (*rectify.Result, error) {
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.state = Committing
	corners := s.layout.ToSource(s.corners)
	s.mu.Unlock()

	result, err := r.Rectify(ctx, img, corners)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Committing {
		return nil, ErrClosed
	}
	if err == nil && publish != nil {
		err = publish(result)
	}
	if err != nil {
		s.state = Editing
		return nil, err
	}
	s.state = Committed
	return result, nil
}

// Cancel discards the session. Cancelling twice is harmless; cancelling a
// committed session is ErrClosed.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Committed {
		return ErrClosed
	}
	s.state = Cancelled
	return nil
}
