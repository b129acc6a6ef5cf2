package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/ironsheep/docrect-mcp/internal/detection"
	"github.com/ironsheep/docrect-mcp/internal/geometry"
	"github.com/ironsheep/docrect-mcp/internal/imaging"
	"github.com/ironsheep/docrect-mcp/internal/scanerr"
	"github.com/ironsheep/docrect-mcp/internal/session"
)

var viewport = geometry.Rect{Width: 400, Height: 300}

// fakeDetector returns a fixed result. When gate is set, the first call
// blocks on it after signalling started.
type fakeDetector struct {
	mu      sync.Mutex
	calls   int
	poly    *geometry.SourcePolygon
	model   detection.Model
	err     error
	started chan struct{}
	gate    chan struct{}
}

func (f *fakeDetector) Detect(ctx context.Context, img image.Image) (*detection.Result, error) {
	f.mu.Lock()
	f.calls++
	first := f.calls == 1
	f.mu.Unlock()

	if first && f.gate != nil {
		close(f.started)
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	b := img.Bounds()
	return &detection.Result{
		Polygon:   f.poly,
		ModelUsed: f.model,
		Size:      geometry.Size{Width: float64(b.Dx()), Height: float64(b.Dy())},
	}, nil
}

func newTestService(t *testing.T, det Detector) (*Service, string) {
	t.Helper()
	svc := New(Deps{Detector: det}, Options{OutputDir: t.TempDir()})

	img := image.NewNRGBA(image.Rect(0, 0, 400, 300))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.NRGBA{200, 200, 200, 255}}, image.Point{}, draw.Src)
	buf, err := svc.store.Put(img)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	return svc, buf.Ref
}

var found = &geometry.SourcePolygon{{X: 40, Y: 30}, {X: 360, Y: 30}, {X: 360, Y: 270}, {X: 40, Y: 270}}

func TestBegin_SeedsFromDetection(t *testing.T) {
	svc, ref := newTestService(t, &fakeDetector{poly: found, model: detection.ModelHeatmap})

	res, err := svc.Begin(context.Background(), ref, viewport)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if res.Origin != session.OriginHeatmap || res.Detection.ModelUsed != detection.ModelHeatmap {
		t.Errorf("origin %v model %v", res.Origin, res.Detection.ModelUsed)
	}
	if res.SourceCorners != *found {
		t.Errorf("seed corners: got %+v", res.SourceCorners)
	}
	if res.State != session.Seeded {
		t.Errorf("state: %v", res.State)
	}
}

func TestBegin_MissSeedsDefault(t *testing.T) {
	tests := []struct {
		name    string
		det     Detector
		wantErr bool
	}{
		{"miss", &fakeDetector{model: detection.ModelNone}, false},
		{"no detector", nil, true},
		{"models failed", &fakeDetector{err: scanerr.New(scanerr.ErrInitialization, "load models", errors.New("missing"))}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, ref := newTestService(t, tt.det)
			res, err := svc.Begin(context.Background(), ref, viewport)
			if err != nil {
				t.Fatalf("Begin: %v", err)
			}
			if res.Origin != session.OriginDefault {
				t.Errorf("origin: got %v", res.Origin)
			}
			want := detection.DefaultPolygon(geometry.Size{Width: 400, Height: 300}, detection.InsetUniform, 16.0/9.0)
			if res.SourceCorners != want {
				t.Errorf("corners: got %+v, want %+v", res.SourceCorners, want)
			}
			if (res.DetectionError != "") != tt.wantErr {
				t.Errorf("DetectionError: %q", res.DetectionError)
			}
		})
	}
}

func TestBegin_UnknownRef(t *testing.T) {
	svc, _ := newTestService(t, nil)
	if _, err := svc.Begin(context.Background(), "mem:nope", viewport); err == nil {
		t.Error("unknown reference should fail")
	}
}

func TestBegin_LastRequestWins(t *testing.T) {
	det := &fakeDetector{poly: found, model: detection.ModelPoint, started: make(chan struct{}), gate: make(chan struct{})}
	svc, ref := newTestService(t, det)

	stale := make(chan error, 1)
	go func() {
		_, err := svc.Begin(context.Background(), ref, viewport)
		stale <- err
	}()
	<-det.started

	fresh, err := svc.Begin(context.Background(), ref, viewport)
	if err != nil {
		t.Fatalf("second Begin: %v", err)
	}
	close(det.gate)

	if err := <-stale; !errors.Is(err, ErrSuperseded) {
		t.Errorf("first Begin: got %v, want ErrSuperseded", err)
	}
	if svc.sessions.Len() != 1 {
		t.Errorf("only the newest request may open a session, have %d", svc.sessions.Len())
	}
	if _, err := svc.Session(fresh.ID); err != nil {
		t.Errorf("fresh session missing: %v", err)
	}
}

func TestEditCommitReedit(t *testing.T) {
	svc, ref := newTestService(t, &fakeDetector{poly: found, model: detection.ModelHeatmap})
	ctx := context.Background()

	begun, err := svc.Begin(ctx, ref, viewport)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.DragCorner(begun.ID, geometry.TopLeft, -10, -10); err != nil {
		t.Fatalf("DragCorner: %v", err)
	}
	moved, err := svc.MoveCorner(begun.ID, geometry.BottomRight, geometry.DisplayPoint{X: 380, Y: 290})
	if err != nil {
		t.Fatalf("MoveCorner: %v", err)
	}
	if _, err := svc.Relayout(begun.ID, geometry.Rect{Width: 800, Height: 600}); err != nil {
		t.Fatalf("Relayout: %v", err)
	}

	out, err := svc.Commit(ctx, begun.ID, true)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if float64(out.Width)/float64(out.Height) < 1.7 || float64(out.Width)/float64(out.Height) > 1.8 {
		t.Errorf("output not 16:9: %dx%d", out.Width, out.Height)
	}
	if _, err := os.Stat(out.OutputRef); err != nil {
		t.Errorf("output file: %v", err)
	}
	if out.Image == nil || out.Image.ImageBase64 == "" {
		t.Error("inline image requested but missing")
	}
	if _, err := svc.Session(begun.ID); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("committed session should be gone, got %v", err)
	}

	again, err := svc.Reedit(out.OutputRef, viewport)
	if err != nil {
		t.Fatalf("Reedit: %v", err)
	}
	if again.Origin != session.OriginReedit || again.ImageRef != ref {
		t.Errorf("reedit snapshot: %+v", again)
	}
	for i := range moved.SourceCorners {
		if geometry.Distance(again.SourceCorners[i], moved.SourceCorners[i]) > 1e-3 {
			t.Errorf("corner %d: got %+v, want %+v", i, again.SourceCorners[i], moved.SourceCorners[i])
		}
	}

	if _, err := svc.Reedit("/not/ours.png", viewport); !errors.Is(err, ErrUnknownOutput) {
		t.Errorf("foreign ref: got %v", err)
	}
}

func TestCommit_InvalidPolygonKeepsSession(t *testing.T) {
	svc, ref := newTestService(t, &fakeDetector{poly: found, model: detection.ModelHeatmap})
	ctx := context.Background()

	begun, err := svc.Begin(ctx, ref, viewport)
	if err != nil {
		t.Fatal(err)
	}
	c := begun.Corners
	svc.MoveCorner(begun.ID, geometry.TopRight, c[geometry.BottomRight])
	svc.MoveCorner(begun.ID, geometry.BottomRight, c[geometry.TopRight])

	if _, err := svc.Commit(ctx, begun.ID, false); !errors.Is(err, scanerr.ErrInvalidPolygon) {
		t.Fatalf("bow tie commit: got %v", err)
	}
	snap, err := svc.Session(begun.ID)
	if err != nil {
		t.Fatalf("session lost after failed commit: %v", err)
	}
	if snap.State != session.Editing {
		t.Errorf("state: %v", snap.State)
	}
}

func TestCommit_SaveFailureKeepsSession(t *testing.T) {
	svc, ref := newTestService(t, &fakeDetector{poly: found, model: detection.ModelHeatmap})
	ctx := context.Background()

	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	good := svc.outputDir
	svc.outputDir = filepath.Join(blocker, "out")

	begun, err := svc.Begin(ctx, ref, viewport)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Commit(ctx, begun.ID, true); err == nil {
		t.Fatal("commit into an unwritable directory should fail")
	}

	snap, err := svc.Session(begun.ID)
	if err != nil {
		t.Fatalf("session lost after failed save: %v", err)
	}
	if snap.State != session.Editing {
		t.Errorf("state: got %v, want editing", snap.State)
	}
	if snap.SourceCorners != *found {
		t.Errorf("corners changed: %+v", snap.SourceCorners)
	}
	if len(svc.outputs) != 0 {
		t.Errorf("lineage recorded for a failed save: %v", svc.outputs)
	}

	svc.outputDir = good
	out, err := svc.Commit(ctx, begun.ID, false)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if _, err := os.Stat(out.OutputRef); err != nil {
		t.Errorf("output file: %v", err)
	}
}

func TestCancel(t *testing.T) {
	svc, ref := newTestService(t, nil)
	begun, err := svc.Begin(context.Background(), ref, viewport)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Cancel(begun.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := svc.Cancel(begun.ID); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("second cancel: got %v", err)
	}

	entries, _ := os.ReadDir(svc.outputDir)
	if len(entries) != 0 {
		t.Errorf("cancel wrote %d files", len(entries))
	}
}

func TestRectify_Stateless(t *testing.T) {
	svc, ref := newTestService(t, nil)

	corners := []geometry.SourcePoint{{X: 40, Y: 270}, {X: 40, Y: 30}, {X: 360, Y: 270}, {X: 360, Y: 30}}
	out, err := svc.Rectify(context.Background(), ref, corners, RectifyOptions{Reorder: true})
	if err != nil {
		t.Fatalf("Rectify: %v", err)
	}
	if out.SourceCorners != *found {
		t.Errorf("corners not reordered: %+v", out.SourceCorners)
	}
	if out.Image != nil {
		t.Error("inline image not requested")
	}
	if _, err := svc.Reedit(out.OutputRef, viewport); err != nil {
		t.Errorf("stateless outputs are re-editable: %v", err)
	}

	if _, err := svc.Rectify(context.Background(), ref, corners, RectifyOptions{}); !errors.Is(err, scanerr.ErrInvalidPolygon) {
		t.Errorf("unordered corners without reorder: got %v", err)
	}
	if _, err := svc.Rectify(context.Background(), ref, corners[:3], RectifyOptions{Reorder: true}); !errors.Is(err, scanerr.ErrInvalidPolygon) {
		t.Errorf("three corners: got %v", err)
	}
}

func TestExtractCode(t *testing.T) {
	svc, _ := newTestService(t, nil)

	matrix, err := qrcode.NewQRCodeWriter().Encode("slide-7", gozxing.BarcodeFormat_QR_CODE, 160, 160, nil)
	if err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 320, 200))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)
	draw.Draw(img, matrix.Bounds().Add(image.Pt(80, 20)), matrix, image.Point{}, draw.Src)
	buf, err := svc.store.Put(img)
	if err != nil {
		t.Fatal(err)
	}

	res, err := svc.ExtractCode(context.Background(), buf.Ref)
	if err != nil {
		t.Fatalf("ExtractCode: %v", err)
	}
	if !res.Found || res.Text != "slide-7" {
		t.Errorf("got %+v", res)
	}
}

func TestPreview(t *testing.T) {
	svc, ref := newTestService(t, &fakeDetector{poly: found, model: detection.ModelHeatmap})
	begun, err := svc.Begin(context.Background(), ref, viewport)
	if err != nil {
		t.Fatal(err)
	}

	prev, err := svc.Preview(begun.ID, imaging.OverlayOptions{})
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if prev.ImageBase64 == "" {
		t.Error("empty preview")
	}
	if _, err := svc.Preview("missing", imaging.OverlayOptions{}); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("unknown session: got %v", err)
	}
}
