package inference

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/ironsheep/docrect-mcp/internal/scanerr"
)

type fakeSession struct {
	path   string
	closed bool
}

func (s *fakeSession) Run(ctx context.Context, input []float32, shape []int64) ([]Output, error) {
	return []Output{{Name: "out", Shape: shape, Data: input}}, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeEngine struct {
	mu     sync.Mutex
	opened []*fakeSession
	failOn string
	closed bool
}

func (e *fakeEngine) Open(path string) (Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failOn != "" && strings.Contains(path, e.failOn) {
		return nil, errors.New("corrupt model")
	}
	s := &fakeSession{path: path}
	e.opened = append(e.opened, s)
	return s, nil
}

func (e *fakeEngine) Close() error {
	e.closed = true
	return nil
}

func writeModels(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("model"), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestRegistry_InitLoadsAllModels(t *testing.T) {
	dir := writeModels(t, "model_heat.onnx", "model_point.ort")
	engine := &fakeEngine{}
	reg := NewRegistry(engine, dir, nil)

	if err := reg.Init(context.Background(), AllModels...); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	heat, err := reg.Session(context.Background(), HeatmapModel)
	if err != nil {
		t.Fatalf("heatmap session: %v", err)
	}
	if !strings.HasSuffix(heat.(*fakeSession).path, "model_heat.onnx") {
		t.Errorf("heatmap path: %s", heat.(*fakeSession).path)
	}

	point, err := reg.Session(context.Background(), PointModel)
	if err != nil {
		t.Fatalf("point session: %v", err)
	}
	if !strings.HasSuffix(point.(*fakeSession).path, "model_point.ort") {
		t.Errorf("point model should fall back to .ort, got %s", point.(*fakeSession).path)
	}

	// Loading happens once: a second Init must not reopen anything.
	if err := reg.Init(context.Background(), AllModels...); err != nil {
		t.Fatalf("second Init failed: %v", err)
	}
	if len(engine.opened) != 2 {
		t.Errorf("models opened %d times, want 2", len(engine.opened))
	}
}

func TestRegistry_MissingModel(t *testing.T) {
	dir := writeModels(t, "model_heat.onnx")
	engine := &fakeEngine{}
	reg := NewRegistry(engine, dir, nil)

	err := reg.Init(context.Background(), AllModels...)
	if !errors.Is(err, scanerr.ErrInitialization) {
		t.Fatalf("expected ErrInitialization, got %v", err)
	}
	if !strings.Contains(err.Error(), "model_point") {
		t.Errorf("error should name the missing file: %v", err)
	}

	// The model that did load is released and unavailable.
	if len(engine.opened) != 1 || !engine.opened[0].closed {
		t.Error("partially loaded session should be closed")
	}
	if _, err := reg.Session(context.Background(), HeatmapModel); !errors.Is(err, scanerr.ErrInitialization) {
		t.Errorf("Session after failed init: got %v", err)
	}
}

func TestRegistry_FailureLoggedOnce(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	reg := NewRegistry(&fakeEngine{}, writeModels(t, "model_heat.onnx"), logger)

	reg.Start(AllModels...)
	for i := 0; i < 3; i++ {
		if _, err := reg.Session(context.Background(), PointModel); !errors.Is(err, scanerr.ErrInitialization) {
			t.Fatalf("Session %d: got %v", i, err)
		}
	}

	if n := strings.Count(logs.String(), "model loading failed"); n != 1 {
		t.Errorf("failure logged %d times, want 1:\n%s", n, logs.String())
	}
	if !strings.Contains(logs.String(), "level=ERROR") || !strings.Contains(logs.String(), "model_point") {
		t.Errorf("failure should be an error naming the missing model:\n%s", logs.String())
	}
}

func TestRegistry_OpenFailure(t *testing.T) {
	dir := writeModels(t, "model_heat.onnx", "model_point.onnx")
	reg := NewRegistry(&fakeEngine{failOn: "model_heat"}, dir, nil)

	err := reg.Init(context.Background(), AllModels...)
	if !errors.Is(err, scanerr.ErrInitialization) {
		t.Fatalf("expected ErrInitialization, got %v", err)
	}
}

func TestRegistry_NotStarted(t *testing.T) {
	reg := NewRegistry(&fakeEngine{}, t.TempDir(), nil)
	if _, err := reg.Session(context.Background(), HeatmapModel); !errors.Is(err, scanerr.ErrInitialization) {
		t.Errorf("expected ErrInitialization before Start, got %v", err)
	}
}

func TestRegistry_NilEngine(t *testing.T) {
	reg := NewRegistry(nil, t.TempDir(), nil)
	if err := reg.Init(context.Background(), HeatmapModel); !errors.Is(err, scanerr.ErrInitialization) {
		t.Errorf("expected ErrInitialization, got %v", err)
	}
}

func TestRegistry_Close(t *testing.T) {
	dir := writeModels(t, "model_heat.onnx", "model_point.onnx")
	engine := &fakeEngine{}
	reg := NewRegistry(engine, dir, nil)
	if err := reg.Init(context.Background(), AllModels...); err != nil {
		t.Fatal(err)
	}

	if err := reg.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for _, s := range engine.opened {
		if !s.closed {
			t.Errorf("session %s not closed", s.path)
		}
	}
	if !engine.closed {
		t.Error("engine not closed")
	}
	if _, err := reg.Session(context.Background(), HeatmapModel); err == nil {
		t.Error("Session after Close should fail")
	}
}

func TestRegistry_WaitHonorsContext(t *testing.T) {
	reg := NewRegistry(&fakeEngine{}, t.TempDir(), nil)
	reg.started.Store(true) // loading "in progress" forever

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := reg.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestInstallModels(t *testing.T) {
	bundle := fstest.MapFS{
		"model_heat.onnx":  {Data: []byte("heat-v1")},
		"model_point.onnx": {Data: []byte("point-v1")},
		"README.txt":       {Data: []byte("ignored")},
	}
	dir := filepath.Join(t.TempDir(), "models")

	installed, err := InstallModels(bundle, dir)
	if err != nil {
		t.Fatalf("InstallModels: %v", err)
	}
	if len(installed) != 2 {
		t.Errorf("installed %v, want 2 model files", installed)
	}
	if _, err := os.Stat(filepath.Join(dir, "README.txt")); err == nil {
		t.Error("non-model files should not be installed")
	}

	// Same sizes: nothing to do.
	installed, err = InstallModels(bundle, dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(installed) != 0 {
		t.Errorf("second install copied %v", installed)
	}

	// A changed bundle size triggers a refresh.
	bundle["model_heat.onnx"] = &fstest.MapFile{Data: []byte("heat-v2-larger")}
	installed, err = InstallModels(bundle, dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(installed) != 1 || installed[0] != "model_heat.onnx" {
		t.Errorf("refresh installed %v", installed)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "model_heat.onnx"))
	if string(data) != "heat-v2-larger" {
		t.Errorf("model content: %q", data)
	}
}

func TestModelPath(t *testing.T) {
	dir := writeModels(t, "model_heat.ort")

	path, err := ModelPath(dir, HeatmapModel)
	if err != nil {
		t.Fatalf("ModelPath: %v", err)
	}
	if filepath.Base(path) != "model_heat.ort" {
		t.Errorf("got %s", path)
	}

	if _, err := ModelPath(dir, PointModel); !errors.Is(err, scanerr.ErrInitialization) {
		t.Errorf("missing model: got %v", err)
	}
}
