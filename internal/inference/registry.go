package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ironsheep/docrect-mcp/internal/scanerr"
)

// ModelID names a model asset, without extension.
type ModelID string

const (
	HeatmapModel ModelID = "model_heat"
	PointModel   ModelID = "model_point"
)

// AllModels lists every model the detector needs.
var AllModels = []ModelID{HeatmapModel, PointModel}

// Output is one named output tensor copied out of the runtime.
type Output struct {
	Name  string
	Shape []int64
	Data  []float32
}

// Session runs forward passes on one loaded model.
type Session interface {
	// Run feeds a single float32 input tensor of the given shape and returns
	// every model output in declaration order.
	Run(ctx context.Context, input []float32, shape []int64) ([]Output, error)

	// Close releases the runtime resources held by the session.
	Close() error
}

// Engine opens model files into sessions.
type Engine interface {
	Open(path string) (Session, error)
	Close() error
}

// Registry owns the cached inference sessions, keyed by model id.
type Registry struct {
	engine Engine
	dir    string
	logger *slog.Logger

	once    sync.Once
	started atomic.Bool
	ready   chan struct{}
	initErr error

	mu       sync.RWMutex
	sessions map[ModelID]Session
}

// NewRegistry creates a registry that resolves models under dir and opens
// them with engine. A nil logger uses slog.Default().
func NewRegistry(engine Engine, dir string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		engine:   engine,
		dir:      dir,
		logger:   logger,
		ready:    make(chan struct{}),
		sessions: make(map[ModelID]Session),
	}
}

// Start begins loading the given models in the background. Only the first
// call has any effect. The outcome is logged once when loading finishes;
// later Session calls return the same error without logging it again.
func (r *Registry) Start(ids ...ModelID) {
	r.once.Do(func() {
		r.started.Store(true)
		go func() {
			r.initErr = r.load(ids)
			if r.initErr != nil {
				r.logger.Error("model loading failed, corner detection disabled", "dir", r.dir, "error", r.initErr)
			} else {
				r.logger.Info("models loaded", "dir", r.dir, "count", len(ids))
			}
			close(r.ready)
		}()
	})
}

// Wait blocks until loading has finished and returns its error.
func (r *Registry) Wait(ctx context.Context) error {
	if !r.started.Load() {
		return scanerr.Newf(scanerr.ErrInitialization, "models", "model loading was never started")
	}
	select {
	case <-r.ready:
		return r.initErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Init loads the given models and waits for completion.
func (r *Registry) Init(ctx context.Context, ids ...ModelID) error {
	r.Start(ids...)
	return r.Wait(ctx)
}

// Session returns the cached session for id, waiting for loading to finish
// if it is still in progress.
func (r *Registry) Session(ctx context.Context, id ModelID) (Session, error) {
	if err := r.Wait(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, scanerr.Newf(scanerr.ErrInitialization, "session "+string(id), "model was not loaded")
	}
	return s, nil
}

// Close releases every session and the engine. It is safe to call once
// loading has finished or failed.
func (r *Registry) Close() error {
	if r.started.Load() {
		<-r.ready
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for id, s := range r.sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
		delete(r.sessions, id)
	}
	if r.engine != nil {
		if err := r.engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close engine: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) load(ids []ModelID) error {
	if r.engine == nil {
		return scanerr.Newf(scanerr.ErrInitialization, "models", "no inference engine configured")
	}

	opened := make(map[ModelID]Session, len(ids))
	var errs []error
	for _, id := range ids {
		path, err := ModelPath(r.dir, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		s, err := r.engine.Open(path)
		if err != nil {
			errs = append(errs, scanerr.New(scanerr.ErrInitialization, "load "+path, err))
			continue
		}
		opened[id] = s
		r.logger.Debug("model loaded", "model", id, "path", path)
	}

	if len(errs) > 0 {
		for _, s := range opened {
			_ = s.Close()
		}
		return errors.Join(errs...)
	}

	r.mu.Lock()
	for id, s := range opened {
		r.sessions[id] = s
	}
	r.mu.Unlock()
	return nil
}
