// Package inference is the boundary to the neural inference runtime used
// for corner detection.
//
// It defines a small Engine/Session abstraction over the runtime, an owned
// Registry that loads every model once and hands out cached sessions, and
// the asset installer that populates the models directory on first run.
//
// # Models
//
// Two fixed-topology models are used, identified by ModelID:
//
//   - HeatmapModel ("model_heat"): one output, four per-corner confidence
//     maps, shape [1, 4, H, W].
//   - PointModel ("model_point"): two outputs, eight normalised coordinates
//     and one presence score.
//
// Both take a single [1, 3, 256, 256] float32 input. Files are resolved as
// <models dir>/<id>.onnx, falling back to <id>.ort.
//
// # Lifecycle
//
// The Registry is created once per process and owned by the caller, who must
// call Close to release sessions and the runtime environment. Start kicks
// off loading in the background; Wait (or Session) blocks until loading has
// finished. A missing or unloadable model file fails the whole registry with
// scanerr.ErrInitialization and a message naming the file.
//
// # Backends
//
// The ONNX Runtime backend (github.com/yalue/onnxruntime_go) needs cgo and
// the onnxruntime shared library at run time. Builds without cgo get an
// engine constructor that reports ErrInitialization, so the rest of the
// server still works and only detection is unavailable.
//
// # Thread Safety
//
// Registry methods are safe for concurrent use. Sessions returned by the
// registry are shared and must be safe for concurrent Run calls; callers
// must not Close them.
package inference
