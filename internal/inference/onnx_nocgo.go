//go:build !cgo

package inference

import (
	"github.com/ironsheep/docrect-mcp/internal/scanerr"
)

// ONNXEngine is unavailable without cgo.
type ONNXEngine struct{}

// NewONNXEngine always fails: ONNX Runtime is reached through cgo.
func NewONNXEngine(libraryPath string) (*ONNXEngine, error) {
	return nil, scanerr.Newf(scanerr.ErrInitialization, "onnxruntime",
		"built without cgo; rebuild with CGO_ENABLED=1 to enable corner detection")
}

func (e *ONNXEngine) Open(path string) (Session, error) {
	return nil, scanerr.Newf(scanerr.ErrInitialization, "onnxruntime", "not available")
}

func (e *ONNXEngine) Close() error { return nil }
