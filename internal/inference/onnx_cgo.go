//go:build cgo

package inference

import (
	"context"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/ironsheep/docrect-mcp/internal/scanerr"
)

// ONNXEngine opens models with ONNX Runtime.
type ONNXEngine struct{}

// NewONNXEngine initializes the ONNX Runtime environment. libraryPath points
// at the onnxruntime shared library; empty uses the runtime's default lookup.
func NewONNXEngine(libraryPath string) (*ONNXEngine, error) {
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, scanerr.New(scanerr.ErrInitialization, "onnxruntime", err)
		}
	}
	return &ONNXEngine{}, nil
}

// Open loads a model and binds its declared input and output names.
func (e *ONNXEngine) Open(path string) (Session, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", path, err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("%s: expected 1 input, model declares %d", path, len(inputs))
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("%s: model declares no outputs", path)
	}

	inNames := []string{inputs[0].Name}
	outNames := make([]string, len(outputs))
	for i, o := range outputs {
		outNames[i] = o.Name
	}

	s, err := ort.NewDynamicAdvancedSession(path, inNames, outNames, nil)
	if err != nil {
		return nil, fmt.Errorf("create session for %s: %w", path, err)
	}
	return &onnxSession{session: s, outputs: outNames}, nil
}

// Close tears down the ONNX Runtime environment.
func (e *ONNXEngine) Close() error {
	if ort.IsInitialized() {
		return ort.DestroyEnvironment()
	}
	return nil
}

type onnxSession struct {
	session *ort.DynamicAdvancedSession
	outputs []string
}

func (s *onnxSession) Run(ctx context.Context, input []float32, shape []int64) ([]Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in, err := ort.NewTensor(ort.NewShape(shape...), input)
	if err != nil {
		return nil, fmt.Errorf("input tensor: %w", err)
	}
	defer in.Destroy()

	// nil outputs are allocated by the runtime to whatever shape the model
	// produces.
	outs := make([]ort.Value, len(s.outputs))
	if err := s.session.Run([]ort.Value{in}, outs); err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	defer func() {
		for _, v := range outs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	result := make([]Output, len(outs))
	for i, v := range outs {
		t, ok := v.(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("output %q is not a float32 tensor", s.outputs[i])
		}
		result[i] = Output{
			Name:  s.outputs[i],
			Shape: append([]int64(nil), t.GetShape()...),
			Data:  append([]float32(nil), t.GetData()...),
		}
	}
	return result, nil
}

func (s *onnxSession) Close() error {
	return s.session.Destroy()
}
