// Package preprocess converts decoded images into the input tensor expected
// by the corner-detection models.
//
// The models take a single float32 tensor of shape [1, 3, 256, 256]: RGB
// planes (CHW order), each value the 8-bit channel scaled into [0, 1]. The
// image is stretched to 256x256 with bilinear filtering; aspect ratio is not
// preserved, so the original size travels with the tensor for mapping
// detections back to source pixels.
package preprocess

import (
	"errors"
	"image"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/docrect-mcp/internal/geometry"
)

// InputSize is the square edge length the models are trained on.
const InputSize = 256

// Channels is the number of colour planes in the tensor.
const Channels = 3

// Tensor is a model-ready CHW float32 buffer.
type Tensor struct {
	// Data holds Channels*Height*Width values, plane by plane.
	Data []float32

	Channels int
	Height   int
	Width    int

	// OriginalSize is the pre-resize image size in source pixels.
	OriginalSize geometry.Size
}

// Shape returns the NCHW shape with a batch dimension of 1.
func (t *Tensor) Shape() []int64 {
	return []int64{1, int64(t.Channels), int64(t.Height), int64(t.Width)}
}

// Preprocess resizes img to InputSize x InputSize, drops alpha, scales bytes
// by 1/255 and repacks interleaved RGB into planar CHW order.
//
// Each call allocates its own tensor so concurrent calls never share
// scratch memory.
func Preprocess(img image.Image) (*Tensor, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.New("input image is empty")
	}

	resized := imaging.Resize(img, InputSize, InputSize, imaging.Linear)

	plane := InputSize * InputSize
	data := make([]float32, Channels*plane)
	for y := 0; y < InputSize; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < InputSize; x++ {
			i := y*InputSize + x
			px := row[x*4 : x*4+3]
			data[i] = float32(px[0]) / 255
			data[plane+i] = float32(px[1]) / 255
			data[2*plane+i] = float32(px[2]) / 255
		}
	}

	return &Tensor{
		Data:     data,
		Channels: Channels,
		Height:   InputSize,
		Width:    InputSize,
		OriginalSize: geometry.Size{
			Width:  float64(b.Dx()),
			Height: float64(b.Dy()),
		},
	}, nil
}
