// Package codes reads 2D barcodes (QR, Data Matrix) out of images,
// typically a freshly rectified document.
//
// Decoding runs on a grayscale copy of the input. gozxing is tried first,
// QR then Data Matrix, and goqr is the last resort for QR codes gozxing
// rejects. A missing code is a normal outcome: Extract reports Found false
// and never returns an error for it.
package codes

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/anthonynsimon/bild/effect"
	"github.com/liyue201/goqr"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/ironsheep/docrect-mcp/internal/geometry"
)

// Format names the symbology a code was read as.
type Format string

const (
	FormatQR         Format = "qr_code"
	FormatDataMatrix Format = "data_matrix"
)

// Result is the outcome of one extraction. Points and Corners are in the
// input image's pixel space.
type Result struct {
	Found  bool   `json:"found"`
	Text   string `json:"text"`
	Format Format `json:"format,omitempty"`

	// Decoder names the library that produced the result.
	Decoder string `json:"decoder,omitempty"`

	// Points are the raw locator points reported by the decoder, if any.
	Points []geometry.SourcePoint `json:"points,omitempty"`

	// Corners is set when the decoder reports the three QR finder patterns.
	Corners *geometry.SourcePolygon `json:"corners,omitempty"`
}

// Extractor decodes barcodes.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates an extractor. A nil logger uses slog.Default().
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

type decoder struct {
	name   string
	format Format
	read   func(image.Image) (*Result, error)
}

// Extract looks for a single code in img. It never fails because no code
// is present; the error is reserved for nil input and cancellation.
func (e *Extractor) Extract(ctx context.Context, img image.Image) (*Result, error) {
	if img == nil || img.Bounds().Empty() {
		return &Result{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gray := effect.Grayscale(img)

	decoders := []decoder{
		{"gozxing", FormatQR, func(im image.Image) (*Result, error) {
			return readZXing(im, qrcode.NewQRCodeReader(), FormatQR)
		}},
		{"gozxing", FormatDataMatrix, func(im image.Image) (*Result, error) {
			return readZXing(im, datamatrix.NewDataMatrixReader(), FormatDataMatrix)
		}},
		{"goqr", FormatQR, readGoQR},
	}

	for _, d := range decoders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := safeRead(d, gray)
		if err != nil {
			e.logger.Debug("code not decoded", "decoder", d.name, "format", d.format, "error", err)
			continue
		}
		res.Found = true
		res.Format = d.format
		res.Decoder = d.name
		return res, nil
	}
	return &Result{}, nil
}

// safeRead runs a decoder and turns a panic inside it into an error.
func safeRead(d decoder, img image.Image) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("%s panicked: %v", d.name, r)
		}
	}()
	return d.read(img)
}

func readZXing(img image.Image, reader gozxing.Reader, format Format) (*Result, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("failed to create bitmap: %w", err)
	}

	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	result, err := reader.Decode(bmp, hints)
	if err != nil {
		return nil, err
	}

	res := &Result{Text: result.GetText()}
	b := img.Bounds()
	for _, p := range result.GetResultPoints() {
		if p == nil {
			continue
		}
		res.Points = append(res.Points, geometry.SourcePoint{
			X: p.GetX() + float64(b.Min.X),
			Y: p.GetY() + float64(b.Min.Y),
		})
	}
	if format == FormatQR {
		res.Corners = finderCorners(res.Points)
	}
	return res, nil
}

// finderCorners builds a TL, TR, BR, BL polygon from QR finder pattern
// centres, which gozxing reports as bottom-left, top-left, top-right. The
// bottom-right corner completes the parallelogram.
func finderCorners(pts []geometry.SourcePoint) *geometry.SourcePolygon {
	if len(pts) < 3 {
		return nil
	}
	bl, tl, tr := pts[0], pts[1], pts[2]
	br := geometry.SourcePoint{X: tr.X + bl.X - tl.X, Y: tr.Y + bl.Y - tl.Y}
	return &geometry.SourcePolygon{tl, tr, br, bl}
}

func readGoQR(img image.Image) (*Result, error) {
	codes, err := goqr.Recognize(img)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("no qr code found")
	}
	return &Result{Text: string(codes[0].Payload)}, nil
}
