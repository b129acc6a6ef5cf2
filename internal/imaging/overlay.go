package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ironsheep/docrect-mcp/internal/geometry"
)

// OverlayOptions controls how DrawPolygonOverlay renders a corner outline.
type OverlayOptions struct {
	// EdgeColorHex is the outline colour as "#RRGGBB" or "#RRGGBBAA".
	// Defaults to opaque white when empty or unparseable.
	EdgeColorHex string

	// HandleRadius is the corner handle radius in output pixels. Default 6.
	HandleRadius int

	// MaxDimension downsizes the preview so its longer side is at most this
	// many pixels. 0 keeps the source resolution.
	MaxDimension int
}

// PreviewResult is the overlay image plus the scale applied to it.
type PreviewResult struct {
	EncodedImage

	// Scale is output pixels per source pixel (1 unless MaxDimension shrank
	// the preview).
	Scale float64 `json:"scale"`
}

// HandleColor returns the colour used for a corner handle. Each corner gets
// a hue a quarter turn apart so the four handles stay distinguishable on any
// background.
func HandleColor(c geometry.Corner) color.RGBA {
	hc := colorful.Hsv(float64(c)*90+10, 0.85, 0.95).Clamped()
	r, g, b := hc.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// DrawPolygonOverlay renders a source-space polygon over a copy of img:
// straight edges between consecutive corners and a filled, numbered handle
// on every corner.
func DrawPolygonOverlay(img image.Image, poly geometry.SourcePolygon, opts OverlayOptions) (*PreviewResult, error) {
	if opts.HandleRadius <= 0 {
		opts.HandleRadius = 6
	}
	edgeColor, err := parseHexColor(opts.EdgeColorHex)
	if err != nil {
		edgeColor = color.RGBA{255, 255, 255, 255}
	}

	scale := 1.0
	var base image.Image = img
	b := img.Bounds()
	if longest := max(b.Dx(), b.Dy()); opts.MaxDimension > 0 && longest > opts.MaxDimension {
		scale = float64(opts.MaxDimension) / float64(longest)
		base = imaging.Resize(img, int(float64(b.Dx())*scale), int(float64(b.Dy())*scale), imaging.Linear)
	}

	bounds := base.Bounds()
	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, base, bounds.Min, draw.Src)

	var pts [4]image.Point
	for i, p := range poly {
		pts[i] = image.Pt(int(math.Round(p.X*scale)), int(math.Round(p.Y*scale)))
	}

	for i := range pts {
		drawLine(result, pts[i], pts[(i+1)%4], edgeColor)
	}

	labelColor := color.RGBA{255, 255, 255, 255}
	bgColor := color.RGBA{0, 0, 0, 180}
	for i, p := range pts {
		fillCircle(result, p, opts.HandleRadius, HandleColor(geometry.Corner(i)))
		drawLabel(result, p.X+opts.HandleRadius+2, p.Y-7, strconv.Itoa(i), labelColor, bgColor)
	}

	enc, err := EncodeBase64(result)
	if err != nil {
		return nil, err
	}
	return &PreviewResult{EncodedImage: *enc, Scale: scale}, nil
}

// drawLine draws a 1px line using a simple DDA walk, clipped to the image.
func drawLine(img *image.RGBA, a, b image.Point, c color.RGBA) {
	dx := b.X - a.X
	dy := b.Y - a.Y
	steps := max(abs(dx), abs(dy))
	if steps == 0 {
		setClipped(img, a.X, a.Y, c)
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := a.X + int(math.Round(t*float64(dx)))
		y := a.Y + int(math.Round(t*float64(dy)))
		setClipped(img, x, y, c)
	}
}

func fillCircle(img *image.RGBA, center image.Point, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				setClipped(img, center.X+dx, center.Y+dy, c)
			}
		}
	}
}

func setClipped(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// parseHexColor parses "#RRGGBB", "#RGB" or "#RRGGBBAA" (the leading # is
// optional) into a premultiplied colour.
func parseHexColor(hex string) (color.RGBA, error) {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if hex == "" {
		return color.RGBA{}, fmt.Errorf("empty color string")
	}

	alpha := uint8(255)
	if len(hex) == 8 {
		a, err := strconv.ParseUint(hex[6:], 16, 8)
		if err != nil {
			return color.RGBA{}, fmt.Errorf("invalid alpha in %q: %w", hex, err)
		}
		alpha, hex = uint8(a), hex[:6]
	}

	c, err := colorful.Hex("#" + hex)
	if err != nil {
		return color.RGBA{}, err
	}
	r, g, b := c.RGB255()
	return color.RGBAModel.Convert(color.NRGBA{R: r, G: g, B: b, A: alpha}).(color.RGBA), nil
}

// drawLabel draws text on a dark box with its top-left at (x, y).
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: img, Src: image.NewUniform(fg), Face: face}

	box := image.Rect(x-1, y-1, x+d.MeasureString(text).Ceil()+1, y+face.Height+1)
	draw.Draw(img, box.Intersect(img.Bounds()), image.NewUniform(bg), image.Point{}, draw.Over)

	d.Dot = fixed.P(x, y+face.Ascent)
	d.DrawString(text)
}
