package detection

import (
	"fmt"
	"strings"

	"github.com/ironsheep/docrect-mcp/internal/geometry"
)

// InsetStyle selects the default polygon used when detection misses.
type InsetStyle int

const (
	// InsetUniform insets 10% from every edge.
	InsetUniform InsetStyle = iota

	// InsetSlide insets 5% horizontally and frames a centred band matching
	// the target aspect ratio, leaving at least 10% above and below.
	InsetSlide
)

func (s InsetStyle) String() string {
	if s == InsetSlide {
		return "slide"
	}
	return "uniform"
}

// ParseInsetStyle accepts "uniform" or "slide".
func ParseInsetStyle(s string) (InsetStyle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "uniform":
		return InsetUniform, nil
	case "slide":
		return InsetSlide, nil
	}
	return InsetUniform, fmt.Errorf("unknown inset style: %q (want uniform or slide)", s)
}

// DefaultPolygon returns the rectangle seeded into an editing session when
// no document was detected. aspect is the width:height ratio used by
// InsetSlide; values <= 0 fall back to 16:9.
func DefaultPolygon(size geometry.Size, style InsetStyle, aspect float64) geometry.SourcePolygon {
	if style != InsetSlide || size.Empty() {
		return geometry.InsetPolygon(size, 0.10, 0.10)
	}
	if aspect <= 0 {
		aspect = 16.0 / 9.0
	}

	const fx = 0.05
	band := size.Width * (1 - 2*fx) / aspect
	fy := (1 - band/size.Height) / 2
	if fy < 0.10 {
		fy = 0.10
	}
	return geometry.InsetPolygon(size, fx, fy)
}
