package barrier

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/ringsim/internal/vmath"
)

// Curve maps shrink progress in [0,1] to a speed multiplier in [0,1].
type Curve int

const (
	Linear Curve = iota
	Quadratic
	Cubic
	Bezier
)

func (c Curve) String() string {
	switch c {
	case Linear:
		return "linear"
	case Quadratic:
		return "quadratic"
	case Cubic:
		return "cubic"
	case Bezier:
		return "bezier"
	default:
		return fmt.Sprintf("curve(%d)", int(c))
	}
}

// ParseCurve resolves a curve by name. Matching is case-insensitive.
func ParseCurve(name string) (Curve, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "linear", "":
		return Linear, nil
	case "quadratic":
		return Quadratic, nil
	case "cubic":
		return Cubic, nil
	case "bezier":
		return Bezier, nil
	}
	return Linear, fmt.Errorf("unknown shrink curve %q", name)
}

// Bezier control points. The curve starts slow and ramps up late.
const (
	bezierP1 = 0.1
	bezierP2 = 0.7
)

// Apply evaluates the curve at t, clamping t to [0,1].
func (c Curve) Apply(t float64) float64 {
	t = vmath.Clamp(t, 0, 1)
	switch c {
	case Quadratic:
		return t * t
	case Cubic:
		return t * t * t
	case Bezier:
		omt := 1 - t
		return 3*omt*omt*t*bezierP1 + 3*omt*t*t*bezierP2 + t*t*t
	default:
		return t
	}
}
