// File: internal/viewer/render.go
package viewer

import (
	"fmt"
	"math"

	"github.com/gdamore/tcell/v2"

	"github.com/xkilldash9x/ringsim/internal/barrier"
	"github.com/xkilldash9x/ringsim/internal/simulation"
	"github.com/xkilldash9x/ringsim/internal/vmath"
)

// cellAspect is how much taller a terminal cell is than it is wide.
const cellAspect = 2.0

var (
	styleHUD     = tcell.StyleDefault.Foreground(tcell.ColorWhite)
	styleEscaped = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	styleBody    = tcell.StyleDefault.Foreground(tcell.ColorWhite).Bold(true)
	styleClosed  = tcell.StyleDefault.Foreground(tcell.NewRGBColor(90, 90, 90))
)

// palette is indexed by a barrier's colour index.
var palette = []tcell.Color{
	tcell.NewRGBColor(255, 85, 85),
	tcell.NewRGBColor(255, 170, 0),
	tcell.NewRGBColor(255, 255, 85),
	tcell.NewRGBColor(85, 255, 85),
	tcell.NewRGBColor(85, 255, 255),
	tcell.NewRGBColor(85, 140, 255),
	tcell.NewRGBColor(190, 85, 255),
	tcell.NewRGBColor(255, 85, 200),
}

// Renderer draws simulation snapshots onto a terminal screen. The arena is scaled to fit
// above a single status line.
type Renderer struct {
	screen tcell.Screen
}

// NewRenderer creates a renderer for screen.
func NewRenderer(screen tcell.Screen) *Renderer {
	return &Renderer{screen: screen}
}

// projection maps world coordinates to cells.
type projection struct {
	cx, cy float64
	sx, sy float64
}

func (p projection) cell(v vmath.Vector2) (int, int) {
	return int(math.Round(p.cx + v.X*p.sx)), int(math.Round(p.cy + v.Y*p.sy))
}

func fit(w, h int, radius float64) projection {
	rows := float64(h - 1)
	p := projection{cx: float64(w-1) / 2, cy: (rows - 1) / 2}
	if radius <= 0 {
		radius = 1
	}
	p.sy = (rows/2 - 0.5) / radius
	p.sx = p.sy * cellAspect
	if maxX := (float64(w)/2 - 0.5) / radius; p.sx > maxX {
		p.sx = maxX
		p.sy = maxX / cellAspect
	}
	return p
}

// Draw clears the screen and draws st. It does not call Show.
func (r *Renderer) Draw(st simulation.State, paused bool) {
	r.screen.Clear()
	w, h := r.screen.Size()
	if w <= 0 || h <= 1 {
		return
	}

	radius := 0.0
	for _, b := range st.Barriers {
		radius = math.Max(radius, b.OuterRadius)
	}
	for _, b := range st.Bodies {
		radius = math.Max(radius, math.Min(b.Position.Len()+b.Radius, 2*radius))
	}
	p := fit(w, h, radius)

	for _, b := range st.Barriers {
		r.drawBarrier(p, b)
	}
	for _, b := range st.Bodies {
		x, y := p.cell(b.Position)
		r.set(x, y, 'O', styleBody)
	}
	r.drawHUD(st, paused, w, h)
}

func (r *Renderer) drawBarrier(p projection, b simulation.BarrierView) {
	mid := (b.OuterRadius + b.InnerRadius) / 2
	steps := max(48, int(2*math.Pi*mid*p.sx))
	color := palette[((b.ColorIndex%len(palette))+len(palette))%len(palette)]

	for i := 0; i < steps; i++ {
		angle := 360 * float64(i) / float64(steps)
		inGap := b.GapAngle > 0 && vmath.InArc(angle, b.GapStart, b.GapAngle)

		ch, style := '█', tcell.StyleDefault.Foreground(color)
		switch {
		case b.State == barrier.Disappearing:
			if inGap {
				continue
			}
			ch, style = fadeRune(b.Fade), tcell.StyleDefault.Foreground(dim(color, b.Fade))
		case inGap && b.State == barrier.Active:
			continue
		case inGap:
			// Closed until the barrier becomes active.
			ch, style = '·', styleClosed
		}

		x, y := p.cell(vmath.FromAngle(angle, mid))
		r.set(x, y, ch, style)
	}
}

func fadeRune(fade float64) rune {
	switch {
	case fade > 0.66:
		return '▓'
	case fade > 0.33:
		return '▒'
	default:
		return '░'
	}
}

func dim(c tcell.Color, f float64) tcell.Color {
	red, green, blue := c.RGB()
	f = math.Max(0, math.Min(1, f))
	return tcell.NewRGBColor(int32(float64(red)*f), int32(float64(green)*f), int32(float64(blue)*f))
}

func (r *Renderer) drawHUD(st simulation.State, paused bool, w, h int) {
	line := fmt.Sprintf("t=%6.2fs  cleared %d  remaining %d  seed %d", st.Elapsed, st.Cleared, st.Remaining, st.Seed)
	r.text(0, h-1, line, styleHUD)
	col := len(line)
	if st.Escaped {
		r.text(col, h-1, "  ESCAPED", styleEscaped)
		col += len("  ESCAPED")
	}
	if paused {
		r.text(col, h-1, "  [paused]", styleHUD)
	}
}

func (r *Renderer) text(x, y int, s string, style tcell.Style) {
	for i, ch := range []rune(s) {
		r.set(x+i, y, ch, style)
	}
}

func (r *Renderer) set(x, y int, ch rune, style tcell.Style) {
	w, h := r.screen.Size()
	if x < 0 || y < 0 || x >= w || y >= h {
		return
	}
	r.screen.SetContent(x, y, ch, nil, style)
}
