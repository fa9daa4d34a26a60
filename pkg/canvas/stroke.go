package canvas

import (
	"fmt"

	"github.com/lucasb-eyer/go-colorful"
)

// Point is a position on the surface in pixels
type Point struct {
	X, Y float64
}

// Style is the pen used for subsequent segments
type Style struct {
	Color string  `json:"color"`
	Width float64 `json:"width"`
}

// Segment is the ephemeral path between pointer-down and pointer-up.
// It is never persisted; only its rendered pixels are.
type Segment struct {
	Points []Point
	Drawn  int // Number of rasterized line segments
}

// Style returns the current pen
func (s *Surface) Style() Style {
	return Style{Color: s.color.Hex(), Width: s.lineWidth}
}

// SetColor changes the pen color for subsequent Extend calls
func (s *Surface) SetColor(hex string) error {
	c, err := colorful.Hex(hex)
	if err != nil {
		return fmt.Errorf("stroke color %q: %w", hex, err)
	}
	s.color = c
	return nil
}

// SetWidth changes the pen width for subsequent Extend calls
func (s *Surface) SetWidth(w float64) error {
	if w < MinLineWidth || w > MaxLineWidth {
		return fmt.Errorf("stroke width %.1f outside [%.0f, %.0f]", w, MinLineWidth, MaxLineWidth)
	}
	s.lineWidth = w
	return nil
}

// SetStyle applies both color and width
func (s *Surface) SetStyle(st Style) error {
	if err := s.SetColor(st.Color); err != nil {
		return err
	}
	return s.SetWidth(st.Width)
}

// UseEraser switches the pen to the background color
func (s *Surface) UseEraser() {
	s.color = s.background
}

// Drawing reports whether a stroke is active
func (s *Surface) Drawing() bool {
	return s.stroke != nil
}

// Begin starts a path at p. A Begin during an active stroke restarts it.
func (s *Surface) Begin(p Point) {
	s.stroke = &Segment{Points: []Point{p}}
}

// Extend rasterizes a segment from the last point to p with the current pen.
// Without an active stroke it is a no-op and returns false.
func (s *Surface) Extend(p Point) bool {
	if s.stroke == nil {
		return false
	}
	last := s.stroke.Points[len(s.stroke.Points)-1]
	s.stroke.Points = append(s.stroke.Points, p)

	s.dc.SetColor(s.color)
	s.dc.SetLineWidth(s.lineWidth)
	s.dc.MoveTo(last.X, last.Y)
	s.dc.LineTo(p.X, p.Y)
	if err := s.dc.Stroke(); err != nil {
		s.lastErr = err
		return false
	}
	s.stroke.Drawn++
	return true
}

// End closes the active stroke and hands it back. ok is false when there was
// no active stroke or nothing was rasterized.
func (s *Surface) End() (seg Segment, ok bool) {
	if s.stroke == nil {
		return Segment{}, false
	}
	seg = *s.stroke
	s.stroke = nil
	return seg, seg.Drawn > 0
}
