// ABOUTME: Raster surface owned by one whiteboard session
// ABOUTME: Strokes are rasterized with gogpu/gg onto an opaque RGBA pixmap

package canvas

import (
	"fmt"
	"image"

	"github.com/gogpu/gg"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/draw"
)

const (
	DefaultBackground = "#ffffff"
	DefaultColor      = "#000000"
	DefaultWidth      = 3.0

	MinLineWidth = 1.0
	MaxLineWidth = 20.0

	// MaxDimension bounds either side of a surface in pixels
	MaxDimension = 8192
)

// Surface is a single-writer raster buffer. It is not safe for concurrent use;
// the owning session serializes access.
type Surface struct {
	width  int
	height int

	pixmap *gg.Pixmap
	dc     *gg.Context

	background colorful.Color
	color      colorful.Color
	lineWidth  float64

	stroke  *Segment // Active stroke, nil between End and the next Begin
	lastErr error
}

// New creates a surface filled with the background color
func New(width, height int, background string) (*Surface, error) {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return nil, fmt.Errorf("invalid surface size %dx%d", width, height)
	}
	if background == "" {
		background = DefaultBackground
	}
	bg, err := colorful.Hex(background)
	if err != nil {
		return nil, fmt.Errorf("background color %q: %w", background, err)
	}
	fg, _ := colorful.Hex(DefaultColor)

	pm := gg.NewPixmap(width, height)
	dc := gg.NewContext(width, height, gg.WithPixmap(pm))
	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineJoin(gg.LineJoinRound)

	s := &Surface{
		width:      width,
		height:     height,
		pixmap:     pm,
		dc:         dc,
		background: bg,
		color:      fg,
		lineWidth:  DefaultWidth,
	}
	s.Reset()
	return s, nil
}

// Width returns the surface width in pixels
func (s *Surface) Width() int { return s.width }

// Height returns the surface height in pixels
func (s *Surface) Height() int { return s.height }

// Background returns the background color as #rrggbb
func (s *Surface) Background() string { return s.background.Hex() }

// Reset clears the surface to the background color and drops any active stroke
func (s *Surface) Reset() {
	r, g, b := s.background.RGB255()
	data := s.pixmap.Data()
	for i := 0; i < len(data); i += 4 {
		data[i+0] = r
		data[i+1] = g
		data[i+2] = b
		data[i+3] = 0xff
	}
	s.stroke = nil
}

// Image returns a copy of the current pixels
func (s *Surface) Image() *image.RGBA {
	return s.pixmap.ToImage()
}

// Load replaces the surface pixels with img. Images of a different size are
// scaled to fit; transparent areas show the background.
func (s *Surface) Load(img image.Image) {
	dst := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(s.background), image.Point{}, draw.Src)

	src := img.Bounds()
	if src.Dx() == s.width && src.Dy() == s.height {
		draw.Draw(dst, dst.Bounds(), img, src.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Over, nil)
	}

	copy(s.pixmap.Data(), dst.Pix)
	s.stroke = nil
}

// Err returns the last rasterization error, if any
func (s *Surface) Err() error {
	return s.lastErr
}
