// Package blank generates the synthetic placeholder frame emitted by
// the orchestrator while capture is offline (spec.md §4.8).
//
// There is no third-party text-rendering library anywhere in the
// example corpus, so this is the one module built directly on the
// standard/x-ecosystem toolkit rather than a pack-grounded dependency
// (see DESIGN.md): image/jpeg for the codec (already the CPU
// encoder's backend, internal/encoder) and golang.org/x/image/font/
// basicfont for the "< NO SIGNAL >" caption, since x/image is the
// smallest widely-used extension of the standard image stack and
// ships no cgo.
package blank

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/warpcomdev/ustreamerd/internal/frame"
)

const caption = "< NO SIGNAL >"

// Generator caches a rendered JPEG keyed by geometry, re-rendering
// only when width/height changes (spec.md §4.5: "rendered once per
// geometry").
type Generator struct {
	mu     sync.Mutex
	width  uint32
	height uint32
	cached []byte
}

// New builds an empty Generator.
func New() *Generator {
	return &Generator{}
}

// Fill populates dst with the cached blank frame for the given
// geometry, rendering it first if the geometry changed.
func (g *Generator) Fill(dst *frame.Frame, width, height uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cached == nil || g.width != width || g.height != height {
		buf, err := render(width, height)
		if err != nil {
			return err
		}
		g.cached = buf
		g.width = width
		g.height = height
	}

	dst.Grow(len(g.cached))
	copy(dst.Data, g.cached)
	dst.Used = len(g.cached)
	dst.Width = width
	dst.Height = height
	dst.Stride = 0
	dst.Format = frame.JPEG
	dst.Key = true
	dst.Online = false
	return nil
}

func render(width, height uint32) ([]byte, error) {
	if width == 0 {
		width = 640
	}
	if height == 0 {
		height = 480
	}

	img := image.NewRGBA(image.Rect(0, 0, int(width), int(height)))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	advance := font.MeasureString(face, caption).Round()
	x := (int(width) - advance) / 2
	if x < 0 {
		x = 0
	}
	y := int(height) / 2

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(caption)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
