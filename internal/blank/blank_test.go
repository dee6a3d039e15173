package blank

import (
	"bytes"
	"image/jpeg"
	"testing"

	"github.com/warpcomdev/ustreamerd/internal/frame"
)

func TestFillProducesDecodableJPEG(t *testing.T) {
	g := New()
	var dst frame.Frame
	if err := g.Fill(&dst, 64, 48); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if dst.Format != frame.JPEG || dst.Online {
		t.Fatalf("unexpected frame metadata: %+v", dst)
	}

	img, err := jpeg.Decode(bytes.NewReader(dst.Slice()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 64 || b.Dy() != 48 {
		t.Fatalf("want 64x48, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestFillDefaultsZeroGeometry(t *testing.T) {
	g := New()
	var dst frame.Frame
	if err := g.Fill(&dst, 0, 0); err != nil {
		t.Fatalf("Fill: %v", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(dst.Slice()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 640 || b.Dy() != 480 {
		t.Fatalf("want default 640x480 render, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestFillCachesUntilGeometryChanges(t *testing.T) {
	g := New()
	var a, b frame.Frame
	if err := g.Fill(&a, 32, 32); err != nil {
		t.Fatalf("Fill a: %v", err)
	}
	if err := g.Fill(&b, 32, 32); err != nil {
		t.Fatalf("Fill b: %v", err)
	}
	if !bytes.Equal(a.Slice(), b.Slice()) {
		t.Fatalf("expected identical cached bytes for the same geometry")
	}

	var c frame.Frame
	if err := g.Fill(&c, 16, 16); err != nil {
		t.Fatalf("Fill c: %v", err)
	}
	if bytes.Equal(a.Slice(), c.Slice()) {
		t.Fatalf("expected a re-render after a geometry change")
	}
}
