package encoder

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/warpcomdev/ustreamerd/internal/frame"
)

// cpuCompress encodes a raw YUYV source frame to JPEG using the
// standard library's encoder. The teacher's own jpeg_test.go benchmarks
// this exact path (BenchmarkCompressBuiltin/BenchmarkDecompressBuiltin)
// against its cgo turbojpeg backend; this module ships the portable
// one since the proprietary codec libraries aren't part of the stack
// here (DESIGN.md).
func cpuCompress(src, dst *frame.Frame, quality int, _ bool) error {
	if src.Format == frame.JPEG {
		dst.CopyFrom(src)
		return nil
	}

	img := yuyvToImage(src)
	var buf bytes.Buffer
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return err
	}

	dst.Grow(buf.Len())
	copy(dst.Data, buf.Bytes())
	dst.Used = buf.Len()
	dst.Width = src.Width
	dst.Height = src.Height
	dst.Stride = 0
	dst.Format = frame.JPEG
	dst.Key = true // every JPEG frame is intra-coded
	dst.GOP = src.GOP
	dst.Online = src.Online
	dst.GrabTS = src.GrabTS
	dst.EncodeBeginTS = src.EncodeBeginTS
	dst.EncodeEndTS = src.EncodeEndTS
	return nil
}

// yuyvToImage converts a packed YUYV 4:2:2 buffer to an image.YCbCr
// with 4:2:2 subsampling, which image/jpeg encodes without an
// intermediate RGB conversion.
func yuyvToImage(src *frame.Frame) image.Image {
	w, h := int(src.Width), int(src.Height)
	img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio422)

	row := int(src.Stride)
	if row == 0 {
		row = w * 2
	}
	data := src.Data[:src.Used]

	for y := 0; y < h; y++ {
		srcRow := data[y*row:]
		yOff := img.YOffset(0, y)
		cOff := img.COffset(0, y)
		for x := 0; x+1 < w; x += 2 {
			i := x * 2
			if i+3 >= len(srcRow) {
				break
			}
			y0, u, y1, v := srcRow[i], srcRow[i+1], srcRow[i+2], srcRow[i+3]
			img.Y[yOff+x] = y0
			img.Y[yOff+x+1] = y1
			img.Cb[cOff+x/2] = u
			img.Cr[cOff+x/2] = v
		}
	}
	return img
}
