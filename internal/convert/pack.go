// Package convert moves between images and the panel's packed 1bpp layout:
// fitting artwork into icon rasters, building the glyph atlas from a sheet,
// and turning frame buffers back into PNG previews.
package convert

import (
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
)

// Options tunes Pack.
type Options struct {
	// Rotate turns the source counter-clockwise by this many degrees before
	// fitting.
	Rotate float64
	// Threshold is the luma below which a pixel becomes black. Zero means 128.
	Threshold uint8
	// Invert swaps black and white for opaque pixels after thresholding.
	Invert bool
}

// Pack scales img to fit a w x h canvas (keeping its aspect ratio, centred
// on white) and packs it 1bpp:
//
//	byteIndex = y*(w/8) + x>>3
//	mask      = 0x80 >> (x & 7)
//
// A 0 bit is black. Pixels with alpha below 128 are white. w must be a
// multiple of 8.
func Pack(img image.Image, w, h int, opts *Options) ([]byte, error) {
	if w <= 0 || h <= 0 || w%8 != 0 {
		return nil, fmt.Errorf("convert: bad canvas %dx%d", w, h)
	}
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.Threshold == 0 {
		o.Threshold = 128
	}

	src := img
	if o.Rotate != 0 {
		src = imaging.Rotate(src, o.Rotate, color.Transparent)
	}
	fit := imaging.Fit(src, w, h, imaging.Lanczos)
	final := imaging.PasteCenter(imaging.New(w, h, color.Transparent), fit)

	stride := w / 8
	out := make([]byte, stride*h)
	for i := range out {
		out[i] = 0xFF
	}
	for y := 0; y < h; y++ {
		row := y * final.Stride
		for x := 0; x < w; x++ {
			i := row + x*4
			c := color.NRGBA{R: final.Pix[i], G: final.Pix[i+1], B: final.Pix[i+2], A: final.Pix[i+3]}
			ink := classifyPixel(c, o.Threshold)
			if o.Invert && c.A >= 128 {
				ink = !ink
			}
			if ink {
				out[y*stride+x>>3] &^= 0x80 >> (x & 7)
			}
		}
	}
	return out, nil
}

// classifyPixel reports whether c should be inked black.
func classifyPixel(c color.NRGBA, threshold uint8) bool {
	if c.A < 128 {
		return false
	}
	return luma(c) < float64(threshold)
}

// luma is perceptual brightness, Y = 0.299R + 0.587G + 0.114B.
func luma(c color.NRGBA) float64 {
	return 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
}

// Unpack expands a packed 1bpp buffer into a grayscale image. Bytes missing
// from a short buffer read as white.
func Unpack(buf []byte, w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	stride := w / 8
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(0xFF)
			i := y*stride + x>>3
			if i < len(buf) && buf[i]&(0x80>>(x&7)) == 0 {
				v = 0
			}
			img.Pix[y*img.Stride+x] = v
		}
	}
	return img
}

// EncodePNG writes buf (w x h, packed 1bpp) as a PNG.
func EncodePNG(out io.Writer, buf []byte, w, h int) error {
	return imaging.Encode(out, Unpack(buf, w, h), imaging.PNG)
}
