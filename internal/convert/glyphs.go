package convert

import (
	"fmt"
	"image"
	"image/color"

	"epdweather/internal/text"
)

// Glyph sheet geometry: one column per symbol, one row per variant.
const (
	SheetWidth  = text.SymbolCount * text.GlyphWidth
	SheetHeight = text.IndexCount * text.GlyphHeight
)

// ClassifyGlyphPixel maps an authored pixel: transparent or mid-gray
// pixels leave the panel alone, dark ones force black and light ones force
// white.
func ClassifyGlyphPixel(c color.Color) text.Pixel {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	if n.A < 128 {
		return text.Transparent
	}
	switch y := luma(n); {
	case y < 64:
		return text.ForceBlack
	case y > 192:
		return text.ForceWhite
	}
	return text.Transparent
}

// PackGlyphSheet builds a glyph atlas from a SheetWidth x SheetHeight image.
// Symbol s, variant v is the 64x64 cell at (s*64, v*64).
func PackGlyphSheet(img image.Image) ([]byte, error) {
	b := img.Bounds()
	if b.Dx() != SheetWidth || b.Dy() != SheetHeight {
		return nil, fmt.Errorf("convert: glyph sheet is %dx%d, want %dx%d", b.Dx(), b.Dy(), SheetWidth, SheetHeight)
	}
	raw := text.NewAtlasBuffer()
	var cell text.Cell
	for sym := 0; sym < text.SymbolCount; sym++ {
		for v := 0; v < text.IndexCount; v++ {
			for gy := 0; gy < text.GlyphHeight; gy++ {
				for gx := 0; gx < text.GlyphWidth; gx++ {
					c := img.At(b.Min.X+sym*text.GlyphWidth+gx, b.Min.Y+v*text.GlyphHeight+gy)
					cell[gy][gx] = ClassifyGlyphPixel(c)
				}
			}
			if err := text.EncodeCell(raw, sym, v, &cell); err != nil {
				return nil, err
			}
		}
	}
	return raw, nil
}
