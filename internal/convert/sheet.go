package convert

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"epdweather/internal/text"
)

// Cell geometry shared with the compositor: the pen starts 16px in from the
// left of a cell and the baseline sits 48px down.
const (
	cellOriginX  = 16
	cellBaseline = 48
	// backing box above and below the baseline that is forced white
	boxAscent  = 44
	boxDescent = 6
)

// sheetRunes lists the character drawn for each symbol id.
var sheetRunes = [text.SymbolCount]string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "+", "-", "°"}

// variantOffsets nudges each variant so consecutive refreshes drive
// slightly different pixels.
var variantOffsets = [text.IndexCount]image.Point{
	{0, 0}, {1, 0}, {0, 1}, {1, 1}, {-1, 0}, {0, -1}, {-1, -1}, {1, -1},
}

// DefaultFace returns Go Mono Bold at a size that fills a glyph cell.
func DefaultFace() (font.Face, error) {
	f, err := opentype.Parse(gomonobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("convert: parse font: %w", err)
	}
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    40,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// RenderGlyphSheet draws a SheetWidth x SheetHeight glyph sheet with face.
// Each symbol sits on a white box as wide as its advance, so digits stay
// readable over an icon; the rest of the cell is transparent. The result
// feeds straight into PackGlyphSheet.
func RenderGlyphSheet(face font.Face) *image.NRGBA {
	sheet := image.NewNRGBA(image.Rect(0, 0, SheetWidth, SheetHeight))
	for sym := 0; sym < text.SymbolCount; sym++ {
		adv := font.MeasureString(face, sheetRunes[sym]).Round()
		for v := 0; v < text.IndexCount; v++ {
			cell := image.Rect(0, 0, text.GlyphWidth, text.GlyphHeight).
				Add(image.Pt(sym*text.GlyphWidth, v*text.GlyphHeight))
			box := image.Rect(cellOriginX, cellBaseline-boxAscent, cellOriginX+text.Width(sym), cellBaseline+boxDescent).
				Add(cell.Min).Intersect(cell)
			draw.Draw(sheet, box, image.White, image.Point{}, draw.Src)

			off := variantOffsets[v]
			d := &font.Drawer{
				Dst:  clipped{sheet, box},
				Src:  image.Black,
				Face: face,
				Dot: fixed.P(
					box.Min.X+(text.Width(sym)-adv)/2+off.X,
					cell.Min.Y+cellBaseline+off.Y,
				),
			}
			d.DrawString(sheetRunes[sym])
		}
	}
	return sheet
}

// clipped limits drawing to r so a wide glyph never bleeds into its
// neighbour's cell.
type clipped struct {
	*image.NRGBA
	r image.Rectangle
}

func (c clipped) Set(x, y int, col color.Color) {
	if image.Pt(x, y).In(c.r) {
		c.NRGBA.Set(x, y, col)
	}
}

func (c clipped) Bounds() image.Rectangle { return c.r }
