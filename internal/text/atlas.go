// Package text draws the hand-drawn digit font onto a packed 1bpp frame
// buffer.
//
// Glyphs come from a single atlas blob: 13 symbols side by side, 8 variants
// stacked vertically, each cell 64x64 pixels with two bit-planes per pixel.
// Inside an atlas row the bytes for one 8-pixel column are interleaved as
// (set, clear):
//
//	set   plane: 0 = force black, 1 = leave alone (ANDed into the buffer)
//	clear plane: 1 = force white, 0 = leave alone (ORed into the buffer)
//
// Variants exist only to vary which exact pixels get driven at a screen
// position from one refresh to the next, which keeps e-paper ghosting down.
package text

import (
	"errors"
	"fmt"
	"os"
)

const (
	SymbolCount = 13
	IndexCount  = 8
	GlyphWidth  = 64
	GlyphHeight = 64

	// atlasRowSize is the number of bytes in one pixel row of the atlas.
	atlasRowSize = SymbolCount * GlyphWidth * 2 / 8
	// AtlasSize is the exact length of a glyph atlas blob.
	AtlasSize = atlasRowSize * GlyphHeight * IndexCount

	cellColumns = GlyphWidth / 8
)

// ErrAtlasSize is returned when a glyph atlas blob does not have the fixed
// layout size.
var ErrAtlasSize = errors.New("text: glyph atlas has wrong size")

// widths is the advance of each symbol in pixels.
var widths = [SymbolCount]int{38, 16, 30, 28, 24, 30, 25, 25, 28, 28, 26, 32, 22}

// symbolOf maps a character to its symbol id, or -1 when the font has no
// glyph for it. '*' is the degree sign.
func symbolOf(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c == '+':
		return 10
	case c == '-':
		return 11
	case c == '*':
		return 12
	default:
		return -1
	}
}

// Width returns the advance of symbol id sym, or 0 for an unknown id.
func Width(sym int) int {
	if sym < 0 || sym >= SymbolCount {
		return 0
	}
	return widths[sym]
}

// TextWidth returns the total advance of s in pixels. Characters without a
// glyph count as zero.
func TextWidth(s string) int {
	w := 0
	for i := 0; i < len(s); i++ {
		w += Width(symbolOf(s[i]))
	}
	return w
}

// Atlas is a read-only glyph atlas.
type Atlas struct {
	raw []byte
}

// NewAtlas wraps raw, which must be exactly AtlasSize bytes. The slice is
// not copied.
func NewAtlas(raw []byte) (*Atlas, error) {
	if len(raw) != AtlasSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrAtlasSize, len(raw), AtlasSize)
	}
	return &Atlas{raw: raw}, nil
}

// LoadAtlas reads a glyph atlas blob from disk.
func LoadAtlas(path string) (*Atlas, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("text: read atlas: %w", err)
	}
	return NewAtlas(raw)
}

// cellOffset is the index of the first set-plane byte of a cell.
func cellOffset(sym, variant int) int {
	return sym*GlyphWidth*2/8 + variant*GlyphHeight*atlasRowSize
}

// planeRow returns row gy of one plane of a cell. ok is false when the cell
// is outside the atlas.
func (a *Atlas) planeRow(sym, variant, gy int, set bool) (row [cellColumns]byte, ok bool) {
	if a == nil || sym < 0 || sym >= SymbolCount || variant < 0 || variant >= IndexCount {
		return row, false
	}
	base := cellOffset(sym, variant) + gy*atlasRowSize
	if !set {
		base++
	}
	if base+2*(cellColumns-1) >= len(a.raw) {
		return row, false
	}
	for gx := range row {
		row[gx] = a.raw[base+2*gx]
	}
	return row, true
}

// Pixel is how a glyph pixel affects the buffer beneath it.
type Pixel uint8

const (
	Transparent Pixel = iota
	ForceBlack
	ForceWhite
)

func (p Pixel) String() string {
	switch p {
	case Transparent:
		return "transparent"
	case ForceBlack:
		return "black"
	case ForceWhite:
		return "white"
	default:
		return fmt.Sprintf("Pixel(%d)", uint8(p))
	}
}

// Cell is one glyph variant as authored, indexed [y][x].
type Cell [GlyphHeight][GlyphWidth]Pixel

// NewAtlasBuffer returns an AtlasSize blob in which every pixel is
// Transparent.
func NewAtlasBuffer() []byte {
	raw := make([]byte, AtlasSize)
	for i := 0; i < len(raw); i += 2 {
		raw[i] = 0xFF
	}
	return raw
}

// EncodeCell writes cell into raw as variant of symbol sym.
func EncodeCell(raw []byte, sym, variant int, cell *Cell) error {
	if len(raw) != AtlasSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrAtlasSize, len(raw), AtlasSize)
	}
	if sym < 0 || sym >= SymbolCount || variant < 0 || variant >= IndexCount {
		return fmt.Errorf("text: cell (%d, %d) out of range", sym, variant)
	}
	base := cellOffset(sym, variant)
	for gy := 0; gy < GlyphHeight; gy++ {
		for gx := 0; gx < cellColumns; gx++ {
			set, clr := byte(0xFF), byte(0x00)
			for bit := 0; bit < 8; bit++ {
				mask := byte(0x80) >> bit
				switch cell[gy][gx*8+bit] {
				case ForceBlack:
					set &^= mask
				case ForceWhite:
					clr |= mask
				}
			}
			i := base + gy*atlasRowSize + 2*gx
			raw[i] = set
			raw[i+1] = clr
		}
	}
	return nil
}
