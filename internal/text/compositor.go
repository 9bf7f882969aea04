package text

// Glyph cells are authored with the string origin 16px in from the left
// edge and the baseline 48px down from the top.
const (
	originX   = 16
	baselineY = 48
)

// Rotation holds, per symbol, the variant that the next occurrence of that
// symbol will use.
type Rotation [SymbolCount]uint8

// Compositor draws strings and owns the variant rotation state. It is not
// safe for concurrent use.
type Compositor struct {
	atlas *Atlas
	rot   Rotation
}

// NewCompositor returns a Compositor drawing from atlas, with every symbol
// starting at variant 0.
func NewCompositor(atlas *Atlas) *Compositor {
	return &Compositor{atlas: atlas}
}

// Rotation returns a copy of the current rotation state.
func (c *Compositor) Rotation() Rotation {
	return c.rot
}

// SetRotation replaces the rotation state, e.g. with one restored from disk.
// Out of range values wrap.
func (c *Compositor) SetRotation(r Rotation) {
	for i := range r {
		r[i] %= IndexCount
	}
	c.rot = r
}

// TextWidth is TextWidth; rotation never changes a string's width.
func (c *Compositor) TextWidth(s string) int {
	return TextWidth(s)
}

type placedGlyph struct {
	sym, variant, x int
}

// DrawText draws s into buf (bufW x bufH, packed 1bpp) with its baseline
// origin at (x, y). With rightAlign, x is the right edge and the string
// grows leftward. Characters without a glyph are skipped.
//
// The clear plane of the whole string goes down before any of its set
// plane, so a neighbour's white halo never erases a stroke that was already
// drawn. The rotation state is updated only once both passes are done.
func (c *Compositor) DrawText(buf []byte, bufW, bufH, x, y int, s string, rightAlign bool) {
	x -= originX
	y -= baselineY
	if rightAlign {
		x -= TextWidth(s)
	}

	next := c.rot
	glyphs := make([]placedGlyph, 0, len(s))
	for i := 0; i < len(s); i++ {
		sym := symbolOf(s[i])
		if sym < 0 {
			continue
		}
		glyphs = append(glyphs, placedGlyph{sym: sym, variant: int(next[sym]), x: x})
		x += widths[sym]
		next[sym] = (next[sym] + 1) % IndexCount
	}

	for _, g := range glyphs {
		blitGlyph(buf, bufW, bufH, g.x, y, c.atlas, g.sym, g.variant, false)
	}
	for _, g := range glyphs {
		blitGlyph(buf, bufW, bufH, g.x, y, c.atlas, g.sym, g.variant, true)
	}

	c.rot = next
}
