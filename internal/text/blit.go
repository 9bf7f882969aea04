package text

// shiftRow spreads one 8-byte glyph row across 9 buffer bytes, moved right
// by shift (0..7) bits. Each output byte takes the low shift bits of the
// previous source byte as its high bits:
//
//	out[i] = prev<<(8-shift) | src[i]>>shift
//
// fill stands in for the bytes before and after the row, so it must be the
// plane's no-op value (0x00 for clear, 0xFF for set).
func shiftRow(src [cellColumns]byte, shift uint, fill byte) [cellColumns + 1]byte {
	var out [cellColumns + 1]byte
	prev := fill
	for i := range out {
		cur := fill
		if i < cellColumns {
			cur = src[i]
		}
		out[i] = prev<<(8-shift) | cur>>shift
		prev = cur
	}
	return out
}

// combineClear forces white where mask has 1 bits.
func combineClear(dst, mask byte) byte { return dst | mask }

// combineSet forces black where mask has 0 bits.
func combineSet(dst, mask byte) byte { return dst & mask }

// blitGlyph composites one plane of a glyph cell whose top-left corner is at
// (x, y). Anything that falls outside the buffer is dropped.
func blitGlyph(buf []byte, bufW, bufH, x, y int, a *Atlas, sym, variant int, set bool) {
	stride := bufW / 8
	xbytes := x >> 3
	shift := uint(x & 7)

	fill := byte(0x00)
	combine := combineClear
	if set {
		fill = 0xFF
		combine = combineSet
	}

	for gy := 0; gy < GlyphHeight; gy++ {
		py := y + gy
		if py < 0 || py >= bufH {
			continue
		}
		src, ok := a.planeRow(sym, variant, gy, set)
		if !ok {
			return
		}
		out := shiftRow(src, shift, fill)
		for gx, b := range out {
			col := xbytes + gx
			if col < 0 || col >= stride {
				continue
			}
			i := col + stride*py
			if i < 0 || i >= len(buf) {
				continue
			}
			buf[i] = combine(buf[i], b)
		}
	}
}
