package epd

import "fmt"

// LUT is a 30 byte waveform table loaded by Initialize.
type LUT [30]byte

// FullUpdate redraws every pixel through several black/white cycles. It is
// slow and flashes but leaves no ghosting.
var FullUpdate = LUT{
	0x02, 0x02, 0x01, 0x11, 0x12, 0x12, 0x22, 0x22,
	0x66, 0x69, 0x69, 0x59, 0x58, 0x99, 0x99, 0x88,
	0x00, 0x00, 0x00, 0x00, 0xF8, 0xB4, 0x13, 0x51,
	0x35, 0x51, 0x51, 0x19, 0x01, 0x00,
}

// PartialUpdate only drives pixels that changed.
var PartialUpdate = LUT{
	0x10, 0x18, 0x18, 0x08, 0x18, 0x18, 0x08, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x13, 0x14, 0x44, 0x12,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// ParseLUT maps "full" or "partial" to its table.
func ParseLUT(name string) (LUT, error) {
	switch name {
	case "", "full":
		return FullUpdate, nil
	case "partial":
		return PartialUpdate, nil
	}
	return LUT{}, fmt.Errorf("epd: unknown lut %q", name)
}
