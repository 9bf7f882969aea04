// Package scene composes the dashboard frame: a full-panel weather icon with
// the day's minimum temperature in the bottom-left corner and the maximum in
// the bottom-right.
package scene

import (
	"fmt"
	"path/filepath"
	"strconv"

	"epdweather/internal/epd"
	"epdweather/internal/icons"
	"epdweather/internal/log"
	"epdweather/internal/model"
	"epdweather/internal/text"
)

// Text placement. Both strings share the baseline near the bottom edge.
const (
	baseline = 198
	minX     = 0
	maxX     = epd.Width
)

// GlyphFile is the glyph atlas file name inside an assets directory.
const GlyphFile = "glyphs.raw"

// Renderer turns a forecast into a frame buffer.
type Renderer struct {
	icons *icons.Atlas
	text  *text.Compositor
}

// New returns a Renderer drawing icons from ia and digits through tc.
func New(ia *icons.Atlas, tc *text.Compositor) *Renderer {
	return &Renderer{icons: ia, text: tc}
}

// Load reads the glyph atlas and every icon raster from dir.
func Load(dir string) (*Renderer, error) {
	ga, err := text.LoadAtlas(filepath.Join(dir, GlyphFile))
	if err != nil {
		return nil, err
	}
	ia, err := icons.Load(dir, epd.FrameSize)
	if err != nil {
		return nil, err
	}
	return New(ia, text.NewCompositor(ga)), nil
}

// Compositor exposes the text compositor so its rotation can be saved and
// restored across runs.
func (r *Renderer) Compositor() *text.Compositor {
	return r.text
}

// Render returns a new epd.FrameSize buffer showing f. On error no buffer is
// returned and the rotation state is untouched.
func (r *Renderer) Render(f model.Forecast) ([]byte, error) {
	cat := icons.Select(f.Code, f.Day)
	raster, err := r.icons.Raster(cat)
	if err != nil {
		return nil, fmt.Errorf("scene: %w", err)
	}
	buf := make([]byte, epd.FrameSize)
	copy(buf, raster)

	lo, hi := FormatTemp(f.TempMin), FormatTemp(f.TempMax)
	r.text.DrawText(buf, epd.Width, epd.Height, minX, baseline, lo, false)
	r.text.DrawText(buf, epd.Width, epd.Height, maxX, baseline, hi, true)
	log.Debug("scene rendered", "icon", cat, "min", lo, "max", hi)
	return buf, nil
}

// FormatTemp renders a temperature in whole degrees, with a leading minus
// for negatives and no sign otherwise.
func FormatTemp(t int) string {
	return strconv.Itoa(t)
}
