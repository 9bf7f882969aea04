// Package icons maps weather condition codes to full-panel icon rasters.
package icons

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Ext is the file extension of an icon raster.
const Ext = ".raw"

// Category is one icon of the dashboard.
type Category int

const (
	Unknown Category = iota
	Sun
	Moon
	Cloudy
	Mist
	LightRain
	MediumHail
	MediumRain
	MediumSleet
	MediumSnow
	HeavyRain
	HeavyHail
	HeavySnow
	Storm

	categoryCount
)

var categoryNames = [categoryCount]string{
	Unknown:     "unknown",
	Sun:         "sun",
	Moon:        "moon",
	Cloudy:      "cloudy",
	Mist:        "mist",
	LightRain:   "light_rain",
	MediumHail:  "medium_hail",
	MediumRain:  "medium_rain",
	MediumSleet: "medium_sleet",
	MediumSnow:  "medium_snow",
	HeavyRain:   "heavy_rain",
	HeavyHail:   "heavy_hail",
	HeavySnow:   "heavy_snow",
	Storm:       "storm",
}

// String returns the asset name of c, e.g. "light_rain".
func (c Category) String() string {
	if c < 0 || c >= categoryCount {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryNames[c]
}

// Categories lists every category, Unknown first.
func Categories() []Category {
	out := make([]Category, categoryCount)
	for i := range out {
		out[i] = Category(i)
	}
	return out
}

// ParseCategory is the inverse of String.
func ParseCategory(name string) (Category, bool) {
	for i, n := range categoryNames {
		if n == name {
			return Category(i), true
		}
	}
	return Unknown, false
}

// conditions maps weatherapi.com condition codes to icons. 1000 (clear) is
// handled separately since it depends on day/night.
var conditions = map[int]Category{
	1003: Cloudy, // Partly cloudy
	1006: Cloudy, // Cloudy
	1009: Cloudy, // Overcast

	1030: Mist, // Mist
	1135: Mist, // Fog
	1147: Mist, // Freezing fog

	1063: LightRain, // Patchy rain nearby
	1150: LightRain, // Patchy light drizzle
	1153: LightRain, // Patchy drizzle
	1168: LightRain, // Freezing drizzle
	1180: LightRain, // Patchy light rain
	1183: LightRain, // Light rain
	1240: LightRain, // Light rain shower

	1069: MediumSleet, // Patchy sleet nearby
	1204: MediumSleet, // Light sleet
	1207: MediumSleet, // Moderate or heavy sleet
	1249: MediumSleet, // Light sleet showers
	1252: MediumSleet, // Moderate or heavy sleet showers

	1072: MediumRain, // Patchy fleeting drizzle nearby
	1171: MediumRain, // Heavy freezing drizzle
	1186: MediumRain, // Moderate rain at times
	1189: MediumRain, // Moderate rain

	1192: HeavyRain, // Heavy rain at times
	1195: HeavyRain, // Heavy rain
	1201: HeavyRain, // Moderate or heavy freezing rain
	1243: HeavyRain, // Moderate or heavy rain shower
	1246: HeavyRain, // Torrential rain shower

	1087: Storm, // Thundery outbreaks nearby
	1273: Storm, // Patchy light rain with thunder
	1276: Storm, // Moderate or heavy rain with thunder

	// There is no light snow artwork; light snow uses the medium icon.
	1066: MediumSnow, // Patchy snow nearby
	1114: MediumSnow, // Blowing snow
	1210: MediumSnow, // Patchy light snow
	1213: MediumSnow, // Light snow
	1216: MediumSnow, // Patchy moderate snow
	1255: MediumSnow, // Light snow showers
	1279: MediumSnow, // Patchy light snow with thunder

	1117: HeavySnow, // Blizzard
	1219: HeavySnow, // Moderate snow
	1222: HeavySnow, // Patchy heavy snow
	1225: HeavySnow, // Heavy snow
	1258: HeavySnow, // Moderate or heavy snow showers
	1282: HeavySnow, // Moderate or heavy snow with thunder

	1237: MediumHail, // Ice pellets
	1264: HeavyHail,  // Moderate or heavy showers of ice pellets
}

// Select picks the icon for a condition code. It is defined for every
// input; codes it does not know map to Unknown.
func Select(code int, day bool) Category {
	if code == 1000 {
		if day {
			return Sun
		}
		return Moon
	}
	if c, ok := conditions[code]; ok {
		return c
	}
	return Unknown
}

var (
	// ErrAssetMissing means a category has no raster behind it.
	ErrAssetMissing = errors.New("icons: asset missing")
	// ErrRasterSize means a raster does not cover the full panel.
	ErrRasterSize = errors.New("icons: raster has wrong size")
)

// Atlas holds one full-panel raster per category.
type Atlas struct {
	size    int
	rasters map[Category][]byte
}

// NewAtlas returns an empty atlas for rasters of size bytes.
func NewAtlas(size int) *Atlas {
	return &Atlas{size: size, rasters: make(map[Category][]byte)}
}

// Add registers raster for c.
func (a *Atlas) Add(c Category, raster []byte) error {
	if len(raster) != a.size {
		return fmt.Errorf("%w: %s is %d bytes, want %d", ErrRasterSize, c, len(raster), a.size)
	}
	a.rasters[c] = raster
	return nil
}

// Raster returns the raster for c. The returned slice must not be modified.
func (a *Atlas) Raster(c Category) ([]byte, error) {
	r, ok := a.rasters[c]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetMissing, c)
	}
	return r, nil
}

// Load reads "<category>.raw" for every category from dir. All condition
// icons are required. unknown.raw is optional; without it the Unknown icon
// is a blank (white) panel so that unmapped codes still render their
// temperatures.
func Load(dir string, size int) (*Atlas, error) {
	a := NewAtlas(size)
	for _, c := range Categories() {
		path := filepath.Join(dir, c.String()+Ext)
		raw, err := os.ReadFile(path)
		if err != nil {
			if c == Unknown && errors.Is(err, os.ErrNotExist) {
				raw = blank(size)
			} else {
				return nil, fmt.Errorf("icons: load %s: %w", c, err)
			}
		}
		if err := a.Add(c, raw); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func blank(size int) []byte {
	raw := make([]byte, size)
	for i := range raw {
		raw[i] = 0xFF
	}
	return raw
}
