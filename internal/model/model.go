package model

import "time"

// Forecast is the slice of a daily forecast that the dashboard shows.
//
// Day is an explicit input: nothing in the render path derives it from the
// clock or from sunrise/sunset data.
type Forecast struct {
	Day     bool `yaml:"day" json:"day"`
	Code    int  `yaml:"code" json:"code"`
	TempMin int  `yaml:"temp_min" json:"temp_min"`
	TempMax int  `yaml:"temp_max" json:"temp_max"`

	// Informational only; not part of change detection.
	Location  string    `yaml:"location,omitempty" json:"location,omitempty"`
	FetchedAt time.Time `yaml:"fetched_at,omitempty" json:"fetched_at"`
}

// SameDisplay reports whether f and o would render the same image.
func (f Forecast) SameDisplay(o Forecast) bool {
	return f.Day == o.Day &&
		f.Code == o.Code &&
		f.TempMin == o.TempMin &&
		f.TempMax == o.TempMax
}
