// Package state persists what must survive a restart: the glyph rotation,
// so that wear keeps spreading across variants, and the last forecast that
// reached the panel, so an unchanged forecast is not redrawn.
package state

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"epdweather/internal/config"
	"epdweather/internal/model"
	"epdweather/internal/text"
)

// State is the persisted document.
type State struct {
	Rotation     []int           `yaml:"rotation"`
	LastForecast *model.Forecast `yaml:"last_forecast,omitempty"`
}

// TextRotation converts the stored counters. Missing entries are zero and
// values wrap into range.
func (s State) TextRotation() text.Rotation {
	var r text.Rotation
	for i := 0; i < len(r) && i < len(s.Rotation); i++ {
		v := s.Rotation[i] % text.IndexCount
		if v < 0 {
			v += text.IndexCount
		}
		r[i] = uint8(v)
	}
	return r
}

// SetTextRotation stores r.
func (s *State) SetTextRotation(r text.Rotation) {
	s.Rotation = make([]int, len(r))
	for i, v := range r {
		s.Rotation[i] = int(v)
	}
}

// Load reads the state file. A missing file yields the zero state.
func Load(path string) (State, error) {
	var st State
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return st, nil
		}
		return st, fmt.Errorf("state: %w", err)
	}
	if err := yaml.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("state: parse %s: %w", path, err)
	}
	return st, nil
}

// Save writes st atomically.
func Save(path string, st State) error {
	data, err := yaml.Marshal(&st)
	if err != nil {
		return fmt.Errorf("state: %w", err)
	}
	if err := config.WriteFileAtomic(path, data, ".epdweather-state-*.tmp"); err != nil {
		return fmt.Errorf("state: save %s: %w", path, err)
	}
	return nil
}

// Store is a state file at a fixed path.
type Store struct {
	Path string
}

func (s Store) Load() (State, error) { return Load(s.Path) }

func (s Store) Save(st State) error { return Save(s.Path, st) }
