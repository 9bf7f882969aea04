package state

import (
	"os"
	"path/filepath"
	"testing"

	"epdweather/internal/model"
	"epdweather/internal/text"
)

func TestLoadMissing(t *testing.T) {
	st, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if st.LastForecast != nil || st.TextRotation() != (text.Rotation{}) {
		t.Errorf("missing file gave %+v", st)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "var", "state.yaml")
	var r text.Rotation
	r[0], r[11], r[12] = 3, 7, 1

	var st State
	st.SetTextRotation(r)
	st.LastForecast = &model.Forecast{Day: true, Code: 1189, TempMin: -2, TempMax: 6}
	if err := (Store{Path: path}).Save(st); err != nil {
		t.Fatal(err)
	}

	got, err := Store{Path: path}.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.TextRotation() != r {
		t.Errorf("rotation = %v, want %v", got.TextRotation(), r)
	}
	if got.LastForecast == nil || !got.LastForecast.SameDisplay(*st.LastForecast) {
		t.Errorf("last forecast = %+v", got.LastForecast)
	}
}

func TestTextRotationWraps(t *testing.T) {
	st := State{Rotation: []int{9, -1, 8}}
	r := st.TextRotation()
	if r[0] != 1 || r[1] != 7 || r[2] != 0 || r[3] != 0 {
		t.Errorf("TextRotation = %v", r)
	}
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	if err := os.WriteFile(path, []byte("rotation: {"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load accepted a corrupt file")
	}
}
