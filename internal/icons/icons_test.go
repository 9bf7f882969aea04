package icons

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestSelect(t *testing.T) {
	tests := []struct {
		code int
		day  bool
		want Category
	}{
		{1000, true, Sun},
		{1000, false, Moon},
		{1003, true, Cloudy},
		{1009, false, Cloudy},
		{1135, true, Mist},
		{1183, true, LightRain},
		{1189, true, MediumRain},
		{1246, true, HeavyRain},
		{1213, true, MediumSnow},
		{1117, true, HeavySnow},
		{1252, true, MediumSleet},
		{1237, true, MediumHail},
		{1264, true, HeavyHail},
		{1276, false, Storm},
		{999, true, Unknown},
		{0, true, Unknown},
		{-1000, false, Unknown},
	}
	for _, tt := range tests {
		if got := Select(tt.code, tt.day); got != tt.want {
			t.Errorf("Select(%d, %v) = %s, want %s", tt.code, tt.day, got, tt.want)
		}
	}
}

func TestSelectIsTotal(t *testing.T) {
	codes := []int{math.MinInt, -1, 0, 1, 1001, 1300, 99999, math.MaxInt}
	for c := 900; c < 1400; c++ {
		codes = append(codes, c)
	}
	for _, code := range codes {
		for _, day := range []bool{true, false} {
			got := Select(code, day)
			if got < 0 || got >= categoryCount {
				t.Fatalf("Select(%d, %v) = %d, out of range", code, day, got)
			}
		}
	}
}

func TestSelectOnlyClearDependsOnDay(t *testing.T) {
	for code := range conditions {
		if Select(code, true) != Select(code, false) {
			t.Errorf("code %d changes with day/night", code)
		}
	}
}

func TestCategoryNames(t *testing.T) {
	for _, c := range Categories() {
		got, ok := ParseCategory(c.String())
		if !ok || got != c {
			t.Errorf("ParseCategory(%q) = %v, %v", c.String(), got, ok)
		}
	}
	if _, ok := ParseCategory("tornado"); ok {
		t.Error("ParseCategory accepted an unknown name")
	}
	if got := Category(42).String(); got != "Category(42)" {
		t.Errorf("String() of invalid category = %q", got)
	}
}

func TestAtlasRaster(t *testing.T) {
	a := NewAtlas(4)
	if err := a.Add(Sun, []byte{1, 2, 3}); !errors.Is(err, ErrRasterSize) {
		t.Errorf("Add(short) err = %v, want ErrRasterSize", err)
	}
	if err := a.Add(Sun, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	r, err := a.Raster(Sun)
	if err != nil || !bytes.Equal(r, []byte{1, 2, 3, 4}) {
		t.Errorf("Raster(Sun) = %v, %v", r, err)
	}
	if _, err := a.Raster(Moon); !errors.Is(err, ErrAssetMissing) {
		t.Errorf("Raster(Moon) err = %v, want ErrAssetMissing", err)
	}
}

func writeRasters(t *testing.T, dir string, size int, skip Category) {
	t.Helper()
	for _, c := range Categories() {
		if c == skip {
			continue
		}
		raw := bytes.Repeat([]byte{byte(c)}, size)
		if err := os.WriteFile(filepath.Join(dir, c.String()+".raw"), raw, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeRasters(t, dir, 8, Unknown)

	a, err := Load(dir, 8)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	r, err := a.Raster(Storm)
	if err != nil || r[0] != byte(Storm) {
		t.Errorf("Raster(Storm) = %v, %v", r, err)
	}
	u, err := a.Raster(Unknown)
	if err != nil || !bytes.Equal(u, bytes.Repeat([]byte{0xFF}, 8)) {
		t.Errorf("Unknown without unknown.raw = %v, %v; want blank", u, err)
	}
}

func TestLoadMissingConditionIcon(t *testing.T) {
	dir := t.TempDir()
	writeRasters(t, dir, 8, Mist)
	if _, err := Load(dir, 8); err == nil {
		t.Error("Load succeeded without mist.raw")
	}
}

func TestLoadWrongSize(t *testing.T) {
	dir := t.TempDir()
	writeRasters(t, dir, 7, -1)
	if _, err := Load(dir, 8); !errors.Is(err, ErrRasterSize) {
		t.Errorf("Load err = %v, want ErrRasterSize", err)
	}
}
