// Command epdassets converts authored PNG artwork into the raw files the
// dashboard loads at startup: the glyph atlas and one icon raster per
// weather category.
package main

import (
	"flag"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"epdweather/internal/convert"
	"epdweather/internal/epd"
	"epdweather/internal/icons"
	appLog "epdweather/internal/log"
	"epdweather/internal/scene"
)

type flagConfig struct {
	glyphs    string
	sheet     string
	iconsDir  string
	out       string
	rotate    float64
	threshold uint
	invert    bool
}

func main() {
	flags := parseFlags()
	if flags.glyphs == "" && flags.iconsDir == "" && flags.sheet == "" {
		fmt.Fprintln(os.Stderr, "epdassets: nothing to do; pass -glyphs, -sheet and/or -icons")
		flag.Usage()
		os.Exit(2)
	}
	if err := os.MkdirAll(flags.out, 0o755); err != nil {
		appLog.Error("failed to create output dir", err, "out", flags.out)
		os.Exit(1)
	}

	if flags.sheet != "" {
		if err := writeSheet(flags.sheet); err != nil {
			appLog.Error("glyph sheet generation failed", err, "sheet", flags.sheet)
			os.Exit(1)
		}
	}
	if flags.glyphs != "" {
		if err := packGlyphs(flags.glyphs, filepath.Join(flags.out, scene.GlyphFile)); err != nil {
			appLog.Error("glyph sheet conversion failed", err, "sheet", flags.glyphs)
			os.Exit(1)
		}
	}
	if flags.iconsDir != "" {
		opts := &convert.Options{
			Rotate:    flags.rotate,
			Threshold: uint8(min(flags.threshold, 255)),
			Invert:    flags.invert,
		}
		if err := packIcons(flags.iconsDir, flags.out, opts); err != nil {
			appLog.Error("icon conversion failed", err, "dir", flags.iconsDir)
			os.Exit(1)
		}
	}
}

// writeSheet renders the built-in glyph sheet to a PNG for hand editing.
func writeSheet(path string) error {
	face, err := convert.DefaultFace()
	if err != nil {
		return err
	}
	if err := imaging.Save(convert.RenderGlyphSheet(face), path); err != nil {
		return err
	}
	appLog.Info("glyph sheet written", "out", path)
	return nil
}

// packGlyphs builds the glyph atlas from a sheet PNG, or from the built-in
// font when sheet is "builtin".
func packGlyphs(sheet, out string) error {
	var img image.Image
	if sheet == "builtin" {
		face, err := convert.DefaultFace()
		if err != nil {
			return err
		}
		img = convert.RenderGlyphSheet(face)
	} else {
		var err error
		if img, err = imaging.Open(sheet); err != nil {
			return err
		}
	}
	raw, err := convert.PackGlyphSheet(img)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, raw, 0o644); err != nil {
		return err
	}
	appLog.Info("glyph atlas written", "out", out, "bytes", len(raw))
	return nil
}

// packIcons converts every <category>.png in dir. Files whose name is not a
// known category are skipped with a warning.
func packIcons(dir, out string, opts *convert.Options) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if _, ok := icons.ParseCategory(name); !ok {
			appLog.Warn("skipping unknown icon", "file", e.Name())
			continue
		}
		img, err := imaging.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		raw, err := convert.Pack(img, epd.Width, epd.Height, opts)
		if err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
		dst := filepath.Join(out, name+icons.Ext)
		if err := os.WriteFile(dst, raw, 0o644); err != nil {
			return err
		}
		appLog.Debug("icon written", "out", dst)
		n++
	}
	appLog.Info("icons written", "count", n, "out", out)
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.glyphs, "glyphs", "", "Glyph sheet PNG (or \"builtin\") to convert into "+scene.GlyphFile)
	flag.StringVar(&cfg.sheet, "sheet", "", "Write the built-in glyph sheet to this PNG for editing")
	flag.StringVar(&cfg.iconsDir, "icons", "", "Directory of <category>.png icons to convert")
	flag.StringVar(&cfg.out, "out", "./assets", "Output directory")
	flag.Float64Var(&cfg.rotate, "rotate", 0, "Rotate icons counter-clockwise by this many degrees")
	flag.UintVar(&cfg.threshold, "threshold", 128, "Luma threshold below which icon pixels are black")
	flag.BoolVar(&cfg.invert, "invert", false, "Invert icon pixels")

	flag.Parse()

	return cfg
}
