// Package pipeline runs one refresh cycle: fetch the forecast, render it,
// push the frame to the panel and put the panel back to sleep.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"epdweather/internal/battery"
	"epdweather/internal/convert"
	"epdweather/internal/epd"
	appLog "epdweather/internal/log"
	"epdweather/internal/model"
	"epdweather/internal/state"
	"epdweather/internal/text"
)

// Fetcher retrieves the current forecast.
type Fetcher interface {
	Fetch(ctx context.Context) (model.Forecast, error)
}

// Renderer turns a forecast into an epd.FrameSize buffer.
type Renderer interface {
	Render(f model.Forecast) ([]byte, error)
}

// Panel is the part of *epd.Dev the pipeline drives.
type Panel interface {
	Initialize(lut epd.LUT) error
	WriteFullFrame(buf []byte) error
	Display() error
	WaitBusy() error
	Sleep() error
}

// Resetter pulses the panel's hardware reset line. The controller only
// leaves deep sleep through a reset.
type Resetter interface {
	Reset() error
}

// Rotator is the glyph rotation state, normally a *text.Compositor.
type Rotator interface {
	Rotation() text.Rotation
	SetRotation(r text.Rotation)
}

// Store persists state between runs.
type Store interface {
	Load() (state.State, error)
	Save(st state.State) error
}

// Pipeline wires the collaborators together. Fetcher and Renderer are
// required; the rest are optional. A nil Panel behaves like RenderOnly.
type Pipeline struct {
	Fetcher  Fetcher
	Renderer Renderer
	Panel    Panel
	Reset    Resetter
	Rotation Rotator
	Store    Store
	Battery  battery.Reader

	// Retries is the number of fetch+draw attempts per cycle (default 1).
	Retries int
	// RetryDelay separates attempts.
	RetryDelay time.Duration
	// LUT is loaded on every wake-up; the zero value means epd.FullUpdate.
	LUT epd.LUT
	// RenderOnly renders without touching the panel.
	RenderOnly bool
	// DumpDir, if set, receives a PNG of every rendered frame.
	DumpDir string

	runMu sync.Mutex // one cycle at a time

	mu     sync.RWMutex
	last   *model.Forecast
	frame  []byte
	status Status
}

// Result describes one cycle.
type Result struct {
	Forecast model.Forecast `json:"forecast"`
	Attempts int            `json:"attempts"`
	// Drawn is true when a new frame reached the panel (or was rendered,
	// with RenderOnly).
	Drawn bool `json:"drawn"`
	// Unchanged is true when the forecast matched the one on the panel and
	// nothing was redrawn.
	Unchanged bool `json:"unchanged"`
}

// Status is a snapshot for the status API.
type Status struct {
	LastRun     time.Time       `json:"last_run"`
	LastSuccess time.Time       `json:"last_success"`
	LastError   string          `json:"last_error,omitempty"`
	LastResult  *Result         `json:"last_result,omitempty"`
	Displayed   *model.Forecast `json:"displayed,omitempty"`
	Battery     *battery.Status `json:"battery,omitempty"`
	Rotation    []int           `json:"rotation,omitempty"`
	Running     bool            `json:"running"`
}

// Restore loads persisted state: the glyph rotation and the forecast that
// is currently on the panel.
func (p *Pipeline) Restore() error {
	if p.Store == nil {
		return nil
	}
	st, err := p.Store.Load()
	if err != nil {
		return err
	}
	p.mu.Lock()
	if p.Rotation != nil {
		p.Rotation.SetRotation(st.TextRotation())
		p.status.Rotation = rotationInts(p.Rotation.Rotation())
	}
	p.last = st.LastForecast
	p.status.Displayed = st.LastForecast
	p.mu.Unlock()
	appLog.Debug("state restored", "has_forecast", st.LastForecast != nil)
	return nil
}

// RunOnce runs a cycle, skipping the redraw if the forecast is unchanged.
func (p *Pipeline) RunOnce(ctx context.Context) (Result, error) {
	return p.run(ctx, false)
}

// Redraw runs a cycle that always draws.
func (p *Pipeline) Redraw(ctx context.Context) (Result, error) {
	return p.run(ctx, true)
}

func (p *Pipeline) run(ctx context.Context, force bool) (Result, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	start := time.Now()
	p.mu.Lock()
	p.status.Running = true
	p.status.LastRun = start
	p.mu.Unlock()

	appLog.Info("refresh cycle start", "force", force)
	p.logBattery(ctx)

	res, err := p.attempt(ctx, force)

	p.mu.Lock()
	p.status.Running = false
	p.status.LastResult = &res
	if err != nil {
		p.status.LastError = err.Error()
	} else {
		p.status.LastError = ""
		p.status.LastSuccess = time.Now()
	}
	p.mu.Unlock()

	if err != nil {
		appLog.Error("refresh cycle failed", err, "attempts", res.Attempts, "elapsed", time.Since(start).Round(time.Millisecond))
		return res, err
	}
	appLog.Info("refresh cycle done", "drawn", res.Drawn, "unchanged", res.Unchanged,
		"attempts", res.Attempts, "elapsed", time.Since(start).Round(time.Millisecond))
	return res, nil
}

func (p *Pipeline) attempt(ctx context.Context, force bool) (Result, error) {
	retries := p.Retries
	if retries < 1 {
		retries = 1
	}
	var res Result
	var lastErr error
	for i := 1; i <= retries; i++ {
		if i > 1 {
			t := time.NewTimer(p.RetryDelay)
			select {
			case <-ctx.Done():
				t.Stop()
				return res, errors.Join(lastErr, ctx.Err())
			case <-t.C:
			}
		}
		res.Attempts = i

		f, err := p.Fetcher.Fetch(ctx)
		if err != nil {
			lastErr = err
			appLog.Warn("forecast fetch failed", "attempt", i, "err", err)
			continue
		}
		res.Forecast = f

		if !force && p.unchanged(f) {
			appLog.Info("forecast unchanged; keeping panel as is", "code", f.Code, "min", f.TempMin, "max", f.TempMax)
			res.Unchanged = true
			return res, nil
		}

		if err := p.draw(f); err != nil {
			lastErr = err
			appLog.Warn("draw failed", "attempt", i, "err", err)
			continue
		}
		res.Drawn = true
		return res, nil
	}
	return res, fmt.Errorf("pipeline: giving up after %d attempts: %w", res.Attempts, lastErr)
}

func (p *Pipeline) unchanged(f model.Forecast) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last != nil && p.last.SameDisplay(f)
}

// draw renders f and shows it. The rotation advanced by rendering is rolled
// back if the frame never reaches the panel.
func (p *Pipeline) draw(f model.Forecast) error {
	var before text.Rotation
	if p.Rotation != nil {
		before = p.Rotation.Rotation()
	}

	frame, err := p.Renderer.Render(f)
	if err != nil {
		return err
	}
	p.dump(frame)

	renderOnly := p.RenderOnly || p.Panel == nil
	if !renderOnly {
		if err := p.show(frame); err != nil {
			if p.Rotation != nil {
				p.Rotation.SetRotation(before)
			}
			return err
		}
	}

	p.mu.Lock()
	shown := f
	p.last = &shown
	p.frame = frame
	p.status.Displayed = &shown
	if p.Rotation != nil {
		p.status.Rotation = rotationInts(p.Rotation.Rotation())
	}
	p.mu.Unlock()

	if !renderOnly {
		p.save(shown)
	}
	return nil
}

// show runs the panel through a full wake, write, refresh, sleep cycle.
func (p *Pipeline) show(frame []byte) error {
	lut := p.LUT
	if lut == (epd.LUT{}) {
		lut = epd.FullUpdate
	}
	if p.Reset != nil {
		if err := p.Reset.Reset(); err != nil {
			return fmt.Errorf("pipeline: panel reset: %w", err)
		}
	}
	steps := []struct {
		name string
		fn   func() error
	}{
		{"initialize", func() error { return p.Panel.Initialize(lut) }},
		{"write frame", func() error { return p.Panel.WriteFullFrame(frame) }},
		{"display", p.Panel.Display},
		{"wait busy", p.Panel.WaitBusy},
		{"sleep", p.Panel.Sleep},
	}
	for _, s := range steps {
		appLog.Debug("panel step", "step", s.name)
		if err := s.fn(); err != nil {
			if s.name != "initialize" && s.name != "sleep" {
				if serr := p.Panel.Sleep(); serr != nil {
					appLog.Debug("panel sleep after failure", "err", serr)
				}
			}
			return fmt.Errorf("pipeline: %s: %w", s.name, err)
		}
	}
	return nil
}

func (p *Pipeline) save(f model.Forecast) {
	if p.Store == nil {
		return
	}
	var st state.State
	if p.Rotation != nil {
		st.SetTextRotation(p.Rotation.Rotation())
	}
	st.LastForecast = &f
	if err := p.Store.Save(st); err != nil {
		appLog.Error("state save failed", err)
	}
}

func (p *Pipeline) dump(frame []byte) {
	if p.DumpDir == "" {
		return
	}
	if err := os.MkdirAll(p.DumpDir, 0o755); err != nil {
		appLog.Error("dump dir", err, "dir", p.DumpDir)
		return
	}
	name := filepath.Join(p.DumpDir, "frame-"+time.Now().UTC().Format("20060102T150405.000Z")+".png")
	out, err := os.Create(name)
	if err != nil {
		appLog.Error("dump create", err, "path", name)
		return
	}
	defer out.Close()
	if err := convert.EncodePNG(out, frame, epd.Width, epd.Height); err != nil {
		appLog.Error("dump encode", err, "path", name)
		return
	}
	appLog.Debug("frame dumped", "path", name)
}

func (p *Pipeline) logBattery(ctx context.Context) {
	if p.Battery == nil {
		return
	}
	st, err := p.Battery.Read(ctx)
	if err != nil {
		if !errors.Is(err, battery.ErrUnavailable) {
			appLog.Warn("battery read failed", "err", err)
		}
		return
	}
	appLog.Info("battery", "percent", st.Percent, "voltage_mv", st.VoltageMv)
	p.mu.Lock()
	p.status.Battery = &st
	p.mu.Unlock()
}

// Status returns a snapshot of the last cycle.
func (p *Pipeline) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st := p.status
	st.Rotation = append([]int(nil), st.Rotation...)
	return st
}

// LastFrame returns a copy of the last rendered frame, or nil.
func (p *Pipeline) LastFrame() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.frame == nil {
		return nil
	}
	return append([]byte(nil), p.frame...)
}

func rotationInts(r text.Rotation) []int {
	out := make([]int, len(r))
	for i, v := range r {
		out[i] = int(v)
	}
	return out
}
