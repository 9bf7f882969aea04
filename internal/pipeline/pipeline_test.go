package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"epdweather/internal/battery"
	"epdweather/internal/epd"
	"epdweather/internal/model"
	"epdweather/internal/state"
	"epdweather/internal/text"
)

type fetchResult struct {
	f   model.Forecast
	err error
}

type fakeFetcher struct {
	results []fetchResult
	calls   int
}

func (f *fakeFetcher) Fetch(ctx context.Context) (model.Forecast, error) {
	if err := ctx.Err(); err != nil {
		return model.Forecast{}, err
	}
	r := f.results[min(f.calls, len(f.results)-1)]
	f.calls++
	return r.f, r.err
}

// fakeRenderer draws the max temperature through a real compositor so the
// rotation moves the way it does in production.
type fakeRenderer struct {
	c   *text.Compositor
	err error
}

func (r *fakeRenderer) Render(f model.Forecast) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	buf := bytes.Repeat([]byte{0xFF}, epd.FrameSize)
	r.c.DrawText(buf, epd.Width, epd.Height, 0, 198, "1", false)
	buf[0] = byte(f.Code)
	return buf, nil
}

type fakePanel struct {
	calls  []string
	frames [][]byte
	failOn string
}

func (p *fakePanel) step(name string) error {
	p.calls = append(p.calls, name)
	if name == p.failOn {
		return errors.New(name + " failed")
	}
	return nil
}

func (p *fakePanel) Initialize(epd.LUT) error { return p.step("init") }
func (p *fakePanel) WriteFullFrame(b []byte) error {
	p.frames = append(p.frames, b)
	return p.step("write")
}
func (p *fakePanel) Display() error  { return p.step("display") }
func (p *fakePanel) WaitBusy() error { return p.step("wait") }
func (p *fakePanel) Sleep() error    { return p.step("sleep") }

type resetCounter int

func (r *resetCounter) Reset() error { *r++; return nil }

type memStore struct {
	st    state.State
	saves int
}

func (m *memStore) Load() (state.State, error) { return m.st, nil }
func (m *memStore) Save(st state.State) error  { m.st = st; m.saves++; return nil }

var sunny = model.Forecast{Day: true, Code: 1000, TempMin: -5, TempMax: 20}

func newPipeline(results ...fetchResult) (*Pipeline, *fakePanel, *memStore) {
	panel := &fakePanel{}
	store := &memStore{}
	comp := text.NewCompositor(nil)
	var rc resetCounter
	return &Pipeline{
		Fetcher:  &fakeFetcher{results: results},
		Renderer: &fakeRenderer{c: comp},
		Panel:    panel,
		Reset:    &rc,
		Rotation: comp,
		Store:    store,
		Retries:  5,
	}, panel, store
}

func TestRunOnceDraws(t *testing.T) {
	p, panel, store := newPipeline(fetchResult{f: sunny})
	res, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Drawn || res.Unchanged || res.Attempts != 1 {
		t.Errorf("result = %+v", res)
	}
	want := "init write display wait sleep"
	if got := strings.Join(panel.calls, " "); got != want {
		t.Errorf("panel calls = %q, want %q", got, want)
	}
	if *(p.Reset.(*resetCounter)) != 1 {
		t.Error("panel was not reset before Initialize")
	}
	if store.saves != 1 || store.st.LastForecast == nil || store.st.TextRotation()[1] != 1 {
		t.Errorf("state not saved: %+v", store.st)
	}
	if f := p.LastFrame(); len(f) != epd.FrameSize || f[0] != 0xE8 {
		t.Errorf("last frame not kept")
	}
	st := p.Status()
	if st.LastError != "" || st.LastSuccess.IsZero() || st.Displayed == nil || st.Running {
		t.Errorf("status = %+v", st)
	}
}

func TestRunOnceSkipsUnchanged(t *testing.T) {
	p, panel, store := newPipeline(fetchResult{f: sunny})
	if _, err := p.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	panel.calls = nil

	later := sunny
	later.FetchedAt = time.Now().Add(time.Hour)
	p.Fetcher = &fakeFetcher{results: []fetchResult{{f: later}}}
	res, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Unchanged || res.Drawn {
		t.Errorf("result = %+v, want unchanged", res)
	}
	if len(panel.calls) != 0 {
		t.Errorf("panel touched for an unchanged forecast: %v", panel.calls)
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want 1", store.saves)
	}

	res, err = p.Redraw(context.Background())
	if err != nil || !res.Drawn {
		t.Errorf("Redraw = %+v, %v", res, err)
	}
}

func TestRunOnceRetries(t *testing.T) {
	boom := errors.New("dns failure")
	p, panel, _ := newPipeline(
		fetchResult{err: boom},
		fetchResult{err: boom},
		fetchResult{f: sunny},
	)
	res, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Attempts != 3 || !res.Drawn {
		t.Errorf("result = %+v", res)
	}
	if len(panel.frames) != 1 {
		t.Errorf("frames written = %d", len(panel.frames))
	}
}

func TestRunOnceGivesUp(t *testing.T) {
	boom := errors.New("dns failure")
	p, panel, store := newPipeline(fetchResult{err: boom})
	p.Retries = 3
	res, err := p.RunOnce(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if res.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", res.Attempts)
	}
	if len(panel.calls) != 0 || store.saves != 0 {
		t.Error("panel or store touched without a forecast")
	}
	if st := p.Status(); !strings.Contains(st.LastError, "dns failure") {
		t.Errorf("LastError = %q", st.LastError)
	}
}

func TestRunOnceCancelledDuringDelay(t *testing.T) {
	p, _, _ := newPipeline(fetchResult{err: errors.New("offline")})
	p.RetryDelay = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, err := p.RunOnce(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("cancellation did not interrupt the retry delay")
	}
}

func TestPanelFailureRollsBackRotation(t *testing.T) {
	p, panel, store := newPipeline(fetchResult{f: sunny})
	p.Retries = 1
	panel.failOn = "display"
	before := p.Rotation.Rotation()

	if _, err := p.RunOnce(context.Background()); err == nil {
		t.Fatal("RunOnce succeeded with a failing panel")
	}
	if p.Rotation.Rotation() != before {
		t.Error("rotation advanced for a frame that was never shown")
	}
	if store.saves != 0 {
		t.Error("state saved after a failed draw")
	}
	if got := panel.calls[len(panel.calls)-1]; got != "sleep" {
		t.Errorf("last panel call = %q, want sleep", got)
	}
	// Nothing was shown, so the same forecast must be drawn next time.
	panel.failOn = ""
	res, err := p.RunOnce(context.Background())
	if err != nil || !res.Drawn {
		t.Errorf("retry = %+v, %v", res, err)
	}
}

func TestRenderOnly(t *testing.T) {
	p, panel, store := newPipeline(fetchResult{f: sunny})
	p.RenderOnly = true
	p.DumpDir = t.TempDir()
	res, err := p.RunOnce(context.Background())
	if err != nil || !res.Drawn {
		t.Fatalf("RunOnce = %+v, %v", res, err)
	}
	if len(panel.calls) != 0 || store.saves != 0 {
		t.Error("render-only cycle touched the panel or the store")
	}
	if p.LastFrame() == nil {
		t.Error("no frame kept")
	}
	entries, err := os.ReadDir(p.DumpDir)
	if err != nil || len(entries) != 1 || !strings.HasSuffix(entries[0].Name(), ".png") {
		t.Errorf("dump dir = %v, %v", entries, err)
	}
}

func TestRestore(t *testing.T) {
	p, panel, store := newPipeline(fetchResult{f: sunny})
	var r text.Rotation
	r[1] = 6
	store.st.SetTextRotation(r)
	store.st.LastForecast = &sunny
	if err := p.Restore(); err != nil {
		t.Fatal(err)
	}
	if p.Rotation.Rotation() != r {
		t.Errorf("rotation = %v, want %v", p.Rotation.Rotation(), r)
	}
	res, err := p.RunOnce(context.Background())
	if err != nil || !res.Unchanged || len(panel.calls) != 0 {
		t.Errorf("after restore: %+v, %v, panel %v", res, err, panel.calls)
	}
}

type fixedBattery struct{}

func (fixedBattery) Read(context.Context) (battery.Status, error) {
	return battery.Status{Percent: 55, VoltageMv: 3900}, nil
}

func TestBatteryInStatus(t *testing.T) {
	p, _, _ := newPipeline(fetchResult{f: sunny})
	p.Battery = fixedBattery{}
	if _, err := p.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if st := p.Status(); st.Battery == nil || st.Battery.Percent != 55 {
		t.Errorf("battery = %+v", st.Battery)
	}
}
