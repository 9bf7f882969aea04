// Package epd drives a 200x200 monochrome e-paper panel built around an
// SSD1607-class controller, over SPI with a data/command line and a busy
// line, using periph.io.
//
// The controller RAM is addressed in whole bytes along X (8 pixels each),
// MSB first; a 0 bit is black and a 1 bit is white.
package epd

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Panel geometry.
const (
	Width     = 200
	Height    = 200
	FrameSize = Width / 8 * Height
)

// Controller commands.
const (
	driverOutputControl            byte = 0x01
	boosterSoftStartControl        byte = 0x0C
	gateScanStartPosition          byte = 0x0F
	deepSleepMode                  byte = 0x10
	dataEntryModeSetting           byte = 0x11
	swReset                        byte = 0x12
	temperatureSensorControl       byte = 0x1A
	masterActivation               byte = 0x20
	displayUpdateControl1          byte = 0x21
	displayUpdateControl2          byte = 0x22
	writeRAM                       byte = 0x24
	writeVCOMRegister              byte = 0x2C
	writeLUTRegister               byte = 0x32
	setDummyLinePeriod             byte = 0x3A
	setGateTime                    byte = 0x3B
	borderWaveformControl          byte = 0x3C
	setRAMXAddressStartEndPosition byte = 0x44
	setRAMYAddressStartEndPosition byte = 0x45
	setRAMXAddressCounter          byte = 0x4E
	setRAMYAddressCounter          byte = 0x4F
	terminateFrameReadWrite        byte = 0xFF
)

// DefaultBusyTimeout bounds WaitBusy when Opts.BusyTimeout is zero.
const DefaultBusyTimeout = 10 * time.Second

var (
	// ErrBusFault wraps any failure of the SPI bus or the D/C line. The
	// device is left Uninitialized.
	ErrBusFault = errors.New("epd: bus fault")
	// ErrTimeout means the busy line stayed high past Opts.BusyTimeout.
	ErrTimeout = errors.New("epd: busy timeout")
	// ErrNotAwake means a RAM or refresh operation was attempted before
	// Initialize or after Sleep.
	ErrNotAwake = errors.New("epd: device not awake")
	// ErrBufferSize means a full frame was not FrameSize bytes.
	ErrBufferSize = errors.New("epd: wrong frame buffer size")
)

// State is the lifecycle state of a Dev.
type State int

const (
	Uninitialized State = iota
	Awake
	Sleeping
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Awake:
		return "awake"
	case Sleeping:
		return "sleeping"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Opts configures a Dev. The zero value is usable.
type Opts struct {
	// Frequency is the SPI clock used by NewSPI. Defaults to 2MHz.
	Frequency physic.Frequency
	// BusyTimeout bounds each wait on the busy line. Zero means
	// DefaultBusyTimeout; a negative value waits forever.
	BusyTimeout time.Duration
	// PollInterval is the busy line sampling period. Defaults to 1ms.
	PollInterval time.Duration
}

// Dev is an open handle to the panel.
type Dev struct {
	c     conn.Conn
	dc    gpio.PinOut
	busy  gpio.PinIn
	opts  Opts
	maxTx int
	state State
}

// NewSPI connects to p in mode 0 and returns a Dev on it.
func NewSPI(p spi.Port, dc gpio.PinOut, busy gpio.PinIn, opts *Opts) (*Dev, error) {
	o := withDefaults(opts)
	c, err := p.Connect(o.Frequency, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("epd: spi connect: %w", err)
	}
	return New(c, dc, busy, &o)
}

// New returns a Dev talking over c. dc selects command (low) or data (high)
// bytes; busy reads high while the controller is working.
func New(c conn.Conn, dc gpio.PinOut, busy gpio.PinIn, opts *Opts) (*Dev, error) {
	if c == nil || dc == nil || busy == nil {
		return nil, errors.New("epd: conn, dc and busy are required")
	}
	d := &Dev{c: c, dc: dc, busy: busy, opts: withDefaults(opts)}
	if l, ok := c.(interface{ MaxTxSize() int }); ok {
		d.maxTx = l.MaxTxSize()
	}
	return d, nil
}

func withDefaults(opts *Opts) Opts {
	var o Opts
	if opts != nil {
		o = *opts
	}
	if o.Frequency == 0 {
		o.Frequency = 2 * physic.MegaHertz
	}
	if o.BusyTimeout == 0 {
		o.BusyTimeout = DefaultBusyTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Millisecond
	}
	return o
}

func (d *Dev) String() string {
	return fmt.Sprintf("epd.Dev{%s, dc:%s, busy:%s, %dx%d}", d.c, d.dc, d.busy, Width, Height)
}

// State returns the lifecycle state.
func (d *Dev) State() State {
	return d.state
}

// Initialize configures the controller and loads lut. It may be called in
// any state and is the only way out of Sleeping. The controller must have
// been hardware reset beforehand if it was asleep.
func (d *Dev) Initialize(lut LUT) error {
	if err := d.dc.Out(gpio.Low); err != nil {
		return d.fault(err)
	}
	if err := d.busy.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return d.fault(err)
	}
	steps := []struct {
		cmd  byte
		data []byte
	}{
		{driverOutputControl, []byte{(Height - 1) & 0xFF, ((Height - 1) >> 8) & 0xFF, 0x00}},
		{boosterSoftStartControl, []byte{0xD7, 0xD6, 0x9D}},
		{writeVCOMRegister, []byte{0xA8}},
		{setDummyLinePeriod, []byte{0x1A}},
		{setGateTime, []byte{0x08}},
		{dataEntryModeSetting, []byte{0x03}},
		{writeLUTRegister, lut[:]},
	}
	for _, s := range steps {
		if err := d.sendCommand(s.cmd, s.data...); err != nil {
			return err
		}
	}
	d.state = Awake
	return nil
}

// WriteFullFrame replaces the controller RAM with buf, which must be
// FrameSize bytes. Nothing is shown until Display.
func (d *Dev) WriteFullFrame(buf []byte) error {
	if err := d.requireAwake(); err != nil {
		return err
	}
	if len(buf) != FrameSize {
		return fmt.Errorf("%w: got %d, want %d", ErrBufferSize, len(buf), FrameSize)
	}
	if err := d.setMemoryArea(0, 0, Width-1, Height-1); err != nil {
		return err
	}
	if err := d.setMemoryPointer(0, 0); err != nil {
		return err
	}
	return d.sendCommand(writeRAM, buf...)
}

// WritePartialFrame writes a w x h region of buf to the controller RAM at
// (x, y). x and w are rounded down to multiples of 8 and the region is
// clipped to the panel. buf rows are w/8 bytes apart; bytes that would be
// read past the end of buf are skipped. A nil buf or any negative argument
// makes it a no-op.
func (d *Dev) WritePartialFrame(buf []byte, x, y, w, h int) error {
	if buf == nil || x < 0 || y < 0 || w < 0 || h < 0 {
		return nil
	}
	if err := d.requireAwake(); err != nil {
		return err
	}
	x &^= 7
	w &^= 7
	xEnd := x + w - 1
	if x+w >= Width {
		xEnd = Width - 1
	}
	yEnd := y + h - 1
	if y+h >= Height {
		yEnd = Height - 1
	}
	if err := d.setMemoryArea(x, y, xEnd, yEnd); err != nil {
		return err
	}
	if err := d.setMemoryPointer(x, y); err != nil {
		return err
	}
	if err := d.sendCommand(writeRAM); err != nil {
		return err
	}

	stride := w / 8
	cols := (xEnd - x + 1) / 8
	if cols <= 0 {
		return nil
	}
	row := make([]byte, 0, cols)
	for j := 0; j <= yEnd-y; j++ {
		row = row[:0]
		for i := 0; i < cols; i++ {
			k := i + j*stride
			if k >= len(buf) {
				break
			}
			row = append(row, buf[k])
		}
		if len(row) == 0 {
			break
		}
		if err := d.sendData(row); err != nil {
			return err
		}
	}
	return nil
}

// ClearFrame fills the controller RAM with color (0x00 black, 0xFF white).
func (d *Dev) ClearFrame(color byte) error {
	return d.WriteFullFrame(bytes.Repeat([]byte{color}, FrameSize))
}

// Display starts a refresh of the panel from RAM. It returns once the
// commands are sent; the refresh itself runs while busy is high.
func (d *Dev) Display() error {
	if err := d.requireAwake(); err != nil {
		return err
	}
	if err := d.sendCommand(displayUpdateControl2, 0xC4); err != nil {
		return err
	}
	if err := d.sendCommand(masterActivation); err != nil {
		return err
	}
	return d.sendCommand(terminateFrameReadWrite)
}

// Sleep puts the controller into deep sleep. Only a hardware reset
// followed by Initialize wakes it again.
func (d *Dev) Sleep() error {
	if err := d.requireAwake(); err != nil {
		return err
	}
	if err := d.sendCommand(deepSleepMode); err != nil {
		return err
	}
	d.state = Sleeping
	return nil
}

// Halt implements conn.Resource. It puts an awake panel to sleep.
func (d *Dev) Halt() error {
	if d.state != Awake {
		return nil
	}
	return d.Sleep()
}

// WaitBusy polls the busy line until it reads low.
func (d *Dev) WaitBusy() error {
	var deadline time.Time
	if d.opts.BusyTimeout > 0 {
		deadline = time.Now().Add(d.opts.BusyTimeout)
	}
	for d.busy.Read() == gpio.High {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return fmt.Errorf("%w after %s", ErrTimeout, d.opts.BusyTimeout)
		}
		time.Sleep(d.opts.PollInterval)
	}
	return nil
}

func (d *Dev) requireAwake() error {
	if d.state != Awake {
		return fmt.Errorf("%w (%s)", ErrNotAwake, d.state)
	}
	return nil
}

func (d *Dev) fault(err error) error {
	d.state = Uninitialized
	return fmt.Errorf("%w: %w", ErrBusFault, err)
}

// sendCommand waits for the controller, sends cmd with D/C low and then
// data, if any, with D/C high.
func (d *Dev) sendCommand(cmd byte, data ...byte) error {
	if err := d.WaitBusy(); err != nil {
		return err
	}
	if err := d.dc.Out(gpio.Low); err != nil {
		return d.fault(err)
	}
	if err := d.c.Tx([]byte{cmd}, nil); err != nil {
		return d.fault(err)
	}
	if len(data) == 0 {
		return nil
	}
	return d.sendData(data)
}

// sendData sends data with D/C high, split to the bus transfer limit.
func (d *Dev) sendData(data []byte) error {
	if err := d.dc.Out(gpio.High); err != nil {
		return d.fault(err)
	}
	for len(data) > 0 {
		n := len(data)
		if d.maxTx > 0 && n > d.maxTx {
			n = d.maxTx
		}
		if err := d.c.Tx(data[:n], nil); err != nil {
			return d.fault(err)
		}
		data = data[n:]
	}
	return nil
}

func (d *Dev) setMemoryArea(xStart, yStart, xEnd, yEnd int) error {
	if err := d.sendCommand(setRAMXAddressStartEndPosition,
		byte((xStart>>3)&0xFF), byte((xEnd>>3)&0xFF)); err != nil {
		return err
	}
	return d.sendCommand(setRAMYAddressStartEndPosition,
		byte(yStart&0xFF), byte((yStart>>8)&0xFF),
		byte(yEnd&0xFF), byte((yEnd>>8)&0xFF))
}

func (d *Dev) setMemoryPointer(x, y int) error {
	if err := d.sendCommand(setRAMXAddressCounter, byte((x>>3)&0xFF)); err != nil {
		return err
	}
	return d.sendCommand(setRAMYAddressCounter, byte(y&0xFF), byte((y>>8)&0xFF))
}

var _ conn.Resource = (*Dev)(nil)
