package battery

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// DefaultAddr is the PiSugar 3 I2C address.
const DefaultAddr = 0x57

// PiSugar 3 registers.
const (
	regVoltageHigh byte = 0x22
	regVoltageLow  byte = 0x23
	regPercent     byte = 0x2A
)

// ErrUnavailable is returned when no battery monitor is configured.
var ErrUnavailable = errors.New("battery: not available")

// Status represents current battery status for the status API.
type Status struct {
	// Percent is the battery level in 0–100%.
	Percent int `json:"percent"`
	// VoltageMv is the battery voltage in millivolts, if known.
	VoltageMv int `json:"voltage_mv"`
}

// Reader abstracts how we obtain battery information, so a board without a
// battery HAT needs no special casing upstream.
type Reader interface {
	Read(ctx context.Context) (Status, error)
}

// noneReader is used when the battery monitor is disabled.
type noneReader struct{}

func (noneReader) Read(context.Context) (Status, error) {
	return Status{}, ErrUnavailable
}

// None returns a Reader that always fails with ErrUnavailable.
func None() Reader { return noneReader{} }

// i2cReader talks to a PiSugar 3 over I2C:
//   - 0x22 (high), 0x23 (low): battery voltage in millivolts
//   - 0x2A: battery percentage (0–100)
type i2cReader struct {
	busName string
	addr    uint16

	mu sync.Mutex
}

// NewI2CReader constructs an I2C-backed Reader.
//
//   - busName: I2C bus identifier for periph.io ("" for the first bus, /dev/i2c-1 on a Raspberry Pi)
//   - addr:    7-bit I2C address of the battery controller
//
// It only stores the configuration; host.Init and the bus open happen on
// each Read so a HAT that is attached later is picked up.
func NewI2CReader(busName string, addr uint16) Reader {
	if addr == 0 {
		addr = DefaultAddr
	}
	return &i2cReader{busName: busName, addr: addr}
}

// Read implements Reader for the I2C-backed reader.
func (r *i2cReader) Read(_ context.Context) (Status, error) {
	if runtime.GOOS != "linux" {
		return Status{}, fmt.Errorf("%w: i2c needs linux", ErrUnavailable)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := host.Init(); err != nil {
		return Status{}, fmt.Errorf("battery: host init: %w", err)
	}
	bus, err := i2creg.Open(r.busName)
	if err != nil {
		return Status{}, fmt.Errorf("battery: open i2c %q: %w", r.busName, err)
	}
	defer bus.Close()

	return readStatus(&i2c.Dev{Bus: bus, Addr: r.addr})
}

// readStatus reads the PiSugar registers through c.
func readStatus(c conn.Conn) (Status, error) {
	readReg := func(reg byte) (byte, error) {
		buf := []byte{0}
		if err := c.Tx([]byte{reg}, buf); err != nil {
			return 0, fmt.Errorf("battery: read reg %#02x: %w", reg, err)
		}
		return buf[0], nil
	}

	high, err := readReg(regVoltageHigh)
	if err != nil {
		return Status{}, err
	}
	low, err := readReg(regVoltageLow)
	if err != nil {
		return Status{}, err
	}
	pct, err := readReg(regPercent)
	if err != nil {
		return Status{}, err
	}
	if pct > 100 {
		pct = 100
	}
	return Status{
		Percent:   int(pct),
		VoltageMv: int(uint16(high)<<8 | uint16(low)),
	}, nil
}
