// Package board brings up the host and wires the panel: SPI port, D/C,
// busy and reset lines.
package board

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"epdweather/internal/config"
	"epdweather/internal/epd"
	appLog "epdweather/internal/log"
)

// Reset pulse timing.
const (
	resetHold   = 10 * time.Millisecond
	resetSettle = 200 * time.Millisecond
)

// Board is an opened panel with its reset line.
type Board struct {
	Dev  *epd.Dev
	port spi.PortCloser
	rst  gpio.PinOut
}

// Open initializes periph.io, opens the SPI port and resolves the pins
// named in cfg.
func Open(cfg config.PanelConfig) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("board: periph host init failed: %w", err)
	}

	port, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("board: failed to open SPI port %q: %w", cfg.SPIPort, err)
	}

	b, err := wire(port, cfg, gpioreg.ByName)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	appLog.Info("panel wired", "dev", b.Dev.String(), "rst", cfg.RSTPin)
	return b, nil
}

// wire builds the Board on an already opened port. byName resolves pins.
func wire(port spi.PortCloser, cfg config.PanelConfig, byName func(string) gpio.PinIO) (*Board, error) {
	pin := func(name, role string) (gpio.PinIO, error) {
		p := byName(name)
		if p == nil {
			return nil, fmt.Errorf("board: %s pin %q not found", role, name)
		}
		return p, nil
	}
	dc, err := pin(cfg.DCPin, "dc")
	if err != nil {
		return nil, err
	}
	busy, err := pin(cfg.BusyPin, "busy")
	if err != nil {
		return nil, err
	}
	rst, err := pin(cfg.RSTPin, "rst")
	if err != nil {
		return nil, err
	}
	if err := rst.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("board: rst pin %s: %w", rst, err)
	}

	dev, err := epd.NewSPI(port, dc, busy, &epd.Opts{
		Frequency:   physic.Frequency(cfg.SPIHz) * physic.Hertz,
		BusyTimeout: cfg.BusyTimeout(),
	})
	if err != nil {
		return nil, err
	}
	return &Board{Dev: dev, port: port, rst: rst}, nil
}

// Reset pulses the reset line low. The controller needs it to leave deep
// sleep before Initialize.
func (b *Board) Reset() error {
	for _, step := range []struct {
		level gpio.Level
		wait  time.Duration
	}{
		{gpio.Low, resetHold},
		{gpio.High, resetSettle},
	} {
		if err := b.rst.Out(step.level); err != nil {
			return fmt.Errorf("board: reset: %w", err)
		}
		time.Sleep(step.wait)
	}
	return nil
}

// Close puts the panel to sleep if it is awake and releases the SPI port.
func (b *Board) Close() error {
	if err := b.Dev.Halt(); err != nil {
		appLog.Error("panel halt", err)
	}
	return b.port.Close()
}
