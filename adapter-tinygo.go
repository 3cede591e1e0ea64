//go:build tinygo

package sx127x

import (
	"machine"

	"tinygo.org/x/drivers"
)

// tinygoPin wraps a machine.Pin to satisfy the Pin interface.
type tinygoPin struct {
	pin machine.Pin
}

func (p *tinygoPin) Out(l Level) error {
	p.pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.pin.Set(bool(l))
	return nil
}

func (p *tinygoPin) In(pull Pull) error {
	var mPull machine.PinMode
	switch pull {
	case PullUp:
		mPull = machine.PinInputPullup
	case PullDown:
		mPull = machine.PinInputPulldown
	default:
		mPull = machine.PinInput
	}
	p.pin.Configure(machine.PinConfig{Mode: mPull})
	return nil
}

// tinygoSPI drives the chip select around each transaction of a drivers.SPI bus.
type tinygoSPI struct {
	spi drivers.SPI
	cs  machine.Pin
}

func (s *tinygoSPI) Tx(w, r []byte) error {
	s.cs.Low()
	err := s.spi.Tx(w, r)
	s.cs.High()
	return err
}

// NewTinyGo creates a new SX127x driver for TinyGo systems.
// resetPin may be machine.NoPin if NRESET is not wired.
func NewTinyGo(c RadioConfig, spi drivers.SPI, csPin, resetPin machine.Pin) (*Device, error) {
	// Configure CS pin as output and set high (inactive)
	csPin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	csPin.High()

	var resetWrapper Pin
	if resetPin != machine.NoPin {
		resetWrapper = &tinygoPin{pin: resetPin}
	}

	hwConfig := HardwareConfig{
		RadioConfig: c,
		Reset:       resetWrapper,
		Clock:       newSystemClock(),
	}
	return NewWithHardware(hwConfig, NewSPIBus(&tinygoSPI{spi: spi, cs: csPin}))
}
