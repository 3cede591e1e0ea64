//go:build !tinygo

package sx127x

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// realPin wraps a gpio.PinIO to satisfy the Pin interface.
type realPin struct {
	gpio.PinIO
}

func (p *realPin) Out(l Level) error {
	if l == High {
		return p.PinIO.Out(gpio.High)
	}
	return p.PinIO.Out(gpio.Low)
}

func (p *realPin) In(pull Pull) error {
	var pPull gpio.Pull
	switch pull {
	case PullFloat:
		pPull = gpio.Float
	case PullDown:
		pPull = gpio.PullDown
	case PullUp:
		pPull = gpio.PullUp
	default:
		pPull = gpio.PullNoChange
	}
	return p.PinIO.In(pPull, gpio.NoEdge)
}

// Config holds the configuration for the Linux/periph.io driver.
type Config struct {
	RadioConfig
	// ResetPin is the GPIO pin number (BCM numbering) wired to NRESET.
	// Optional. If not provided, the chip is not reset on start.
	ResetPin int
	// SpiBusPath is the path to the SPI bus (e.g., "/dev/spidev0.0").
	// Defaults to "/dev/spidev0.0" if not provided.
	SpiBusPath string
	// SpiClockHz is the SPI clock frequency in Hz.
	// Defaults to 1000000 (1MHz) if not provided.
	SpiClockHz int
	// PollInterval is the pause between two reads of a flag register.
	// Defaults to 1ms if not provided.
	PollInterval time.Duration
	// AckDelay is the pause before answering a frame with an ACK.
	// Optional.
	AckDelay time.Duration
}

// New creates and initializes a new SX127x driver for Linux systems.
// It applies configuration defaults, initializes the GPIO and SPI interfaces using periph.io,
// and configures the radio module.
// It returns the initialized driver or an error if hardware initialization fails.
func New(c Config) (*Device, error) {
	// 1. Initialize periph.io host (Required for both SPI and GPIO)
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph.io host: %w", err)
	}

	// 2. Default SPI Path
	if c.SpiBusPath == "" {
		c.SpiBusPath = "/dev/spidev0.0"
	}

	// 3. Open the SPI Port
	p, err := spireg.Open(c.SpiBusPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port: %w", err)
	}

	// 4. Default Clock
	if c.SpiClockHz == 0 {
		c.SpiClockHz = 1000000
	}

	// 5. Create the SPI Connection (Mode 0, 8 bits)
	conn, err := p.Connect(physic.Frequency(c.SpiClockHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to create SPI connection: %w", err)
	}

	// 6. Setup Reset Pin
	var resetWrapper Pin
	if c.ResetPin != 0 {
		resetName := fmt.Sprintf("GPIO%d", c.ResetPin)
		realReset := gpioreg.ByName(resetName)
		if realReset == nil {
			p.Close()
			return nil, fmt.Errorf("failed to open reset pin %s", resetName)
		}
		resetWrapper = &realPin{PinIO: realReset}
	}

	if c.PollInterval == 0 {
		c.PollInterval = time.Millisecond
	}

	// 7. Call internal constructor
	hwConfig := HardwareConfig{
		RadioConfig:  c.RadioConfig,
		Reset:        resetWrapper,
		PollInterval: c.PollInterval,
		AckDelay:     c.AckDelay,
	}
	dev, err := NewWithHardware(hwConfig, NewSPIBus(conn))
	if err != nil {
		p.Close()
		return nil, err
	}

	// Store the port closer so we can close it later
	dev.port = p
	return dev, nil
}
