package sx127x

import (
	"fmt"
	"time"
)

const _WNR = 0x80 // wnr bit of the address byte: 1 = write access

// SPIBus implements Bus on top of a full-duplex SPI connection using the
// SX127x single access format: one address byte followed by one data byte.
type SPIBus struct {
	conn    SPI
	scratch [2]byte
}

// NewSPIBus wraps an SPI connection as a register bus.
func NewSPIBus(conn SPI) *SPIBus {
	return &SPIBus{conn: conn}
}

func (b *SPIBus) ReadRegister(addr byte) (byte, error) {
	b.scratch[0] = addr &^ _WNR
	b.scratch[1] = 0
	if err := b.conn.Tx(b.scratch[:], b.scratch[:]); err != nil {
		return 0, fmt.Errorf("%w: read 0x%02X: %w", ErrBus, addr, err)
	}
	return b.scratch[1], nil
}

func (b *SPIBus) WriteRegister(addr, val byte) error {
	b.scratch[0] = addr | _WNR
	b.scratch[1] = val
	if err := b.conn.Tx(b.scratch[:], b.scratch[:]); err != nil {
		return fmt.Errorf("%w: write 0x%02X: %w", ErrBus, addr, err)
	}
	return nil
}

// systemClock counts milliseconds since the device was created.
type systemClock struct {
	start time.Time
}

func newSystemClock() *systemClock {
	return &systemClock{start: time.Now()}
}

func (c *systemClock) Millis() uint32 {
	return uint32(time.Since(c.start) / time.Millisecond)
}

// since returns the milliseconds elapsed from start to now.
// Unsigned subtraction keeps the result correct across a counter wrap.
func since(now, start uint32) uint32 {
	return now - start
}

func durationToMillis(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	ms := d / time.Millisecond
	if ms > time.Duration(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(ms)
}
