package sx127x

// Level represents the logical level of a pin (Low or High).
type Level bool

const (
	Low  Level = false
	High Level = true
)

// Pull represents the internal pull-up/down resistor state.
type Pull uint8

const (
	PullNoChange Pull = iota
	PullFloat
	PullDown
	PullUp
)

// SPI represents a generic SPI connection.
type SPI interface {
	// Tx sends w and reads into r within a single chip-select frame.
	// len(r) must be >= len(w).
	Tx(w, r []byte) error
}

// Bus is the register-level view of the transceiver: a 7-bit address space of 8-bit registers.
// How a write is signalled on the wire is up to the implementation.
type Bus interface {
	ReadRegister(addr byte) (byte, error)
	WriteRegister(addr, val byte) error
}

// Clock is a free-running millisecond counter.
// It is allowed to wrap around; the driver only ever looks at differences.
type Clock interface {
	Millis() uint32
}

// Pin represents a generic GPIO pin.
type Pin interface {
	// Out sets the pin as output with the given level.
	Out(l Level) error
	// In sets the pin as input with the given pull mode.
	In(pull Pull) error
}
