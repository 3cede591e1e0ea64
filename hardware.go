package sx127x

import "time"

// HardwareConfig bundles the radio settings with the board-level collaborators
// the driver needs besides the register bus.
type HardwareConfig struct {
	RadioConfig
	// Reset is the NRESET pin.
	// Optional. If not provided, the chip is not reset on PowerOn.
	Reset Pin
	// Clock is the millisecond tick source used by every bounded wait.
	// Defaults to a monotonic clock started with the device.
	Clock Clock
	// PollInterval is the pause between two reads of a flag register.
	// Zero polls back to back.
	PollInterval time.Duration
	// AckDelay is the pause ReceiveAndAck takes before answering, leaving a
	// slow sender time to switch to receive.
	AckDelay time.Duration
}

// resetChip drives NRESET low for 1 ms and releases it. The chip is ready
// 5 ms after the rising edge.
func resetChip(p Pin) error {
	if err := p.Out(Low); err != nil {
		return err
	}
	time.Sleep(time.Millisecond)
	if err := p.In(PullFloat); err != nil {
		return err
	}
	time.Sleep(5 * time.Millisecond)
	return nil
}
