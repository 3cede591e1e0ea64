package sx127x

import (
	"context"
	"fmt"
	"math"
	"time"
)

const (
	rssiSamples = 5
	// rssiOffsetLF converts LoRa RSSI registers to dBm on the low frequency port.
	rssiOffsetLF = 164
	// Noise floor model used when the packet SNR is negative.
	noiseAbsoluteZero = 174
	noiseFigure       = 6

	// defaultCadTimeout bounds ChannelActivityDetected when no timeout is given.
	defaultCadTimeout = 10 * time.Second
)

// SampleRSSI returns the current channel RSSI in dBm, averaged over five reads.
// This method is concurrent safe.
func (d *Device) SampleRSSI() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	reg := d.config.Modem.registers().rssi
	sum := 0
	for i := 0; i < rssiSamples; i++ {
		v, err := d.read(reg)
		if err != nil {
			return 0, wrap(err)
		}
		sum += int(v)
	}
	raw := sum / rssiSamples

	rssi := raw - rssiOffsetLF
	if d.config.Modem == FSK {
		rssi = -raw / 2
	}
	globalLogger.Debug("rssi sampled", Fields{"modem": d.config.Modem.String(), "rssi_dbm": rssi})
	return rssi, nil
}

func (d *Device) snr() (int, error) {
	if err := d.loraOnly("snr"); err != nil {
		return 0, err
	}
	v, err := d.read(_PKT_SNR_VALUE)
	if err != nil {
		return 0, err
	}
	return int(int8(v)) / 4, nil
}

// SNR returns the SNR of the last received LoRa packet in dB.
// This method is concurrent safe.
func (d *Device) SNR() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	snr, err := d.snr()
	return snr, wrap(err)
}

// PacketRSSI returns the RSSI of the last received LoRa packet in dBm.
// Below the noise floor (negative SNR) the value is estimated from the
// bandwidth and the SNR instead of read from RegPktRssiValue.
// This method is concurrent safe.
func (d *Device) PacketRSSI() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	snr, err := d.snr()
	if err != nil {
		return 0, wrap(err)
	}
	if snr < 0 {
		floor := 10 * math.Log10(float64(d.config.Bandwidth.Hz()))
		return -noiseAbsoluteZero + int(floor) + noiseFigure + snr, nil
	}
	v, err := d.read(_PKT_RSSI_VALUE)
	if err != nil {
		return 0, wrap(err)
	}
	return int(v) - rssiOffsetLF, nil
}

// Temperature returns the raw reading of the on-chip temperature sensor, in
// degrees with an uncalibrated offset. In LoRa the register is reached
// through the FSK register window of standby mode.
// This method is concurrent safe.
func (d *Device) Temperature() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.setMode(ModeStandby); err != nil {
		return 0, wrap(err)
	}

	if d.config.Modem == LoRa {
		window := EncodeMode(LoRa, ModeStandby) | _ACCESS_SHARED_REG
		if err := d.write(_OP_MODE, window); err != nil {
			return 0, wrap(err)
		}
	}
	v, err := d.read(_TEMP)
	if err != nil {
		return 0, wrap(err)
	}
	if d.config.Modem == LoRa {
		if err := d.write(_OP_MODE, EncodeMode(LoRa, ModeStandby)); err != nil {
			return 0, wrap(err)
		}
	}

	t := int(int8(v))
	globalLogger.Debug("temperature read", Fields{"raw": v, "temp": t})
	return t, nil
}

// ChannelActivityDetected runs a channel activity detection and reports
// whether a LoRa preamble was heard. A zero timeout waits up to 10 s.
// The radio is left in standby.
// This method is concurrent safe.
func (d *Device) ChannelActivityDetected(ctx context.Context, timeout time.Duration) (bool, error) {
	if timeout < 0 || timeout > MaxWait {
		return false, fmt.Errorf("%w: %w: wait %s, limit is %s", ErrPkg, ErrProtocolLimit, timeout, MaxWait)
	}
	if timeout == 0 {
		timeout = defaultCadTimeout
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.loraOnly("channel activity detection"); err != nil {
		return false, wrap(err)
	}
	if err := d.setMode(ModeStandby); err != nil {
		return false, wrap(err)
	}
	if err := d.write(_LNA, _LNA_MAX_GAIN_BOOST); err != nil {
		return false, wrap(err)
	}
	if err := d.clearFlags(); err != nil {
		return false, wrap(err)
	}

	wait := durationToMillis(timeout)
	start := d.clock.Millis()
	if err := d.setMode(ModeCad); err != nil {
		return false, wrap(err)
	}
	flags, err := d.waitFlags(ctx, start, wait, _IRQ_FLAGS, _IRQ_CAD_DONE)
	if err != nil {
		globalLogger.Warn("channel activity detection not completed", Fields{"timeout_ms": wait})
		d.abort()
		return false, wrap(err)
	}

	detected := flags&_IRQ_CAD_DETECTED != 0
	if err := d.clearFlags(); err != nil {
		return detected, wrap(err)
	}
	if err := d.setMode(ModeStandby); err != nil {
		return detected, wrap(err)
	}
	globalLogger.Debug("channel activity detection done", Fields{"detected": detected})
	return detected, nil
}
