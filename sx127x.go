package sx127x

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

var (
	ErrPkg              = errors.New("sx127x")
	ErrBus              = errors.New("register bus fault")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrVerify           = errors.New("register read-back mismatch")
	ErrModemUnsupported = errors.New("not supported by the current modem")
	ErrInvalidID        = errors.New("unexpected chip version")
	ErrNoHeader         = errors.New("no header received")
	ErrTimeout          = errors.New("timeout waiting for device")
	ErrCRC              = errors.New("payload crc error")
	ErrOversize         = errors.New("frame length exceeds maximum")
	ErrMalformed        = errors.New("malformed frame")
	ErrNotAddressed     = errors.New("frame addressed to another node")
	ErrProtocolLimit    = errors.New("protocol limit exceeded")
)

// wrap tags err with ErrPkg. Errors that already carry it are returned as is.
func wrap(err error) error {
	if err == nil || errors.Is(err, ErrPkg) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPkg, err)
}

type Device struct {
	config   HardwareConfig
	bus      Bus
	clock    Clock
	port     io.Closer
	mu       sync.Mutex
	mode     Mode
	seq      byte
	retries  int
	timeouts timeoutTracker
}

// NewWithHardware creates and initializes a new SX127x driver on top of the given register bus.
// Empty RadioConfig fields are replaced by their defaults (see DefaultConfig).
func NewWithHardware(c HardwareConfig, bus Bus) (*Device, error) {
	c.RadioConfig = c.RadioConfig.withDefaults()
	if err := c.Validate(); err != nil {
		return nil, wrap(err)
	}
	if bus == nil {
		return nil, fmt.Errorf("%w: register bus not configured", ErrPkg)
	}
	if c.Clock == nil {
		c.Clock = newSystemClock()
	}

	dev := &Device{
		config: c,
		bus:    bus,
		clock:  c.Clock,
		mode:   ModeSleep,
	}

	globalLogger.Info("initializing SX127x", Fields{"config": c.RadioConfig.String()})

	if err := dev.powerOn(); err != nil {
		return nil, wrap(err)
	}

	globalLogger.Info("SX127x initialized and in standby", Fields{"modem": c.Modem.String()})
	return dev, nil
}

func (d *Device) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return fmt.Sprintf("SX127x(%s, Mode=%s)", d.config.RadioConfig, d.mode)
}

// Close puts the radio to sleep and releases the bus.
// This method is concurrent safe.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.setMode(ModeSleep); err != nil {
		globalLogger.Warn("failed to put radio to sleep", Fields{"error": err.Error()})
	}

	if d.port != nil {
		if err := d.port.Close(); err != nil {
			globalLogger.Warn("failed to close SPI port", Fields{"error": err.Error()})
			return wrap(err)
		}
		globalLogger.Info("SPI bus closed.", nil)
	}
	return nil
}

// --- Register access ---

func (d *Device) read(reg byte) (byte, error) {
	return d.bus.ReadRegister(reg)
}

func (d *Device) write(reg, val byte) error {
	return d.bus.WriteRegister(reg, val)
}

// writeVerify writes val and reads it back. A different value is a
// verification failure, not a bus fault.
func (d *Device) writeVerify(reg, val byte) error {
	if err := d.write(reg, val); err != nil {
		return err
	}
	got, err := d.read(reg)
	if err != nil {
		return err
	}
	if got != val {
		globalLogger.Warn("register verification failed", Fields{
			"reg":  fmt.Sprintf("0x%02X", reg),
			"want": fmt.Sprintf("0x%02X", val),
			"got":  fmt.Sprintf("0x%02X", got),
		})
		return fmt.Errorf("%w: register 0x%02X wrote 0x%02X, read 0x%02X", ErrVerify, reg, val, got)
	}
	return nil
}

// update applies a bit-field with read-modify-write and verifies the result.
func (d *Device) update(f Field) error {
	old, err := d.read(f.Reg)
	if err != nil {
		return err
	}
	return d.writeVerify(f.Reg, f.Apply(old))
}

func (d *Device) writeAll(ws ...Write) error {
	for _, w := range ws {
		if err := d.writeVerify(w.Reg, w.Val); err != nil {
			return err
		}
	}
	return nil
}

// clearFlags acknowledges every pending interrupt flag.
func (d *Device) clearFlags() error {
	if d.config.Modem == FSK {
		if err := d.write(_IRQ_FLAGS1, _IRQ_FLAGS_ALL); err != nil {
			return err
		}
		return d.write(_IRQ_FLAGS2, _IRQ_FLAGS_ALL)
	}
	return d.write(_IRQ_FLAGS, _IRQ_FLAGS_ALL)
}

// waitFlags polls reg until one of the bits in mask is set. The wait ends with
// ErrTimeout once timeout ms have elapsed on the device clock since start.
// The returned byte is the last value read.
func (d *Device) waitFlags(ctx context.Context, start, timeout uint32, reg, mask byte) (byte, error) {
	for {
		v, err := d.read(reg)
		if err != nil {
			return 0, err
		}
		if v&mask != 0 {
			return v, nil
		}
		if err := ctx.Err(); err != nil {
			return v, err
		}
		if since(d.clock.Millis(), start) >= timeout {
			return v, fmt.Errorf("%w: register 0x%02X mask 0x%02X after %d ms", ErrTimeout, reg, mask, timeout)
		}
		if d.config.PollInterval > 0 {
			time.Sleep(d.config.PollInterval)
		}
	}
}

// --- Mode state machine ---

func (d *Device) setMode(m Mode) error {
	return d.setOpMode(d.config.Modem, m)
}

func (d *Device) setOpMode(f ModemFamily, m Mode) error {
	if err := d.write(_OP_MODE, EncodeMode(f, m)); err != nil {
		return err
	}
	if d.mode != m {
		globalLogger.Debug("mode transition", Fields{"modem": f.String(), "from": d.mode.String(), "to": m.String()})
	}
	d.mode = m
	return nil
}

// change runs write in standby and caches next as the configuration when it
// succeeds. The previous mode is restored only if RestorePreviousMode is set.
// next must come from a With* method.
func (d *Device) change(next RadioConfig, write func(RadioConfig) error) error {
	prev := d.mode
	if err := d.setMode(ModeStandby); err != nil {
		return err
	}
	if err := write(next); err != nil {
		return err
	}
	d.config.RadioConfig = next
	if next.RestorePreviousMode && prev != ModeStandby && IsValidMode(next.Modem, prev) {
		return d.setMode(prev)
	}
	return nil
}

func (d *Device) loraOnly(what string) error {
	if d.config.Modem != LoRa {
		return fmt.Errorf("%w: %s requires LoRa", ErrModemUnsupported, what)
	}
	return nil
}

// powerOn resets the chip, checks its version and applies the whole configuration.
func (d *Device) powerOn() error {
	if d.config.Reset != nil {
		if err := resetChip(d.config.Reset); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		d.mode = ModeSleep
	}

	version, err := d.read(_VERSION)
	if err != nil {
		return err
	}
	if version != _CHIP_VERSION {
		globalLogger.Error("unexpected chip version, check wiring/power", Fields{"version": fmt.Sprintf("0x%02X", version)})
		return fmt.Errorf("%w: read 0x%02X, want 0x%02X", ErrInvalidID, version, _CHIP_VERSION)
	}

	return d.configure(d.config.RadioConfig)
}

// configure writes every setting of c in dependency order: the modem first,
// then the LoRa modulation, then the settings common to both families.
// It stops at the first failure.
func (d *Device) configure(c RadioConfig) error {
	steps := []func(RadioConfig) error{d.writeModem}
	if c.Modem == LoRa {
		steps = append(steps, d.writeBandwidth, d.writeSpreadingFactor, d.writeCodingRate, d.writeHeaderMode)
	}
	steps = append(steps, d.writeCRC, d.writePower, d.writeChannel, d.writePreambleLength, d.writeMaxCurrent, d.writeNodeAddress)

	for _, step := range steps {
		if err := step(c); err != nil {
			return err
		}
	}
	return nil
}

// writeModem switches the modem family. The mode register always goes through
// sleep: the LongRangeMode bit can only be changed in sleep.
func (d *Device) writeModem(c RadioConfig) error {
	sequence := []Mode{ModeSleep, ModeStandby}
	if c.Modem == LoRa {
		if err := d.setOpMode(FSK, ModeSleep); err != nil {
			return err
		}
	}
	for _, m := range sequence {
		if err := d.setOpMode(c.Modem, m); err != nil {
			return err
		}
	}

	want := EncodeMode(c.Modem, ModeStandby)
	got, err := d.read(_OP_MODE)
	if err != nil {
		return err
	}
	if got != want {
		globalLogger.Warn("modem switch not confirmed", Fields{
			"modem": c.Modem.String(),
			"want":  fmt.Sprintf("0x%02X", want),
			"got":   fmt.Sprintf("0x%02X", got),
		})
		return fmt.Errorf("%w: op mode 0x%02X, want 0x%02X", ErrVerify, got, want)
	}

	if c.Modem == LoRa {
		return d.writeAll(
			Write{_MAX_PAYLOAD_LENGTH, 0xFF},
			Write{_MODEM_CONFIG1, _MODEM_CONFIG1_DEFAULT},
			Write{_MODEM_CONFIG2, _MODEM_CONFIG2_DEFAULT},
			Write{_MODEM_CONFIG3, _MODEM_CONFIG3_DEFAULT},
		)
	}

	if err := d.writeAddressFilter(c); err != nil {
		return err
	}
	if err := d.writeAll(Write{_BROADCAST_ADRS, BroadcastAddress}, Write{_FIFO_THRESH, _FIFO_THRESH_TX_START}); err != nil {
		return err
	}
	// AutoRestartRxMode off.
	return d.update(Field{Reg: _SYNC_CONFIG, Mask: 0xC0, Bits: 0x00})
}

// writeAddressFilter programs the FSK packet engine: fixed length packets and
// hardware filtering on node or broadcast address unless every frame is accepted.
// LoRa has no hardware address filter.
func (d *Device) writeAddressFilter(c RadioConfig) error {
	if c.Modem != FSK {
		return nil
	}
	return d.update(fskAddressFiltering(c.AddressFilter != FilterAcceptAll))
}

func fskAddressFiltering(on bool) Field {
	f := Field{Reg: _PACKET_CONFIG1, Mask: 0x86}
	if on {
		f.Bits = 0x04
	}
	return f
}

func (d *Device) writeBandwidth(c RadioConfig) error {
	if err := d.update(EncodeBandwidth(c.Bandwidth)); err != nil {
		return err
	}
	return d.update(EncodeLowDataRateOptimize(c.LowDataRateOptimize()))
}

func (d *Device) writeSpreadingFactor(c RadioConfig) error {
	sf := EncodeSpreadingFactor(c.SpreadingFactor)
	timeout := EncodeSymbTimeoutMSB()
	if err := d.update(Field{Reg: sf.Reg, Mask: sf.Mask | timeout.Mask, Bits: sf.Bits | timeout.Bits}); err != nil {
		return err
	}
	side := SideRegistersForSF(c.SpreadingFactor)
	if err := d.writeAll(side[:]...); err != nil {
		return err
	}
	if err := d.update(EncodeHeaderMode(c.Header)); err != nil {
		return err
	}
	return d.update(EncodeLowDataRateOptimize(c.LowDataRateOptimize()))
}

func (d *Device) writeCodingRate(c RadioConfig) error {
	return d.update(EncodeCodingRate(c.CodingRate))
}

func (d *Device) writeHeaderMode(c RadioConfig) error {
	return d.update(EncodeHeaderMode(c.Header))
}

func (d *Device) writeCRC(c RadioConfig) error {
	return d.update(EncodeCRC(c.Modem, c.CRC))
}

func (d *Device) writePower(c RadioConfig) error {
	paConfig, paDac := EncodePower(c.Power)
	return d.writeAll(paConfig, paDac)
}

func (d *Device) writeChannel(c RadioConfig) error {
	frf := EncodeChannel(c.Channel)
	return d.writeAll(frf[:]...)
}

func (d *Device) writePreambleLength(c RadioConfig) error {
	w := EncodePreambleLength(c.Modem, c.PreambleLength)
	return d.writeAll(w[:]...)
}

func (d *Device) writeMaxCurrent(c RadioConfig) error {
	return d.update(EncodeMaxCurrent(c.MaxCurrent))
}

// writeNodeAddress programs RegNodeAdrs in FSK. LoRa filters in software only.
func (d *Device) writeNodeAddress(c RadioConfig) error {
	if c.Modem != FSK {
		return nil
	}
	return d.writeVerify(_NODE_ADRS, c.NodeAddress)
}

// --- Power management ---

// PowerOn resets the chip (if a reset pin is configured), verifies its version
// and writes the cached configuration. The radio is left in standby.
// This method is concurrent safe.
func (d *Device) PowerOn() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return wrap(d.powerOn())
}

// PowerOff puts the radio in sleep mode. Registers keep their values.
// This method is concurrent safe.
func (d *Device) PowerOff() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return wrap(d.setMode(ModeSleep))
}

// Standby puts the radio in standby mode.
// This method is concurrent safe.
func (d *Device) Standby() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return wrap(d.setMode(ModeStandby))
}

// --- Configuration ---

// Config returns the cached configuration.
// This method is concurrent safe.
func (d *Device) Config() RadioConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config.RadioConfig
}

// Configure validates c and writes all of it to the radio. On failure the
// cached configuration stays the last one applied successfully.
// This method is concurrent safe.
func (d *Device) Configure(c RadioConfig) error {
	c = c.withDefaults()
	if err := c.Validate(); err != nil {
		return wrap(err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return wrap(d.change(c, d.configure))
}

// SetModem switches between LoRa and FSK and rewrites the whole configuration,
// since switching resets the modulation registers.
// This method is concurrent safe.
func (d *Device) SetModem(f ModemFamily) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	next, err := d.config.WithModem(f)
	if err != nil {
		return wrap(err)
	}
	return wrap(d.change(next, d.configure))
}

// SetBandwidth changes the LoRa bandwidth and updates the low-data-rate-optimize bit.
// This method is concurrent safe.
func (d *Device) SetBandwidth(bw Bandwidth) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	next, err := d.config.WithBandwidth(bw)
	if err != nil {
		return wrap(err)
	}
	if err := d.loraOnly("bandwidth"); err != nil {
		return wrap(err)
	}
	return wrap(d.change(next, d.writeBandwidth))
}

// SetSpreadingFactor changes the LoRa spreading factor together with the
// detection registers, the header mode (implicit for SF6) and the
// low-data-rate-optimize bit.
// This method is concurrent safe.
func (d *Device) SetSpreadingFactor(sf SpreadingFactor) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	next, err := d.config.WithSpreadingFactor(sf)
	if err != nil {
		return wrap(err)
	}
	if err := d.loraOnly("spreading factor"); err != nil {
		return wrap(err)
	}
	return wrap(d.change(next, d.writeSpreadingFactor))
}

// SetCodingRate changes the LoRa coding rate.
// This method is concurrent safe.
func (d *Device) SetCodingRate(cr CodingRate) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	next, err := d.config.WithCodingRate(cr)
	if err != nil {
		return wrap(err)
	}
	if err := d.loraOnly("coding rate"); err != nil {
		return wrap(err)
	}
	return wrap(d.change(next, d.writeCodingRate))
}

// SetHeaderMode selects explicit or implicit LoRa header.
// Explicit header is refused while the spreading factor is 6.
// This method is concurrent safe.
func (d *Device) SetHeaderMode(h HeaderMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	next, err := d.config.WithHeaderMode(h)
	if err != nil {
		return wrap(err)
	}
	if err := d.loraOnly("header mode"); err != nil {
		return wrap(err)
	}
	return wrap(d.change(next, d.writeHeaderMode))
}

// SetCRC turns the payload CRC on or off.
// This method is concurrent safe.
func (d *Device) SetCRC(m CRCMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	next, err := d.config.WithCRC(m)
	if err != nil {
		return wrap(err)
	}
	return wrap(d.change(next, d.writeCRC))
}

// SetPower changes the output power (2 to 20 dBm).
// This method is concurrent safe.
func (d *Device) SetPower(p Power) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	next, err := d.config.WithPower(p)
	if err != nil {
		return wrap(err)
	}
	return wrap(d.change(next, d.writePower))
}

// SetChannel changes the carrier frequency.
// This method is concurrent safe.
func (d *Device) SetChannel(ch Channel) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	next, err := d.config.WithChannel(ch)
	if err != nil {
		return wrap(err)
	}
	return wrap(d.change(next, d.writeChannel))
}

// SetNodeAddress changes the address of this node.
// This method is concurrent safe.
func (d *Device) SetNodeAddress(addr byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return wrap(d.change(d.config.WithNodeAddress(addr), d.writeNodeAddress))
}

// SetPreambleLength changes the preamble length.
// This method is concurrent safe.
func (d *Device) SetPreambleLength(l uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	next, err := d.config.WithPreambleLength(l)
	if err != nil {
		return wrap(err)
	}
	return wrap(d.change(next, d.writePreambleLength))
}

// SetMaxCurrent changes the over-current protection limit (45 to 240 mA).
// This method is concurrent safe.
func (d *Device) SetMaxCurrent(mA int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	next, err := d.config.WithMaxCurrent(mA)
	if err != nil {
		return wrap(err)
	}
	return wrap(d.change(next, d.writeMaxCurrent))
}

// SetAddressFilter chooses whether frames for other nodes are dropped.
// In FSK it also switches the hardware address filter.
// This method is concurrent safe.
func (d *Device) SetAddressFilter(f AddressFilter) error {
	if f != FilterEnforce && f != FilterAcceptAll {
		return fmt.Errorf("%w: %w: address filter %d", ErrPkg, ErrInvalidParameter, f)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	next := d.config.RadioConfig
	next.AddressFilter = f
	return wrap(d.change(next, d.writeAddressFilter))
}

// SetMaxRetries changes how many times SendReliable retransmits a frame.
// Zero disables retransmission. No register is involved.
// This method is concurrent safe.
func (d *Device) SetMaxRetries(n int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	next, err := d.config.WithMaxRetries(n)
	if err != nil {
		return wrap(err)
	}
	d.config.RadioConfig = next
	return nil
}

// --- Inspection ---

// Mode reads the operating mode from the radio.
// This method is concurrent safe.
func (d *Device) Mode() (ModemFamily, Mode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, err := d.read(_OP_MODE)
	if err != nil {
		return 0, 0, wrap(err)
	}
	f, m := DecodeMode(v)
	return f, m, nil
}

// ReadConfig decodes the configuration currently held by the radio registers.
// Settings that only live in the driver (retries, filter policy, LoRa node
// address) are taken from the cache.
// This method is concurrent safe.
func (d *Device) ReadConfig() (RadioConfig, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := d.config.RadioConfig
	regs := make(map[byte]byte)
	for _, r := range []byte{
		_OP_MODE, _MODEM_CONFIG1, _MODEM_CONFIG2, _MODEM_CONFIG3, _PACKET_CONFIG1,
		_PA_CONFIG, _PA_DAC, _FRF_MSB, _FRF_MID, _FRF_LSB, _OCP, _NODE_ADRS,
	} {
		v, err := d.read(r)
		if err != nil {
			return c, wrap(err)
		}
		regs[r] = v
	}

	c.Modem, _ = DecodeMode(regs[_OP_MODE])
	fam := c.Modem.registers()
	msb, err := d.read(fam.preambleMSB)
	if err != nil {
		return c, wrap(err)
	}
	lsb, err := d.read(fam.preambleLSB)
	if err != nil {
		return c, wrap(err)
	}

	if c.Modem == LoRa {
		c.Bandwidth = DecodeBandwidth(regs[_MODEM_CONFIG1])
		c.CodingRate = DecodeCodingRate(regs[_MODEM_CONFIG1])
		c.Header = DecodeHeaderMode(regs[_MODEM_CONFIG1])
		c.SpreadingFactor = DecodeSpreadingFactor(regs[_MODEM_CONFIG2])
		c.CRC = DecodeCRC(LoRa, regs[_MODEM_CONFIG2])
	} else {
		c.CRC = DecodeCRC(FSK, regs[_PACKET_CONFIG1])
		c.NodeAddress = regs[_NODE_ADRS]
	}
	c.Power = DecodePower(regs[_PA_CONFIG], regs[_PA_DAC])
	c.Channel = DecodeChannel(regs[_FRF_MSB], regs[_FRF_MID], regs[_FRF_LSB])
	c.PreambleLength = DecodePreambleLength(msb, lsb)
	c.MaxCurrent = DecodeMaxCurrent(regs[_OCP])
	return c, nil
}

// Registers dumps the register file, indexed by address. The FIFO (address 0)
// is not read since reading it advances the FIFO pointer.
// This method is concurrent safe.
func (d *Device) Registers() ([0x80]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var regs [0x80]byte
	for addr := byte(1); addr < 0x80; addr++ {
		v, err := d.read(addr)
		if err != nil {
			return regs, wrap(err)
		}
		regs[addr] = v
	}
	return regs, nil
}
