package sx127x

import (
	"bytes"
	"errors"
	"slices"
	"strings"
	"testing"
)

func TestInitialization(t *testing.T) {
	radio := newFakeRadio()
	reset := &mockPin{}
	var _ Pin = reset

	dev, err := NewWithHardware(HardwareConfig{Reset: reset, Clock: &fakeClock{step: 10}}, radio)
	if err != nil {
		t.Fatalf("NewWithHardware failed: %v", err)
	}

	// Reset pulse: drive low, then release.
	if !slices.Equal(reset.calls, []string{"out:false", "in:1"}) {
		t.Errorf("Unexpected reset sequence: %v", reset.calls)
	}

	// Modem switch goes through FSK sleep and LoRa sleep before standby.
	modes := radio.opModes()
	if !bytes.HasPrefix(modes, []byte{0x08, 0x88, 0x89}) {
		t.Errorf("Expected op mode sequence 08 88 89, got %X", modes)
	}

	expected := map[byte]byte{
		_OP_MODE:             0x89,
		_MAX_PAYLOAD_LENGTH:  0xFF,
		_MODEM_CONFIG1:       0x72, // BW125, CR4/5, explicit header
		_MODEM_CONFIG2:       0x77, // SF7, CRC on, SymbTimeout MSB
		_MODEM_CONFIG3:       0x04, // AGC on, LDRO off
		_DETECT_OPTIMIZE:     0x03,
		_DETECTION_THRESHOLD: 0x0A,
		_PA_CONFIG:           0xFC,
		_PA_DAC:              0x84,
		_FRF_MSB:             0x6C,
		_FRF_MID:             0x53,
		_FRF_LSB:             0x33,
		_PREAMBLE_MSB_LORA:   0x00,
		_PREAMBLE_LSB_LORA:   0x08,
		_OCP:                 0x3B,
	}
	for reg, val := range expected {
		if radio.regs[reg] != val {
			t.Errorf("Register 0x%02X: expected 0x%02X, got 0x%02X", reg, val, radio.regs[reg])
		}
	}

	if !strings.Contains(dev.String(), "Mode=standby") {
		t.Errorf("Unexpected device string: %s", dev)
	}
}

func TestInitializationWrongVersion(t *testing.T) {
	radio := newFakeRadio()
	radio.version = 0x22

	_, err := NewWithHardware(HardwareConfig{Clock: &fakeClock{step: 10}}, radio)
	if !errors.Is(err, ErrInvalidID) || !errors.Is(err, ErrPkg) {
		t.Fatalf("Expected ErrInvalidID, got %v", err)
	}
	if len(radio.writes) != 0 {
		t.Errorf("Expected no register write after a bad version, got %d", len(radio.writes))
	}
}

func TestInitializationInvalidConfig(t *testing.T) {
	radio := newFakeRadio()

	_, err := NewWithHardware(HardwareConfig{RadioConfig: RadioConfig{Power: 30}}, radio)
	if !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("Expected ErrInvalidParameter, got %v", err)
	}
	if len(radio.writes) != 0 {
		t.Errorf("Expected no bus access, got %d writes", len(radio.writes))
	}

	if _, err := NewWithHardware(HardwareConfig{}, nil); !errors.Is(err, ErrPkg) {
		t.Errorf("Expected an error without a bus, got %v", err)
	}
}

func TestSetSpreadingFactorSF6(t *testing.T) {
	dev, radio, _ := newTestDevice(t, RadioConfig{})

	if err := dev.SetSpreadingFactor(SF6); err != nil {
		t.Fatalf("SetSpreadingFactor failed: %v", err)
	}
	if radio.regs[_MODEM_CONFIG2]>>4 != 6 {
		t.Errorf("Expected SF6 in ModemConfig2, got 0x%02X", radio.regs[_MODEM_CONFIG2])
	}
	if radio.regs[_DETECT_OPTIMIZE] != 0x05 || radio.regs[_DETECTION_THRESHOLD] != 0x0C {
		t.Errorf("Expected SF6 detection registers 05/0C, got %02X/%02X",
			radio.regs[_DETECT_OPTIMIZE], radio.regs[_DETECTION_THRESHOLD])
	}
	if radio.regs[_MODEM_CONFIG1]&0x01 == 0 {
		t.Errorf("Expected implicit header bit, got ModemConfig1 0x%02X", radio.regs[_MODEM_CONFIG1])
	}
	if dev.Config().Header != HeaderImplicit {
		t.Errorf("Expected implicit header in config, got %s", dev.Config().Header)
	}

	// Explicit header is refused at SF6 and nothing changes.
	radio.writes = nil
	err := dev.SetHeaderMode(HeaderExplicit)
	if !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("Expected ErrInvalidParameter, got %v", err)
	}
	if len(radio.writes) != 0 {
		t.Errorf("Expected no bus access, got %d writes", len(radio.writes))
	}
	if radio.regs[_MODEM_CONFIG1]&0x01 == 0 || dev.Config().Header != HeaderImplicit {
		t.Errorf("Header mode changed after a refused request")
	}
}

func TestLowDataRateOptimizeFollowsSFAndBandwidth(t *testing.T) {
	dev, radio, _ := newTestDevice(t, RadioConfig{})

	if err := dev.SetSpreadingFactor(SF12); err != nil {
		t.Fatalf("SetSpreadingFactor failed: %v", err)
	}
	if radio.regs[_MODEM_CONFIG3] != 0x0C {
		t.Errorf("Expected LDRO on at SF12/BW125, got ModemConfig3 0x%02X", radio.regs[_MODEM_CONFIG3])
	}

	if err := dev.SetBandwidth(BW250); err != nil {
		t.Fatalf("SetBandwidth failed: %v", err)
	}
	if radio.regs[_MODEM_CONFIG1]>>4 != 0x08 {
		t.Errorf("Expected BW250 in ModemConfig1, got 0x%02X", radio.regs[_MODEM_CONFIG1])
	}
	if radio.regs[_MODEM_CONFIG3] != 0x04 {
		t.Errorf("Expected LDRO cleared at SF12/BW250, got ModemConfig3 0x%02X", radio.regs[_MODEM_CONFIG3])
	}
}

func TestSetterVerificationFailure(t *testing.T) {
	dev, radio, _ := newTestDevice(t, RadioConfig{})
	radio.stuck[_PA_CONFIG] = 0x00

	err := dev.SetPower(PowerMax)
	if !errors.Is(err, ErrVerify) {
		t.Fatalf("Expected ErrVerify, got %v", err)
	}
	if errors.Is(err, ErrBus) {
		t.Errorf("A read-back mismatch must not be reported as a bus fault: %v", err)
	}
	if dev.Config().Power != PowerHigh {
		t.Errorf("Cached power changed after a failed write: %s", dev.Config().Power)
	}
}

func TestSetterInvalidParameter(t *testing.T) {
	dev, radio, _ := newTestDevice(t, RadioConfig{})

	calls := map[string]func() error{
		"power":    func() error { return dev.SetPower(25) },
		"channel":  func() error { return dev.SetChannel(0x123456) },
		"sf":       func() error { return dev.SetSpreadingFactor(5) },
		"bw":       func() error { return dev.SetBandwidth(0) },
		"cr":       func() error { return dev.SetCodingRate(9) },
		"preamble": func() error { return dev.SetPreambleLength(2) },
		"current":  func() error { return dev.SetMaxCurrent(20) },
		"filter":   func() error { return dev.SetAddressFilter(7) },
	}
	for name, call := range calls {
		if err := call(); !errors.Is(err, ErrInvalidParameter) || !errors.Is(err, ErrPkg) {
			t.Errorf("%s: expected ErrInvalidParameter, got %v", name, err)
		}
	}
	if len(radio.writes) != 0 {
		t.Errorf("Expected no bus access for invalid parameters, got %d writes", len(radio.writes))
	}
}

func TestSetterBusFault(t *testing.T) {
	dev, radio, _ := newTestDevice(t, RadioConfig{})
	radio.failErr = errors.New("spi down")

	err := dev.SetCRC(CRCOff)
	if !errors.Is(err, ErrBus) || !errors.Is(err, ErrPkg) {
		t.Fatalf("Expected ErrBus, got %v", err)
	}
	if dev.Config().CRC != CRCOn {
		t.Errorf("Cached CRC mode changed after a bus fault")
	}
}

func TestSetterLeavesStandby(t *testing.T) {
	dev, radio, _ := newTestDevice(t, RadioConfig{})

	if err := dev.PowerOff(); err != nil {
		t.Fatalf("PowerOff failed: %v", err)
	}
	if err := dev.SetCodingRate(CR4_8); err != nil {
		t.Fatalf("SetCodingRate failed: %v", err)
	}
	if radio.regs[_OP_MODE] != 0x89 {
		t.Errorf("Expected standby after a setter, got op mode 0x%02X", radio.regs[_OP_MODE])
	}
	if radio.regs[_MODEM_CONFIG1]&0x0E != 0x08 {
		t.Errorf("Expected CR4/8 in ModemConfig1, got 0x%02X", radio.regs[_MODEM_CONFIG1])
	}
}

func TestSetterRestoresPreviousMode(t *testing.T) {
	dev, radio, _ := newTestDevice(t, RadioConfig{RestorePreviousMode: true})

	if err := dev.PowerOff(); err != nil {
		t.Fatalf("PowerOff failed: %v", err)
	}
	radio.writes = nil
	if err := dev.SetChannel(CH6); err != nil {
		t.Fatalf("SetChannel failed: %v", err)
	}

	modes := radio.opModes()
	if !bytes.Equal(modes, []byte{0x89, 0x88}) {
		t.Errorf("Expected standby then sleep, got %X", modes)
	}
	if !radio.wrote(_FRF_MID, 0xB3) {
		t.Errorf("Expected CH6 frequency write")
	}
}

func TestLoRaOnlySettersInFSK(t *testing.T) {
	dev, radio, _ := newTestDevice(t, RadioConfig{})

	if err := dev.SetModem(FSK); err != nil {
		t.Fatalf("SetModem failed: %v", err)
	}
	if radio.regs[_OP_MODE] != 0x09 {
		t.Errorf("Expected FSK standby, got op mode 0x%02X", radio.regs[_OP_MODE])
	}
	// Fixed length, CRC on, node or broadcast address filtering.
	if radio.regs[_PACKET_CONFIG1] != 0x14 {
		t.Errorf("Expected PacketConfig1 0x14, got 0x%02X", radio.regs[_PACKET_CONFIG1])
	}
	if radio.regs[_NODE_ADRS] != 1 || radio.regs[_BROADCAST_ADRS] != BroadcastAddress {
		t.Errorf("Unexpected FSK addresses: node %d broadcast %d", radio.regs[_NODE_ADRS], radio.regs[_BROADCAST_ADRS])
	}
	if radio.regs[_FIFO_THRESH] != 0x80 {
		t.Errorf("Expected FifoThresh 0x80, got 0x%02X", radio.regs[_FIFO_THRESH])
	}

	radio.writes = nil
	for name, err := range map[string]error{
		"bandwidth": dev.SetBandwidth(BW250),
		"sf":        dev.SetSpreadingFactor(SF9),
		"cr":        dev.SetCodingRate(CR4_6),
		"header":    dev.SetHeaderMode(HeaderImplicit),
	} {
		if !errors.Is(err, ErrModemUnsupported) {
			t.Errorf("%s: expected ErrModemUnsupported, got %v", name, err)
		}
	}
	if len(radio.writes) != 0 {
		t.Errorf("Expected no bus access, got %d writes", len(radio.writes))
	}

	if err := dev.SetAddressFilter(FilterAcceptAll); err != nil {
		t.Fatalf("SetAddressFilter failed: %v", err)
	}
	if radio.regs[_PACKET_CONFIG1] != 0x10 {
		t.Errorf("Expected address filtering off, got PacketConfig1 0x%02X", radio.regs[_PACKET_CONFIG1])
	}
}

func TestReadConfig(t *testing.T) {
	dev, _, _ := newTestDevice(t, RadioConfig{})

	cfg := RadioConfig{
		Bandwidth:       BW62_5,
		SpreadingFactor: SF10,
		CodingRate:      CR4_7,
		CRC:             CRCOff,
		Power:           17,
		Channel:         CH5,
		NodeAddress:     3,
		PreambleLength:  12,
		MaxCurrent:      100,
	}
	if err := dev.Configure(cfg); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	got, err := dev.ReadConfig()
	if err != nil {
		t.Fatalf("ReadConfig failed: %v", err)
	}
	if got != dev.Config() {
		t.Errorf("ReadConfig does not match the cached config:\n got %s\nwant %s", got, dev.Config())
	}
	if got.Bandwidth != BW62_5 || got.SpreadingFactor != SF10 || got.MaxCurrent != 100 {
		t.Errorf("Unexpected configuration read back: %s", got)
	}

	f, m, err := dev.Mode()
	if err != nil || f != LoRa || m != ModeStandby {
		t.Errorf("Expected LoRa standby, got %s %s (%v)", f, m, err)
	}
}

func TestConfigureKeepsLastGoodConfig(t *testing.T) {
	dev, radio, _ := newTestDevice(t, RadioConfig{})
	radio.stuck[_OCP] = 0x00

	next := DefaultConfig()
	next.Power = PowerMax
	if err := dev.Configure(next); !errors.Is(err, ErrVerify) {
		t.Fatalf("Expected ErrVerify, got %v", err)
	}
	if dev.Config().Power != PowerHigh {
		t.Errorf("Cached config changed after a failed Configure")
	}
}

func TestSetMaxRetries(t *testing.T) {
	dev, radio, _ := newTestDevice(t, RadioConfig{})

	if err := dev.SetMaxRetries(101); !errors.Is(err, ErrProtocolLimit) {
		t.Errorf("Expected ErrProtocolLimit, got %v", err)
	}
	if err := dev.SetMaxRetries(0); err != nil {
		t.Fatalf("SetMaxRetries failed: %v", err)
	}
	if dev.Config().MaxRetries != NoRetries {
		t.Errorf("Expected retries disabled, got %d", dev.Config().MaxRetries)
	}
	if len(radio.writes) != 0 {
		t.Errorf("Expected no bus access, got %d writes", len(radio.writes))
	}
}

func TestRegistersDump(t *testing.T) {
	dev, radio, _ := newTestDevice(t, RadioConfig{})

	regs, err := dev.Registers()
	if err != nil {
		t.Fatalf("Registers failed: %v", err)
	}
	if regs[_VERSION] != _CHIP_VERSION || regs[_PA_CONFIG] != 0xFC {
		t.Errorf("Unexpected dump: version 0x%02X, PaConfig 0x%02X", regs[_VERSION], regs[_PA_CONFIG])
	}
	if radio.fifoReads != 0 {
		t.Errorf("Register dump consumed %d FIFO bytes", radio.fifoReads)
	}
}

func TestClose(t *testing.T) {
	dev, radio, _ := newTestDevice(t, RadioConfig{})

	if err := dev.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if radio.regs[_OP_MODE] != 0x88 {
		t.Errorf("Expected sleep after Close, got op mode 0x%02X", radio.regs[_OP_MODE])
	}
}
