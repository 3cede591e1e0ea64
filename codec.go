package sx127x

import (
	"fmt"
	"strconv"
)

// Field is a register bit-field: writing it means read-modify-write of Reg,
// replacing the bits selected by Mask with Bits.
type Field struct {
	Reg  byte
	Mask byte
	Bits byte
}

// Apply merges the field into the current register value.
func (f Field) Apply(old byte) byte {
	return old&^f.Mask | f.Bits&f.Mask
}

// Write is a whole-register write.
type Write struct {
	Reg byte
	Val byte
}

// --- Modem family and operating modes ---

// ModemFamily selects the physical layer. LoRa and FSK use different register
// addresses and encodings for otherwise equivalent settings.
type ModemFamily uint8

const (
	LoRa ModemFamily = iota
	FSK
)

func (f ModemFamily) String() string {
	switch f {
	case LoRa:
		return "LoRa"
	case FSK:
		return "FSK"
	default:
		return "unknown"
	}
}

// Mode is a transceiver operating mode.
type Mode uint8

const (
	ModeSleep        Mode = 0
	ModeStandby      Mode = 1
	ModeTx           Mode = 3
	ModeRxContinuous Mode = 5
	ModeRxSingle     Mode = 6
	ModeCad          Mode = 7
)

func (m Mode) String() string {
	switch m {
	case ModeSleep:
		return "sleep"
	case ModeStandby:
		return "standby"
	case ModeTx:
		return "tx"
	case ModeRxContinuous:
		return "rx-continuous"
	case ModeRxSingle:
		return "rx-single"
	case ModeCad:
		return "cad"
	default:
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// EncodeMode returns the RegOpMode byte for a mode of the given family.
// The low-frequency bit is always set: the driver targets the 433 MHz port.
// CAD only exists in LoRa.
func EncodeMode(f ModemFamily, m Mode) byte {
	v := byte(m)&_MODE_MASK | _LOW_FREQ_MODE_ON
	if f == LoRa {
		v |= _LONG_RANGE_MODE
	}
	return v
}

// DecodeMode splits a RegOpMode byte into family and mode.
func DecodeMode(v byte) (ModemFamily, Mode) {
	f := FSK
	if v&_LONG_RANGE_MODE != 0 {
		f = LoRa
	}
	return f, Mode(v & _MODE_MASK)
}

func IsValidMode(f ModemFamily, m Mode) bool {
	switch m {
	case ModeSleep, ModeStandby, ModeTx, ModeRxContinuous:
		return true
	case ModeRxSingle, ModeCad:
		return f == LoRa
	default:
		return false
	}
}

// --- Bandwidth ---

// Bandwidth is the LoRa signal bandwidth. The zero value means "not set".
type Bandwidth uint8

const (
	BW7_8 Bandwidth = iota + 1
	BW10_4
	BW15_6
	BW20_8
	BW31_25
	BW41_7
	BW62_5
	BW125
	BW250
	BW500
)

var bandwidthHz = [...]int{
	BW7_8:   7800,
	BW10_4:  10400,
	BW15_6:  15600,
	BW20_8:  20800,
	BW31_25: 31250,
	BW41_7:  41700,
	BW62_5:  62500,
	BW125:   125000,
	BW250:   250000,
	BW500:   500000,
}

var bandwidthNames = [...]string{
	BW7_8:   "7.8",
	BW10_4:  "10.4",
	BW15_6:  "15.6",
	BW20_8:  "20.8",
	BW31_25: "31.25",
	BW41_7:  "41.7",
	BW62_5:  "62.5",
	BW125:   "125",
	BW250:   "250",
	BW500:   "500",
}

func IsValidBandwidth(bw Bandwidth) bool {
	return bw >= BW7_8 && bw <= BW500
}

// Hz returns the bandwidth in hertz, or 0 for an invalid value.
func (bw Bandwidth) Hz() int {
	if !IsValidBandwidth(bw) {
		return 0
	}
	return bandwidthHz[bw]
}

func (bw Bandwidth) String() string {
	if !IsValidBandwidth(bw) {
		return "unknown"
	}
	return bandwidthNames[bw] + "kHz"
}

// ParseBandwidth accepts the kHz notation used by String, without the unit ("125", "62.5").
func ParseBandwidth(s string) (Bandwidth, error) {
	for bw := BW7_8; bw <= BW500; bw++ {
		if bandwidthNames[bw] == s || bandwidthNames[bw]+"kHz" == s {
			return bw, nil
		}
	}
	return 0, fmt.Errorf("%w: bandwidth %q", ErrInvalidParameter, s)
}

// EncodeBandwidth places the bandwidth code in RegModemConfig1 bits 7-4.
// Bandwidths of 125 kHz and below combined with SF11/12 also need the
// low-data-rate-optimize bit in RegModemConfig3: see LowDataRateOptimize.
func EncodeBandwidth(bw Bandwidth) Field {
	return Field{Reg: _MODEM_CONFIG1, Mask: 0xF0, Bits: byte(bw-1) << 4}
}

func DecodeBandwidth(modemConfig1 byte) Bandwidth {
	return Bandwidth(modemConfig1>>4) + 1
}

// --- Spreading factor ---

// SpreadingFactor is the LoRa spreading factor, 6 to 12.
type SpreadingFactor uint8

const (
	SF6  SpreadingFactor = 6
	SF7  SpreadingFactor = 7
	SF8  SpreadingFactor = 8
	SF9  SpreadingFactor = 9
	SF10 SpreadingFactor = 10
	SF11 SpreadingFactor = 11
	SF12 SpreadingFactor = 12
)

func IsValidSpreadingFactor(sf SpreadingFactor) bool {
	return sf >= SF6 && sf <= SF12
}

func (sf SpreadingFactor) String() string {
	return "SF" + strconv.Itoa(int(sf))
}

// EncodeSpreadingFactor places the SF in RegModemConfig2 bits 7-4.
// SF6 also needs SideRegistersForSF and implicit header mode.
func EncodeSpreadingFactor(sf SpreadingFactor) Field {
	return Field{Reg: _MODEM_CONFIG2, Mask: 0xF0, Bits: byte(sf) << 4}
}

func DecodeSpreadingFactor(modemConfig2 byte) SpreadingFactor {
	return SpreadingFactor(modemConfig2 >> 4)
}

// SideRegistersForSF returns the detection-optimize and detection-threshold
// writes that must accompany a spreading factor change.
func SideRegistersForSF(sf SpreadingFactor) [2]Write {
	if sf == SF6 {
		return [2]Write{{_DETECT_OPTIMIZE, 0x05}, {_DETECTION_THRESHOLD, 0x0C}}
	}
	return [2]Write{{_DETECT_OPTIMIZE, 0x03}, {_DETECTION_THRESHOLD, 0x0A}}
}

// EncodeSymbTimeoutMSB sets SymbTimeout(9:8) to its maximum in RegModemConfig2.
func EncodeSymbTimeoutMSB() Field {
	return Field{Reg: _MODEM_CONFIG2, Mask: 0x03, Bits: 0x03}
}

// LowDataRateOptimize reports whether the LDRO bit is mandatory for a
// spreading factor and bandwidth pair. The bit lives in RegModemConfig3 while
// SF and BW live in RegModemConfig2 and RegModemConfig1: a caller changing
// either one must know the current value of the other before writing.
func LowDataRateOptimize(sf SpreadingFactor, bw Bandwidth) bool {
	return sf >= SF11 && bw <= BW125
}

// EncodeLowDataRateOptimize sets LowDataRateOptimize (bit 3) together with
// AgcAutoOn (bit 2), which the driver always keeps on.
func EncodeLowDataRateOptimize(ldro bool) Field {
	f := Field{Reg: _MODEM_CONFIG3, Mask: 0x0C, Bits: 0x04}
	if ldro {
		f.Bits |= 0x08
	}
	return f
}

func DecodeLowDataRateOptimize(modemConfig3 byte) bool {
	return modemConfig3&0x08 != 0
}

// --- Coding rate ---

// CodingRate is the LoRa forward error correction rate 4/(4+n).
type CodingRate uint8

const (
	CR4_5 CodingRate = 1
	CR4_6 CodingRate = 2
	CR4_7 CodingRate = 3
	CR4_8 CodingRate = 4
)

func IsValidCodingRate(cr CodingRate) bool {
	return cr >= CR4_5 && cr <= CR4_8
}

func (cr CodingRate) String() string {
	return "4/" + strconv.Itoa(int(cr)+4)
}

// EncodeCodingRate places the coding rate in RegModemConfig1 bits 3-1.
func EncodeCodingRate(cr CodingRate) Field {
	return Field{Reg: _MODEM_CONFIG1, Mask: 0x0E, Bits: byte(cr) << 1}
}

func DecodeCodingRate(modemConfig1 byte) CodingRate {
	return CodingRate(modemConfig1>>1) & 0x07
}

// --- Header and CRC ---

// HeaderMode selects explicit (header sent) or implicit (no header) LoRa packets.
type HeaderMode uint8

const (
	HeaderExplicit HeaderMode = iota
	HeaderImplicit
)

func (h HeaderMode) String() string {
	if h == HeaderImplicit {
		return "implicit"
	}
	return "explicit"
}

func IsValidHeaderMode(h HeaderMode) bool {
	return h == HeaderExplicit || h == HeaderImplicit
}

// EncodeHeaderMode sets ImplicitHeaderModeOn, RegModemConfig1 bit 0.
func EncodeHeaderMode(h HeaderMode) Field {
	return Field{Reg: _MODEM_CONFIG1, Mask: 0x01, Bits: byte(h)}
}

func DecodeHeaderMode(modemConfig1 byte) HeaderMode {
	return HeaderMode(modemConfig1 & 0x01)
}

// CRCMode turns the payload CRC on or off. The zero value is CRCOn.
type CRCMode uint8

const (
	CRCOn CRCMode = iota
	CRCOff
)

func (c CRCMode) String() string {
	if c == CRCOff {
		return "off"
	}
	return "on"
}

func IsValidCRCMode(c CRCMode) bool {
	return c == CRCOn || c == CRCOff
}

// EncodeCRC returns the CRC enable bit: RxPayloadCrcOn (RegModemConfig2 bit 2)
// in LoRa, CrcOn (RegPacketConfig1 bit 4) in FSK.
func EncodeCRC(f ModemFamily, c CRCMode) Field {
	var on byte
	if c == CRCOn {
		on = 1
	}
	if f == FSK {
		return Field{Reg: _PACKET_CONFIG1, Mask: 0x10, Bits: on << 4}
	}
	return Field{Reg: _MODEM_CONFIG2, Mask: 0x04, Bits: on << 2}
}

func DecodeCRC(f ModemFamily, v byte) CRCMode {
	mask := byte(0x04)
	if f == FSK {
		mask = 0x10
	}
	if v&mask != 0 {
		return CRCOn
	}
	return CRCOff
}

// --- Output power ---

// Power is the PA_BOOST output power in dBm, 2 to 20.
type Power int8

// Named power presets.
const (
	PowerLow          Power = 2  // 'L'
	PowerIntermediate Power = 8  // 'I'
	PowerHigh         Power = 14 // 'H'
	PowerMax          Power = 20 // 'M'
)

func IsValidPower(p Power) bool {
	return p >= 2 && p <= 20
}

func (p Power) String() string {
	return strconv.Itoa(int(p)) + "dBm"
}

// ParsePowerPreset maps the single-letter presets 'L', 'I', 'H' and 'M' to a power level.
func ParsePowerPreset(c byte) (Power, error) {
	switch c {
	case 'L', 'l':
		return PowerLow, nil
	case 'I', 'i':
		return PowerIntermediate, nil
	case 'H', 'h':
		return PowerHigh, nil
	case 'M', 'm':
		return PowerMax, nil
	default:
		return 0, fmt.Errorf("%w: power preset %q", ErrInvalidParameter, c)
	}
}

// EncodePower returns the RegPaConfig and RegPaDac bytes for a power level.
// Up to 17 dBm the PA_BOOST pin gives Pout = 2 + OutputPower. Above that the
// +20 dBm option of RegPaDac is enabled, so 18 and 19 dBm are rounded up to 20.
func EncodePower(p Power) (paConfig, paDac Write) {
	if p > 17 {
		return Write{_PA_CONFIG, 0xFF}, Write{_PA_DAC, 0x87}
	}
	return Write{_PA_CONFIG, 0xF0 | byte(p-2)&0x0F}, Write{_PA_DAC, 0x84}
}

func DecodePower(paConfig, paDac byte) Power {
	if paDac&0x07 == 0x07 && paConfig&0x0F == 0x0F {
		return PowerMax
	}
	return Power(paConfig&0x0F) + 2
}

// --- Frequency channel ---

// Channel is the 24-bit RegFrf tuning word: Frf = Fc * 2^19 / 32 MHz.
type Channel uint32

// Channel table of the 433 MHz band, 300 kHz apart.
const (
	CH1  Channel = 433300 * 16384 / 1000
	CH2  Channel = 433600 * 16384 / 1000
	CH3  Channel = 433900 * 16384 / 1000
	CH4  Channel = 434200 * 16384 / 1000
	CH5  Channel = 434500 * 16384 / 1000
	CH6  Channel = 434800 * 16384 / 1000
	CH7  Channel = 435100 * 16384 / 1000
	CH8  Channel = 435400 * 16384 / 1000
	CH9  Channel = 435700 * 16384 / 1000
	CH10 Channel = 436000 * 16384 / 1000
	CH11 Channel = 436300 * 16384 / 1000
	CH12 Channel = 436600 * 16384 / 1000
)

var channels = [...]Channel{CH1, CH2, CH3, CH4, CH5, CH6, CH7, CH8, CH9, CH10, CH11, CH12}

// ChannelByNumber returns the n-th entry (1-based) of the channel table.
func ChannelByNumber(n int) (Channel, error) {
	if n < 1 || n > len(channels) {
		return 0, fmt.Errorf("%w: channel %d", ErrInvalidParameter, n)
	}
	return channels[n-1], nil
}

// IsValidChannel reports whether ch is one of the table entries.
func IsValidChannel(ch Channel) bool {
	for _, c := range channels {
		if c == ch {
			return true
		}
	}
	return false
}

// Hz returns the carrier frequency.
func (ch Channel) Hz() uint64 {
	return uint64(ch) * 32000000 >> 19
}

func (ch Channel) String() string {
	for i, c := range channels {
		if c == ch {
			return fmt.Sprintf("CH%d(%.1fMHz)", i+1, float64(ch.Hz())/1e6)
		}
	}
	return fmt.Sprintf("frf(0x%06X)", uint32(ch))
}

// EncodeChannel returns the RegFrfMsb, RegFrfMid and RegFrfLsb writes.
func EncodeChannel(ch Channel) [3]Write {
	return [3]Write{
		{_FRF_MSB, byte(ch >> 16)},
		{_FRF_MID, byte(ch >> 8)},
		{_FRF_LSB, byte(ch)},
	}
}

func DecodeChannel(msb, mid, lsb byte) Channel {
	return Channel(msb)<<16 | Channel(mid)<<8 | Channel(lsb)
}

// --- Over-current protection ---

// IsValidMaxCurrent reports whether mA can be programmed in RegOcp (45 to 240 mA).
func IsValidMaxCurrent(mA int) bool {
	return mA >= 45 && mA <= 240
}

// EncodeMaxCurrent enables over-current protection with the trim closest below mA:
// Imax = 45+5*trim up to 120 mA, -30+10*trim up to 240 mA.
func EncodeMaxCurrent(mA int) Field {
	var trim int
	if mA <= 120 {
		trim = (mA - 45) / 5
	} else {
		trim = (mA + 30) / 10
	}
	return Field{Reg: _OCP, Mask: 0x3F, Bits: 0x20 | byte(trim)&0x1F}
}

func DecodeMaxCurrent(ocp byte) int {
	trim := int(ocp & 0x1F)
	switch {
	case trim <= 15:
		return 45 + 5*trim
	case trim <= 27:
		return -30 + 10*trim
	default:
		return 240
	}
}

// --- Preamble ---

// EncodePreambleLength splits the preamble length over the MSB/LSB registers of the family.
func EncodePreambleLength(f ModemFamily, l uint16) [2]Write {
	regs := f.registers()
	return [2]Write{
		{regs.preambleMSB, byte(l >> 8)},
		{regs.preambleLSB, byte(l)},
	}
}

func DecodePreambleLength(msb, lsb byte) uint16 {
	return uint16(msb)<<8 | uint16(lsb)
}

func IsValidPreambleLength(l uint16) bool {
	return l >= 6
}
