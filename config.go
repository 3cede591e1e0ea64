package sx127x

import "fmt"

// AddressFilter decides what happens to a frame addressed to another node.
type AddressFilter uint8

const (
	// FilterEnforce drops frames that are neither for this node nor broadcast.
	FilterEnforce AddressFilter = iota
	// FilterAcceptAll hands every frame to the caller.
	FilterAcceptAll
)

func (a AddressFilter) String() string {
	switch a {
	case FilterEnforce:
		return "enforce"
	case FilterAcceptAll:
		return "accept-all"
	default:
		return "unknown"
	}
}

// BroadcastAddress is accepted by every node regardless of its own address.
const BroadcastAddress = 0x00

// NoRetries as RadioConfig.MaxRetries makes SendReliable send each frame once.
const NoRetries = -1

const (
	defaultNodeAddress    = 1
	defaultPreambleLength = 8
	defaultMaxCurrent     = 240
	defaultMaxRetries     = 3
	maxRetriesLimit       = 100
)

// RadioConfig holds the modulation and protocol settings of the radio.
// It is a value: the With* methods return a modified copy and never touch a device.
type RadioConfig struct {
	// Modem selects LoRa or FSK.
	// Defaults to LoRa if not provided.
	Modem ModemFamily
	// Bandwidth is the LoRa signal bandwidth.
	// Defaults to BW125 if not provided.
	Bandwidth Bandwidth
	// SpreadingFactor is the LoRa spreading factor, 6 to 12.
	// SF6 only works with implicit header mode.
	// Defaults to SF7 if not provided.
	SpreadingFactor SpreadingFactor
	// CodingRate is the LoRa coding rate.
	// Defaults to CR4_5 if not provided.
	CodingRate CodingRate
	// Header selects explicit or implicit LoRa header.
	// Defaults to HeaderExplicit.
	Header HeaderMode
	// CRC enables the payload CRC.
	// Defaults to CRCOn.
	CRC CRCMode
	// Power is the output power on PA_BOOST in dBm, 2 to 20.
	// Defaults to PowerHigh (14 dBm) if not provided.
	Power Power
	// Channel is the carrier frequency, one of CH1..CH12.
	// Defaults to CH1 (433.3 MHz) if not provided.
	Channel Channel
	// NodeAddress is the address of this node. 0 is the broadcast address.
	// Defaults to 1 if not provided.
	NodeAddress byte
	// PreambleLength is the preamble length in symbols (LoRa) or bytes (FSK).
	// Defaults to 8 if not provided.
	PreambleLength uint16
	// MaxCurrent is the over-current protection limit in mA, 45 to 240.
	// Defaults to 240 if not provided.
	MaxCurrent int
	// MaxRetries is the number of retransmissions SendReliable makes after the first attempt.
	// Range: 1 to 100, or NoRetries.
	// Defaults to 3 if not provided.
	MaxRetries int
	// AddressFilter controls whether frames for other nodes are dropped.
	// Defaults to FilterEnforce.
	AddressFilter AddressFilter
	// RestorePreviousMode makes setters return the radio to the mode it was in
	// before the call instead of leaving it in standby.
	RestorePreviousMode bool
}

// DefaultConfig returns the configuration used when every field is left empty.
func DefaultConfig() RadioConfig {
	return RadioConfig{}.withDefaults()
}

func (c RadioConfig) withDefaults() RadioConfig {
	if c.Bandwidth == 0 {
		c.Bandwidth = BW125
	}
	if c.SpreadingFactor == 0 {
		c.SpreadingFactor = SF7
	}
	if c.CodingRate == 0 {
		c.CodingRate = CR4_5
	}
	if c.Power == 0 {
		c.Power = PowerHigh
	}
	if c.Channel == 0 {
		c.Channel = CH1
	}
	if c.NodeAddress == 0 {
		c.NodeAddress = defaultNodeAddress
	}
	if c.PreambleLength == 0 {
		c.PreambleLength = defaultPreambleLength
	}
	if c.MaxCurrent == 0 {
		c.MaxCurrent = defaultMaxCurrent
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.SpreadingFactor == SF6 {
		c.Header = HeaderImplicit
	}
	return c
}

// Validate checks every field and the rules between them.
func (c RadioConfig) Validate() error {
	switch {
	case c.Modem != LoRa && c.Modem != FSK:
		return fmt.Errorf("%w: modem %d", ErrInvalidParameter, c.Modem)
	case !IsValidBandwidth(c.Bandwidth):
		return fmt.Errorf("%w: bandwidth %d", ErrInvalidParameter, c.Bandwidth)
	case !IsValidSpreadingFactor(c.SpreadingFactor):
		return fmt.Errorf("%w: spreading factor %d", ErrInvalidParameter, c.SpreadingFactor)
	case !IsValidCodingRate(c.CodingRate):
		return fmt.Errorf("%w: coding rate %d", ErrInvalidParameter, c.CodingRate)
	case !IsValidHeaderMode(c.Header):
		return fmt.Errorf("%w: header mode %d", ErrInvalidParameter, c.Header)
	case c.SpreadingFactor == SF6 && c.Header != HeaderImplicit:
		return fmt.Errorf("%w: SF6 requires implicit header", ErrInvalidParameter)
	case !IsValidCRCMode(c.CRC):
		return fmt.Errorf("%w: crc mode %d", ErrInvalidParameter, c.CRC)
	case !IsValidPower(c.Power):
		return fmt.Errorf("%w: power %d dBm", ErrInvalidParameter, c.Power)
	case !IsValidChannel(c.Channel):
		return fmt.Errorf("%w: channel 0x%06X", ErrInvalidParameter, uint32(c.Channel))
	case !IsValidPreambleLength(c.PreambleLength):
		return fmt.Errorf("%w: preamble length %d", ErrInvalidParameter, c.PreambleLength)
	case !IsValidMaxCurrent(c.MaxCurrent):
		return fmt.Errorf("%w: max current %d mA", ErrInvalidParameter, c.MaxCurrent)
	case c.MaxRetries < NoRetries || c.MaxRetries > maxRetriesLimit:
		return fmt.Errorf("%w: max retries %d, limit is %d", ErrProtocolLimit, c.MaxRetries, maxRetriesLimit)
	case c.AddressFilter != FilterEnforce && c.AddressFilter != FilterAcceptAll:
		return fmt.Errorf("%w: address filter %d", ErrInvalidParameter, c.AddressFilter)
	}
	return nil
}

func (c RadioConfig) WithModem(f ModemFamily) (RadioConfig, error) {
	if f != LoRa && f != FSK {
		return c, fmt.Errorf("%w: modem %d", ErrInvalidParameter, f)
	}
	c.Modem = f
	return c, nil
}

func (c RadioConfig) WithBandwidth(bw Bandwidth) (RadioConfig, error) {
	if !IsValidBandwidth(bw) {
		return c, fmt.Errorf("%w: bandwidth %d", ErrInvalidParameter, bw)
	}
	c.Bandwidth = bw
	return c, nil
}

// WithSpreadingFactor sets the spreading factor. SF6 switches the header to implicit.
func (c RadioConfig) WithSpreadingFactor(sf SpreadingFactor) (RadioConfig, error) {
	if !IsValidSpreadingFactor(sf) {
		return c, fmt.Errorf("%w: spreading factor %d", ErrInvalidParameter, sf)
	}
	c.SpreadingFactor = sf
	if sf == SF6 {
		c.Header = HeaderImplicit
	}
	return c, nil
}

func (c RadioConfig) WithCodingRate(cr CodingRate) (RadioConfig, error) {
	if !IsValidCodingRate(cr) {
		return c, fmt.Errorf("%w: coding rate %d", ErrInvalidParameter, cr)
	}
	c.CodingRate = cr
	return c, nil
}

// WithHeaderMode sets the header mode. Explicit header is refused at SF6.
func (c RadioConfig) WithHeaderMode(h HeaderMode) (RadioConfig, error) {
	if !IsValidHeaderMode(h) {
		return c, fmt.Errorf("%w: header mode %d", ErrInvalidParameter, h)
	}
	if h == HeaderExplicit && c.SpreadingFactor == SF6 {
		return c, fmt.Errorf("%w: SF6 requires implicit header", ErrInvalidParameter)
	}
	c.Header = h
	return c, nil
}

func (c RadioConfig) WithCRC(m CRCMode) (RadioConfig, error) {
	if !IsValidCRCMode(m) {
		return c, fmt.Errorf("%w: crc mode %d", ErrInvalidParameter, m)
	}
	c.CRC = m
	return c, nil
}

func (c RadioConfig) WithPower(p Power) (RadioConfig, error) {
	if !IsValidPower(p) {
		return c, fmt.Errorf("%w: power %d dBm", ErrInvalidParameter, p)
	}
	c.Power = p
	return c, nil
}

func (c RadioConfig) WithChannel(ch Channel) (RadioConfig, error) {
	if !IsValidChannel(ch) {
		return c, fmt.Errorf("%w: channel 0x%06X", ErrInvalidParameter, uint32(ch))
	}
	c.Channel = ch
	return c, nil
}

func (c RadioConfig) WithNodeAddress(addr byte) RadioConfig {
	c.NodeAddress = addr
	return c
}

func (c RadioConfig) WithPreambleLength(l uint16) (RadioConfig, error) {
	if !IsValidPreambleLength(l) {
		return c, fmt.Errorf("%w: preamble length %d", ErrInvalidParameter, l)
	}
	c.PreambleLength = l
	return c, nil
}

func (c RadioConfig) WithMaxCurrent(mA int) (RadioConfig, error) {
	if !IsValidMaxCurrent(mA) {
		return c, fmt.Errorf("%w: max current %d mA", ErrInvalidParameter, mA)
	}
	c.MaxCurrent = mA
	return c, nil
}

// WithMaxRetries sets the retransmission count. Zero and NoRetries both
// disable retransmission.
func (c RadioConfig) WithMaxRetries(n int) (RadioConfig, error) {
	if n < NoRetries || n > maxRetriesLimit {
		return c, fmt.Errorf("%w: max retries %d, limit is %d", ErrProtocolLimit, n, maxRetriesLimit)
	}
	if n == 0 {
		n = NoRetries
	}
	c.MaxRetries = n
	return c, nil
}

// retryLimit is the number of retransmissions SendReliable may make.
func (c RadioConfig) retryLimit() int {
	if c.MaxRetries < 0 {
		return 0
	}
	return c.MaxRetries
}

// LowDataRateOptimize reports whether the current SF and bandwidth require the LDRO bit.
func (c RadioConfig) LowDataRateOptimize() bool {
	return LowDataRateOptimize(c.SpreadingFactor, c.Bandwidth)
}

// MaxPayload returns the largest payload a frame can carry with this modem.
func (c RadioConfig) MaxPayload() int {
	return c.Modem.registers().maxFrame - FrameOverhead
}

// accepts reports whether a frame addressed to dst is for this node.
func (c RadioConfig) accepts(dst byte) bool {
	return dst == c.NodeAddress || dst == BroadcastAddress
}

func (c RadioConfig) String() string {
	if c.Modem == FSK {
		return fmt.Sprintf("FSK(Channel=%s, Power=%s, Node=%d, Preamble=%d, CRC=%s, Filter=%s)",
			c.Channel, c.Power, c.NodeAddress, c.PreambleLength, c.CRC, c.AddressFilter)
	}
	return fmt.Sprintf("LoRa(Channel=%s, BW=%s, %s, CR=%s, Header=%s, CRC=%s, Power=%s, Node=%d, Preamble=%d, Filter=%s)",
		c.Channel,
		c.Bandwidth,
		c.SpreadingFactor,
		c.CodingRate,
		c.Header,
		c.CRC,
		c.Power,
		c.NodeAddress,
		c.PreambleLength,
		c.AddressFilter,
	)
}
