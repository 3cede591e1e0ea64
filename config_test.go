package sx127x

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestDefaultConfig(t *testing.T) {
	c := qt.New(t)

	cfg := DefaultConfig()
	c.Assert(cfg.Modem, qt.Equals, LoRa)
	c.Assert(cfg.Bandwidth, qt.Equals, BW125)
	c.Assert(cfg.SpreadingFactor, qt.Equals, SF7)
	c.Assert(cfg.CodingRate, qt.Equals, CR4_5)
	c.Assert(cfg.Header, qt.Equals, HeaderExplicit)
	c.Assert(cfg.CRC, qt.Equals, CRCOn)
	c.Assert(cfg.Power, qt.Equals, PowerHigh)
	c.Assert(cfg.Channel, qt.Equals, CH1)
	c.Assert(cfg.NodeAddress, qt.Equals, byte(1))
	c.Assert(cfg.PreambleLength, qt.Equals, uint16(8))
	c.Assert(cfg.MaxCurrent, qt.Equals, 240)
	c.Assert(cfg.MaxRetries, qt.Equals, 3)
	c.Assert(cfg.AddressFilter, qt.Equals, FilterEnforce)
	c.Assert(cfg.Validate(), qt.IsNil)
}

func TestSF6ForcesImplicitHeader(t *testing.T) {
	c := qt.New(t)

	cfg, err := DefaultConfig().WithSpreadingFactor(SF6)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Header, qt.Equals, HeaderImplicit)

	// Explicit header is refused and the input is returned untouched.
	same, err := cfg.WithHeaderMode(HeaderExplicit)
	c.Assert(err, qt.ErrorIs, ErrInvalidParameter)
	c.Assert(same, qt.DeepEquals, cfg)

	cfg, err = cfg.WithSpreadingFactor(SF8)
	c.Assert(err, qt.IsNil)
	cfg, err = cfg.WithHeaderMode(HeaderExplicit)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Header, qt.Equals, HeaderExplicit)

	// Defaults apply the same rule.
	cfg = RadioConfig{SpreadingFactor: SF6}.withDefaults()
	c.Assert(cfg.Header, qt.Equals, HeaderImplicit)
}

func TestValidate(t *testing.T) {
	c := qt.New(t)

	tests := []struct {
		name   string
		modify func(*RadioConfig)
		err    error
	}{
		{"modem", func(r *RadioConfig) { r.Modem = 2 }, ErrInvalidParameter},
		{"bandwidth", func(r *RadioConfig) { r.Bandwidth = 11 }, ErrInvalidParameter},
		{"spreading factor", func(r *RadioConfig) { r.SpreadingFactor = 13 }, ErrInvalidParameter},
		{"sf6 explicit", func(r *RadioConfig) { r.SpreadingFactor = SF6; r.Header = HeaderExplicit }, ErrInvalidParameter},
		{"power", func(r *RadioConfig) { r.Power = 21 }, ErrInvalidParameter},
		{"channel", func(r *RadioConfig) { r.Channel = 0x6C0000 }, ErrInvalidParameter},
		{"preamble", func(r *RadioConfig) { r.PreambleLength = 5 }, ErrInvalidParameter},
		{"max current", func(r *RadioConfig) { r.MaxCurrent = 300 }, ErrInvalidParameter},
		{"max retries", func(r *RadioConfig) { r.MaxRetries = 101 }, ErrProtocolLimit},
		{"negative retries", func(r *RadioConfig) { r.MaxRetries = -2 }, ErrProtocolLimit},
		{"address filter", func(r *RadioConfig) { r.AddressFilter = 5 }, ErrInvalidParameter},
	}
	for _, tt := range tests {
		c.Run(tt.name, func(c *qt.C) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			c.Assert(cfg.Validate(), qt.ErrorIs, tt.err)
		})
	}
}

func TestWithMethodsReturnCopies(t *testing.T) {
	c := qt.New(t)

	base := DefaultConfig()
	_, err := base.WithPower(PowerMax)
	c.Assert(err, qt.IsNil)
	c.Assert(base.Power, qt.Equals, PowerHigh)

	_, err = base.WithPower(25)
	c.Assert(err, qt.ErrorIs, ErrInvalidParameter)
	_, err = base.WithChannel(0)
	c.Assert(err, qt.ErrorIs, ErrInvalidParameter)
	_, err = base.WithMaxRetries(101)
	c.Assert(err, qt.ErrorIs, ErrProtocolLimit)

	next, err := base.WithMaxRetries(0)
	c.Assert(err, qt.IsNil)
	c.Assert(next.MaxRetries, qt.Equals, NoRetries)
	// Disabled retries survive a round trip through the defaults.
	c.Assert(next.withDefaults().MaxRetries, qt.Equals, NoRetries)
	c.Assert(next.Validate(), qt.IsNil)
	c.Assert(base.WithNodeAddress(9).NodeAddress, qt.Equals, byte(9))
}

func TestDerivedSettings(t *testing.T) {
	c := qt.New(t)

	cfg, err := DefaultConfig().WithSpreadingFactor(SF12)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.LowDataRateOptimize(), qt.IsTrue)
	cfg, err = cfg.WithBandwidth(BW500)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.LowDataRateOptimize(), qt.IsFalse)

	c.Assert(DefaultConfig().MaxPayload(), qt.Equals, 250)
	fsk, err := DefaultConfig().WithModem(FSK)
	c.Assert(err, qt.IsNil)
	c.Assert(fsk.MaxPayload(), qt.Equals, 59)

	c.Assert(DefaultConfig().accepts(1), qt.IsTrue)
	c.Assert(DefaultConfig().accepts(BroadcastAddress), qt.IsTrue)
	c.Assert(DefaultConfig().accepts(2), qt.IsFalse)
}

func TestConfigString(t *testing.T) {
	c := qt.New(t)

	c.Assert(DefaultConfig().String(), qt.Equals,
		"LoRa(Channel=CH1(433.3MHz), BW=125kHz, SF7, CR=4/5, Header=explicit, CRC=on, Power=14dBm, Node=1, Preamble=8, Filter=enforce)")
}
