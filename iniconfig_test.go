//go:build !tinygo

package sx127x

import (
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
	"gopkg.in/ini.v1"
)

const sampleProfile = `
[radio]
Modem = lora
Bandwidth = 62.5
SpreadingFactor = 10
CodingRate = 4/7
CRC = false
Power = M
Channel = 6
NodeAddress = 2
PreambleLength = 12
MaxRetries = 5
AddressFilter = accept-all
RestorePreviousMode = true

[log]
Level = info
`

func TestLoadConfig(t *testing.T) {
	c := qt.New(t)

	path := filepath.Join(t.TempDir(), "radio.ini")
	c.Assert(os.WriteFile(path, []byte(sampleProfile), 0o644), qt.IsNil)

	cfg, err := LoadConfig(path)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Modem, qt.Equals, LoRa)
	c.Assert(cfg.Bandwidth, qt.Equals, BW62_5)
	c.Assert(cfg.SpreadingFactor, qt.Equals, SF10)
	c.Assert(cfg.CodingRate, qt.Equals, CR4_7)
	c.Assert(cfg.CRC, qt.Equals, CRCOff)
	c.Assert(cfg.Power, qt.Equals, PowerMax)
	c.Assert(cfg.Channel, qt.Equals, CH6)
	c.Assert(cfg.NodeAddress, qt.Equals, byte(2))
	c.Assert(cfg.PreambleLength, qt.Equals, uint16(12))
	c.Assert(cfg.MaxRetries, qt.Equals, 5)
	c.Assert(cfg.AddressFilter, qt.Equals, FilterAcceptAll)
	c.Assert(cfg.RestorePreviousMode, qt.IsTrue)
	// Missing keys keep their defaults.
	c.Assert(cfg.MaxCurrent, qt.Equals, 240)
}

func TestLoadConfigMissingFile(t *testing.T) {
	c := qt.New(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.ini"))
	c.Assert(err, qt.ErrorIs, ErrPkg)
}

func TestLoadConfigBadLogLevel(t *testing.T) {
	c := qt.New(t)

	path := filepath.Join(t.TempDir(), "radio.ini")
	c.Assert(os.WriteFile(path, []byte("[log]\nLevel = loud\n"), 0o644), qt.IsNil)

	_, err := LoadConfig(path)
	c.Assert(err, qt.ErrorIs, ErrInvalidParameter)
}

func TestParseConfigDefaults(t *testing.T) {
	c := qt.New(t)

	f := ini.Empty()
	cfg, err := ParseConfig(f.Section("radio"))
	c.Assert(err, qt.IsNil)
	c.Assert(cfg, qt.Equals, DefaultConfig())
}

func TestParseConfigFSK(t *testing.T) {
	c := qt.New(t)

	f, err := ini.Load([]byte("[radio]\nModem = fsk\nPower = 10\nCRC = true\n"))
	c.Assert(err, qt.IsNil)

	cfg, err := ParseConfig(f.Section("radio"))
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Modem, qt.Equals, FSK)
	c.Assert(cfg.Power, qt.Equals, Power(10))
	c.Assert(cfg.CRC, qt.Equals, CRCOn)
}

func TestParseConfigReportsAllErrors(t *testing.T) {
	c := qt.New(t)

	f, err := ini.Load([]byte("[radio]\nSpreadingFactor = 13\nCodingRate = 4/9\nPower = Q\nChannel = 14\n"))
	c.Assert(err, qt.IsNil)

	_, err = ParseConfig(f.Section("radio"))
	c.Assert(err, qt.ErrorIs, ErrPkg)
	c.Assert(err, qt.ErrorIs, ErrInvalidParameter)
	c.Assert(err, qt.ErrorMatches, `(?s).*SpreadingFactor.*CodingRate.*Power.*Channel.*`)
}

func TestParseConfigValidatesCombination(t *testing.T) {
	c := qt.New(t)

	f, err := ini.Load([]byte("[radio]\nMaxRetries = 500\n"))
	c.Assert(err, qt.IsNil)

	_, err = ParseConfig(f.Section("radio"))
	c.Assert(err, qt.ErrorIs, ErrProtocolLimit)
	c.Assert(err, qt.ErrorIs, ErrPkg)
}

func TestParseConfigZeroRetries(t *testing.T) {
	c := qt.New(t)

	f, err := ini.Load([]byte("[radio]\nMaxRetries = 0\n"))
	c.Assert(err, qt.IsNil)

	cfg, err := ParseConfig(f.Section("radio"))
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.MaxRetries, qt.Equals, NoRetries)
}
