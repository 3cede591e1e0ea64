//go:build !tinygo

package sx127x

import (
	"errors"
	"fmt"
	"slices"

	"gopkg.in/ini.v1"
)

// LoadConfig reads a radio profile from an INI file. The [radio] section is
// parsed with ParseConfig; an optional [log] section sets the log level:
//
//	[radio]
//	Modem = lora
//	Bandwidth = 125
//	SpreadingFactor = 9
//	CodingRate = 4/5
//	Power = H
//	Channel = 6
//	NodeAddress = 2
//
//	[log]
//	Level = debug
func LoadConfig(path string) (RadioConfig, error) {
	f, err := ini.Load(path)
	if err != nil {
		return RadioConfig{}, fmt.Errorf("%w: load %s: %w", ErrPkg, path, err)
	}
	if f.HasSection("log") {
		if err := SetLogLevel(f.Section("log").Key("Level").MustString("info")); err != nil {
			return RadioConfig{}, err
		}
	}
	return ParseConfig(f.Section("radio"))
}

// ParseConfig builds a RadioConfig from an INI section. Missing keys keep
// their defaults. All invalid keys are reported together.
func ParseConfig(sec *ini.Section) (RadioConfig, error) {
	var c RadioConfig
	var errs []error

	if sec.HasKey("Modem") {
		modem := sec.Key("Modem").In("BAD", []string{"lora", "fsk"})
		switch modem {
		case "lora":
			c.Modem = LoRa
		case "fsk":
			c.Modem = FSK
		default:
			errs = append(errs, fmt.Errorf("radio Modem value is '%s', must be 'lora' or 'fsk'", sec.Key("Modem").String()))
		}
	}

	if sec.HasKey("Bandwidth") {
		bw, err := ParseBandwidth(sec.Key("Bandwidth").String())
		if err != nil {
			errs = append(errs, fmt.Errorf("radio Bandwidth: %w", err))
		}
		c.Bandwidth = bw
	}

	if sec.HasKey("SpreadingFactor") {
		sf, err := sec.Key("SpreadingFactor").Int()
		if err == nil && !IsValidSpreadingFactor(SpreadingFactor(sf)) {
			err = fmt.Errorf("radio SpreadingFactor value is %d, must be 6 to 12", sf)
		}
		errs = append(errs, err)
		c.SpreadingFactor = SpreadingFactor(sf)
	}

	if sec.HasKey("CodingRate") {
		rates := []string{"4/5", "4/6", "4/7", "4/8"}
		cr := sec.Key("CodingRate").In("BAD", rates)
		if cr == "BAD" {
			errs = append(errs, fmt.Errorf("radio CodingRate value is '%s', must be one of %v", sec.Key("CodingRate").String(), rates))
		}
		c.CodingRate = CodingRate(slices.Index(rates, cr) + 1)
	}

	if sec.HasKey("Header") {
		switch sec.Key("Header").In("BAD", []string{"explicit", "implicit"}) {
		case "explicit":
			c.Header = HeaderExplicit
		case "implicit":
			c.Header = HeaderImplicit
		default:
			errs = append(errs, fmt.Errorf("radio Header value is '%s', must be 'explicit' or 'implicit'", sec.Key("Header").String()))
		}
	}

	if sec.HasKey("CRC") {
		if sec.Key("CRC").MustBool(true) {
			c.CRC = CRCOn
		} else {
			c.CRC = CRCOff
		}
	}

	if sec.HasKey("Power") {
		p, err := parsePower(sec.Key("Power").String())
		if err != nil {
			errs = append(errs, fmt.Errorf("radio Power: %w", err))
		}
		c.Power = p
	}

	if sec.HasKey("Channel") {
		n, err := sec.Key("Channel").Int()
		if err == nil {
			c.Channel, err = ChannelByNumber(n)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("radio Channel: %w", err))
		}
	}

	if sec.HasKey("NodeAddress") {
		addr, err := sec.Key("NodeAddress").Int()
		if err == nil && (addr < 0 || addr > 255) {
			err = fmt.Errorf("radio NodeAddress value is %d, must be 0 to 255", addr)
		}
		errs = append(errs, err)
		c.NodeAddress = byte(addr)
	}

	if sec.HasKey("PreambleLength") {
		l, err := sec.Key("PreambleLength").Uint()
		if err == nil && (l > 0xFFFF || !IsValidPreambleLength(uint16(l))) {
			err = fmt.Errorf("radio PreambleLength value is %d, must be 6 to 65535", l)
		}
		errs = append(errs, err)
		c.PreambleLength = uint16(l)
	}

	if sec.HasKey("MaxCurrent") {
		mA, err := sec.Key("MaxCurrent").Int()
		errs = append(errs, err)
		c.MaxCurrent = mA
	}

	if sec.HasKey("MaxRetries") {
		n, err := sec.Key("MaxRetries").Int()
		errs = append(errs, err)
		if err == nil && n == 0 {
			n = NoRetries
		}
		c.MaxRetries = n
	}

	if sec.HasKey("AddressFilter") {
		switch sec.Key("AddressFilter").In("BAD", []string{"enforce", "accept-all"}) {
		case "enforce":
			c.AddressFilter = FilterEnforce
		case "accept-all":
			c.AddressFilter = FilterAcceptAll
		default:
			errs = append(errs, fmt.Errorf("radio AddressFilter value is '%s', must be 'enforce' or 'accept-all'", sec.Key("AddressFilter").String()))
		}
	}

	c.RestorePreviousMode = sec.Key("RestorePreviousMode").MustBool(false)

	if err := errors.Join(errs...); err != nil {
		return c, fmt.Errorf("%w: %w: %w", ErrPkg, ErrInvalidParameter, err)
	}

	c = c.withDefaults()
	if err := c.Validate(); err != nil {
		return c, wrap(err)
	}
	return c, nil
}

// parsePower accepts a number of dBm or one of the presets L, I, H and M.
func parsePower(s string) (Power, error) {
	if len(s) == 1 && (s[0] < '0' || s[0] > '9') {
		return ParsePowerPreset(s[0])
	}
	var dBm int
	if _, err := fmt.Sscanf(s, "%d", &dBm); err != nil {
		return 0, fmt.Errorf("%w: power %q", ErrInvalidParameter, s)
	}
	if !IsValidPower(Power(dBm)) {
		return 0, fmt.Errorf("%w: power %d dBm", ErrInvalidParameter, dBm)
	}
	return Power(dBm), nil
}
