package sx127x

import (
	"fmt"
	"math"
	"time"
)

const (
	// MaxTimeout bounds every wait in FSK mode, which has no airtime model.
	MaxTimeout = 10 * time.Second
	// MaxWait is the longest wait a caller may ask for.
	MaxWait = 12 * time.Second

	// timeoutMargin is added to the airtime of every LoRa wait, in ms.
	timeoutMargin = 1000
)

// AirtimeParams are the inputs of the LoRa time-on-air formula.
type AirtimeParams struct {
	SpreadingFactor SpreadingFactor
	Bandwidth       Bandwidth
	CodingRate      CodingRate
	Header          HeaderMode
	PreambleLength  uint16
	// PayloadLength is the number of bytes on air, frame overhead included.
	PayloadLength int
}

// AirtimeParams returns the time-on-air inputs for a frame of n bytes sent with c.
func (c RadioConfig) AirtimeParams(n int) AirtimeParams {
	return AirtimeParams{
		SpreadingFactor: c.SpreadingFactor,
		Bandwidth:       c.Bandwidth,
		CodingRate:      c.CodingRate,
		Header:          c.Header,
		PreambleLength:  c.PreambleLength,
		PayloadLength:   n,
	}
}

// Budget is the breakdown of a packet's time on air.
type Budget struct {
	Symbol         time.Duration
	Preamble       time.Duration
	PayloadSymbols int
	Total          time.Duration
}

// TimeOnAir computes the time on air of a LoRa packet (SX1276/77/78/79
// datasheet, section 4.1.1.7). It returns a zero Budget for invalid parameters.
func TimeOnAir(p AirtimeParams) Budget {
	if !IsValidBandwidth(p.Bandwidth) || !IsValidSpreadingFactor(p.SpreadingFactor) || !IsValidCodingRate(p.CodingRate) {
		return Budget{}
	}

	sf := int(p.SpreadingFactor)
	symbol := math.Exp2(float64(sf)) / (float64(p.Bandwidth.Hz()) / 1000) // ms
	preamble := (float64(p.PreambleLength) + 4.25) * symbol

	de := 0
	if p.SpreadingFactor > SF10 {
		de = 1
	}
	h := 0
	if p.Header == HeaderImplicit {
		h = 1
	}

	symbols := 8
	if num := 8*p.PayloadLength - 4*sf + 28 + 16 - 20*h; num > 0 {
		den := 4 * (sf - 2*de)
		symbols += (num + den - 1) / den * (int(p.CodingRate) + 4)
	}

	return Budget{
		Symbol:         millis(symbol),
		Preamble:       millis(preamble),
		PayloadSymbols: symbols,
		Total:          millis(preamble + float64(symbols)*symbol),
	}
}

func millis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

// timeoutTracker turns airtime budgets into wait timeouts. Each timeout is the
// airtime plus a fixed margin plus a tenth of the previous timeout.
type timeoutTracker struct {
	prev uint32
}

func (t *timeoutTracker) next(b Budget) uint32 {
	ms := durationToMillis(b.Total) + t.prev/10 + timeoutMargin
	t.prev = ms
	return ms
}

// timeoutFor returns the wait in ms for a frame of n bytes with the current configuration.
func (d *Device) timeoutFor(n int) uint32 {
	if d.config.Modem == FSK {
		return durationToMillis(MaxTimeout)
	}
	return d.timeouts.next(TimeOnAir(d.config.AirtimeParams(n)))
}

// waitBudget converts a caller supplied wait into ms. Zero selects the
// computed timeout for a frame of n bytes.
func (d *Device) waitBudget(wait time.Duration, n int) (uint32, error) {
	switch {
	case wait < 0 || wait > MaxWait:
		return 0, fmt.Errorf("%w: wait %s, limit is %s", ErrProtocolLimit, wait, MaxWait)
	case wait == 0:
		return d.timeoutFor(n), nil
	default:
		return durationToMillis(wait), nil
	}
}
