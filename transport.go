package sx127x

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AckSendOutcome tells what ReceiveAndAck answered.
type AckSendOutcome uint8

const (
	// AckNotSent: nothing was received, or the frame needs no answer
	// (an ACK, or a broadcast).
	AckNotSent AckSendOutcome = iota
	// AckSent: the frame passed its CRC and a positive ACK was sent.
	AckSent
	// NAckSent: the frame failed its CRC and a negative ACK was sent.
	NAckSent
	// AckSendFailed: the reply could not be transmitted.
	AckSendFailed
)

func (o AckSendOutcome) String() string {
	switch o {
	case AckNotSent:
		return "not-sent"
	case AckSent:
		return "ack-sent"
	case NAckSent:
		return "nack-sent"
	case AckSendFailed:
		return "send-failed"
	default:
		return "unknown"
	}
}

// transmit writes b into the FIFO, sends it and waits for TxDone.
// The radio is back in standby on return.
func (d *Device) transmit(ctx context.Context, b []byte) error {
	regs := d.config.Modem.registers()
	if len(b) > regs.maxFrame {
		return fmt.Errorf("%w: frame of %d bytes, limit is %d", ErrProtocolLimit, len(b), regs.maxFrame)
	}
	if d.config.Modem == FSK {
		b = padFrame(b, regs.maxFrame)
	}

	if err := d.setMode(ModeStandby); err != nil {
		return err
	}
	if err := d.clearFlags(); err != nil {
		return err
	}
	if err := d.writeVerify(regs.payloadLength, byte(len(b))); err != nil {
		return err
	}
	if regs.fifoPointers {
		if err := d.write(_FIFO_TX_BASE_ADDR, 0); err != nil {
			return err
		}
		if err := d.write(_FIFO_ADDR_PTR, 0); err != nil {
			return err
		}
	}
	for _, c := range b {
		if err := d.write(_FIFO, c); err != nil {
			return err
		}
	}

	timeout := d.timeoutFor(len(b))
	start := d.clock.Millis()
	if err := d.setMode(ModeTx); err != nil {
		return err
	}
	if _, err := d.waitFlags(ctx, start, timeout, regs.irqFlags, regs.txDone); err != nil {
		globalLogger.Warn("transmission not completed", Fields{"timeout_ms": timeout, "error": err.Error()})
		d.abort()
		return err
	}

	if err := d.clearFlags(); err != nil {
		return err
	}
	return d.setMode(ModeStandby)
}

// padFrame fills b with zeros up to n bytes. FSK runs the packet engine in
// fixed length mode, so both ends move exactly n bytes; the frame's own Length
// byte tells the receiver where the frame ends.
func padFrame(b []byte, n int) []byte {
	if len(b) >= n {
		return b
	}
	padded := make([]byte, n)
	copy(padded, b)
	return padded
}

// abort returns to standby after a failed wait. Its own errors are only logged:
// the caller already reports the failure that matters.
func (d *Device) abort() {
	if err := d.setMode(ModeStandby); err != nil {
		globalLogger.Warn("failed to return to standby", Fields{"error": err.Error()})
	}
}

// prepareRx sets up the receive front end and the FIFO for a new packet.
func (d *Device) prepareRx() error {
	regs := d.config.Modem.registers()
	writes := []Write{
		{_LNA, _LNA_MAX_GAIN_BOOST},
		{_PA_RAMP, _PA_RAMP_RX},
	}
	if d.config.Modem == LoRa {
		writes = append(writes,
			Write{_SYMB_TIMEOUT_LSB, _SYMB_TIMEOUT_MAX},
			Write{_MAX_PAYLOAD_LENGTH, byte(regs.maxFrame)},
			Write{_FIFO_RX_BASE_ADDR, 0},
			Write{_FIFO_ADDR_PTR, 0},
		)
	} else {
		writes = append(writes, Write{regs.payloadLength, byte(regs.maxFrame)})
	}
	for _, w := range writes {
		if err := d.write(w.Reg, w.Val); err != nil {
			return err
		}
	}
	return d.clearFlags()
}

// listen receives one frame within timeout ms.
//
// The destination byte is read as soon as a header is detected. With enforce
// set, a frame that is neither for this node nor broadcast is abandoned there
// with ErrNotAddressed. A declared length larger than the modem allows or than
// the radio received fails with ErrOversize, a length below the frame overhead
// with ErrMalformed; in both cases the header fields read so far are returned
// and no more FIFO bytes are consumed, with CRCValid already set from the
// radio's verdict. A CRC failure returns the whole frame together with ErrCRC.
func (d *Device) listen(ctx context.Context, timeout uint32, enforce bool) (*Frame, error) {
	regs := d.config.Modem.registers()

	if err := d.setMode(ModeStandby); err != nil {
		return nil, err
	}
	if err := d.prepareRx(); err != nil {
		return nil, err
	}
	start := d.clock.Millis()
	if err := d.setMode(ModeRxContinuous); err != nil {
		return nil, err
	}

	if _, err := d.waitFlags(ctx, start, timeout, regs.irqFlags, regs.rxStart); err != nil {
		d.abort()
		if errors.Is(err, ErrTimeout) {
			globalLogger.Debug("no header before timeout", Fields{"timeout_ms": timeout})
			return nil, fmt.Errorf("%w: after %d ms", ErrNoHeader, timeout)
		}
		return nil, err
	}

	if regs.fifoPointers {
		if _, err := d.waitFlags(ctx, start, timeout, _FIFO_RX_BYTE_ADDR, 0xFF); err != nil {
			d.abort()
			return nil, err
		}
		cur, err := d.read(_FIFO_RX_CURRENT_ADDR)
		if err != nil {
			return nil, err
		}
		if err := d.write(_FIFO_ADDR_PTR, cur); err != nil {
			return nil, err
		}
	}

	f := &Frame{}
	var err error
	if f.Destination, err = d.read(_FIFO); err != nil {
		return nil, err
	}
	if enforce && !d.config.accepts(f.Destination) {
		globalLogger.Debug("frame filtered", Fields{"dst": f.Destination, "node": d.config.NodeAddress})
		d.abort()
		return nil, fmt.Errorf("%w: destination %d", ErrNotAddressed, f.Destination)
	}

	flags, err := d.waitFlags(ctx, start, timeout, regs.irqFlags, regs.rxDone)
	if err != nil {
		globalLogger.Warn("header without payload", Fields{"dst": f.Destination, "timeout_ms": timeout})
		d.abort()
		return nil, err
	}
	f.CRCValid = !d.crcFailed(flags)

	received := regs.maxFrame
	if regs.fifoPointers {
		n, err := d.read(_RX_NB_BYTES)
		if err != nil {
			return nil, err
		}
		received = int(n)
	}

	for _, p := range []*byte{&f.Source, &f.Sequence, &f.Length} {
		if *p, err = d.read(_FIFO); err != nil {
			return nil, err
		}
	}

	n := int(f.Length)
	if f.IsAck() {
		n = FrameOverhead
	}
	switch {
	case n > regs.maxFrame || n > received:
		globalLogger.Warn("oversize frame dropped", Fields{"len": f.Length, "received": received, "max": regs.maxFrame})
		return f, d.dropFrame(fmt.Errorf("%w: length %d, received %d, limit %d", ErrOversize, f.Length, received, regs.maxFrame))
	case n < FrameOverhead:
		globalLogger.Warn("malformed frame dropped", Fields{"len": f.Length})
		return f, d.dropFrame(fmt.Errorf("%w: length %d", ErrMalformed, f.Length))
	}

	if n > FrameOverhead {
		f.Payload = make([]byte, n-FrameOverhead)
		for i := range f.Payload {
			if f.Payload[i], err = d.read(_FIFO); err != nil {
				return nil, err
			}
		}
	}
	if f.Retry, err = d.read(_FIFO); err != nil {
		return nil, err
	}

	if err := d.clearFlags(); err != nil {
		return nil, err
	}
	if err := d.setMode(ModeStandby); err != nil {
		return nil, err
	}

	globalLogger.Debug("frame received", Fields{
		"dst": f.Destination, "src": f.Source, "seq": f.Sequence,
		"len": f.Length, "retry": f.Retry, "crc_ok": f.CRCValid,
	})
	if !f.CRCValid {
		return f, fmt.Errorf("%w: frame %d from %d", ErrCRC, f.Sequence, f.Source)
	}
	return f, nil
}

// dropFrame abandons the packet in the FIFO and returns cause.
func (d *Device) dropFrame(cause error) error {
	if err := d.clearFlags(); err != nil {
		return err
	}
	d.abort()
	return cause
}

// crcFailed reads the CRC verdict out of the flags that completed the reception.
func (d *Device) crcFailed(flags byte) bool {
	if d.config.Modem == FSK {
		return d.config.CRC == CRCOn && flags&_IRQ2_CRC_OK == 0
	}
	return flags&_IRQ_CRC_ERROR != 0
}

func (d *Device) buildFrame(dst byte, payload []byte) (Frame, bool) {
	f, truncated := newFrame(dst, d.config.NodeAddress, d.seq, payload, d.config.MaxPayload())
	d.seq++
	if truncated {
		globalLogger.Warn("payload truncated", Fields{"len": len(payload), "max": d.config.MaxPayload()})
	}
	return f, truncated
}

// BuildFrame creates the next outbound frame for dst: the source is this node
// and the sequence number is allocated from the device counter. A payload
// longer than the modem allows is truncated, which is reported.
// This method is concurrent safe.
func (d *Device) BuildFrame(dst byte, payload []byte) (Frame, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buildFrame(dst, payload)
}

func (d *Device) checkPayload(payload []byte) error {
	if limit := d.config.MaxPayload(); len(payload) > limit {
		return fmt.Errorf("%w: payload of %d bytes, limit is %d", ErrProtocolLimit, len(payload), limit)
	}
	return nil
}

// Transmit sends an already built frame without waiting for an ACK.
// This method is concurrent safe.
func (d *Device) Transmit(ctx context.Context, f Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return wrap(d.transmit(ctx, f.Bytes()))
}

// SendUnreliable sends payload to dst once, without waiting for an ACK.
// It returns an error if the payload is bigger than the modem allows.
// This method is concurrent safe.
func (d *Device) SendUnreliable(ctx context.Context, dst byte, payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkPayload(payload); err != nil {
		return wrap(err)
	}
	f, _ := d.buildFrame(dst, payload)
	if err := d.transmit(ctx, f.Bytes()); err != nil {
		return wrap(err)
	}
	globalLogger.Debug("frame sent", Fields{"dst": f.Destination, "seq": f.Sequence, "len": f.Length})
	return nil
}

// Receive waits up to timeout for a frame addressed to this node or broadcast
// (every frame if the address filter is off). A zero timeout selects the
// airtime based default. Timeouts above MaxWait are refused.
// A frame that failed its CRC is returned together with ErrCRC.
// This method is concurrent safe.
func (d *Device) Receive(ctx context.Context, timeout time.Duration) (*Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	wait, err := d.waitBudget(timeout, d.config.Modem.registers().maxFrame)
	if err != nil {
		return nil, wrap(err)
	}
	f, err := d.listen(ctx, wait, d.config.AddressFilter == FilterEnforce)
	return f, wrap(err)
}

// ReceiveAll is Receive without any address filtering. In FSK the hardware
// filter is switched off for the duration of the call.
// This method is concurrent safe.
func (d *Device) ReceiveAll(ctx context.Context, timeout time.Duration) (*Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	wait, err := d.waitBudget(timeout, d.config.Modem.registers().maxFrame)
	if err != nil {
		return nil, wrap(err)
	}

	if d.config.Modem == FSK && d.config.AddressFilter == FilterEnforce {
		if err := d.update(fskAddressFiltering(false)); err != nil {
			return nil, wrap(err)
		}
		defer func() {
			if err := d.update(fskAddressFiltering(true)); err != nil {
				globalLogger.Warn("failed to restore address filtering", Fields{"error": err.Error()})
			}
		}()
	}

	f, err := d.listen(ctx, wait, false)
	return f, wrap(err)
}

// ReceiveAndAck waits for a frame like Receive and answers it: a positive ACK
// if it passed its CRC, a negative one otherwise. ACKs and broadcast frames are
// not answered.
// This method is concurrent safe.
func (d *Device) ReceiveAndAck(ctx context.Context, timeout time.Duration) (*Frame, AckSendOutcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	wait, err := d.waitBudget(timeout, d.config.Modem.registers().maxFrame)
	if err != nil {
		return nil, AckNotSent, wrap(err)
	}

	f, rxErr := d.listen(ctx, wait, d.config.AddressFilter == FilterEnforce)
	if f == nil || (rxErr != nil && !errors.Is(rxErr, ErrCRC)) {
		return f, AckNotSent, wrap(rxErr)
	}
	if f.IsAck() || f.Destination == BroadcastAddress {
		return f, AckNotSent, wrap(rxErr)
	}

	if d.config.AckDelay > 0 {
		time.Sleep(d.config.AckDelay)
	}

	ack := AckFor(*f, d.config.NodeAddress)
	if err := d.transmit(ctx, ack.Bytes()); err != nil {
		globalLogger.Warn("failed to send ack", Fields{"dst": ack.Destination, "seq": ack.Sequence, "error": err.Error()})
		return f, AckSendFailed, wrap(err)
	}

	outcome := AckSent
	if ack.Status != AckStatusCorrect {
		outcome = NAckSent
	}
	globalLogger.Debug("ack sent", Fields{"dst": ack.Destination, "seq": ack.Sequence, "outcome": outcome.String()})
	return f, outcome, wrap(rxErr)
}
