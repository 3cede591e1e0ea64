package sx127x

import (
	"context"
	"errors"
	"fmt"
)

// AckOutcome classifies one send attempt, or a whole SendReliable call.
type AckOutcome uint8

const (
	// Acked: a valid ACK reporting correct reception arrived.
	Acked AckOutcome = iota
	// NAcked: a valid ACK arrived but the peer reported a CRC failure.
	NAcked
	// AckWrongDestination: the reply was not addressed to the sender.
	AckWrongDestination
	// AckWrongSource: the reply did not come from the frame's destination.
	AckWrongSource
	// AckWrongSequence: the reply acknowledged another sequence number.
	AckWrongSequence
	// AckWrongLength: the reply was a data frame, not an ACK.
	AckWrongLength
	// AckCorrupt: the reply failed its own CRC.
	AckCorrupt
	// AckLost: no reply arrived in time.
	AckLost
	// SendFailed: the frame could not be transmitted.
	SendFailed
	// Exhausted: every attempt failed; AckResult.Last holds the last classification.
	Exhausted
)

var ackOutcomeNames = [...]string{
	Acked:               "acked",
	NAcked:              "nacked",
	AckWrongDestination: "wrong-destination",
	AckWrongSource:      "wrong-source",
	AckWrongSequence:    "wrong-sequence",
	AckWrongLength:      "wrong-length",
	AckCorrupt:          "corrupt",
	AckLost:             "lost",
	SendFailed:          "send-failed",
	Exhausted:           "exhausted",
}

func (o AckOutcome) String() string {
	if int(o) < len(ackOutcomeNames) {
		return ackOutcomeNames[o]
	}
	return "unknown"
}

// AckResult is the result of SendReliable.
type AckResult struct {
	// Outcome is Acked or Exhausted.
	Outcome AckOutcome
	// Last is the classification of the final attempt.
	Last AckOutcome
	// Attempts counts the transmissions, the first one included.
	Attempts int
	// Retries counts the retransmissions.
	Retries int
	// Frame is the frame as sent on the final attempt.
	Frame Frame
}

// validateAck checks a reply against the frame it should acknowledge.
// The checks run in a fixed order and the first failure is the result.
func validateAck(sent Frame, reply *Frame) AckOutcome {
	switch {
	case !reply.CRCValid:
		return AckCorrupt
	case reply.Destination != sent.Source:
		return AckWrongDestination
	case reply.Source != sent.Destination:
		return AckWrongSource
	case reply.Sequence != sent.Sequence:
		return AckWrongSequence
	case !reply.IsAck():
		return AckWrongLength
	case reply.AckStatus() != AckStatusCorrect:
		return NAcked
	}
	return Acked
}

// attempt sends f once and classifies the reply. Only bus faults and
// cancellation are returned as errors.
func (d *Device) attempt(ctx context.Context, f Frame) (AckOutcome, error) {
	globalLogger.Debug("sending", Fields{"dst": f.Destination, "seq": f.Sequence, "retry": f.Retry})
	if err := d.transmit(ctx, f.Bytes()); err != nil {
		if errors.Is(err, ErrTimeout) {
			return SendFailed, nil
		}
		return SendFailed, err
	}

	globalLogger.Debug("awaiting ack", Fields{"dst": f.Destination, "seq": f.Sequence})
	reply, err := d.listen(ctx, d.timeoutFor(FrameOverhead), false)
	switch {
	case reply != nil:
		return validateAck(f, reply), nil
	case errors.Is(err, ErrNoHeader), errors.Is(err, ErrTimeout):
		return AckLost, nil
	default:
		return AckLost, err
	}
}

// SendReliable sends payload to dst and waits for the ACK, retransmitting
// the same frame until it is acknowledged or MaxRetries retransmissions have
// been made. Every retransmission keeps the addressing, sequence and payload
// of the first one and only increments the retry byte.
//
// Failed deliveries are reported through AckResult. The error is reserved
// for bus faults, cancellation and payloads bigger than the modem allows.
// This method is concurrent safe.
func (d *Device) SendReliable(ctx context.Context, dst byte, payload []byte) (AckResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkPayload(payload); err != nil {
		return AckResult{}, wrap(err)
	}
	if dst == BroadcastAddress {
		return AckResult{}, fmt.Errorf("%w: %w: broadcast frames are not acknowledged", ErrPkg, ErrInvalidParameter)
	}

	f, _ := d.buildFrame(dst, payload)
	defer func() { d.retries = 0 }()

	res := AckResult{Frame: f}
	for {
		outcome, err := d.attempt(ctx, f)
		res.Attempts++
		res.Retries = d.retries
		res.Last = outcome
		res.Frame = f
		if err != nil {
			res.Outcome = outcome
			return res, wrap(err)
		}

		fields := Fields{"dst": f.Destination, "seq": f.Sequence, "retry": d.retries, "outcome": outcome.String()}
		if outcome == Acked {
			res.Outcome = Acked
			globalLogger.Info("frame acknowledged", fields)
			return res, nil
		}
		if d.retries >= d.config.retryLimit() {
			res.Outcome = Exhausted
			globalLogger.Warn("retries exhausted", fields)
			return res, nil
		}
		globalLogger.Debug("retrying", fields)
		d.retries++
		f = f.Resend()
	}
}
