package sx127x

import "fmt"

// FrameOverhead is the number of bytes a frame adds around its payload:
// destination, source, sequence, length and retry.
const FrameOverhead = 5

// ACK status byte values.
const (
	AckStatusCorrect   = 0
	AckStatusIncorrect = 1
)

// Frame is an addressed packet. On air its bytes are, in order: destination,
// source, sequence, length, payload and retry.
//
// Length counts the whole frame, overhead included, so a data frame has
// Length >= FrameOverhead. Length 0 marks an ACK, whose trailing byte is the
// status instead of a retry count.
type Frame struct {
	Destination byte
	Source      byte
	Sequence    byte
	Length      byte
	Payload     []byte
	Retry       byte
	// CRCValid is false when the radio reported a payload CRC error.
	// The other fields are filled from the FIFO anyway.
	CRCValid bool
}

// Bytes returns the frame as written to the FIFO.
func (f Frame) Bytes() []byte {
	b := make([]byte, 0, len(f.Payload)+FrameOverhead)
	b = append(b, f.Destination, f.Source, f.Sequence, f.Length)
	b = append(b, f.Payload...)
	return append(b, f.Retry)
}

// Resend returns the frame to transmit on the next attempt: identical
// addressing, sequence and payload with the retry count incremented.
func (f Frame) Resend() Frame {
	f.Retry++
	return f
}

// IsAck reports whether the frame is an acknowledgement.
func (f Frame) IsAck() bool {
	return f.Length == 0
}

// AckStatus returns the status carried by an ACK.
func (f Frame) AckStatus() byte {
	return f.Retry
}

func (f Frame) String() string {
	if f.IsAck() {
		return fmt.Sprintf("Ack(dst=%d, src=%d, seq=%d, status=%d)", f.Destination, f.Source, f.Sequence, f.Retry)
	}
	return fmt.Sprintf("Frame(dst=%d, src=%d, seq=%d, len=%d, retry=%d, crc=%v)",
		f.Destination, f.Source, f.Sequence, f.Length, f.Retry, f.CRCValid)
}

// Ack acknowledges a received frame: it mirrors the frame's addressing and
// sequence and reports whether the frame passed its CRC.
type Ack struct {
	Destination byte
	Source      byte
	Sequence    byte
	Status      byte
}

// AckFor builds the reply a node with address self sends for f.
func AckFor(f Frame, self byte) Ack {
	status := byte(AckStatusCorrect)
	if !f.CRCValid {
		status = AckStatusIncorrect
	}
	return Ack{Destination: f.Source, Source: self, Sequence: f.Sequence, Status: status}
}

// Bytes returns the ACK as written to the FIFO.
func (a Ack) Bytes() []byte {
	return []byte{a.Destination, a.Source, a.Sequence, 0, a.Status}
}

// newFrame builds a frame for payload, cut to maxPayload bytes.
// It reports whether the payload was truncated.
func newFrame(dst, src, seq byte, payload []byte, maxPayload int) (Frame, bool) {
	truncated := len(payload) > maxPayload
	if truncated {
		payload = payload[:maxPayload]
	}
	p := make([]byte, len(payload))
	copy(p, payload)
	return Frame{
		Destination: dst,
		Source:      src,
		Sequence:    seq,
		Length:      byte(len(p) + FrameOverhead),
		Payload:     p,
		CRCValid:    true,
	}, truncated
}
