package iostream

import (
	"time"

	"github.com/daedaluz/divecomputer/internal/crc"
	"github.com/daedaluz/divecomputer/internal/errs"
)

const (
	hdlcFlag   byte = 0x7E
	hdlcEscape byte = 0x7D
	hdlcXOR    byte = 0x20
)

// HDLCStream decorates an IoStream, exchanging HDLC frames delimited by the
// standard 0x7E flag byte, with 0x7D byte-stuffing and a trailing 16-bit
// reflected CCITT CRC, per §4.1's "HDLC framer" contract. A Read returns
// exactly one frame's payload; invalid frames (bad CRC, truncated escape)
// are silently dropped and the next frame is awaited instead.
type HDLCStream struct {
	under       IoStream
	maxTXFrame  int
	maxRXFrame  int
	pending     []byte // bytes read from under not yet consumed into a frame
}

// NewHDLCStream wraps under with independently configurable max frame
// sizes in each direction, matching the §4.1 "configurable max frame size
// in each direction" requirement.
func NewHDLCStream(under IoStream, maxTXFrame, maxRXFrame int) *HDLCStream {
	return &HDLCStream{under: under, maxTXFrame: maxTXFrame, maxRXFrame: maxRXFrame}
}

func (h *HDLCStream) Transport() Transport { return h.under.Transport() }

func (h *HDLCStream) SetTimeout(d time.Duration) error { return h.under.SetTimeout(d) }
func (h *HDLCStream) Configure(cfg SerialConfig) error { return h.under.Configure(cfg) }
func (h *HDLCStream) SetBreak(on bool) error           { return h.under.SetBreak(on) }
func (h *HDLCStream) SetDTR(on bool) error             { return h.under.SetDTR(on) }
func (h *HDLCStream) SetRTS(on bool) error             { return h.under.SetRTS(on) }
func (h *HDLCStream) GetLines() (Lines, error)         { return h.under.GetLines() }
func (h *HDLCStream) GetAvailable() (int, error)       { return h.under.GetAvailable() }
func (h *HDLCStream) Poll(timeout time.Duration) error { return h.under.Poll(timeout) }
func (h *HDLCStream) Ioctl(request int, payload []byte) ([]byte, error) {
	return h.under.Ioctl(request, payload)
}
func (h *HDLCStream) Flush(dir Direction) error {
	h.pending = h.pending[:0]
	return h.under.Flush(dir)
}
func (h *HDLCStream) Purge(dir Direction) error {
	h.pending = h.pending[:0]
	return h.under.Purge(dir)
}
func (h *HDLCStream) Sleep(d time.Duration) error { return h.under.Sleep(d) }
func (h *HDLCStream) Close() error                { return h.under.Close() }

// EncodeFrame byte-stuffs payload and appends its reflected CCITT CRC,
// wrapping the result in flag bytes; this is the inverse of the decoder
// Read uses, satisfying the round-trip invariant in §8.
func EncodeFrame(payload []byte) []byte {
	sum := crc.CCITTReflected(payload)
	raw := make([]byte, 0, len(payload)+2)
	raw = append(raw, payload...)
	raw = append(raw, byte(sum), byte(sum>>8))

	out := make([]byte, 0, len(raw)*2+2)
	out = append(out, hdlcFlag)
	for _, b := range raw {
		if b == hdlcFlag || b == hdlcEscape {
			out = append(out, hdlcEscape, b^hdlcXOR)
		} else {
			out = append(out, b)
		}
	}
	out = append(out, hdlcFlag)
	return out
}

// Write frames payload with EncodeFrame and sends it whole; payload beyond
// maxTXFrame is rejected as InvalidArgs rather than silently split, since
// HDLC frames (unlike the fixed packet adapter) are not transparently
// reassembled by receivers.
func (h *HDLCStream) Write(payload []byte) (int, error) {
	if h.maxTXFrame > 0 && len(payload) > h.maxTXFrame {
		return 0, errs.New("write", errs.InvalidArgs, nil)
	}
	frame := EncodeFrame(payload)
	n, err := h.under.Write(frame)
	if err != nil {
		return 0, err
	}
	if n < len(frame) {
		return 0, errs.New("write", errs.IO, nil)
	}
	return len(payload), nil
}

// Read returns exactly one decoded frame payload, reading and discarding
// bytes from under until a valid flag-delimited, CRC-correct frame is
// found. Malformed frames are dropped per §4.1 and the search continues.
func (h *HDLCStream) Read(out []byte) (int, error) {
	for {
		payload, err := h.readOneFrame()
		if err != nil {
			return 0, err
		}
		if payload == nil {
			continue // dropped malformed frame, keep looking
		}
		n := copy(out, payload)
		return n, nil
	}
}

func (h *HDLCStream) nextByte() (byte, error) {
	for len(h.pending) == 0 {
		buf := make([]byte, 256)
		n, err := h.under.Read(buf)
		if err != nil {
			return 0, err
		}
		if n > 0 {
			h.pending = append(h.pending, buf[:n]...)
		}
	}
	b := h.pending[0]
	h.pending = h.pending[1:]
	return b, nil
}

// readOneFrame consumes bytes up to and including the closing flag,
// returning the unstuffed, CRC-verified payload, or (nil, nil) if the frame
// failed its CRC or exceeded maxRXFrame and should be silently dropped.
func (h *HDLCStream) readOneFrame() ([]byte, error) {
	var b byte
	var err error
	for {
		b, err = h.nextByte()
		if err != nil {
			return nil, err
		}
		if b == hdlcFlag {
			break
		}
	}
	raw := make([]byte, 0, 256)
	escaped := false
	for {
		b, err = h.nextByte()
		if err != nil {
			return nil, err
		}
		if b == hdlcFlag {
			if len(raw) == 0 {
				continue // leading flags may repeat
			}
			break
		}
		if escaped {
			raw = append(raw, b^hdlcXOR)
			escaped = false
			continue
		}
		if b == hdlcEscape {
			escaped = true
			continue
		}
		raw = append(raw, b)
		if h.maxRXFrame > 0 && len(raw) > h.maxRXFrame+2 {
			return nil, nil
		}
	}
	if len(raw) < 2 {
		return nil, nil
	}
	payload := raw[:len(raw)-2]
	want := crc.ReadLE16(raw[len(raw)-2:])
	if crc.CCITTReflected(payload) != want {
		return nil, nil
	}
	return payload, nil
}
