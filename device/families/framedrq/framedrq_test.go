package framedrq

import (
	"testing"
	"time"

	"github.com/daedaluz/divecomputer/internal/crc"
	"github.com/daedaluz/divecomputer/iostream"
)

// fakeStream is a minimal in-memory IoStream double: Write appends to
// written, and Read serves bytes from a pre-seeded inbox queue.
type fakeStream struct {
	inbox   []byte
	written [][]byte
}

func (f *fakeStream) Transport() iostream.Transport        { return iostream.TransportSerial }
func (f *fakeStream) SetTimeout(time.Duration) error       { return nil }
func (f *fakeStream) Configure(iostream.SerialConfig) error { return nil }
func (f *fakeStream) SetBreak(bool) error                  { return nil }
func (f *fakeStream) SetDTR(bool) error                    { return nil }
func (f *fakeStream) SetRTS(bool) error                    { return nil }
func (f *fakeStream) GetLines() (iostream.Lines, error)    { return 0, nil }
func (f *fakeStream) GetAvailable() (int, error)           { return len(f.inbox), nil }
func (f *fakeStream) Poll(time.Duration) error             { return nil }
func (f *fakeStream) Ioctl(int, []byte) ([]byte, error)    { return nil, nil }
func (f *fakeStream) Flush(iostream.Direction) error       { return nil }
func (f *fakeStream) Purge(iostream.Direction) error       { return nil }
func (f *fakeStream) Sleep(time.Duration) error            { return nil }
func (f *fakeStream) Close() error                         { return nil }

func (f *fakeStream) Write(p []byte) (int, error) {
	f.written = append(f.written, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakeStream) Read(p []byte) (int, error) {
	n := copy(p, f.inbox)
	f.inbox = f.inbox[n:]
	return n, nil
}

func frameResponse(cmd byte, payload []byte) []byte {
	return packCommand(cmd, payload)
}

func TestPackCommandRoundTrip(t *testing.T) {
	frame := packCommand(cmdInit, []byte{0xAB})
	if frame[0] != headerByte || frame[1] != headerByte || frame[2] != headerByte {
		t.Fatalf("expected triple header, got % x", frame[:3])
	}
	if frame[len(frame)-1] != trailerByte {
		t.Fatalf("expected trailer byte, got %#x", frame[len(frame)-1])
	}
	bodyLen := int(frame[3])
	body := frame[4 : 4+bodyLen]
	gotCRC := crc.ReadLE16(frame[4+bodyLen : 4+bodyLen+2])
	if crc.CCITT(append([]byte{frame[3]}, body...)) != gotCRC {
		t.Error("CRC over len+body does not validate")
	}
}

func TestReadFrameRejectsBadCRC(t *testing.T) {
	frame := packCommand(cmdInit, []byte{1, 2, 3})
	frame[len(frame)-2] ^= 0xFF // corrupt the CRC high byte
	s := &fakeStream{inbox: frame}
	if _, err := readFrame(s); err == nil {
		t.Error("expected an error for a corrupted CRC")
	}
}

func TestReadFrameValidRoundTrip(t *testing.T) {
	frame := frameResponse(cmdInit, []byte{0x01, 0x02, 0x03})
	s := &fakeStream{inbox: frame}
	payload, err := readFrame(s)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if len(payload) != 3 || payload[0] != 0x01 {
		t.Errorf("payload = % x, want 01 02 03", payload)
	}
}
