// Package iostream implements the uniform byte-stream capability set (the
// IoStream contract) over serial, USB-HID and BLE links, plus the framing
// decorators (fixed packet adapter, HDLC framer) that turn a raw stream
// into a message stream.
package iostream

import (
	"time"

	"github.com/daedaluz/divecomputer/internal/errs"
)

// Transport tags which underlying link an IoStream was opened against.
type Transport int

const (
	TransportSerial Transport = iota
	TransportUSBHID
	TransportBLE
	TransportUSBBulk
)

func (t Transport) String() string {
	switch t {
	case TransportSerial:
		return "serial"
	case TransportUSBHID:
		return "usbhid"
	case TransportBLE:
		return "ble"
	case TransportUSBBulk:
		return "usb"
	default:
		return "unknown"
	}
}

// Parity mirrors the termios parity settings the serial transport
// configures; other transports reject Configure with Unsupported.
type Parity int

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
	ParityMark
	ParitySpace
)

// StopBits is the number of stop bits, encoded *10 so 1.5 is representable
// as an integer (15).
type StopBits int

const (
	StopBits1   StopBits = 10
	StopBits15  StopBits = 15
	StopBits2   StopBits = 20
)

// FlowControl selects hardware, software or no flow control.
type FlowControl int

const (
	FlowNone FlowControl = iota
	FlowHard
	FlowSoft
)

// Direction selects a queue for Flush/Purge.
type Direction int

const (
	DirInput Direction = iota
	DirOutput
	DirBoth
)

// Lines is a bitset of modem control line states returned by GetLines.
type Lines uint32

const (
	LineDCD Lines = 1 << iota
	LineCTS
	LineDSR
	LineRNG
)

// SerialConfig bundles the serial-only Configure parameters.
type SerialConfig struct {
	Baud     int
	DataBits int // 5-8
	Parity   Parity
	StopBits StopBits
	Flow     FlowControl
}

// IoStream is the polymorphic byte-stream capability every transport
// implements. Every method returns an *errs.Error on failure, using Kind to
// distinguish would-block/timeout, protocol, I/O and unsupported-capability
// conditions as specified.
type IoStream interface {
	// Transport reports which underlying link this stream was opened
	// against.
	Transport() Transport

	// SetTimeout applies to subsequent Read/Write calls. -1 means block
	// indefinitely, 0 means never block, >0 waits up to the duration.
	SetTimeout(d time.Duration) error

	// Configure applies serial line parameters; non-serial transports
	// return Unsupported.
	Configure(cfg SerialConfig) error

	SetBreak(on bool) error
	SetDTR(on bool) error
	SetRTS(on bool) error
	GetLines() (Lines, error)

	// GetAvailable returns the number of bytes readable without blocking.
	GetAvailable() (int, error)

	// Poll succeeds iff data is pending within timeout, else returns a
	// Timeout error.
	Poll(timeout time.Duration) error

	// Read fills up to len(p) bytes, returning the actual count. Returning
	// fewer bytes than requested is not itself an error.
	Read(p []byte) (int, error)

	// Write sends p, returning the actual count written. Serial
	// implementations drain to completion before returning.
	Write(p []byte) (int, error)

	// Ioctl is the escape hatch for transport-specific operations (BLE
	// characteristic access, USB control transfers, serial latency
	// timer...).
	Ioctl(request int, payload []byte) ([]byte, error)

	Flush(dir Direction) error
	Purge(dir Direction) error

	Sleep(d time.Duration) error

	// Close is idempotent; calling it more than once returns nil.
	Close() error
}

// unsupported is a small helper every transport shares for capabilities it
// does not implement.
func unsupported(op string) error {
	return errs.New(op, errs.Unsupported, nil)
}
