package iostream

import (
	"time"

	"github.com/daedaluz/divecomputer/internal/errs"
	usb "github.com/daedaluz/gousb"
	"github.com/daedaluz/gousb/hid"
)

// USBHID wraps a USB-HID interface (e.g. an OSTC-family bootloader link)
// as an IoStream. HID transfers are packet-quantized, so reads are served
// out of an internal cache one interrupt/bulk report at a time, exactly as
// §4.1's "Packet adapter" note describes for HID/BLE transports.
type USBHID struct {
	dev     *hid.Device
	timeout time.Duration
	cache   []byte
	closed  bool
}

// OpenUSBHID wraps an already-opened HID device descriptor (enumeration
// and descriptor parsing are the host application's responsibility, per
// §2's "OS-specific USB enumeration bindings are out of scope").
func OpenUSBHID(dev *usb.Device) (*USBHID, error) {
	if !dev.IsOpen() {
		if err := dev.Open(); err != nil {
			return nil, errs.New("open", errs.NoAccess, err)
		}
	}
	h := hid.NewHIDDevice(dev)
	return &USBHID{dev: h, timeout: 5 * time.Second}, nil
}

func (u *USBHID) Transport() Transport { return TransportUSBHID }

func (u *USBHID) SetTimeout(d time.Duration) error {
	u.timeout = d
	return nil
}

func (u *USBHID) Configure(cfg SerialConfig) error { return unsupported("configure") }
func (u *USBHID) SetBreak(on bool) error           { return unsupported("set_break") }
func (u *USBHID) SetDTR(on bool) error             { return unsupported("set_dtr") }
func (u *USBHID) SetRTS(on bool) error             { return unsupported("set_rts") }
func (u *USBHID) GetLines() (Lines, error)         { return 0, unsupported("get_lines") }

func (u *USBHID) GetAvailable() (int, error) {
	return len(u.cache), nil
}

func (u *USBHID) Poll(timeout time.Duration) error {
	if len(u.cache) > 0 {
		return nil
	}
	report, err := u.dev.ReadMax()
	if err != nil {
		return errs.New("poll", errs.Timeout, err)
	}
	u.cache = append(u.cache, report...)
	return nil
}

func (u *USBHID) fill() error {
	if len(u.cache) > 0 {
		return nil
	}
	report, err := u.dev.ReadMax()
	if err != nil {
		return errs.New("read", errs.Timeout, err)
	}
	u.cache = append(u.cache, report...)
	return nil
}

func (u *USBHID) Read(p []byte) (int, error) {
	if u.closed {
		return 0, errs.New("read", errs.NoDevice, nil)
	}
	if err := u.fill(); err != nil {
		return 0, err
	}
	n := copy(p, u.cache)
	u.cache = u.cache[n:]
	return n, nil
}

func (u *USBHID) Write(p []byte) (int, error) {
	if u.closed {
		return 0, errs.New("write", errs.NoDevice, nil)
	}
	n, err := u.dev.Write(p)
	if err != nil {
		return n, errs.New("write", errs.IO, err)
	}
	return n, nil
}

// Ioctl forwards to a USB control transfer via usb.Device.CtrlTimeout:
// request is packed as (bmRequestType<<16 | bRequest) and payload is the
// data stage. wValue and wIndex are always sent as zero.
func (u *USBHID) Ioctl(request int, payload []byte) ([]byte, error) {
	reqType := usb.RequestType((request >> 16) & 0xFF)
	breq := uint8(request & 0xFF)
	n, err := u.dev.Device.CtrlTimeout(reqType, breq, 0, 0, payload, uint32(u.timeout/time.Millisecond))
	if err != nil {
		return nil, errs.New("ioctl", errs.IO, err)
	}
	return payload[:n], nil
}

func (u *USBHID) Flush(dir Direction) error {
	u.cache = u.cache[:0]
	return nil
}

func (u *USBHID) Purge(dir Direction) error {
	return u.Flush(dir)
}

func (u *USBHID) Sleep(d time.Duration) error {
	time.Sleep(d)
	return nil
}

func (u *USBHID) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true
	if err := u.dev.Device.Close(); err != nil {
		return errs.New("close", errs.IO, err)
	}
	return nil
}
