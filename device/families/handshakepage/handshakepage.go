// Package handshakepage implements the "handshake-before-dump device"
// family from spec §4.2: Open begins with a fixed 24-byte handshake
// packet (protected by a CCITT CRC) that the device must echo back before
// any other command is accepted, after which memory is read page by page,
// each page individually CRC-checked and ACKed/NAKed, with a mandatory
// 250ms pause after every NAK before the page is retried.
package handshakepage

import (
	"time"

	"github.com/daedaluz/divecomputer/device"
	"github.com/daedaluz/divecomputer/event"
	"github.com/daedaluz/divecomputer/internal/crc"
	"github.com/daedaluz/divecomputer/internal/errs"
	"github.com/daedaluz/divecomputer/iostream"
)

const (
	handshakeSize = 24
	pageSize      = 64
	totalPages    = 128

	ackByte = 0x06
	nakByte = 0x15

	nakPause = 250 * time.Millisecond

	logbookEntrySize = 6
	fingerprintSize  = 4

	nsteps = 1000
)

func init() {
	device.Register("handshakepage", func() device.FamilyDriver { return &family{} })
}

type logEntry struct {
	fingerprint [fingerprintSize]byte
	firstPage   int
	pageCount   int
}

type family struct {
	fingerprint []byte
	entries     []logEntry
}

// handshakePacket builds the fixed 24-byte outbound handshake: a constant
// magic prefix padded with zero, followed by its little-endian CCITT CRC
// in the trailing two bytes.
func handshakePacket() []byte {
	pkt := make([]byte, handshakeSize)
	copy(pkt, []byte{0xA5, 0x5A, 0x00, 0x01})
	sum := crc.CCITT(pkt[:handshakeSize-2])
	le := crc.LE16(sum)
	pkt[handshakeSize-2], pkt[handshakeSize-1] = le[0], le[1]
	return pkt
}

func readFull(s iostream.IoStream, buf []byte) error {
	for off := 0; off < len(buf); {
		n, err := s.Read(buf[off:])
		if err != nil {
			return err
		}
		if n == 0 {
			return errs.NewFamily("handshakepage", "read", errs.Timeout, nil)
		}
		off += n
	}
	return nil
}

func (f *family) Open(d *device.Device) error {
	if err := d.Stream.Configure(iostream.SerialConfig{
		Baud: 19200, DataBits: 8, Parity: iostream.ParityNone, StopBits: iostream.StopBits1, Flow: iostream.FlowNone,
	}); err != nil && errs.KindOf(err) != errs.Unsupported {
		return err
	}
	d.Stream.Purge(iostream.DirBoth)
	d.Stream.SetTimeout(3 * time.Second)

	pkt := handshakePacket()
	err := d.WithRetry(device.DefaultRetryPolicy, "handshake", func(attempt int) error {
		if _, err := d.Stream.Write(pkt); err != nil {
			return err
		}
		echo := make([]byte, handshakeSize)
		if err := readFull(d.Stream, echo); err != nil {
			return err
		}
		for i := range pkt {
			if echo[i] != pkt[i] {
				return errs.NewFamily("handshakepage", "handshake", errs.Protocol, nil)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	info := make([]byte, 6)
	if err := readFull(d.Stream, info); err == nil {
		d.Emit(event.Event{Type: event.TypeDevInfo, DevInfo: event.DevInfo{
			Model:    uint32(info[0]),
			Firmware: uint32(info[1])<<8 | uint32(info[2]),
			Serial:   uint32(info[3])<<8 | uint32(info[4]),
		}})
	}
	return nil
}

func (f *family) SetFingerprint(fp []byte) {
	f.fingerprint = append([]byte(nil), fp...)
}

func (f *family) readPage(d *device.Device, page int) ([]byte, error) {
	var data []byte
	err := d.WithRetry(device.DefaultRetryPolicy, "read_page", func(attempt int) error {
		req := []byte{byte(page >> 8), byte(page)}
		if _, err := d.Stream.Write(req); err != nil {
			return err
		}
		buf := make([]byte, pageSize+2)
		if err := readFull(d.Stream, buf); err != nil {
			return err
		}
		payload := buf[:pageSize]
		got := crc.ReadLE16(buf[pageSize : pageSize+2])
		if crc.CCITT(payload) != got {
			d.Stream.Write([]byte{nakByte})
			d.Stream.Sleep(nakPause)
			return errs.NewFamily("handshakepage", "read_page", errs.Protocol, nil)
		}
		d.Stream.Write([]byte{ackByte})
		data = append([]byte(nil), payload...)
		return nil
	})
	return data, err
}

func (f *family) fetchLogbook(d *device.Device) error {
	page, err := f.readPage(d, 0)
	if err != nil {
		return err
	}
	if len(page) < 1 {
		return errs.NewFamily("handshakepage", "logbook", errs.DataFormat, nil)
	}
	count := int(page[0])
	if len(page) < 1+count*logbookEntrySize {
		return errs.NewFamily("handshakepage", "logbook", errs.DataFormat, nil)
	}
	f.entries = f.entries[:0]
	for i := 0; i < count; i++ {
		off := 1 + i*logbookEntrySize
		var e logEntry
		copy(e.fingerprint[:], page[off:off+fingerprintSize])
		e.firstPage = int(page[off+fingerprintSize])
		e.pageCount = int(page[off+fingerprintSize+1])
		f.entries = append(f.entries, e)
	}
	d.SetDiveCount(count, nsteps)
	return nil
}

func (f *family) fetchDive(d *device.Device, e logEntry) ([]byte, error) {
	out := make([]byte, 0, e.pageCount*pageSize)
	for p := 0; p < e.pageCount; p++ {
		if d.Cancelled() {
			return nil, errs.NewFamily("handshakepage", "fetch_dive", errs.Cancelled, nil)
		}
		page, err := f.readPage(d, e.firstPage+p)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		d.AdvanceProgress(nsteps / uint32(e.pageCount+1))
	}
	return out, nil
}

func (f *family) Foreach(d *device.Device, cb device.DiveCallback) error {
	if err := f.fetchLogbook(d); err != nil {
		return err
	}
	for _, e := range f.entries {
		if d.Cancelled() {
			return errs.NewFamily("handshakepage", "foreach", errs.Cancelled, nil)
		}
		if f.matchesFingerprint(e.fingerprint[:]) {
			break
		}
		dive, err := f.fetchDive(d, e)
		if err != nil {
			return err
		}
		if !cb(dive, e.fingerprint[:]) {
			return nil
		}
	}
	return nil
}

func (f *family) matchesFingerprint(fp []byte) bool {
	if len(f.fingerprint) != len(fp) {
		return false
	}
	for i := range fp {
		if fp[i] != f.fingerprint[i] {
			return false
		}
	}
	return true
}

func (f *family) Dump(d *device.Device) ([]byte, error) {
	out := make([]byte, 0, totalPages*pageSize)
	for p := 0; p < totalPages; p++ {
		if d.Cancelled() {
			return nil, errs.NewFamily("handshakepage", "dump", errs.Cancelled, nil)
		}
		page, err := f.readPage(d, p)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		d.AdvanceProgress(nsteps / totalPages)
	}
	return out, nil
}

func (f *family) Timesync(d *device.Device, t time.Time) error {
	return errs.NewFamily("handshakepage", "timesync", errs.Unsupported, nil)
}

func (f *family) Close(d *device.Device) error {
	return nil
}
