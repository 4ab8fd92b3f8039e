// Package framedrq implements the "framed request/response device" family
// from spec §4.2: HEADER×3 | len | cmd | payload | crc16le | TRAILER
// commands, with the response echoing the same triple header, and a
// download phase that streams fixed-size data packets terminated by an end
// marker, each packet acknowledged individually.
package framedrq

import (
	"time"

	"github.com/daedaluz/divecomputer/device"
	"github.com/daedaluz/divecomputer/event"
	"github.com/daedaluz/divecomputer/internal/crc"
	"github.com/daedaluz/divecomputer/internal/errs"
	"github.com/daedaluz/divecomputer/iostream"
)

const (
	headerByte  = 0xFE
	trailerByte = 0xFC
	ackByte     = 0x06
	endMarker   = 0xFF

	szData = 32

	cmdInit      = 0x00
	cmdLogbook   = 0x10
	cmdFetchDive = 0x20
	cmdDump      = 0x30
	cmdTimesync  = 0x40
	cmdGoodbye   = 0xFF

	logbookEntrySize  = 8 // 4-byte fingerprint + 4-byte length
	fingerprintSize   = 4
	fingerprintOffset = 0 // offset within the assembled dive payload

	nsteps = 1000
)

func init() {
	device.Register("framedrq", func() device.FamilyDriver { return &family{} })
}

type logEntry struct {
	fingerprint [fingerprintSize]byte
	length      uint32
}

type family struct {
	fingerprint []byte
	entries     []logEntry
}

// packCommand builds one outbound command frame.
func packCommand(cmd byte, payload []byte) []byte {
	body := make([]byte, 0, 1+len(payload))
	body = append(body, cmd)
	body = append(body, payload...)

	frame := make([]byte, 0, 3+1+len(body)+2+1)
	frame = append(frame, headerByte, headerByte, headerByte, byte(len(body)))
	frame = append(frame, body...)
	sum := crc.CCITT(frame[3:])
	le := crc.LE16(sum)
	frame = append(frame, le[0], le[1])
	frame = append(frame, trailerByte)
	return frame
}

// readFrame reads and validates one response frame, returning its payload
// (without the leading echoed cmd byte).
func readFrame(s iostream.IoStream) ([]byte, error) {
	hdr := make([]byte, 4)
	if err := readFull(s, hdr); err != nil {
		return nil, err
	}
	if hdr[0] != headerByte || hdr[1] != headerByte || hdr[2] != headerByte {
		return nil, errs.NewFamily("framedrq", "read_frame", errs.Protocol, nil)
	}
	bodyLen := int(hdr[3])
	rest := make([]byte, bodyLen+2+1)
	if err := readFull(s, rest); err != nil {
		return nil, err
	}
	body := rest[:bodyLen]
	gotCRC := crc.ReadLE16(rest[bodyLen : bodyLen+2])
	trailer := rest[bodyLen+2]
	if trailer != trailerByte {
		return nil, errs.NewFamily("framedrq", "read_frame", errs.Protocol, nil)
	}
	check := append(append([]byte{}, hdr[3]), body...)
	if crc.CCITT(check) != gotCRC {
		return nil, errs.NewFamily("framedrq", "read_frame", errs.Protocol, nil)
	}
	if len(body) == 0 {
		return nil, errs.NewFamily("framedrq", "read_frame", errs.Protocol, nil)
	}
	return body[1:], nil // drop echoed cmd byte
}

func readFull(s iostream.IoStream, buf []byte) error {
	for off := 0; off < len(buf); {
		n, err := s.Read(buf[off:])
		if err != nil {
			return err
		}
		if n == 0 {
			return errs.NewFamily("framedrq", "read", errs.Timeout, nil)
		}
		off += n
	}
	return nil
}

func exchange(d *device.Device, cmd byte, payload []byte) ([]byte, error) {
	var resp []byte
	err := d.WithRetry(device.DefaultRetryPolicy, "exchange", func(attempt int) error {
		frame := packCommand(cmd, payload)
		if _, err := d.Stream.Write(frame); err != nil {
			return err
		}
		r, err := readFrame(d.Stream)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	return resp, err
}

func (f *family) Open(d *device.Device) error {
	if err := d.Stream.Configure(iostream.SerialConfig{
		Baud: 9600, DataBits: 8, Parity: iostream.ParityNone, StopBits: iostream.StopBits1, Flow: iostream.FlowNone,
	}); err != nil && errs.KindOf(err) != errs.Unsupported {
		return err
	}
	d.Stream.SetDTR(true)
	d.Stream.SetRTS(true)
	d.Stream.Purge(iostream.DirBoth)
	d.Stream.Sleep(100 * time.Millisecond)
	d.Stream.SetTimeout(3 * time.Second)

	resp, err := exchange(d, cmdInit, nil)
	if err != nil {
		return err
	}
	if len(resp) >= 4 {
		d.Emit(event.Event{Type: event.TypeDevInfo, DevInfo: event.DevInfo{
			Model:    uint32(resp[0]),
			Firmware: uint32(resp[1])<<8 | uint32(resp[2]),
			Serial:   uint32(resp[3]),
		}})
	}
	return nil
}

func (f *family) SetFingerprint(fp []byte) {
	f.fingerprint = append([]byte(nil), fp...)
}

func (f *family) fetchLogbook(d *device.Device) error {
	resp, err := exchange(d, cmdLogbook, nil)
	if err != nil {
		return err
	}
	if len(resp) < 1 {
		return errs.NewFamily("framedrq", "logbook", errs.DataFormat, nil)
	}
	count := int(resp[0])
	if len(resp) < 1+count*logbookEntrySize {
		return errs.NewFamily("framedrq", "logbook", errs.DataFormat, nil)
	}
	f.entries = f.entries[:0]
	for i := 0; i < count; i++ {
		off := 1 + i*logbookEntrySize
		var e logEntry
		copy(e.fingerprint[:], resp[off:off+fingerprintSize])
		e.length = uint32(crc.ReadLE16(resp[off+fingerprintSize:off+fingerprintSize+2])) |
			uint32(crc.ReadLE16(resp[off+fingerprintSize+2:off+fingerprintSize+4]))<<16
		f.entries = append(f.entries, e)
	}
	d.SetDiveCount(count, nsteps)
	return nil
}

func (f *family) fetchDive(d *device.Device, index int) ([]byte, error) {
	_, err := exchange(d, cmdFetchDive, []byte{byte(index)})
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 4096)
	totalSize := -1
	for {
		if d.Cancelled() {
			return nil, errs.NewFamily("framedrq", "fetch_dive", errs.Cancelled, nil)
		}
		hdr := make([]byte, 1)
		if err := readFull(d.Stream, hdr); err != nil {
			return nil, err
		}
		if hdr[0] == endMarker {
			break
		}
		pkt := make([]byte, szData+2)
		pkt[0] = hdr[0]
		if err := readFull(d.Stream, pkt[1:]); err != nil {
			return nil, err
		}
		payload := pkt[:szData]
		gotCRC := crc.ReadLE16(pkt[szData : szData+2])
		if crc.CCITT(payload) != gotCRC {
			d.Stream.Write([]byte{0x15}) // NAK
			return nil, errs.NewFamily("framedrq", "fetch_dive", errs.Protocol, nil)
		}
		d.Stream.Write([]byte{ackByte})
		if totalSize < 0 {
			totalSize = int(crc.ReadLE16(payload[:2]))
			out = append(out, payload[2:]...)
		} else {
			out = append(out, payload...)
		}
	}
	if totalSize >= 0 && len(out) > totalSize {
		out = out[:totalSize]
	}
	return out, nil
}

func (f *family) Foreach(d *device.Device, cb device.DiveCallback) error {
	if err := f.fetchLogbook(d); err != nil {
		return err
	}
	for i, e := range f.entries {
		if d.Cancelled() {
			return errs.NewFamily("framedrq", "foreach", errs.Cancelled, nil)
		}
		if f.matchesFingerprint(e.fingerprint[:]) {
			break
		}
		dive, err := f.fetchDive(d, i)
		if err != nil {
			return err
		}
		d.AdvanceProgress(nsteps)
		fp := device.FingerprintOf(dive, fingerprintOffset, fingerprintSize)
		if fp == nil {
			fp = e.fingerprint[:]
		}
		if !cb(dive, fp) {
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
	_, err := exchange(d, cmdDump, nil)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1<<16)
	for {
		if d.Cancelled() {
			return nil, errs.NewFamily("framedrq", "dump", errs.Cancelled, nil)
		}
		hdr := make([]byte, 1)
		if err := readFull(d.Stream, hdr); err != nil {
			return nil, err
		}
		if hdr[0] == endMarker {
			break
		}
		pkt := make([]byte, szData+2)
		pkt[0] = hdr[0]
		if err := readFull(d.Stream, pkt[1:]); err != nil {
			return nil, err
		}
		payload := pkt[:szData]
		if crc.CCITT(payload) != crc.ReadLE16(pkt[szData:szData+2]) {
			d.Stream.Write([]byte{0x15})
			return nil, errs.NewFamily("framedrq", "dump", errs.Protocol, nil)
		}
		d.Stream.Write([]byte{ackByte})
		out = append(out, payload...)
	}
	return out, nil
}

func (f *family) Timesync(d *device.Device, t time.Time) error {
	payload := []byte{
		byte(t.Year() - 2000), byte(t.Month()), byte(t.Day()),
		byte(t.Hour()), byte(t.Minute()), byte(t.Second()),
	}
	_, err := exchange(d, cmdTimesync, payload)
	return err
}

func (f *family) Close(d *device.Device) error {
	frame := packCommand(cmdGoodbye, nil)
	d.Stream.Write(frame)
	return nil
}
