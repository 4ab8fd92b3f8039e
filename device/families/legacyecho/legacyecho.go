// Package legacyecho implements the "legacy serial device with echo"
// family from spec §4.2 and the §8 scenario-1/2 read pattern: commands are
// sent as ASCII envelopes "<CMD args*XX>" (XX an upper-case hex sum-mod-256
// checksum of everything between the angle brackets), the device first
// echoes the command bytes back verbatim before its real response, and
// memory is read page by page as an ASCII-hex-encoded 32-byte payload
// (scenario 1), transmitted as two independent hex sub-packets for
// redundancy (scenario 2) — whichever sub-packet's own trailing checksum
// validates is accepted, preferring the first when both validate and
// agree.
package legacyecho

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/daedaluz/divecomputer/device"
	"github.com/daedaluz/divecomputer/event"
	"github.com/daedaluz/divecomputer/internal/crc"
	"github.com/daedaluz/divecomputer/internal/errs"
	"github.com/daedaluz/divecomputer/iostream"
)

const (
	pageSize   = 32
	totalPages = 64 // illustrative fixed memory size

	logbookEntrySize = 8
	fingerprintSize  = 4

	nsteps = 1000
)

func init() {
	device.Register("legacyecho", func() device.FamilyDriver { return &family{} })
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

// envelope builds "<CMD args*XX>\r\n" with XX the upper-case hex
// sum-mod-256 checksum of "CMD args", per scenario 1's literal
// "<5104000010XX>" example.
func envelope(cmd string) []byte {
	sum := crc.AddSum8([]byte(cmd))
	return []byte(fmt.Sprintf("<%s*%02X>\r\n", cmd, sum))
}

// readEcho reads and discards exactly len(sent) bytes, verifying it matches
// the command just written, per the family's echo contract.
func readEcho(s iostream.IoStream, sent []byte) error {
	buf := make([]byte, len(sent))
	off := 0
	for off < len(buf) {
		n, err := s.Read(buf[off:])
		if err != nil {
			return err
		}
		if n == 0 {
			return errs.NewFamily("legacyecho", "echo", errs.Timeout, nil)
		}
		off += n
	}
	for i := range sent {
		if buf[i] != sent[i] {
			return errs.NewFamily("legacyecho", "echo", errs.Protocol, nil)
		}
	}
	return nil
}

// readLine reads up to and including '\n', stripping the trailing CRLF.
func readLine(s iostream.IoStream) ([]byte, error) {
	line := make([]byte, 0, 64)
	one := make([]byte, 1)
	for {
		n, err := s.Read(one)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, errs.NewFamily("legacyecho", "read_line", errs.Timeout, nil)
		}
		if one[0] == '\n' {
			break
		}
		if one[0] != '\r' {
			line = append(line, one[0])
		}
	}
	return line, nil
}

func (f *family) command(d *device.Device, cmd string) ([]byte, error) {
	var resp []byte
	err := d.WithRetry(device.DefaultRetryPolicy, "command", func(attempt int) error {
		sent := envelope(cmd)
		if _, err := d.Stream.Write(sent); err != nil {
			return err
		}
		if err := readEcho(d.Stream, sent); err != nil {
			return err
		}
		line, err := readLine(d.Stream)
		if err != nil {
			return err
		}
		resp = line
		return nil
	})
	return resp, err
}

// hexSubpacketSize is the wire size of one "payload-hex CC" sub-packet:
// the page's bytes hex-encoded (2 characters per byte) plus a trailing
// 2-hex-character sum-mod-256 checksum.
const hexSubpacketSize = pageSize*2 + 2

// readHexSubpacket reads one hex-encoded page sub-packet and reports
// whether its trailing checksum validates against the sum-mod-256 of the
// preceding hex characters (scenario 1). The decoded payload and the raw
// hex text (needed to compare two sub-packets for equality without
// re-encoding) are both returned regardless of checksum validity; when the
// hex text does not decode, the payload is nil and valid is false.
func readHexSubpacket(s iostream.IoStream) (raw []byte, hexText []byte, valid bool, err error) {
	buf := make([]byte, hexSubpacketSize)
	off := 0
	for off < len(buf) {
		n, rerr := s.Read(buf[off:])
		if rerr != nil {
			return nil, nil, false, rerr
		}
		if n == 0 {
			return nil, nil, false, errs.NewFamily("legacyecho", "read_page", errs.Timeout, nil)
		}
		off += n
	}
	payloadHex := buf[:pageSize*2]
	checksumHex := buf[pageSize*2:]

	want := crc.AddSum8(payloadHex)
	got, cerr := strconv.ParseUint(string(checksumHex), 16, 8)
	valid = cerr == nil && byte(got) == want

	raw = make([]byte, pageSize)
	if _, derr := hex.Decode(raw, payloadHex); derr != nil {
		return nil, payloadHex, false, nil
	}
	return raw, payloadHex, valid, nil
}

// readPage reads one 32-byte page, transmitted as two independent
// hex-encoded sub-packets (scenario 2): accept the first if both validate
// and their payloads agree, accept whichever validates if only one does,
// and fail with Protocol if neither does.
func (f *family) readPage(d *device.Device, page int) ([]byte, error) {
	var data []byte
	err := d.WithRetry(device.DefaultRetryPolicy, "read_page", func(attempt int) error {
		sent := envelope(fmt.Sprintf("READ %02X", page))
		if _, err := d.Stream.Write(sent); err != nil {
			return err
		}
		if err := readEcho(d.Stream, sent); err != nil {
			return err
		}
		raw1, hex1, valid1, err := readHexSubpacket(d.Stream)
		if err != nil {
			return err
		}
		raw2, hex2, valid2, err := readHexSubpacket(d.Stream)
		if err != nil {
			return err
		}
		switch {
		case valid1 && valid2 && bytes.Equal(hex1, hex2):
			data = raw1
		case valid1 && !valid2:
			data = raw1
		case valid2 && !valid1:
			data = raw2
		default:
			return errs.NewFamily("legacyecho", "read_page", errs.Protocol, nil)
		}
		return nil
	})
	return data, err
}

func (f *family) Open(d *device.Device) error {
	if err := d.Stream.Configure(iostream.SerialConfig{
		Baud: 4800, DataBits: 8, Parity: iostream.ParityNone, StopBits: iostream.StopBits1, Flow: iostream.FlowNone,
	}); err != nil && errs.KindOf(err) != errs.Unsupported {
		return err
	}
	d.Stream.Purge(iostream.DirBoth)
	d.Stream.SetTimeout(5 * time.Second)

	resp, err := f.command(d, "INIT")
	if err != nil {
		return err
	}
	if len(resp) >= 6 {
		d.Emit(event.Event{Type: event.TypeDevInfo, DevInfo: event.DevInfo{
			Model:    uint32(resp[0]),
			Firmware: uint32(resp[1]),
			Serial:   uint32(resp[2]),
		}})
	}
	return nil
}

func (f *family) SetFingerprint(fp []byte) {
	f.fingerprint = append([]byte(nil), fp...)
}

func (f *family) fetchLogbook(d *device.Device) error {
	resp, err := f.command(d, "DIR")
	if err != nil {
		return err
	}
	if len(resp) < 1 {
		return errs.NewFamily("legacyecho", "logbook", errs.DataFormat, nil)
	}
	count := int(resp[0])
	if len(resp) < 1+count*logbookEntrySize {
		return errs.NewFamily("legacyecho", "logbook", errs.DataFormat, nil)
	}
	f.entries = f.entries[:0]
	for i := 0; i < count; i++ {
		off := 1 + i*logbookEntrySize
		var e logEntry
		copy(e.fingerprint[:], resp[off:off+fingerprintSize])
		e.firstPage = int(resp[off+fingerprintSize])
		e.pageCount = int(resp[off+fingerprintSize+1])
		f.entries = append(f.entries, e)
	}
	d.SetDiveCount(count, nsteps)
	return nil
}

func (f *family) fetchDive(d *device.Device, e logEntry) ([]byte, error) {
	out := make([]byte, 0, e.pageCount*pageSize)
	for p := 0; p < e.pageCount; p++ {
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
			return errs.NewFamily("legacyecho", "foreach", errs.Cancelled, nil)
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
			return nil, errs.NewFamily("legacyecho", "dump", errs.Cancelled, nil)
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
	_, err := f.command(d, fmt.Sprintf("TIME %02d%02d%02d%02d%02d%02d",
		t.Year()-2000, t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second()))
	return err
}

func (f *family) Close(d *device.Device) error {
	f.command(d, "BYE")
	return nil
}
