// Package bleframed implements the BLE variant of the framed
// request/response family (spec §4.2): no triple header, no explicit end
// byte — the terminator is a 16-byte "EOT xmodem" blob — and no packet CRC,
// since the BLE transport already guarantees integrity.
package bleframed

import (
	"bytes"
	"time"

	"github.com/daedaluz/divecomputer/device"
	"github.com/daedaluz/divecomputer/event"
	"github.com/daedaluz/divecomputer/internal/errs"
	"github.com/daedaluz/divecomputer/iostream"
)

const (
	szData = 20 // BLE-MTU-friendly packet size

	cmdInit      = 0x00
	cmdLogbook   = 0x10
	cmdFetchDive = 0x20
	cmdGoodbye   = 0xFF

	fingerprintSize   = 4
	fingerprintOffset = 0

	nsteps = 1000
)

// eotXmodem is the fixed 16-byte "end of transmission" sentinel: 0x43
// ('C', the xmodem NAK-for-CRC byte in the original protocol this emulates)
// padded with zeroes.
var eotXmodem = append([]byte{0x43}, make([]byte, 15)...)

func init() {
	device.Register("bleframed", func() device.FamilyDriver { return &family{} })
}

type family struct {
	fingerprint []byte
	count       int
	fingerprints [][]byte
}

func command(cmd byte, payload []byte) []byte {
	out := make([]byte, 0, 1+len(payload))
	out = append(out, cmd)
	out = append(out, payload...)
	return out
}

func exchange(d *device.Device, cmd byte, payload []byte) ([]byte, error) {
	var resp []byte
	err := d.WithRetry(device.DefaultRetryPolicy, "exchange", func(attempt int) error {
		if _, err := d.Stream.Write(command(cmd, payload)); err != nil {
			return err
		}
		buf := make([]byte, 512)
		n, err := d.Stream.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return errs.NewFamily("bleframed", "exchange", errs.Protocol, nil)
		}
		resp = buf[1:n] // drop echoed cmd byte
		return nil
	})
	return resp, err
}

func (f *family) Open(d *device.Device) error {
	d.Stream.SetTimeout(5 * time.Second)
	d.Stream.Purge(iostream.DirBoth)

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
		return errs.NewFamily("bleframed", "logbook", errs.DataFormat, nil)
	}
	count := int(resp[0])
	if len(resp) < 1+count*fingerprintSize {
		return errs.NewFamily("bleframed", "logbook", errs.DataFormat, nil)
	}
	f.fingerprints = f.fingerprints[:0]
	for i := 0; i < count; i++ {
		off := 1 + i*fingerprintSize
		f.fingerprints = append(f.fingerprints, append([]byte(nil), resp[off:off+fingerprintSize]...))
	}
	f.count = count
	d.SetDiveCount(count, nsteps)
	return nil
}

func (f *family) fetchDive(d *device.Device, index int) ([]byte, error) {
	if _, err := exchange(d, cmdFetchDive, []byte{byte(index)}); err != nil {
		return nil, err
	}
	out := make([]byte, 0, 4096)
	for {
		if d.Cancelled() {
			return nil, errs.NewFamily("bleframed", "fetch_dive", errs.Cancelled, nil)
		}
		buf := make([]byte, szData)
		n, err := d.Stream.Read(buf)
		if err != nil {
			return nil, err
		}
		pkt := buf[:n]
		if len(pkt) == len(eotXmodem) && bytes.Equal(pkt, eotXmodem) {
			break
		}
		out = append(out, pkt...)
	}
	return out, nil
}

func (f *family) Foreach(d *device.Device, cb device.DiveCallback) error {
	if err := f.fetchLogbook(d); err != nil {
		return err
	}
	for i, fp := range f.fingerprints {
		if d.Cancelled() {
			return errs.NewFamily("bleframed", "foreach", errs.Cancelled, nil)
		}
		if f.matchesFingerprint(fp) {
			break
		}
		dive, err := f.fetchDive(d, i)
		if err != nil {
			return err
		}
		d.AdvanceProgress(nsteps)
		diveFp := device.FingerprintOf(dive, fingerprintOffset, fingerprintSize)
		if diveFp == nil {
			diveFp = fp
		}
		if !cb(dive, diveFp) {
			return nil
		}
	}
	return nil
}

func (f *family) matchesFingerprint(fp []byte) bool {
	return bytes.Equal(fp, f.fingerprint)
}

func (f *family) Dump(d *device.Device) ([]byte, error) {
	return nil, errs.NewFamily("bleframed", "dump", errs.Unsupported, nil)
}

func (f *family) Timesync(d *device.Device, t time.Time) error {
	payload := []byte{
		byte(t.Year() - 2000), byte(t.Month()), byte(t.Day()),
		byte(t.Hour()), byte(t.Minute()), byte(t.Second()),
	}
	_, err := exchange(d, 0x40, payload)
	return err
}

func (f *family) Close(d *device.Device) error {
	d.Stream.Write(command(cmdGoodbye, nil))
	return nil
}
