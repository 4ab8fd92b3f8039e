// Package hdlcccr implements the "HDLC-framed CCR device" family from
// spec §4.2: commands and responses travel as HDLC frames (§4.1's
// HDLCStream framer handles the flag-byte delimiting, byte-stuffing and
// reflected CCITT CRC), each frame payload carrying a small header -
// seq/count byte, flags byte, little-endian type, little-endian length -
// followed by the chunk's bytes. Multi-frame payloads are reassembled by
// concatenating chunks until the "last" flag bit is seen.
package hdlcccr

import (
	"time"

	"github.com/daedaluz/divecomputer/device"
	"github.com/daedaluz/divecomputer/event"
	"github.com/daedaluz/divecomputer/internal/crc"
	"github.com/daedaluz/divecomputer/internal/errs"
	"github.com/daedaluz/divecomputer/iostream"
)

const (
	flagLast = 0x01

	typeInit     = 0x0001
	typeLogbook  = 0x0010
	typeDive     = 0x0020
	typeTimesync = 0x0040
	typeGoodbye  = 0x00FF

	maxTXFrame = 256
	maxRXFrame = 256
	chunkSize  = maxRXFrame - 6 // header overhead

	fingerprintSize   = 4
	fingerprintOffset = 0

	nsteps = 1000
)

func init() {
	device.Register("hdlcccr", func() device.FamilyDriver { return &family{} })
}

type logEntry struct {
	fingerprint [fingerprintSize]byte
}

type family struct {
	fingerprint []byte
	entries     []logEntry
	hdlc        *iostream.HDLCStream
}

// packChunk builds one HDLC frame payload: seq/count | flags | type(le16) |
// len(le16) | data.
func packChunk(seq, count int, last bool, typ uint16, data []byte) []byte {
	var flags byte
	if last {
		flags = flagLast
	}
	out := make([]byte, 0, 6+len(data))
	out = append(out, byte(seq)<<4|byte(count))
	out = append(out, flags)
	tle := crc.LE16(typ)
	lle := crc.LE16(uint16(len(data)))
	out = append(out, tle[0], tle[1], lle[0], lle[1])
	out = append(out, data...)
	return out
}

func (f *family) send(typ uint16, payload []byte) error {
	if len(payload) == 0 {
		_, err := f.hdlc.Write(packChunk(0, 1, true, typ, nil))
		return err
	}
	total := (len(payload) + chunkSize - 1) / chunkSize
	for i := 0; i < total; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		last := i == total-1
		if _, err := f.hdlc.Write(packChunk(i, total, last, typ, payload[start:end])); err != nil {
			return err
		}
	}
	return nil
}

// recv reassembles chunks for one logical message, stopping at the first
// frame with the last flag set.
func (f *family) recv() ([]byte, error) {
	out := make([]byte, 0, 256)
	buf := make([]byte, maxRXFrame)
	for {
		n, err := f.hdlc.Read(buf)
		if err != nil {
			return nil, err
		}
		if n < 6 {
			return nil, errs.NewFamily("hdlcccr", "recv", errs.DataFormat, nil)
		}
		flags := buf[1]
		dataLen := int(crc.ReadLE16(buf[4:6]))
		if 6+dataLen > n {
			return nil, errs.NewFamily("hdlcccr", "recv", errs.DataFormat, nil)
		}
		out = append(out, buf[6:6+dataLen]...)
		if flags&flagLast != 0 {
			break
		}
	}
	return out, nil
}

func (f *family) exchange(d *device.Device, typ uint16, payload []byte) ([]byte, error) {
	var resp []byte
	err := d.WithRetry(device.DefaultRetryPolicy, "exchange", func(attempt int) error {
		if err := f.send(typ, payload); err != nil {
			return err
		}
		r, err := f.recv()
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	return resp, err
}

func (f *family) Open(d *device.Device) error {
	f.hdlc = iostream.NewHDLCStream(d.Stream, maxTXFrame, maxRXFrame)
	d.Stream.SetTimeout(5 * time.Second)
	d.Stream.Purge(iostream.DirBoth)

	resp, err := f.exchange(d, typeInit, nil)
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
	resp, err := f.exchange(d, typeLogbook, nil)
	if err != nil {
		return err
	}
	if len(resp) < 1 {
		return errs.NewFamily("hdlcccr", "logbook", errs.DataFormat, nil)
	}
	count := int(resp[0])
	if len(resp) < 1+count*fingerprintSize {
		return errs.NewFamily("hdlcccr", "logbook", errs.DataFormat, nil)
	}
	f.entries = f.entries[:0]
	for i := 0; i < count; i++ {
		off := 1 + i*fingerprintSize
		var e logEntry
		copy(e.fingerprint[:], resp[off:off+fingerprintSize])
		f.entries = append(f.entries, e)
	}
	d.SetDiveCount(count, nsteps)
	return nil
}

func (f *family) fetchDive(d *device.Device, index int) ([]byte, error) {
	return f.exchange(d, typeDive, []byte{byte(index)})
}

func (f *family) Foreach(d *device.Device, cb device.DiveCallback) error {
	if err := f.fetchLogbook(d); err != nil {
		return err
	}
	for i, e := range f.entries {
		if d.Cancelled() {
			return errs.NewFamily("hdlcccr", "foreach", errs.Cancelled, nil)
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
	return nil, errs.NewFamily("hdlcccr", "dump", errs.Unsupported, nil)
}

func (f *family) Timesync(d *device.Device, t time.Time) error {
	payload := []byte{
		byte(t.Year() - 2000), byte(t.Month()), byte(t.Day()),
		byte(t.Hour()), byte(t.Minute()), byte(t.Second()),
	}
	_, err := f.exchange(d, typeTimesync, payload)
	return err
}

func (f *family) Close(d *device.Device) error {
	f.send(typeGoodbye, nil)
	return nil
}
