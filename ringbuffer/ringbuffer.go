// Package ringbuffer extracts dive records from the circular persistent
// memory layout described in spec §4.3: a profile region `[begin, end)`
// with an end-of-profile pointer stored at a fixed offset, walked newest
// to oldest after linearizing the wrap.
package ringbuffer

import (
	"github.com/daedaluz/divecomputer/internal/errs"
)

// Layout names the ring geometry and the per-dive trailer fields every
// family using this extractor must supply.
type Layout struct {
	ProfileBegin  int
	ProfileEnd    int
	FreediveBegin int
	FreediveEnd   int

	EOPOffset int // fixed offset of the end-of-profile pointer in data
	EOPSize   int // 2 or 4 bytes, little-endian

	HeaderSize        int
	FingerprintOffset int
	FingerprintSize   int
}

// Callback receives each dive block, its decoded length, and the
// fingerprint slice at FingerprintOffset; returning false stops the walk.
type Callback func(block []byte, length int, fingerprint []byte) bool

func readLE(b []byte) int {
	v := 0
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | int(b[i])
	}
	return v
}

// Walk implements the newest-to-oldest algorithm from §4.3: it reads eop,
// linearizes the ring into a scratch buffer (the freedive region is not
// copied there; spliceFreedive reads it straight from data), then
// walks backwards decoding `(samples | header | length_le16)` trailers,
// stopping at an unwritten region (mode byte 0xFF), a length mismatch, or
// a fingerprint match.
func Walk(data []byte, l Layout, fingerprint []byte, cb Callback) error {
	if l.EOPOffset < 0 || l.EOPOffset+l.EOPSize > len(data) {
		return errs.New("walk", errs.DataFormat, nil)
	}
	eop := l.ProfileBegin + readLE(data[l.EOPOffset:l.EOPOffset+l.EOPSize])
	if eop < l.ProfileBegin || eop >= l.ProfileEnd {
		return errs.New("walk", errs.DataFormat, nil)
	}

	ringLen := l.ProfileEnd - l.ProfileBegin
	freeLen := l.FreediveEnd - l.FreediveBegin
	scratch := make([]byte, 0, ringLen+freeLen)
	scratch = append(scratch, data[eop:l.ProfileEnd]...)
	scratch = append(scratch, data[l.ProfileBegin:eop]...)
	// tail is the linearized ring; the spare capacity sized for the freedive
	// region stays unused.
	tail := scratch[:ringLen]

	pos := len(tail)
	first := true
	for pos > l.HeaderSize+2 {
		lenOff := pos - 2
		length := readLE(tail[lenOff:pos])
		blockStart := lenOff - length
		if length <= 0 || blockStart < 0 {
			break
		}
		mode := tail[blockStart]
		if mode == 0xFF {
			break
		}
		block := append([]byte(nil), tail[blockStart:pos-2]...)

		if first && l.FreediveEnd > l.FreediveBegin {
			block = spliceFreedive(data, l, block)
			first = false
		}

		fpOff := l.FingerprintOffset
		fpSize := l.FingerprintSize
		var fp []byte
		if fpOff >= 0 && fpOff+fpSize <= len(block) {
			fp = block[fpOff : fpOff+fpSize]
		}
		if fingerprint != nil && fp != nil && bytesEqual(fp, fingerprint) {
			return nil
		}
		if !cb(block, len(block), fp) {
			return nil
		}
		pos = blockStart
	}
	return nil
}

// spliceFreedive appends every zero-terminated sub-sequence found in the
// freedive region onto block, in on-device order, per §8 scenario 4: a
// freedive logbook entry claiming nsamples = N with N zero-delimited
// sub-sequences in the region must have all N spliced onto the dive blob,
// not just the most recent one.
func spliceFreedive(data []byte, l Layout, block []byte) []byte {
	region := data[l.FreediveBegin:l.FreediveEnd]
	out := append([]byte(nil), block...)
	pos := 0
	for pos < len(region) {
		for pos < len(region) && region[pos] == 0 {
			pos++
		}
		start := pos
		for pos < len(region) && region[pos] != 0 {
			pos++
		}
		if pos > start {
			out = append(out, region[start:pos]...)
		}
	}
	return out
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
