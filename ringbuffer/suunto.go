package ringbuffer

import "github.com/daedaluz/divecomputer/internal/errs"

const markerEndOfDive = 0x80

// SuuntoCallback receives each extracted dive block; returning false stops
// the walk.
type SuuntoCallback func(block []byte) bool

// WalkSuunto implements the marker-based extraction from §4.3's
// "Suunto-style extraction": the region `[begin, end)` is circular; eop
// (resolved by the caller, e.g. from a fixed pointer elsewhere in the
// dump, the same way Walk resolves it for Layout.EOPOffset) is the byte
// immediately following the newest dive's data, and each 0x80 byte marks
// the end of an older dive. The walker moves backwards from eop, and the
// bytes strictly between two consecutive boundaries are one dive, copied
// out with a two-piece copy when the span wraps.
func WalkSuunto(data []byte, begin, end, eop int, cb SuuntoCallback) error {
	if begin < 0 || end > len(data) || begin >= end {
		return errs.New("walk_suunto", errs.InvalidArgs, nil)
	}
	size := end - begin
	if eop < begin || eop >= end {
		return errs.New("walk_suunto", errs.DataFormat, nil)
	}

	pos := eop - begin
	for steps := 0; steps < size; {
		boundary := -1
		for i := 1; i <= size; i++ {
			idx := mod(pos-i, size)
			steps++
			if data[begin+idx] == markerEndOfDive {
				boundary = idx
				break
			}
			if steps >= size {
				break
			}
		}
		if boundary < 0 {
			return nil
		}
		block := copyCircular(data, begin, size, boundary, pos)
		if !cb(block) {
			return nil
		}
		pos = boundary
	}
	return nil
}

func mod(a, n int) int {
	a %= n
	if a < 0 {
		a += n
	}
	return a
}

// copyCircular copies the open interval (from, to) of the circular region
// of size `size` starting at begin, handling wrap with a two-piece copy.
func copyCircular(data []byte, begin, size, from, to int) []byte {
	if from < to {
		return append([]byte(nil), data[begin+from+1:begin+to]...)
	}
	out := make([]byte, 0, size)
	out = append(out, data[begin+from+1:begin+size]...)
	out = append(out, data[begin:begin+to]...)
	return out
}
