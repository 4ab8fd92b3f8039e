package ringbuffer

import "testing"

// buildRing builds a profile region containing, in storage order, three
// dive blocks back to back, each `mode | fingerprint(2) | payload | len_le16`,
// with eop stored at a fixed 2-byte offset preceding the region.
func buildRing(t *testing.T) ([]byte, Layout) {
	t.Helper()
	block := func(mode byte, fp byte, payload []byte) []byte {
		b := []byte{mode, fp, fp}
		b = append(b, payload...)
		n := len(b)
		return append(b, byte(n), byte(n>>8))
	}
	b1 := block(0x01, 0xAA, []byte{1, 2, 3})
	b2 := block(0x01, 0xBB, []byte{4, 5})
	b3 := block(0x01, 0xCC, []byte{6})

	region := append(append(append([]byte{}, b1...), b2...), b3...)
	data := make([]byte, 2+len(region))
	// eop == 0 (wraps to ProfileBegin): the region is entirely full, so the
	// write pointer sits at the start of the ring, equivalent to the end for
	// a completely packed buffer but still satisfying eop < ProfileEnd.
	const eop = 0
	data[0], data[1] = byte(eop), byte(eop>>8)
	copy(data[2:], region)

	l := Layout{
		ProfileBegin:      2,
		ProfileEnd:        2 + len(region),
		EOPOffset:         0,
		EOPSize:           2,
		HeaderSize:        1,
		FingerprintOffset: 1,
		FingerprintSize:   2,
	}
	return data, l
}

func TestWalkNewestToOldest(t *testing.T) {
	data, l := buildRing(t)

	var fps []byte
	err := Walk(data, l, nil, func(block []byte, length int, fingerprint []byte) bool {
		fps = append(fps, fingerprint[0])
		return true
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	want := []byte{0xCC, 0xBB, 0xAA}
	if len(fps) != len(want) {
		t.Fatalf("got %d dives, want %d", len(fps), len(want))
	}
	for i := range want {
		if fps[i] != want[i] {
			t.Errorf("dive %d fingerprint = %#x, want %#x", i, fps[i], want[i])
		}
	}
}

func TestWalkStopsAtFingerprint(t *testing.T) {
	data, l := buildRing(t)

	var seen int
	err := Walk(data, l, []byte{0xBB, 0xBB}, func(block []byte, length int, fingerprint []byte) bool {
		seen++
		return true
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if seen != 1 {
		t.Errorf("expected to stop after the newest dive, saw %d", seen)
	}
}

func TestWalkCallbackStop(t *testing.T) {
	data, l := buildRing(t)

	var seen int
	err := Walk(data, l, nil, func(block []byte, length int, fingerprint []byte) bool {
		seen++
		return false
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if seen != 1 {
		t.Errorf("expected exactly one callback invocation, saw %d", seen)
	}
}

// TestWalkSplicesAllFreediveSamples exercises §8 scenario 4: a freedive
// region containing three zero-terminated sub-sequences must have all
// three spliced onto the dive blob, not just the most recent one.
func TestWalkSplicesAllFreediveSamples(t *testing.T) {
	block := func(mode byte, fp byte, payload []byte) []byte {
		b := []byte{mode, fp, fp}
		b = append(b, payload...)
		n := len(b)
		return append(b, byte(n), byte(n>>8))
	}
	dive := block(0x01, 0xAA, []byte{9})

	data := make([]byte, 2+len(dive))
	// eop == 0 (wraps to ProfileBegin), same full-ring convention as buildRing.
	const eop = 0
	data[0], data[1] = byte(eop), byte(eop>>8)
	copy(data[2:], dive)

	// Three zero-terminated sub-sequences: {1,2,3}, {4,5}, {6}.
	freedive := []byte{1, 2, 3, 0, 4, 5, 0, 6, 0}
	data = append(data, freedive...)

	l := Layout{
		ProfileBegin:      2,
		ProfileEnd:        2 + len(dive),
		FreediveBegin:     2 + len(dive),
		FreediveEnd:       2 + len(dive) + len(freedive),
		EOPOffset:         0,
		EOPSize:           2,
		HeaderSize:        1,
		FingerprintOffset: 1,
		FingerprintSize:   2,
	}

	var got []byte
	err := Walk(data, l, nil, func(block []byte, length int, fingerprint []byte) bool {
		got = block
		return true
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}

	want := append(append([]byte{0x01, 0xAA, 0xAA, 9}, []byte{1, 2, 3}...), []byte{4, 5, 6}...)
	if len(got) != len(want) {
		t.Fatalf("spliced block = % x, want % x", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("spliced block = % x, want % x", got, want)
			break
		}
	}
}

func TestWalkSuuntoBackward(t *testing.T) {
	// region: dive C | 0x80 | dive B | 0x80 | dive A (newest, wraps to
	// eop == begin since it runs to the physical end of the region).
	data := []byte{
		'C', 'C', 0x80,
		'B', 0x80,
		'A', 'A', 'A',
	}
	var dives [][]byte
	err := WalkSuunto(data, 0, len(data), 0, func(block []byte) bool {
		dives = append(dives, block)
		return true
	})
	if err != nil {
		t.Fatalf("WalkSuunto: %v", err)
	}
	// The oldest dive ("C") has no preceding 0x80 to delimit its start
	// within one circular pass, so only the two fully-delimited dives
	// are extracted.
	if len(dives) != 2 {
		t.Fatalf("got %d dives, want 2", len(dives))
	}
	if string(dives[0]) != "AAA" {
		t.Errorf("newest dive = %q, want AAA", dives[0])
	}
	if string(dives[1]) != "B" {
		t.Errorf("second dive = %q, want B", dives[1])
	}
}
