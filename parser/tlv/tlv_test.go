package tlv

import (
	"encoding/binary"
	"testing"

	"github.com/daedaluz/divecomputer/event"
	"github.com/daedaluz/divecomputer/parser"
)

func record(typ byte, payload []byte) []byte {
	return append([]byte{typ, byte(len(payload))}, payload...)
}

func buildDive() []byte {
	info := make([]byte, 12)
	info[0] = 24 // year digit -> 2024
	info[1] = 6  // month
	info[2] = 15 // day
	info[3] = 10 // hour
	info[4] = 30 // minute
	info[5] = 0  // second
	binary.LittleEndian.PutUint16(info[6:8], 1800) // dive time seconds
	binary.LittleEndian.PutUint16(info[8:10], 2500) // max depth cm
	info[10] = 13                                   // atmospheric
	info[11] = byte(parser.ModeOpenCircuit)

	depth := make([]byte, 2)
	binary.LittleEndian.PutUint16(depth, 1000) // 10.00m

	var data []byte
	data = append(data, record(typeDiveInfo, info)...)
	data = append(data, record(typeTimeDelta, []byte{0x10, 0x27})...) // 10000ms
	data = append(data, record(typeDepth, depth)...)
	data = append(data, record(0xFE, []byte{1, 2, 3})...) // unknown type, skipped
	return data
}

func TestTLVParse(t *testing.T) {
	p := New(buildDive(), 0)

	dt, err := p.GetDatetime()
	if err != nil {
		t.Fatalf("GetDatetime: %v", err)
	}
	if dt.Year() != 2024 || dt.Month() != 6 || dt.Day() != 15 {
		t.Errorf("datetime = %v, want 2024-06-15", dt)
	}

	v, err := p.GetField(parser.DiveTime, 0)
	if err != nil || v.(int) != 1800 {
		t.Errorf("DiveTime = %v, %v, want 1800", v, err)
	}

	var depths []float64
	err = p.SamplesForeach(func(s event.Sample) bool {
		if s.Kind == event.KindDepth {
			depths = append(depths, s.DepthM)
		}
		return true
	})
	if err != nil {
		t.Fatalf("SamplesForeach: %v", err)
	}
	if len(depths) != 1 || depths[0] != 10.0 {
		t.Errorf("depths = %v, want [10.0]", depths)
	}
}

// TestTLVNilDepthSentinel covers §8 scenario 5: a depth record carrying
// 0xFFFF must emit the preceding Time sample but no Depth sample.
func TestTLVNilDepthSentinel(t *testing.T) {
	var data []byte
	data = append(data, record(typeTimeDelta, []byte{0x64, 0x00})...) // 100ms
	data = append(data, record(typeDepth, []byte{0xFF, 0xFF})...)     // nil depth

	p := New(data, 0)

	var kinds []event.Kind
	err := p.SamplesForeach(func(s event.Sample) bool {
		kinds = append(kinds, s.Kind)
		return true
	})
	if err != nil {
		t.Fatalf("SamplesForeach: %v", err)
	}
	if len(kinds) != 1 || kinds[0] != event.KindTime {
		t.Errorf("samples = %v, want exactly one Time sample and no Depth", kinds)
	}
}

// TestTLVNonNilDepthStillEmits ensures the 0xFFFF check doesn't suppress an
// ordinary large-but-valid depth value (anything short of the sentinel).
func TestTLVNonNilDepthStillEmits(t *testing.T) {
	data := record(typeDepth, []byte{0xFE, 0xFF}) // 0xFFFE, not the sentinel
	p := New(data, 0)

	var depths int
	err := p.SamplesForeach(func(s event.Sample) bool {
		if s.Kind == event.KindDepth {
			depths++
		}
		return true
	})
	if err != nil {
		t.Fatalf("SamplesForeach: %v", err)
	}
	if depths != 1 {
		t.Errorf("depths emitted = %d, want 1", depths)
	}
}
