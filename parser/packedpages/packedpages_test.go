package packedpages

import (
	"testing"

	"github.com/daedaluz/divecomputer/event"
)

func TestPackedPagesParse(t *testing.T) {
	page := make([]byte, pageSize)
	page[0] = 100 // tank pressure seed
	page[1] = 20  // temp seed
	page[2] = 24  // year digit
	page[3] = 7   // month
	page[4] = 4   // day
	page[5] = 12  // hour
	page[6] = 0   // minute

	half := make([]byte, halfPageSize)
	half[0] = 0   // temp delta
	half[1] = 0   // pressure delta
	half[2] = 200 // depth cm low byte -> 2.00m
	half[3] = 0

	data := append(append([]byte(nil), page...), half...)

	p := New(data, 0)
	dt, err := p.GetDatetime()
	if err != nil {
		t.Fatalf("GetDatetime: %v", err)
	}
	if dt.Year() != 2024 || dt.Month() != 7 {
		t.Errorf("datetime = %v, want 2024-07", dt)
	}

	var depths []float64
	p.SamplesForeach(func(s event.Sample) bool {
		if s.Kind == event.KindDepth {
			depths = append(depths, s.DepthM)
		}
		return true
	})
	if len(depths) != 1 || depths[0] != 2.0 {
		t.Errorf("depths = %v, want [2.0]", depths)
	}
}

func TestPackedPagesVendorSample(t *testing.T) {
	page := make([]byte, pageSize)
	half := make([]byte, halfPageSize)
	half[0] = tagVentilation
	copy(half[1:], []byte{1, 2, 3})

	data := append(append([]byte(nil), page...), half...)
	p := New(data, 0)

	var vendorSeen bool
	p.SamplesForeach(func(s event.Sample) bool {
		if s.Kind == event.KindVendorSample && s.VendorKind == vendorKindVentilation {
			vendorSeen = true
		}
		return true
	})
	if !vendorSeen {
		t.Error("expected a Ventilation half-page to surface as a KindVendorSample")
	}
}
