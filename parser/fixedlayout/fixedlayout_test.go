package fixedlayout

import (
	"encoding/binary"
	"testing"

	"github.com/daedaluz/divecomputer/event"
)

func TestApiVersionFromFirmwareBoundaries(t *testing.T) {
	cases := []struct {
		fw   int
		want apiVersion
	}{
		{161, apiV0},
		{165, apiV0},
		{166, apiV1},
		{169, apiV1},
		{170, apiV2},
		{179, apiV2},
		{100, apiV3},
		{110, apiV3},
		{200, apiV4},
		{205, apiV4},
		{300, apiV5},
		{1000000, apiV5},
	}
	for _, c := range cases {
		got, err := apiVersionFromFirmware(c.fw)
		if err != nil {
			t.Fatalf("apiVersionFromFirmware(%d): unexpected error: %v", c.fw, err)
		}
		if got != c.want {
			t.Errorf("apiVersionFromFirmware(%d) = %v, want %v", c.fw, got, c.want)
		}
	}
}

func TestApiVersionFromFirmwareOutOfRange(t *testing.T) {
	for _, fw := range []int{0, 111, 160, 180, 199, 206, 299} {
		if _, err := apiVersionFromFirmware(fw); err == nil {
			t.Errorf("apiVersionFromFirmware(%d) = nil error, want errs.DataFormat", fw)
		}
	}
}

func TestFixedLayoutParse(t *testing.T) {
	l := layouts[apiV0]
	data := make([]byte, l.headerSize)
	data[l.offYear] = 24
	data[l.offMonth] = 3
	data[l.offDay] = 10
	data[l.offHour] = 9
	data[l.offMinute] = 15
	binary.LittleEndian.PutUint16(data[l.offDiveTime:l.offDiveTime+2], 3600)
	data[l.offAtmos] = 0
	data[l.offMode] = 0

	depthWord := uint16(1500<<2) | tagDepthOC // 15.00m
	sample := make([]byte, 2)
	binary.LittleEndian.PutUint16(sample, depthWord)
	data = append(data, sample...)

	p := New(data, 0, 161)
	dt, err := p.GetDatetime()
	if err != nil {
		t.Fatalf("GetDatetime: %v", err)
	}
	if dt.Year() != 2024 || dt.Day() != 10 {
		t.Errorf("datetime = %v, want 2024-03-10", dt)
	}

	var depths []float64
	p.SamplesForeach(func(s event.Sample) bool {
		if s.Kind == event.KindDepth {
			depths = append(depths, s.DepthM)
		}
		return true
	})
	if len(depths) != 1 || depths[0] != 15.0 {
		t.Errorf("depths = %v, want [15.0]", depths)
	}
}
