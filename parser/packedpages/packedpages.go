// Package packedpages implements the "packed sample pages" engine from
// spec §4.4: the profile lives in 16-byte pages; the first page's first
// 16 bytes seed tank pressure and temperature, and subsequent 8-byte
// half-pages alternate between tank-switch records (tag 0xAA) and normal
// samples whose fields are bit-packed. "Ventilation" and "AbsPressure"
// half-pages, which this family can emit but which have no normalized
// sample slot, are surfaced as opaque event.KindVendorSample samples
// rather than dropped.
package packedpages

import (
	"time"

	"github.com/daedaluz/divecomputer/event"
	"github.com/daedaluz/divecomputer/internal/errs"
	"github.com/daedaluz/divecomputer/parser"
)

const (
	pageSize     = 16
	halfPageSize = 8

	tagTankSwitch  = 0xAA
	tagVentilation = 0xAB
	tagAbsPressure = 0xAC

	vendorKindVentilation = 1
	vendorKindAbsPressure = 2

	sampleIntervalMS = 5000 // 5s ticks between half-pages
)

// Parser implements parser.Parser over a packed-page dive body.
type Parser struct {
	*parser.Base
}

// New constructs a Parser over a series of 16-byte pages.
func New(data []byte, model uint32) *Parser {
	p := &Parser{}
	p.Base = parser.NewBase(data, model, p.parse)
	return p
}

// unpackSample decodes a normal half-page's bit-packed fields, reproducing
// the layout table exactly: byte0 is a temperature delta (signed, tenths
// of a degree), byte1 is a pressure delta (signed, centibar), and bytes
// 2-3 are the depth in centimeters, little-endian.
func unpackSample(half []byte) (tempDelta int8, pressureDelta int8, depthCM uint16) {
	tempDelta = int8(half[0])
	pressureDelta = int8(half[1])
	depthCM = uint16(half[2]) | uint16(half[3])<<8
	return
}

func (p *Parser) parse(b *parser.Base) error {
	data := b.Data
	if len(data) < pageSize {
		return errs.New("parse", errs.DataFormat, nil)
	}

	tankPressure := float64(data[0]) * 2.0 // centibar-ish seed, family-specific scale
	temp := float64(int8(data[1]))

	year := parser.DisambiguateYear(2000+int(data[2]), time.Now().Year())
	b.SetDatetime(time.Date(year, time.Month(data[3]), int(data[4]), int(data[5]), int(data[6]), 0, 0, time.UTC))

	currentTime := int64(0)
	currentTank := 0
	maxDepth := 0.0

	b.AppendSample(event.Sample{Kind: event.KindPressure, TimeMS: currentTime, TankIndex: currentTank, Bar: tankPressure})
	b.AppendSample(event.Sample{Kind: event.KindTemperature, TimeMS: currentTime, TempC: temp})

	for off := pageSize; off+halfPageSize <= len(data); off += halfPageSize {
		half := data[off : off+halfPageSize]
		switch half[0] {
		case tagTankSwitch:
			currentTank = int(half[1])
			b.AppendSample(event.Sample{Kind: event.KindGasMix, TimeMS: currentTime, GasMixIndex: currentTank})
			continue
		case tagVentilation:
			b.AppendSample(event.Sample{Kind: event.KindVendorSample, TimeMS: currentTime,
				VendorKind: vendorKindVentilation, VendorBlob: append([]byte(nil), half[1:]...)})
			continue
		case tagAbsPressure:
			b.AppendSample(event.Sample{Kind: event.KindVendorSample, TimeMS: currentTime,
				VendorKind: vendorKindAbsPressure, VendorBlob: append([]byte(nil), half[1:]...)})
			continue
		}

		tempDelta, pressureDelta, depthCM := unpackSample(half)
		temp += float64(tempDelta) / 10.0
		tankPressure += float64(pressureDelta)
		depth := float64(depthCM) / 100.0
		if depth > maxDepth {
			maxDepth = depth
		}

		currentTime += sampleIntervalMS
		b.AppendSample(event.Sample{Kind: event.KindDepth, TimeMS: currentTime, DepthM: depth})
		b.AppendSample(event.Sample{Kind: event.KindTemperature, TimeMS: currentTime, TempC: temp})
		b.AppendSample(event.Sample{Kind: event.KindPressure, TimeMS: currentTime, TankIndex: currentTank, Bar: tankPressure})
	}

	b.SetField(parser.MaxDepth, maxDepth)
	return nil
}
