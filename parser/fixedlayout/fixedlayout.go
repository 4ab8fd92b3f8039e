// Package fixedlayout implements the "fixed-layout profile" sample engine
// from spec §4.4: a tabular layout per (api version, dive-mode) gives byte
// offsets for summary fields, and the sample body is a stream of 16-bit
// words whose low 2 bits tag the word as a depth (open-circuit or
// freedive), temperature, or surface-interval marker.
package fixedlayout

import (
	"encoding/binary"
	"time"

	"github.com/daedaluz/divecomputer/event"
	"github.com/daedaluz/divecomputer/internal/errs"
	"github.com/daedaluz/divecomputer/parser"
)

// Sample word tags, the low 2 bits of each 16-bit little-endian word.
const (
	tagDepthOC   = 0
	tagDepthFree = 1
	tagTemp      = 2
	tagSurface   = 3
)

const sampleIntervalMS = 10000 // 10s ticks, the family's fixed sample rate

// apiVersion names the summary-field table revision a firmware range maps
// to; resolved by apiVersionFromFirmware.
type apiVersion int

const (
	apiV0 apiVersion = iota
	apiV1
	apiV2
	apiV3
	apiV4
	apiV5
)

// firmwareRange is one entry of the firmware -> API-version table. Ranges
// are checked in order and the first match wins; as given, the ranges do
// not overlap (no range covers [110,161]), so table order only matters as
// documentation of precedence, never as a tiebreak in practice.
type firmwareRange struct {
	minFW, maxFW int
	api          apiVersion
}

var firmwareTable = []firmwareRange{
	{161, 165, apiV0},
	{166, 169, apiV1},
	{170, 179, apiV2},
	{100, 110, apiV3},
	{200, 205, apiV4},
	{300, 1<<31 - 1, apiV5},
}

// apiVersionFromFirmware resolves a firmware word to a table revision using
// first-matching-range-wins order, returning errs.DataFormat for a firmware
// value outside every named range.
func apiVersionFromFirmware(fw int) (apiVersion, error) {
	for _, r := range firmwareTable {
		if fw >= r.minFW && fw <= r.maxFW {
			return r.api, nil
		}
	}
	return 0, errs.New("apiVersionFromFirmware", errs.DataFormat, nil)
}

// layout is the offset table for one api version's summary header; the
// header always precedes the sample stream.
type layout struct {
	headerSize  int
	offYear     int
	offMonth    int
	offDay      int
	offHour     int
	offMinute   int
	offDiveTime int // LE16, seconds
	offAtmos    int // byte, centibar over 1000mbar baseline
	offMode     int // byte
	sampleStart int
}

var layouts = map[apiVersion]layout{
	apiV0: {headerSize: 12, offYear: 0, offMonth: 1, offDay: 2, offHour: 3, offMinute: 4, offDiveTime: 5, offAtmos: 7, offMode: 8, sampleStart: 12},
	apiV1: {headerSize: 16, offYear: 0, offMonth: 1, offDay: 2, offHour: 3, offMinute: 4, offDiveTime: 5, offAtmos: 7, offMode: 8, sampleStart: 16},
	apiV2: {headerSize: 16, offYear: 0, offMonth: 1, offDay: 2, offHour: 3, offMinute: 4, offDiveTime: 5, offAtmos: 7, offMode: 8, sampleStart: 16},
	apiV3: {headerSize: 12, offYear: 0, offMonth: 1, offDay: 2, offHour: 3, offMinute: 4, offDiveTime: 5, offAtmos: 7, offMode: 8, sampleStart: 12},
	apiV4: {headerSize: 16, offYear: 0, offMonth: 1, offDay: 2, offHour: 3, offMinute: 4, offDiveTime: 5, offAtmos: 7, offMode: 8, sampleStart: 16},
	apiV5: {headerSize: 16, offYear: 0, offMonth: 1, offDay: 2, offHour: 3, offMinute: 4, offDiveTime: 5, offAtmos: 7, offMode: 8, sampleStart: 16},
}

// Parser implements parser.Parser over a fixed-layout dive body.
type Parser struct {
	*parser.Base
	firmware uint32
}

// New constructs a Parser; firmware selects the summary-field table
// revision via apiVersionFromFirmware.
func New(data []byte, model, firmware uint32) *Parser {
	p := &Parser{firmware: firmware}
	p.Base = parser.NewBase(data, model, p.parse)
	return p
}

func (p *Parser) parse(b *parser.Base) error {
	data := b.Data
	api, err := apiVersionFromFirmware(int(p.firmware))
	if err != nil {
		return err
	}
	l, ok := layouts[api]
	if !ok || len(data) < l.headerSize {
		return errs.New("parse", errs.DataFormat, nil)
	}

	year := parser.DisambiguateYear(2000+int(data[l.offYear]), time.Now().Year())
	b.SetDatetime(time.Date(year, time.Month(data[l.offMonth]), int(data[l.offDay]),
		int(data[l.offHour]), int(data[l.offMinute]), 0, 0, time.UTC))
	b.SetField(parser.DiveTime, int(binary.LittleEndian.Uint16(data[l.offDiveTime:l.offDiveTime+2])))
	b.SetField(parser.Atmospheric, 1.0+float64(data[l.offAtmos])/100.0)
	b.SetField(parser.DiveMode, parser.Mode(data[l.offMode]))

	currentTime := int64(0)
	maxDepth := 0.0
	depthSum := 0.0
	depthCount := 0

	for off := l.sampleStart; off+2 <= len(data); off += 2 {
		word := binary.LittleEndian.Uint16(data[off : off+2])
		tag := word & 0x3
		value := word >> 2

		switch tag {
		case tagDepthOC:
			depth := float64(value) / 100.0
			b.AppendSample(event.Sample{Kind: event.KindDepth, TimeMS: currentTime, DepthM: depth})
			if depth > maxDepth {
				maxDepth = depth
			}
			depthSum += depth
			depthCount++
			currentTime += sampleIntervalMS

		case tagDepthFree:
			depth := float64(value) / 100.0
			b.AppendSample(event.Sample{Kind: event.KindDepth, TimeMS: currentTime, DepthM: depth})
			if depth > maxDepth {
				maxDepth = depth
			}
			currentTime += sampleIntervalMS

		case tagTemp:
			temp := float64(int16(value<<2)>>2) / 10.0
			b.AppendSample(event.Sample{Kind: event.KindTemperature, TimeMS: currentTime, TempC: temp})

		case tagSurface:
			surfaceSeconds := int64(value)
			b.AppendSample(event.Sample{Kind: event.KindDepth, TimeMS: currentTime, DepthM: 0})
			currentTime += surfaceSeconds * 1000
		}
	}

	b.SetField(parser.MaxDepth, maxDepth)
	if depthCount > 0 {
		b.SetField(parser.AvgDepth, depthSum/float64(depthCount))
	}
	return nil
}
