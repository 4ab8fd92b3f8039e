// Package tlv implements the TLV-stream sample engine from spec §4.4: the
// dive body is a sequence of (type, len, payload) records, with type
// behavior driven by a descriptor table keyed by type-id. Missing
// descriptors cause the record to be skipped, not treated as an error.
package tlv

import (
	"encoding/binary"
	"time"

	"github.com/daedaluz/divecomputer/event"
	"github.com/daedaluz/divecomputer/internal/errs"
	"github.com/daedaluz/divecomputer/parser"
)

// Record type-ids.
const (
	typeDiveInfo  = 0x01 // datetime + summary fields
	typeTimeDelta = 0x10 // advances current time, milliseconds LE16
	typeDepth     = 0x11 // depth in cm, LE16
	typeTemp      = 0x12 // temperature in tenths of a degree, LE16 signed
	typePressure  = 0x13 // tank index byte + pressure in centibar LE16
	typeGasSwitch = 0x14 // gas-mix index byte
	typeEvent     = 0x15 // event-id byte + flag byte (0=none,1=begin,2=end)
	typeGasMix    = 0x20 // oxygen-percent byte + helium-percent byte
)

// depthNil is the nillable-depth sentinel (§8 scenario 5): a depth record
// carrying this value emits its preceding Time sample but no Depth sample.
const depthNil = 0xFFFF

// descriptor names the fixed byte layout of one record type; groups are
// not modeled explicitly since every type in this family's table is a
// flat scalar or fixed-width tuple.
type descriptor struct {
	name string
	size int // expected payload size, 0 = variable/ignored
}

var descriptors = map[byte]descriptor{
	typeDiveInfo:  {"dive_info", 12},
	typeTimeDelta: {"time_delta", 2},
	typeDepth:     {"depth", 2},
	typeTemp:      {"temp", 2},
	typePressure:  {"pressure", 3},
	typeGasSwitch: {"gas_switch", 1},
	typeEvent:     {"event", 2},
	typeGasMix:    {"gas_mix", 2},
}

var eventNames = map[byte]string{
	0x01: "Ascent",
	0x02: "Safety Stop",
	0x03: "Safety Stop Broken",
	0x04: "PO2 High",
	0x05: "Bookmark",
}

// Parser implements parser.Parser over a TLV-record dive body.
type Parser struct {
	*parser.Base
}

// New constructs a Parser; the body is not copied (the Base holds a
// reference-with-lifetime, per §4.4's construction contract).
func New(data []byte, model uint32) *Parser {
	p := &Parser{}
	p.Base = parser.NewBase(data, model, p.parse)
	return p
}

func (p *Parser) parse(b *parser.Base) error {
	data := b.Data
	var gasMixes []parser.GasMixValue
	currentTime := int64(0)

	for off := 0; off+2 <= len(data); {
		typ := data[off]
		length := int(data[off+1])
		off += 2
		if off+length > len(data) {
			return errs.New("parse", errs.DataFormat, nil)
		}
		payload := data[off : off+length]
		off += length

		desc, ok := descriptors[typ]
		if !ok {
			continue // unknown type: skip, not an error
		}
		if desc.size != 0 && len(payload) != desc.size {
			continue // malformed record for its declared type: skip
		}

		switch typ {
		case typeDiveInfo:
			year := int(payload[0])
			month, day := int(payload[1]), int(payload[2])
			hour, minute, sec := int(payload[3]), int(payload[4]), int(payload[5])
			fullYear := parser.DisambiguateYear(2000+year, time.Now().Year())
			b.SetDatetime(time.Date(fullYear, time.Month(month), day, hour, minute, sec, 0, time.UTC))
			b.SetField(parser.DiveTime, int(binary.LittleEndian.Uint16(payload[6:8])))
			b.SetField(parser.MaxDepth, float64(binary.LittleEndian.Uint16(payload[8:10]))/100.0)
			b.SetField(parser.Atmospheric, float64(payload[10])/100.0+0.5)
			b.SetField(parser.DiveMode, parser.Mode(payload[11]))

		case typeTimeDelta:
			currentTime += int64(binary.LittleEndian.Uint16(payload))
			b.AppendSample(event.Sample{Kind: event.KindTime, TimeMS: currentTime})

		case typeDepth:
			raw := binary.LittleEndian.Uint16(payload)
			if raw == depthNil {
				continue // nillable sentinel: Time already emitted, no Depth
			}
			depth := float64(raw) / 100.0
			b.AppendSample(event.Sample{Kind: event.KindDepth, TimeMS: currentTime, DepthM: depth})

		case typeTemp:
			temp := float64(int16(binary.LittleEndian.Uint16(payload))) / 10.0
			b.AppendSample(event.Sample{Kind: event.KindTemperature, TimeMS: currentTime, TempC: temp})

		case typePressure:
			bar := float64(binary.LittleEndian.Uint16(payload[1:3])) / 100.0
			b.AppendSample(event.Sample{Kind: event.KindPressure, TimeMS: currentTime, TankIndex: int(payload[0]), Bar: bar})

		case typeGasSwitch:
			b.AppendSample(event.Sample{Kind: event.KindGasMix, TimeMS: currentTime, GasMixIndex: int(payload[0])})

		case typeEvent:
			name, ok := eventNames[payload[0]]
			if !ok {
				continue
			}
			norm := parser.NormalizeEvent(name)
			if norm == event.EventNone {
				continue
			}
			flag := event.FlagNone
			switch payload[1] {
			case 1:
				flag = event.FlagBegin
			case 2:
				flag = event.FlagEnd
			}
			b.AppendSample(event.Sample{Kind: event.KindEvent, TimeMS: currentTime, EventKind: norm, EventFlag: flag})

		case typeGasMix:
			gasMixes = append(gasMixes, parser.GasMixValue{
				Oxygen: float64(payload[0]) / 100.0,
				Helium: float64(payload[1]) / 100.0,
			})
		}
	}
	b.SetGasMixes(gasMixes)
	return nil
}
