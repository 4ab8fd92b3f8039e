// Package parser defines the Parser contract from spec §4.4 and the
// helpers shared by every family-specific sample engine: lazy field
// caching, the tank-volume-guessing heuristic, the year-disambiguation
// heuristic and the vendor-event-string normalization table.
package parser

import (
	"time"

	"github.com/daedaluz/divecomputer/event"
	"github.com/daedaluz/divecomputer/internal/errs"
)

// FieldKind selects which summary field GetField reads.
type FieldKind int

const (
	DiveTime FieldKind = iota
	MaxDepth
	AvgDepth
	Atmospheric
	TemperatureMin
	TemperatureMax
	TemperatureSurface
	Salinity
	DiveMode
	DecoModel
	GasMixCount
	GasMix
	TankCount
	Tank
	Location
)

// Mode is the closed set of dive-mode values a family may report.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeOpenCircuit
	ModeClosedCircuit
	ModeGauge
	ModeFreedive
)

// Deco is the closed set of decompression model values a family may
// report.
type Deco int

const (
	DecoUnknown Deco = iota
	DecoModelNone
	DecoModelBuehlmann
	DecoModelRGBM
	DecoModelVPM
)

// GasMixValue is one entry of the gas-mix table, oxygen/helium fractions
// in the 0..1 range (nitrogen is implied as the remainder).
type GasMixValue struct {
	Oxygen float64
	Helium float64
}

// TankValue is one entry of the tank table. Volume is in liters once the
// tank-volume-guessing heuristic (see GuessTankUnit) has normalized it.
type TankValue struct {
	WorkPressureBar float64
	VolumeLiters    float64
	BeginBar        float64
	EndBar          float64
}

// Parser is the contract every family sample engine implements, matching
// the language-neutral `parser_*` functions in spec §6.
type Parser interface {
	GetDatetime() (time.Time, error)
	GetField(kind FieldKind, index int) (any, error)
	SamplesForeach(cb event.SampleCallback) error
}

// Base provides the lazy "parse profile on first demand" cache every
// concrete engine embeds: field queries read from cache after a single
// internal parse pass, and GetField reports Unsupported for fields the
// device never recorded, per §4.4's field computation policy.
type Base struct {
	Data  []byte
	Model uint32

	parsed  bool
	parseFn func(*Base) error

	datetime    time.Time
	hasDatetime bool

	fields  map[FieldKind]any
	gasMix  []GasMixValue
	tanks   []TankValue
	samples []event.Sample
}

// NewBase constructs a Base over data, deferring the actual parse pass
// until the first field/datetime/sample query.
func NewBase(data []byte, model uint32, parseFn func(*Base) error) *Base {
	return &Base{Data: data, Model: model, parseFn: parseFn, fields: map[FieldKind]any{}}
}

func (b *Base) ensureParsed() error {
	if b.parsed {
		return nil
	}
	b.parsed = true
	if b.parseFn != nil {
		return b.parseFn(b)
	}
	return nil
}

// SetDatetime records the parsed dive start time.
func (b *Base) SetDatetime(t time.Time) {
	b.datetime = t
	b.hasDatetime = true
}

// SetField records one initialized scalar field.
func (b *Base) SetField(kind FieldKind, value any) {
	b.fields[kind] = value
}

// SetGasMixes records the full gas-mix table.
func (b *Base) SetGasMixes(mixes []GasMixValue) {
	b.gasMix = mixes
	b.fields[GasMixCount] = len(mixes)
}

// SetTanks records the full tank table.
func (b *Base) SetTanks(tanks []TankValue) {
	b.tanks = tanks
	b.fields[TankCount] = len(tanks)
}

// AppendSample adds one sample to the cached stream, in the order the
// parse pass produced it; engines are responsible for keeping TimeMS
// (or the implicit current-time advance) non-decreasing, per the
// SamplesForeach contract.
func (b *Base) AppendSample(s event.Sample) {
	b.samples = append(b.samples, s)
}

// SamplesForeach parses on first call, then delivers the cached sample
// stream in order; returning false from cb stops delivery early.
func (b *Base) SamplesForeach(cb event.SampleCallback) error {
	if err := b.ensureParsed(); err != nil {
		return err
	}
	for _, s := range b.samples {
		if !cb(s) {
			return nil
		}
	}
	return nil
}

// GetDatetime returns the cached dive start time, parsing on first call.
func (b *Base) GetDatetime() (time.Time, error) {
	if err := b.ensureParsed(); err != nil {
		return time.Time{}, err
	}
	if !b.hasDatetime {
		return time.Time{}, errs.New("get_datetime", errs.Unsupported, nil)
	}
	return b.datetime, nil
}

// GetField returns the cached field value, parsing on first call.
// GasMix/Tank index into the respective table; an out-of-range index is
// InvalidArgs, an uninitialized field is Unsupported.
func (b *Base) GetField(kind FieldKind, index int) (any, error) {
	if err := b.ensureParsed(); err != nil {
		return nil, err
	}
	switch kind {
	case GasMix:
		if index < 0 || index >= len(b.gasMix) {
			return nil, errs.New("get_field", errs.InvalidArgs, nil)
		}
		return b.gasMix[index], nil
	case Tank:
		if index < 0 || index >= len(b.tanks) {
			return nil, errs.New("get_field", errs.InvalidArgs, nil)
		}
		return b.tanks[index], nil
	}
	v, ok := b.fields[kind]
	if !ok {
		return nil, errs.New("get_field", errs.Unsupported, nil)
	}
	return v, nil
}

// cubicFeetToLiters converts a cubic-feet tank volume to liters.
const cubicFeetToLiters = 28.3168

// GuessTankUnit applies the §4.4 tank-volume-guessing heuristic: when a
// workpressure is present and the raw volume is non-integral beyond a
// small epsilon, the unit is interpreted as imperial cubic feet and
// converted to liters; else it is already in liters. This is an
// irreversible heuristic, applied once at parse time.
func GuessTankUnit(rawVolume, workPressureBar float64) float64 {
	const epsilon = 0.001
	if workPressureBar <= 0 {
		return rawVolume
	}
	rounded := float64(int64(rawVolume + 0.5))
	if abs(rawVolume-rounded) > epsilon {
		return rawVolume * cubicFeetToLiters
	}
	return rawVolume
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// DisambiguateYear applies the §4.4 year-disambiguation heuristic for
// devices that record only the last digit: given the device's reported
// two-digit year and the host's current year, it reconstructs the full
// year, decrementing the decade when the recovered digit is numerically
// ahead of the host's own last digit.
func DisambiguateYear(recoveredYear, hostYear int) int {
	if recoveredYear >= 2010 || hostYear < 2010 {
		return recoveredYear
	}
	decade := (hostYear / 10) * 10
	if recoveredYear%10 > hostYear%10 {
		decade -= 10
	}
	return decade + recoveredYear%10
}

// NormalizeEvent maps a family's vendor-specific textual event enum onto
// the closed NormalizedEvent set from §4.4; unrecognized strings produce
// EventNone, which callers should treat as "no event emitted".
func NormalizeEvent(s string) event.NormalizedEvent {
	if ev, ok := eventStrings[s]; ok {
		return ev
	}
	return event.EventNone
}

var eventStrings = map[string]event.NormalizedEvent{
	"Deco stop":                event.EventDecoStop,
	"RBT":                      event.EventRBT,
	"Ascent":                   event.EventAscent,
	"Ceiling":                  event.EventCeiling,
	"Workload":                 event.EventWorkload,
	"Transmitter low battery":  event.EventTransmitterLowBattery,
	"Violation":                event.EventViolation,
	"Bookmark":                 event.EventBookmark,
	"Surface":                  event.EventSurface,
	"Safety Stop":              event.EventSafetyStop,
	"Gas Mix Change":           event.EventGasMixChange,
	"Safety Stop (voluntary)":  event.EventSafetyStopVoluntary,
	"Safety Stop (mandatory)":  event.EventSafetyStopMandatory,
	"Deco Stop Broken":         event.EventDecoStopBroken,
	"Safety Stop Broken":       event.EventSafetyStopBroken,
	"Air Time":                event.EventAirTime,
	"PO2 High":                 event.EventPPO2High,
	"PO2 Low":                  event.EventPPO2Low,
	"CNS High":                 event.EventCNSHigh,
	"Dive Time Alarm":          event.EventDiveTimeAlarm,
	"Depth Alarm":              event.EventDepthAlarm,
	"OLF High":                 event.EventOLFHigh,
	"Buoyancy Warning":         event.EventBuoyancyWarning,
	"Setpoint Change":          event.EventSetpointChange,
	"Gas Mix Configured":       event.EventGasMixConfigured,
}
