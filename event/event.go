// Package event defines the events a Device emits synchronously during
// Open/Foreach/Dump, and the closed sample-value and normalized-event-kind
// enums a Parser emits during SamplesForeach.
package event

// Mask selects which event types a caller wants delivered to its callback.
type Mask uint32

const (
	MaskWaiting Mask = 1 << iota
	MaskProgress
	MaskDevInfo
	MaskClock
	MaskVendor

	MaskAll = MaskWaiting | MaskProgress | MaskDevInfo | MaskClock | MaskVendor
)

// Type identifies which field of Event is populated.
type Type int

const (
	TypeWaiting Type = iota
	TypeProgress
	TypeDevInfo
	TypeClock
	TypeVendor
)

// Progress is a running (current, maximum) counter; maximum is revised once
// the dive count becomes known.
type Progress struct {
	Current uint32
	Maximum uint32
}

// DevInfo carries identification pulled from the device during handshake.
type DevInfo struct {
	Model    uint32
	Firmware uint32
	Serial   uint32
}

// Clock pairs the host's wall-clock reading against the device's reported
// clock at the moment of the read.
type Clock struct {
	SysTime  int64
	DevTime  int64
}

// Vendor is an opaque, family-specific blob (e.g. a raw handshake packet)
// surfaced to the host for logging/diagnostics.
type Vendor struct {
	Blob []byte
}

// Event is delivered synchronously from driver code; only the field
// matching Type carries meaningful data, the others are zero values.
type Event struct {
	Type     Type
	Progress Progress
	DevInfo  DevInfo
	Clock    Clock
	Vendor   Vendor
}

// Callback receives every event enabled by the Device's event mask.
type Callback func(Event)

// Kind is the closed, normalized sample/event enum a Parser emits.
type Kind int

const (
	KindTime Kind = iota
	KindDepth
	KindTemperature
	KindPressure
	KindGasMix
	KindDeco
	KindSetpoint
	KindPPO2
	KindBearing
	KindRBT
	KindCNS
	KindEvent
	KindVendorSample
)

// DecoKind distinguishes the three deco-state variants a Deco sample may
// carry.
type DecoKind int

const (
	DecoNDL DecoKind = iota
	DecoSafety
	DecoDeco
)

// EventFlag marks whether a normalized dive event is beginning or ending.
type EventFlag int

const (
	FlagNone EventFlag = iota
	FlagBegin
	FlagEnd
)

// NormalizedEvent is the closed set of dive events family parsers map their
// vendor-specific textual enums onto. Unrecognized vendor strings produce
// no NormalizedEvent at all (§4.4 "Event normalization").
type NormalizedEvent int

const (
	EventNone NormalizedEvent = iota
	EventDecoStop
	EventRBT
	EventAscent
	EventCeiling
	EventWorkload
	EventTransmitterLowBattery
	EventViolation
	EventBookmark
	EventSurface
	EventSafetyStop
	EventGasMixChange
	EventSafetyStopVoluntary
	EventSafetyStopMandatory
	EventDecoStopBroken
	EventSafetyStopBroken
	EventAirTime
	EventPPO2High
	EventPPO2Low
	EventCNSHigh
	EventDiveTimeAlarm
	EventDepthAlarm
	EventOLFHigh
	EventBuoyancyWarning
	EventSetpointChange
	EventGasMixConfigured
)

// Sample is one emitted value in the sample stream: Kind selects which
// field is meaningful. TimeMS is present (and monotonically non-decreasing
// across a dive) on every sample that represents a point in the profile;
// the Time kind's own emission advances the implicit "current time" used by
// family parsers when a sample carries no explicit timestamp of its own.
type Sample struct {
	Kind Kind

	TimeMS int64 // KindTime

	DepthM float64 // KindDepth
	TempC  float64 // KindTemperature

	TankIndex int     // KindPressure
	Bar       float64 // KindPressure, KindSetpoint, KindPPO2

	GasMixIndex int // KindGasMix

	DecoKind  DecoKind // KindDeco
	DecoDepth float64  // KindDeco
	DecoTime  int      // KindDeco, minutes
	DecoTTS   int      // KindDeco, minutes

	PPO2Sensor int // KindPPO2

	BearingDeg int     // KindBearing
	RBTMin     int     // KindRBT
	CNSFrac    float64 // KindCNS

	EventKind NormalizedEvent // KindEvent
	EventFlag EventFlag       // KindEvent
	EventValue int            // KindEvent

	VendorKind int    // KindVendorSample
	VendorBlob []byte // KindVendorSample
}

// SampleCallback receives samples in non-decreasing time order; returning
// false stops delivery early without error, mirroring DiveCallback.
type SampleCallback func(Sample) bool
