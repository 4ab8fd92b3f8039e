// Package device implements the base per-family state machine dispatcher:
// open/configure, handshake, progress/cancellation, incremental download
// via fingerprint, and the shared retry policy every family rides on.
package device

import (
	"time"

	"github.com/daedaluz/divecomputer/dcontext"
	"github.com/daedaluz/divecomputer/event"
	"github.com/daedaluz/divecomputer/internal/errs"
	"github.com/daedaluz/divecomputer/iostream"
)

// DiveCallback receives each unseen dive's opaque bytes and its fingerprint
// slice, newest first; returning false stops Foreach early without error.
type DiveCallback func(dive []byte, fingerprint []byte) bool

// CancelFunc is polled between command round trips; once it returns true,
// the in-flight operation returns a Cancelled error.
type CancelFunc func() bool

// FamilyDriver is the capability table a family package implements — "a
// small record of function pointers plus a family-specific state block",
// per §9's polymorphism design note. Any capability a family does not
// support should return an *errs.Error with Kind Unsupported.
type FamilyDriver interface {
	// Open performs transport configuration and handshake/wake-up.
	Open(d *Device) error
	// SetFingerprint installs the opaque "already seen" marker.
	SetFingerprint(fp []byte)
	// Foreach drives the logbook-list/fetch-dive state machine.
	Foreach(d *Device, cb DiveCallback) error
	// Dump reads the entire raw memory image, or Unsupported.
	Dump(d *Device) ([]byte, error)
	// Timesync writes the wall clock to the device, or Unsupported.
	Timesync(d *Device, t time.Time) error
	// Close sends the family's goodbye command, if any.
	Close(d *Device) error
}

// Device owns one IoStream, drives one FamilyDriver, and holds the
// cross-family bookkeeping (cancellation, events, fingerprint, progress)
// every family's Foreach/Dump implementation reads and writes through the
// accessor methods below. Device is not safe for concurrent use — exactly
// one goroutine may call its methods at a time, per §5.
type Device struct {
	Ctx    *dcontext.Context
	Stream iostream.IoStream
	Family string

	driver FamilyDriver

	eventMask Mask
	eventCb   event.Callback
	cancelCb  CancelFunc

	fingerprint []byte

	progress event.Progress
}

// Mask is an alias kept local so callers don't need to import event just to
// call SetEvents; it is event.Mask under the hood.
type Mask = event.Mask

// Registry maps a family tag to a constructor so Open can dispatch purely
// on the descriptor's Family string, without a type switch growing with
// every new family — the "thin dispatcher" from §9.
var registry = map[string]func() FamilyDriver{}

// Register installs a family constructor; family packages call this from
// an init() function.
func Register(family string, ctor func() FamilyDriver) {
	registry[family] = ctor
}

// Open constructs a Device for the named family and drives the family's
// Open (transport configuration + handshake).
func Open(ctx *dcontext.Context, family string, stream iostream.IoStream) (*Device, error) {
	ctor, ok := registry[family]
	if !ok {
		return nil, errs.NewFamily(family, "open", errs.Unsupported, nil)
	}
	d := &Device{Ctx: ctx, Stream: stream, Family: family, driver: ctor()}
	if err := d.driver.Open(d); err != nil {
		return nil, err
	}
	return d, nil
}

// SetEvents installs the event callback and the mask of event types that
// should reach it.
func (d *Device) SetEvents(mask Mask, cb event.Callback) {
	d.eventMask = mask
	d.eventCb = cb
}

// SetCancel installs the cooperative cancellation predicate.
func (d *Device) SetCancel(cb CancelFunc) {
	d.cancelCb = cb
}

// SetFingerprint installs the opaque fixed-width marker identifying
// "already seen" dives; a zero-length slice clears it.
func (d *Device) SetFingerprint(fp []byte) {
	d.fingerprint = append([]byte(nil), fp...)
	d.driver.SetFingerprint(d.fingerprint)
}

// Fingerprint returns the currently installed fingerprint, or nil.
func (d *Device) Fingerprint() []byte {
	return d.fingerprint
}

// IsFingerprint reports whether fp matches the installed fingerprint
// byte-for-byte; an empty installed fingerprint never matches (there is
// nothing to compare against yet).
func (d *Device) IsFingerprint(fp []byte) bool {
	if len(d.fingerprint) == 0 || len(fp) != len(d.fingerprint) {
		return false
	}
	for i := range fp {
		if fp[i] != d.fingerprint[i] {
			return false
		}
	}
	return true
}

// Cancelled consults the installed cancellation predicate; families call
// this between every command round trip per §4.2/§5.
func (d *Device) Cancelled() bool {
	return d.cancelCb != nil && d.cancelCb()
}

// Emit delivers ev to the installed callback if its Type is enabled by the
// current event mask.
func (d *Device) Emit(ev event.Event) {
	if d.eventCb == nil {
		return
	}
	var bit Mask
	switch ev.Type {
	case event.TypeWaiting:
		bit = event.MaskWaiting
	case event.TypeProgress:
		bit = event.MaskProgress
	case event.TypeDevInfo:
		bit = event.MaskDevInfo
	case event.TypeClock:
		bit = event.MaskClock
	case event.TypeVendor:
		bit = event.MaskVendor
	}
	if d.eventMask&bit == 0 {
		return
	}
	d.eventCb(ev)
}

// SetDiveCount revises the progress maximum once the logbook count is
// known: maximum = (count+1) * NSTEPS, per §4.2's progress accounting rule.
func (d *Device) SetDiveCount(count int, nsteps uint32) {
	d.progress.Maximum = uint32(count+1) * nsteps
	d.emitProgress()
}

// AdvanceProgress adds delta (already scaled within NSTEPS by the caller)
// to the running current counter and emits a Progress event.
func (d *Device) AdvanceProgress(delta uint32) {
	d.progress.Current += delta
	d.emitProgress()
}

func (d *Device) emitProgress() {
	d.Emit(event.Event{Type: event.TypeProgress, Progress: d.progress})
}

// Foreach drives the family protocol; see FamilyDriver.Foreach.
func (d *Device) Foreach(cb DiveCallback) error {
	return d.driver.Foreach(d, cb)
}

// Dump reads the entire raw memory image when the family supports it.
func (d *Device) Dump() ([]byte, error) {
	return d.driver.Dump(d)
}

// Timesync writes the wall clock to the device when supported.
func (d *Device) Timesync(t time.Time) error {
	return d.driver.Timesync(d, t)
}

// Close sends the family's goodbye command, if any, then releases the
// stream. Close is idempotent at the Device level: a second call still
// forwards to the stream's idempotent Close.
func (d *Device) Close() error {
	err := d.driver.Close(d)
	closeErr := d.Stream.Close()
	if err != nil {
		return err
	}
	return closeErr
}
