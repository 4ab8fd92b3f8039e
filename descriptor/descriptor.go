// Package descriptor implements the immutable, ordered catalog of
// supported products and the filtered iterator over it (§4.5).
package descriptor

import "github.com/daedaluz/divecomputer/iostream"

// USBID is a (vendor, product) USB id pair, populated only for
// USB-HID/BLE-recognizable models.
type USBID struct {
	Vendor  uint16
	Product uint16
}

// Descriptor is one immutable catalog row: vendor/product naming, the
// family tag device.Open dispatches on, a numeric model id the family
// parser uses to pick a byte layout, which transports the model supports,
// and optional USB ids for transport filtering.
type Descriptor struct {
	Vendor       string
	Product      string
	Family       string
	Model        int
	Transports   []iostream.Transport
	USBIDs       []USBID
	BLEName      string
}

// catalog is populated once at init and never mutated afterward; Iterator
// hands out pointers into it, satisfying the "borrowed references, no deep
// copy" requirement.
var catalog = []Descriptor{
	{
		Vendor: "Suunto", Product: "Solution/Vyper/Cobra era (framed)", Family: "framedrq", Model: 0x10,
		Transports: []iostream.Transport{iostream.TransportSerial},
	},
	{
		Vendor: "Suunto", Product: "EON family (BLE)", Family: "bleframed", Model: 0x11,
		Transports: []iostream.Transport{iostream.TransportBLE},
		BLEName:    "Suunto EON",
	},
	{
		Vendor: "Shearwater", Product: "Petrel/Perdix (CCR, HDLC)", Family: "hdlcccr", Model: 0x20,
		Transports: []iostream.Transport{iostream.TransportBLE, iostream.TransportSerial},
		BLEName:    "Shearwater Petrel",
	},
	{
		Vendor: "Oceanic", Product: "VT Pro / legacy ASCII-hex", Family: "legacyecho", Model: 0x30,
		Transports: []iostream.Transport{iostream.TransportSerial},
	},
	{
		Vendor: "Mares", Product: "Icon HD / handshake-page", Family: "handshakepage", Model: 0x40,
		Transports: []iostream.Transport{iostream.TransportSerial, iostream.TransportUSBHID},
		USBIDs:     []USBID{{Vendor: 0x0556, Product: 0x0004}},
	},
}

// Iterator yields borrowed pointers into the catalog, oldest-registered
// first, like the teacher's forward-only cursor types.
type Iterator struct {
	idx    int
	filter func(*Descriptor) bool
}

// NewIterator returns an Iterator over every catalog entry for which filter
// returns true; a nil filter matches everything.
func NewIterator(filter func(*Descriptor) bool) *Iterator {
	return &Iterator{filter: filter}
}

// Next advances the iterator, returning (entry, true) or (nil, false) once
// exhausted.
func (it *Iterator) Next() (*Descriptor, bool) {
	for it.idx < len(catalog) {
		d := &catalog[it.idx]
		it.idx++
		if it.filter == nil || it.filter(d) {
			return d, true
		}
	}
	return nil, false
}

// SupportsTransport reports whether d recognizes t.
func (d *Descriptor) SupportsTransport(t iostream.Transport) bool {
	for _, dt := range d.Transports {
		if dt == t {
			return true
		}
	}
	return false
}

// MatchUSBID reports whether d's USB id table contains (vendor, product).
func (d *Descriptor) MatchUSBID(vendor, product uint16) bool {
	for _, id := range d.USBIDs {
		if id.Vendor == vendor && id.Product == product {
			return true
		}
	}
	return false
}

// FilterTransport builds a filter predicate for NewIterator restricted to a
// single transport, the common case from §4.5.
func FilterTransport(t iostream.Transport) func(*Descriptor) bool {
	return func(d *Descriptor) bool { return d.SupportsTransport(t) }
}

// FilterUSBID builds a filter predicate matching both transport and
// reported USB vendor/product id.
func FilterUSBID(t iostream.Transport, vendor, product uint16) func(*Descriptor) bool {
	return func(d *Descriptor) bool {
		return d.SupportsTransport(t) && d.MatchUSBID(vendor, product)
	}
}
