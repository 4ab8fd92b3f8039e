package device

import "github.com/daedaluz/divecomputer/internal/errs"

// BuildDiveBlob assembles the self-contained dive blob format from §6: when
// the logbook header and per-dive profile bytes live in separate on-device
// regions, the driver prepends a tiny self-describing size header so the
// parser receives one contiguous payload: [id_len, logbook_len, id bytes,
// logbook bytes, dive bytes].
func BuildDiveBlob(id, logbook, dive []byte) ([]byte, error) {
	if len(id) > 255 || len(logbook) > 255 {
		return nil, errs.New("build_dive_blob", errs.InvalidArgs, nil)
	}
	out := make([]byte, 0, 2+len(id)+len(logbook)+len(dive))
	out = append(out, byte(len(id)), byte(len(logbook)))
	out = append(out, id...)
	out = append(out, logbook...)
	out = append(out, dive...)
	return out, nil
}

// SplitDiveBlob is the inverse of BuildDiveBlob, used by a family's parser
// side (or tests) to recover the three regions.
func SplitDiveBlob(blob []byte) (id, logbook, dive []byte, err error) {
	if len(blob) < 2 {
		return nil, nil, nil, errs.New("split_dive_blob", errs.DataFormat, nil)
	}
	idLen, logLen := int(blob[0]), int(blob[1])
	if len(blob) < 2+idLen+logLen {
		return nil, nil, nil, errs.New("split_dive_blob", errs.DataFormat, nil)
	}
	id = blob[2 : 2+idLen]
	logbook = blob[2+idLen : 2+idLen+logLen]
	dive = blob[2+idLen+logLen:]
	return id, logbook, dive, nil
}

// FingerprintOf returns dive's trailing fingerprint slice at the
// family-specific offset, the "dive_bytes + family_fp_offset" rule from §6.
func FingerprintOf(dive []byte, offset, size int) []byte {
	if offset < 0 || offset+size > len(dive) {
		return nil
	}
	return dive[offset : offset+size]
}
