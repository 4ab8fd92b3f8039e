package legacyecho

import (
	"bytes"
	"testing"
	"time"

	"github.com/daedaluz/divecomputer/device"
	"github.com/daedaluz/divecomputer/internal/crc"
	"github.com/daedaluz/divecomputer/iostream"
)

// fakeStream is a minimal in-memory IoStream double: Write appends to
// written, and Read serves bytes from a pre-seeded inbox queue.
type fakeStream struct {
	inbox   []byte
	written [][]byte
}

func (f *fakeStream) Transport() iostream.Transport         { return iostream.TransportSerial }
func (f *fakeStream) SetTimeout(time.Duration) error        { return nil }
func (f *fakeStream) Configure(iostream.SerialConfig) error { return nil }
func (f *fakeStream) SetBreak(bool) error                   { return nil }
func (f *fakeStream) SetDTR(bool) error                     { return nil }
func (f *fakeStream) SetRTS(bool) error                     { return nil }
func (f *fakeStream) GetLines() (iostream.Lines, error)     { return 0, nil }
func (f *fakeStream) GetAvailable() (int, error)            { return len(f.inbox), nil }
func (f *fakeStream) Poll(time.Duration) error              { return nil }
func (f *fakeStream) Ioctl(int, []byte) ([]byte, error)     { return nil, nil }
func (f *fakeStream) Flush(iostream.Direction) error        { return nil }
func (f *fakeStream) Purge(iostream.Direction) error        { return nil }
func (f *fakeStream) Sleep(time.Duration) error             { return nil }
func (f *fakeStream) Close() error                          { return nil }

func (f *fakeStream) Write(p []byte) (int, error) {
	f.written = append(f.written, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakeStream) Read(p []byte) (int, error) {
	n := copy(p, f.inbox)
	f.inbox = f.inbox[n:]
	return n, nil
}

// hexSubpacket builds one "payload-hex CC" sub-packet for page, matching
// scenario 1's checksum rule (sum-mod-256 of the hex characters).
func hexSubpacket(page [pageSize]byte) []byte {
	hexText := []byte(bytesToHex(page[:]))
	sum := crc.AddSum8(hexText)
	return append(hexText, []byte(toHex2(sum))...)
}

func bytesToHex(b []byte) string {
	const digits = "0123456789ABCDEF"
	out := make([]byte, 0, len(b)*2)
	for _, c := range b {
		out = append(out, digits[c>>4], digits[c&0xF])
	}
	return string(out)
}

func toHex2(b byte) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{digits[b>>4], digits[b&0xF]})
}

func TestEnvelopeChecksumIsSumMod256(t *testing.T) {
	env := envelope("READ 00")
	want := crc.AddSum8([]byte("READ 00"))
	// env is "<READ 00*XX>\r\n"; XX is two hex chars just before '>'.
	gotHex := env[len(env)-5 : len(env)-3]
	wantHex := toHex2(want)
	if string(gotHex) != wantHex {
		t.Errorf("envelope checksum = %s, want %s", gotHex, wantHex)
	}
}

func TestReadHexSubpacketValid(t *testing.T) {
	var page [pageSize]byte
	for i := range page {
		page[i] = byte(i)
	}
	sub := hexSubpacket(page)
	s := &fakeStream{inbox: sub}
	raw, hexText, valid, err := readHexSubpacket(s)
	if err != nil {
		t.Fatalf("readHexSubpacket: %v", err)
	}
	if !valid {
		t.Fatal("expected a valid checksum")
	}
	if !bytes.Equal(raw, page[:]) {
		t.Errorf("decoded payload = % x, want % x", raw, page[:])
	}
	if len(hexText) != pageSize*2 {
		t.Errorf("hexText length = %d, want %d", len(hexText), pageSize*2)
	}
}

func TestReadHexSubpacketInvalidChecksum(t *testing.T) {
	var page [pageSize]byte
	sub := hexSubpacket(page)
	sub[len(sub)-1] ^= 0x01 // corrupt the checksum's low nibble char
	s := &fakeStream{inbox: sub}
	_, _, valid, err := readHexSubpacket(s)
	if err != nil {
		t.Fatalf("readHexSubpacket: %v", err)
	}
	if valid {
		t.Error("expected checksum validation to fail")
	}
}

// TestReadPageBothSubpacketsValidAndEqual exercises scenario 2's "accept
// the first if both checksums match and the payloads are equal" path.
func TestReadPageBothSubpacketsValidAndEqual(t *testing.T) {
	var page [pageSize]byte
	for i := range page {
		page[i] = byte(i * 3)
	}
	sub := hexSubpacket(page)

	f := &family{}
	sent := envelope("READ 00")
	stream := &fakeStream{inbox: append(append(append([]byte(nil), sent...), sub...), sub...)}
	d := &device.Device{Stream: stream}

	got, err := f.readPage(d, 0)
	if err != nil {
		t.Fatalf("readPage: %v", err)
	}
	if !bytes.Equal(got, page[:]) {
		t.Errorf("readPage = % x, want % x", got, page[:])
	}
}

// TestReadPageOnlySecondValid exercises scenario 2's "accept the one whose
// checksum matches if only one matches" path.
func TestReadPageOnlySecondValid(t *testing.T) {
	var page [pageSize]byte
	for i := range page {
		page[i] = byte(i + 1)
	}
	goodSub := hexSubpacket(page)
	badSub := append([]byte(nil), goodSub...)
	badSub[len(badSub)-1] ^= 0x01 // corrupt only the first sub-packet

	sent := envelope("READ 00")
	stream := &fakeStream{inbox: append(append(append([]byte(nil), sent...), badSub...), goodSub...)}
	d := &device.Device{Stream: stream}

	f := &family{}
	got, err := f.readPage(d, 0)
	if err != nil {
		t.Fatalf("readPage: %v", err)
	}
	if !bytes.Equal(got, page[:]) {
		t.Errorf("readPage = % x, want % x", got, page[:])
	}
}

// TestReadPageNeitherValid exercises scenario 2's "reject with Protocol if
// neither matches" path.
func TestReadPageNeitherValid(t *testing.T) {
	var page [pageSize]byte
	sub := hexSubpacket(page)
	bad1 := append([]byte(nil), sub...)
	bad1[len(bad1)-1] ^= 0x01
	bad2 := append([]byte(nil), sub...)
	bad2[len(bad2)-2] ^= 0x01

	sent := envelope("READ 00")
	stream := &fakeStream{inbox: append(append(append([]byte(nil), sent...), bad1...), bad2...)}
	d := &device.Device{Stream: stream}

	f := &family{}
	if _, err := f.readPage(d, 0); err == nil {
		t.Error("expected a Protocol error when neither sub-packet validates")
	}
}
