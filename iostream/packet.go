package iostream

import (
	"time"

	"github.com/daedaluz/divecomputer/internal/errs"
)

// PacketStream decorates an IoStream enforcing a fixed maximum outbound
// packet size and an inbound read-cache of fixed size, per §4.1's "Packet
// adapter" contract. Writes larger than the configured size are split into
// multiple underlying writes; GetAvailable reports the cache before
// consulting the underlying stream; Purge(input) empties the cache without
// touching output.
type PacketStream struct {
	under     IoStream
	outSize   int
	inSize    int
	cache     []byte
}

// NewPacketStream wraps under, capping outbound writes at outSize bytes per
// underlying Write call and caching inbound reads inSize bytes at a time.
func NewPacketStream(under IoStream, outSize, inSize int) *PacketStream {
	return &PacketStream{under: under, outSize: outSize, inSize: inSize}
}

func (p *PacketStream) Transport() Transport { return p.under.Transport() }

func (p *PacketStream) SetTimeout(d time.Duration) error { return p.under.SetTimeout(d) }
func (p *PacketStream) Configure(cfg SerialConfig) error { return p.under.Configure(cfg) }
func (p *PacketStream) SetBreak(on bool) error           { return p.under.SetBreak(on) }
func (p *PacketStream) SetDTR(on bool) error             { return p.under.SetDTR(on) }
func (p *PacketStream) SetRTS(on bool) error             { return p.under.SetRTS(on) }
func (p *PacketStream) GetLines() (Lines, error)         { return p.under.GetLines() }

func (p *PacketStream) GetAvailable() (int, error) {
	if len(p.cache) > 0 {
		return len(p.cache), nil
	}
	return p.under.GetAvailable()
}

func (p *PacketStream) Poll(timeout time.Duration) error {
	if len(p.cache) > 0 {
		return nil
	}
	return p.under.Poll(timeout)
}

func (p *PacketStream) fill() error {
	if len(p.cache) > 0 {
		return nil
	}
	buf := make([]byte, p.inSize)
	n, err := p.under.Read(buf)
	if err != nil {
		return err
	}
	p.cache = buf[:n]
	return nil
}

func (p *PacketStream) Read(out []byte) (int, error) {
	if err := p.fill(); err != nil {
		return 0, err
	}
	n := copy(out, p.cache)
	p.cache = p.cache[n:]
	return n, nil
}

func (p *PacketStream) Write(data []byte) (int, error) {
	total := 0
	for len(data) > 0 {
		chunk := data
		if p.outSize > 0 && len(chunk) > p.outSize {
			chunk = chunk[:p.outSize]
		}
		n, err := p.under.Write(chunk)
		total += n
		if err != nil {
			return total, err
		}
		if n < len(chunk) {
			return total, errs.New("write", errs.IO, nil)
		}
		data = data[len(chunk):]
	}
	return total, nil
}

func (p *PacketStream) Ioctl(request int, payload []byte) ([]byte, error) {
	return p.under.Ioctl(request, payload)
}

func (p *PacketStream) Flush(dir Direction) error {
	if dir == DirInput || dir == DirBoth {
		p.cache = p.cache[:0]
	}
	return p.under.Flush(dir)
}

// Purge empties the read-cache for DirInput/DirBoth in addition to
// forwarding to the underlying stream's Purge, per the §4.1 contract.
func (p *PacketStream) Purge(dir Direction) error {
	if dir == DirInput || dir == DirBoth {
		p.cache = p.cache[:0]
	}
	return p.under.Purge(dir)
}

func (p *PacketStream) Sleep(d time.Duration) error { return p.under.Sleep(d) }
func (p *PacketStream) Close() error                { return p.under.Close() }
