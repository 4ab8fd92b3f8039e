package iostream

import (
	"sync"
	"time"

	"github.com/daedaluz/divecomputer/internal/errs"
	"github.com/go-ble/ble"
)

// BLE wraps a connected GATT peer as an IoStream: writes go to the vendor
// write characteristic, notifications from the vendor notify
// characteristic are queued into an internal cache and served to Read one
// packet at a time, matching §4.1's note that BLE reads are
// packet/notification-quantized.
type BLE struct {
	client  ble.Client
	writeCh *ble.Characteristic
	notifCh *ble.Characteristic

	mu     sync.Mutex
	cache  []byte
	notify chan []byte

	timeout time.Duration
	closed  bool
}

// refcount mirrors the "one process-wide library-init per transport
// family" requirement from §5: every open increments it, every close
// decrements it.
var bleRefcount int32

// OpenBLE wraps an already-connected ble.Client and the two GATT
// characteristics a family uses for command write / notification read.
// Device discovery/connection is an OS-specific concern left to the host,
// per §2.
func OpenBLE(client ble.Client, writeUUID, notifyUUID ble.UUID) (*BLE, error) {
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		return nil, errs.New("open", errs.NoAccess, err)
	}
	var writeCh, notifCh *ble.Characteristic
	for _, svc := range profile.Services {
		for _, c := range svc.Characteristics {
			if c.UUID.Equal(writeUUID) {
				writeCh = c
			}
			if c.UUID.Equal(notifyUUID) {
				notifCh = c
			}
		}
	}
	if writeCh == nil || notifCh == nil {
		client.CancelConnection()
		return nil, errs.New("open", errs.NoDevice, nil)
	}

	b := &BLE{
		client:  client,
		writeCh: writeCh,
		notifCh: notifCh,
		notify:  make(chan []byte, 32),
		timeout: 5 * time.Second,
	}
	err = client.Subscribe(notifCh, false, func(data []byte) {
		cp := append([]byte(nil), data...)
		select {
		case b.notify <- cp:
		default:
		}
	})
	if err != nil {
		client.CancelConnection()
		return nil, errs.New("open", errs.IO, err)
	}
	bleRefcount++
	return b, nil
}

func (b *BLE) Transport() Transport { return TransportBLE }

func (b *BLE) SetTimeout(d time.Duration) error {
	b.timeout = d
	return nil
}

func (b *BLE) Configure(cfg SerialConfig) error { return unsupported("configure") }
func (b *BLE) SetBreak(on bool) error           { return unsupported("set_break") }
func (b *BLE) SetDTR(on bool) error             { return unsupported("set_dtr") }
func (b *BLE) SetRTS(on bool) error              { return unsupported("set_rts") }
func (b *BLE) GetLines() (Lines, error)          { return 0, unsupported("get_lines") }

func (b *BLE) GetAvailable() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.cache), nil
}

func (b *BLE) Poll(timeout time.Duration) error {
	b.mu.Lock()
	if len(b.cache) > 0 {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()
	select {
	case pkt := <-b.notify:
		b.mu.Lock()
		b.cache = append(b.cache, pkt...)
		b.mu.Unlock()
		return nil
	case <-time.After(timeout):
		return errs.New("poll", errs.Timeout, nil)
	}
}

func (b *BLE) Read(p []byte) (int, error) {
	if b.closed {
		return 0, errs.New("read", errs.NoDevice, nil)
	}
	b.mu.Lock()
	if len(b.cache) == 0 {
		b.mu.Unlock()
		if err := b.Poll(b.timeout); err != nil {
			return 0, err
		}
		b.mu.Lock()
	}
	n := copy(p, b.cache)
	b.cache = b.cache[n:]
	b.mu.Unlock()
	return n, nil
}

func (b *BLE) Write(p []byte) (int, error) {
	if b.closed {
		return 0, errs.New("write", errs.NoDevice, nil)
	}
	if err := b.client.WriteCharacteristic(b.writeCh, p, true); err != nil {
		return 0, errs.New("write", errs.IO, err)
	}
	return len(p), nil
}

// Ioctl forwards to a characteristic read of the notify characteristic
// (request==0) or a write-without-response of payload to the write
// characteristic (request==1), mirroring §4.1's "escape hatch for BLE
// characteristic read/write". No other characteristic can be addressed.
func (b *BLE) Ioctl(request int, payload []byte) ([]byte, error) {
	switch request {
	case 0:
		data, err := b.client.ReadCharacteristic(b.notifCh)
		if err != nil {
			return nil, errs.New("ioctl", errs.IO, err)
		}
		return data, nil
	case 1:
		if err := b.client.WriteCharacteristic(b.writeCh, payload, false); err != nil {
			return nil, errs.New("ioctl", errs.IO, err)
		}
		return nil, nil
	default:
		return nil, unsupported("ioctl")
	}
}

func (b *BLE) Flush(dir Direction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache = b.cache[:0]
	for {
		select {
		case <-b.notify:
		default:
			return nil
		}
	}
}

func (b *BLE) Purge(dir Direction) error {
	return b.Flush(dir)
}

func (b *BLE) Sleep(d time.Duration) error {
	time.Sleep(d)
	return nil
}

func (b *BLE) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	bleRefcount--
	if err := b.client.CancelConnection(); err != nil {
		return errs.New("close", errs.IO, err)
	}
	return nil
}
