//go:build !linux

package iostream

import (
	"time"

	"github.com/daedaluz/divecomputer/internal/errs"
)

// Serial is unavailable outside Linux in this module: the termios ioctl
// numbers the teacher's serial package hard-codes are Linux-specific, and
// no other OS backend was in scope for this port.
type Serial struct{}

func OpenSerial(path string) (*Serial, error) {
	return nil, errs.New("open", errs.Unsupported, nil)
}

func (s *Serial) Transport() Transport                       { return TransportSerial }
func (s *Serial) SetTimeout(d time.Duration) error            { return unsupported("set_timeout") }
func (s *Serial) Configure(cfg SerialConfig) error             { return unsupported("configure") }
func (s *Serial) SetBreak(on bool) error                       { return unsupported("set_break") }
func (s *Serial) SetDTR(on bool) error                         { return unsupported("set_dtr") }
func (s *Serial) SetRTS(on bool) error                         { return unsupported("set_rts") }
func (s *Serial) GetLines() (Lines, error)                     { return 0, unsupported("get_lines") }
func (s *Serial) GetAvailable() (int, error)                   { return 0, unsupported("get_available") }
func (s *Serial) Poll(timeout time.Duration) error             { return unsupported("poll") }
func (s *Serial) Read(p []byte) (int, error)                   { return 0, unsupported("read") }
func (s *Serial) Write(p []byte) (int, error)                  { return 0, unsupported("write") }
func (s *Serial) Ioctl(req int, payload []byte) ([]byte, error) { return nil, unsupported("ioctl") }
func (s *Serial) Flush(dir Direction) error                     { return unsupported("flush") }
func (s *Serial) Purge(dir Direction) error                     { return unsupported("purge") }
func (s *Serial) Sleep(d time.Duration) error                   { time.Sleep(d); return nil }
func (s *Serial) Close() error                                  { return nil }
