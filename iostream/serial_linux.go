package iostream

import (
	"syscall"
	"time"

	"github.com/daedaluz/divecomputer/internal/errs"
	"github.com/daedaluz/divecomputer/iostream/termios"
	"github.com/daedaluz/fdev/poll"
)

// Serial is the IoStream implementation for RS-232/USB-serial cradles,
// generalizing the teacher's serial.Port (raw-mode termios, TIOCM* line
// control, TCFLSH/TCXONC/TCSBRK ioctls) behind the transport-neutral
// IoStream contract.
type Serial struct {
	fd      int
	timeout time.Duration
	closed  bool
}

// OpenSerial opens path (e.g. "/dev/ttyUSB0") and immediately switches the
// line into raw mode, matching the family Open() requirement that the
// stream start in a known, echo-free state before the handshake begins.
func OpenSerial(path string) (*Serial, error) {
	fd, err := termios.Open(path)
	if err != nil {
		return nil, errs.New("open", errs.NoAccess, err)
	}
	attrs, err := termios.GetAttr(fd)
	if err != nil {
		syscall.Close(fd)
		return nil, errs.New("open", errs.IO, err)
	}
	attrs.MakeRaw()
	attrs.Cflag |= termios.CREAD | termios.CLOCAL
	attrs.SetSpeed(termios.B9600)
	if err := termios.SetAttr(fd, termios.TCSANOW, attrs); err != nil {
		syscall.Close(fd)
		return nil, errs.New("open", errs.IO, err)
	}
	return &Serial{fd: fd, timeout: -1}, nil
}

func (s *Serial) Transport() Transport { return TransportSerial }

func (s *Serial) SetTimeout(d time.Duration) error {
	s.timeout = d
	return nil
}

func (s *Serial) Configure(cfg SerialConfig) error {
	attrs, err := termios.GetAttr(s.fd)
	if err != nil {
		return errs.New("configure", errs.IO, err)
	}
	baud, ok := termios.BaudConstant(cfg.Baud)
	if !ok {
		return errs.New("configure", errs.InvalidArgs, nil)
	}
	attrs.SetSpeed(baud)

	attrs.Cflag &^= termios.CSIZE
	switch cfg.DataBits {
	case 5:
		attrs.Cflag |= termios.CS5
	case 6:
		attrs.Cflag |= termios.CS6
	case 7:
		attrs.Cflag |= termios.CS7
	case 0, 8:
		attrs.Cflag |= termios.CS8
	default:
		return errs.New("configure", errs.InvalidArgs, nil)
	}

	attrs.Cflag &^= termios.PARENB | termios.PARODD | termios.CMSPAR
	switch cfg.Parity {
	case ParityNone:
	case ParityOdd:
		attrs.Cflag |= termios.PARENB | termios.PARODD
	case ParityEven:
		attrs.Cflag |= termios.PARENB
	case ParityMark:
		attrs.Cflag |= termios.PARENB | termios.PARODD | termios.CMSPAR
	case ParitySpace:
		attrs.Cflag |= termios.PARENB | termios.CMSPAR
	default:
		return errs.New("configure", errs.InvalidArgs, nil)
	}

	switch cfg.StopBits {
	case 0, StopBits1:
		attrs.Cflag &^= termios.CSTOPB
	case StopBits2, StopBits15:
		attrs.Cflag |= termios.CSTOPB
	default:
		return errs.New("configure", errs.InvalidArgs, nil)
	}

	attrs.Iflag &^= termios.IXON | termios.IXOFF
	attrs.Cflag &^= termios.CRTSCTS
	switch cfg.Flow {
	case FlowNone:
	case FlowSoft:
		attrs.Iflag |= termios.IXON | termios.IXOFF
	case FlowHard:
		attrs.Cflag |= termios.CRTSCTS
	default:
		return errs.New("configure", errs.InvalidArgs, nil)
	}

	if err := termios.SetAttr(s.fd, termios.TCSANOW, attrs); err != nil {
		return errs.New("configure", errs.IO, err)
	}
	return nil
}

func (s *Serial) SetBreak(on bool) error {
	var err error
	if on {
		err = termios.SetBreak(s.fd)
	} else {
		err = termios.ClearBreak(s.fd)
	}
	if err != nil {
		return errs.New("set_break", errs.IO, err)
	}
	return nil
}

func (s *Serial) setModemLine(line termios.ModemLine, on bool) error {
	var err error
	if on {
		err = termios.EnableModemLines(s.fd, line)
	} else {
		err = termios.DisableModemLines(s.fd, line)
	}
	if err != nil {
		return errs.New("set_modem_line", errs.IO, err)
	}
	return nil
}

func (s *Serial) SetDTR(on bool) error { return s.setModemLine(termios.TIOCM_DTR, on) }
func (s *Serial) SetRTS(on bool) error { return s.setModemLine(termios.TIOCM_RTS, on) }

func (s *Serial) GetLines() (Lines, error) {
	m, err := termios.GetModemLines(s.fd)
	if err != nil {
		return 0, errs.New("get_lines", errs.IO, err)
	}
	var l Lines
	if m&termios.TIOCM_CAR != 0 {
		l |= LineDCD
	}
	if m&termios.TIOCM_CTS != 0 {
		l |= LineCTS
	}
	if m&termios.TIOCM_DSR != 0 {
		l |= LineDSR
	}
	if m&termios.TIOCM_RNG != 0 {
		l |= LineRNG
	}
	return l, nil
}

func (s *Serial) GetAvailable() (int, error) {
	var n int
	if err := ioctlFIONREAD(s.fd, &n); err != nil {
		return 0, errs.New("get_available", errs.IO, err)
	}
	return n, nil
}

func (s *Serial) Poll(timeout time.Duration) error {
	if err := poll.WaitInput(s.fd, timeout); err != nil {
		return errs.New("poll", errs.Timeout, err)
	}
	return nil
}

// Read implements the absolute-deadline retry-on-signal semantics from
// §4.1: a positive timeout is measured against a deadline captured once on
// entry, and an EINTR wakeup re-enters the wait with whatever budget
// remains rather than resetting the clock.
func (s *Serial) Read(p []byte) (int, error) {
	if s.closed {
		return 0, errs.New("read", errs.NoDevice, nil)
	}
	if s.timeout < 0 {
		n, err := syscall.Read(s.fd, p)
		if err != nil {
			return n, errs.New("read", errs.IO, err)
		}
		return n, nil
	}
	if s.timeout == 0 {
		n, err := syscall.Read(s.fd, p)
		if err == syscall.EAGAIN {
			return 0, errs.New("read", errs.Timeout, nil)
		}
		if err != nil {
			return n, errs.New("read", errs.IO, err)
		}
		return n, nil
	}
	deadline := time.Now().Add(s.timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, errs.New("read", errs.Timeout, nil)
		}
		if err := poll.WaitInput(s.fd, remaining); err != nil {
			if err == syscall.EINTR {
				continue
			}
			return 0, errs.New("read", errs.Timeout, err)
		}
		n, err := syscall.Read(s.fd, p)
		if err == syscall.EINTR {
			continue
		}
		if err != nil {
			return n, errs.New("read", errs.IO, err)
		}
		return n, nil
	}
}

// Write sends p and, matching the tcdrain-equivalent guarantee, blocks
// until the kernel has drained the output queue before returning.
func (s *Serial) Write(p []byte) (int, error) {
	if s.closed {
		return 0, errs.New("write", errs.NoDevice, nil)
	}
	n, err := syscall.Write(s.fd, p)
	if err != nil {
		return n, errs.New("write", errs.IO, err)
	}
	if err := termios.Drain(s.fd); err != nil {
		return n, errs.New("write", errs.IO, err)
	}
	return n, nil
}

func (s *Serial) Ioctl(request int, payload []byte) ([]byte, error) {
	return nil, unsupported("ioctl")
}

func (s *Serial) Flush(dir Direction) error {
	var q termios.Queue
	switch dir {
	case DirInput:
		q = termios.TCIFLUSH
	case DirOutput:
		q = termios.TCOFLUSH
	default:
		q = termios.TCIOFLUSH
	}
	if err := termios.FlowControl(s.fd, termios.TCOON); err != nil {
		return errs.New("flush", errs.IO, err)
	}
	if err := termios.FlushQueue(s.fd, q); err != nil {
		return errs.New("flush", errs.IO, err)
	}
	return nil
}

// Purge drops OS-buffered bytes in addition to emptying internal state;
// Serial has no internal read cache, so Purge is identical to Flush.
func (s *Serial) Purge(dir Direction) error {
	return s.Flush(dir)
}

func (s *Serial) Sleep(d time.Duration) error {
	time.Sleep(d)
	return nil
}

func (s *Serial) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := syscall.Close(s.fd); err != nil {
		return errs.New("close", errs.IO, err)
	}
	return nil
}
