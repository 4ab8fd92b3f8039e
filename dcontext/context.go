// Package dcontext provides the process-wide Context: log level, log sink
// and a caller-supplied transport whitelist.
//
// Logging is built directly on the standard library "log" package rather
// than a third-party structured-logging library: nothing in the retrieved
// corpus (including the sibling go-ublk driver, whose internal/logging
// package this mirrors) reaches for one either — every example that logs at
// all wraps stdlib log with its own level ladder.
package dcontext

import (
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"sync"
)

// LogLevel is the ladder from none (silent) to all (packet-level trace).
type LogLevel int

const (
	LogNone LogLevel = iota
	LogError
	LogWarning
	LogInfo
	LogDebug
	LogAll
)

func (l LogLevel) String() string {
	switch l {
	case LogNone:
		return "none"
	case LogError:
		return "error"
	case LogWarning:
		return "warning"
	case LogInfo:
		return "info"
	case LogDebug:
		return "debug"
	case LogAll:
		return "all"
	default:
		return "unknown"
	}
}

// LogFunc receives one formatted log line already at or below the
// configured level. file/line/function identify the call site, matching
// libdivecomputer's dc_context_log signature.
type LogFunc func(level LogLevel, file string, line int, function string, msg string)

// Context is created once per process (or per independent session) and
// passed by reference to every Open call. It is safe for concurrent reads
// of its logging configuration but is not intended to be mutated
// concurrently with driver use.
type Context struct {
	mu        sync.RWMutex
	level     LogLevel
	logFunc   LogFunc
	stdlogger *log.Logger
	transports []string
}

// New creates a Context with logging disabled.
func New() *Context {
	return &Context{
		level:     LogNone,
		stdlogger: log.New(os.Stderr, "", log.LstdFlags),
	}
}

// SetLogLevel changes the verbosity threshold for future Log calls.
func (c *Context) SetLogLevel(level LogLevel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.level = level
}

// SetLogFunc installs a custom sink. Passing nil restores the default
// stderr sink built from the standard library logger.
func (c *Context) SetLogFunc(fn LogFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logFunc = fn
}

// SetOutput redirects the default sink's writer; has no effect once a
// custom LogFunc has been installed via SetLogFunc.
func (c *Context) SetOutput(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stdlogger = log.New(w, "", log.LstdFlags)
}

// SetTransports records the named transports ("serial", "usbhid", "ble")
// as the Context's whitelist; nil/empty clears it. The list is only stored
// and returned by Transports: descriptor.NewIterator does not consult it.
func (c *Context) SetTransports(names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transports = append(c.transports[:0], names...)
}

// Transports returns the configured transport whitelist.
func (c *Context) Transports() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.transports...)
}

// Log emits msg at level, skip frames up the stack from the caller of Log,
// if level is at or below the configured threshold.
func (c *Context) Log(level LogLevel, format string, args ...interface{}) {
	c.mu.RLock()
	threshold := c.level
	fn := c.logFunc
	std := c.stdlogger
	c.mu.RUnlock()

	if threshold == LogNone || level > threshold {
		return
	}
	msg := fmt.Sprintf(format, args...)
	file, line, function := callerInfo()
	if fn != nil {
		fn(level, file, line, function, msg)
		return
	}
	std.Printf("[%s] %s:%d %s: %s", level, file, line, function, msg)
}

func callerInfo() (file string, line int, function string) {
	pc, file, line, ok := runtime.Caller(2)
	if !ok {
		return "?", 0, "?"
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return file, line, "?"
	}
	return file, line, fn.Name()
}

// Close releases any resources owned by the Context. Currently a no-op
// placeholder kept for API parity with the language-neutral contract in
// spec.md §6 (context_free); Context owns nothing that needs releasing.
func (c *Context) Close() error {
	return nil
}
