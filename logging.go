package ylisp

import (
	"log"
	"os"
)

// Logger is the runtime's leveled logging seam. None of the retrieved
// reference repos pull in a structured-logging library, so this stays
// on the standard library's log.Logger the way the teacher leaves
// diagnostics to plain stderr writes -- the interface exists so a host
// embedding the interpreter can swap in its own sink without the
// runtime caring what's on the other end.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// stdLogger is the default Logger, a thin level-prefixing wrapper
// around *log.Logger.
type stdLogger struct {
	*log.Logger
}

// NewStdLogger returns a Logger writing to stderr with a ylisp prefix,
// used whenever a host doesn't supply its own.
func NewStdLogger() Logger {
	return &stdLogger{log.New(os.Stderr, "ylisp: ", log.LstdFlags)}
}

func (l *stdLogger) Debugf(format string, args ...any) { l.Printf("DEBUG "+format, args...) }
func (l *stdLogger) Infof(format string, args ...any)  { l.Printf("INFO "+format, args...) }
func (l *stdLogger) Warnf(format string, args ...any)  { l.Printf("WARN "+format, args...) }
func (l *stdLogger) Errorf(format string, args ...any) { l.Printf("ERROR "+format, args...) }

// nopLogger discards everything, used by tests that don't want pool
// chatter in -v output.
type nopLogger struct{}

// NewNopLogger returns a Logger that discards every message.
func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}
