// Package rlog wires the transport core's internal diagnostics (pipeline
// tail drops, leak detector reports, poll errors, registry scavenging) to
// a real structured-logging stack: github.com/joeycumines/logiface as the
// façade, github.com/joeycumines/stumpy as its JSON backend.
//
// The teacher (go-eventloop) declares logiface as a go.mod dependency but
// never actually calls into it — its hand-rolled logging.go ships its own
// Logger interface instead. This package finishes that wiring rather than
// repeating the unused dependency.
package rlog

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the diagnostic sink used throughout nettle. The zero value is
// not usable; obtain one via New or use Default.
type Logger struct {
	l *logiface.Logger[*stumpy.Event]
}

// New builds a Logger writing newline-delimited JSON to w at the given
// minimum level (see logiface.Level* constants).
func New(w io.Writer, level logiface.Level) *Logger {
	return &Logger{
		l: logiface.New[*stumpy.Event](
			stumpy.WithStumpy(stumpy.WithWriter(w)),
			logiface.WithLevel[*stumpy.Event](level),
		),
	}
}

// NewNoop returns a Logger that discards everything. It is cheap: the
// underlying logiface.Logger still exists but canWrite()==false short
// circuits event construction, matching the teacher's "package-level no-op
// default so the library stays silent until a caller opts in" stance.
func NewNoop() *Logger {
	return New(io.Discard, logiface.LevelEmergency-1)
}

func (l *Logger) Warn(msg string) {
	if l == nil || l.l == nil {
		return
	}
	l.l.Warning().Log(msg)
}

func (l *Logger) Error(msg string, err error) {
	if l == nil || l.l == nil {
		return
	}
	b := l.l.Err().Err(err)
	b.Log(msg)
}

func (l *Logger) Info(msg string) {
	if l == nil || l.l == nil {
		return
	}
	l.l.Info().Log(msg)
}

func (l *Logger) Debug(msg string) {
	if l == nil || l.l == nil {
		return
	}
	l.l.Debug().Log(msg)
}

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(NewNoop())
}

// Default returns the process-wide diagnostic logger. It starts as a noop
// sink; call SetDefault to redirect it, e.g. to stderr JSON:
//
//	rlog.SetDefault(rlog.New(os.Stderr, logiface.LevelInformational))
func Default() *Logger {
	return defaultLogger.Load()
}

// SetDefault replaces the process-wide diagnostic logger.
func SetDefault(l *Logger) {
	if l == nil {
		l = NewNoop()
	}
	defaultLogger.Store(l)
}

// StderrLevel is a small helper mirroring the teacher's global-logger
// convenience (logging.go's SetStructuredLogger) without reintroducing its
// hand-rolled Logger interface.
func StderrLevel(level logiface.Level) {
	SetDefault(New(os.Stderr, level))
}
