// Package logx is the reactor's leveled logger: a thin, opinionated layer
// over logrus that produces the exact line format the specification's
// external-interfaces section pins down, plus a CHECK_INVARIANT-style
// fatal-assertion helper for the error-handling design's "broken
// invariants are fatal" rule.
package logx

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/sirupsen/logrus"
)

// Logger is safe for concurrent use (the reactor itself is single-threaded,
// but background helpers like the counters ticker and the signal handler
// log from their own goroutine).
type Logger struct {
	base *logrus.Logger
	min  Level
}

// New builds a Logger writing to out at the given minimum level. colorize
// should be true only when out is a terminal; main.go disables it whenever
// --log-file redirects to a regular file.
func New(out io.Writer, min Level, colorize bool) *Logger {
	base := logrus.New()
	base.SetOutput(out)
	base.SetLevel(logrus.TraceLevel)
	base.SetFormatter(&lineFormatter{colorize: colorize})
	return &Logger{base: base, min: min}
}

// Discard is a Logger that drops everything, used by tests that don't care
// about log output.
func Discard() *Logger {
	return New(io.Discard, CRIT+1, false)
}

func toLogrusLevel(l Level) logrus.Level {
	switch {
	case l <= DEBUG:
		return logrus.DebugLevel
	case l == INFO || l == NOTICE:
		return logrus.InfoLevel
	case l == WARN:
		return logrus.WarnLevel
	case l == ERROR:
		return logrus.ErrorLevel
	default:
		return logrus.FatalLevel
	}
}

func (l *Logger) log(lvl Level, msg string) {
	if lvl < l.min {
		return
	}
	entry := l.base.WithField("jklevel", lvl)
	entry.Log(toLogrusLevel(lvl), msg)
}

func (l *Logger) Tracef(format string, args ...any)  { l.log(TRACE, fmt.Sprintf(format, args...)) }
func (l *Logger) Debugf(format string, args ...any)  { l.log(DEBUG, fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)   { l.log(INFO, fmt.Sprintf(format, args...)) }
func (l *Logger) Noticef(format string, args ...any) { l.log(NOTICE, fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)   { l.log(WARN, fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any)  { l.log(ERROR, fmt.Sprintf(format, args...)) }

// Critf logs at CRIT (emitted through logrus at FatalLevel). It does not
// exit the process; Invariant does that itself after logging.
func (l *Logger) Critf(format string, args ...any) { l.log(CRIT, fmt.Sprintf(format, args...)) }

// Invariant is the Go analogue of the C source's CHECK_INVARIANT macro:
// when cond is false it logs at CRIT with the caller's function/file/line
// and aborts the process. It must never be used for environmental
// failures (ENOENT, ECONNRESET, ...) — only for programmer-error
// conditions the spec calls out as fatal (null-where-forbidden, bad tag,
// event owner mismatch, heap-pool out-of-bounds, write-queue corruption).
func (l *Logger) Invariant(cond bool, format string, args ...any) {
	if cond {
		return
	}
	pc, file, line, _ := runtime.Caller(1)
	fn := runtime.FuncForPC(pc)
	name := "unknown"
	if fn != nil {
		name = fn.Name()
	}
	msg := fmt.Sprintf(format, args...)
	l.Critf("invariant violated in %s (%s:%d): %s", name, file, line, msg)
	// Critf only logs (and a Discard logger drops the line), so the abort
	// happens here.
	os.Exit(1)
}
