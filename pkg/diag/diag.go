// Package diag is the diagnostic sink shared by the scanner and the
// compiler. It counts and formats errors the way the driver prints them
// (<program>: <message> [near line <n>]) and carries the optional verbose
// tracer used by the -v flag.
package diag

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Sink accumulates compile-time diagnostics. The scanner and compiler
// both report through the same interface so the driver has a single
// error count to act on; the interpreter returns a run-time error value
// instead.
type Sink struct {
	Program string    // name printed as the diagnostic prefix
	Out     io.Writer // usually os.Stderr
	Log     *zap.SugaredLogger

	count int
}

// New builds a Sink that writes formatted diagnostics to out and traces
// through log. log may be a no-op logger (zap.NewNop().Sugar()) when
// verbose tracing is off.
func New(program string, out io.Writer, log *zap.SugaredLogger) *Sink {
	return &Sink{Program: program, Out: out, Log: log}
}

// Errorf records a diagnostic at the given source line and prints it
// immediately, incrementing the error count. It never returns an error
// value itself: the compiler keeps parsing after an error, so the call
// site doesn't get to bail out via a returned error.
func (s *Sink) Errorf(line int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.count++
	if line > 0 {
		fmt.Fprintf(s.Out, "%s: %s [near line %d]\n", s.Program, msg, line)
	} else {
		fmt.Fprintf(s.Out, "%s: %s\n", s.Program, msg)
	}
}

// Count returns the number of diagnostics recorded so far.
func (s *Sink) Count() int { return s.count }

// Wrap attaches ctx to err using github.com/pkg/errors, preserving err's
// stack trace if it has none yet. Used at component boundaries (scanner ->
// compiler, compiler -> driver, driver -> VM) where the underlying cause
// should stay attached for a -v trace or a bug report.
func Wrap(err error, ctx string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, ctx)
}

// ExitCode caps the error count at 255 so it always fits a process exit
// status.
func (s *Sink) ExitCode() int {
	if s.count == 0 {
		return 0
	}
	if s.count > 255 {
		return 255
	}
	return s.count
}

// NewLogger builds a development-style console logger at the given
// level ("debug", "info", ...). An empty level disables tracing
// entirely and returns a no-op logger, so callers don't need to guard
// every trace call behind a verbose flag.
func NewLogger(level string) *zap.SugaredLogger {
	if level == "" {
		return zap.NewNop().Sugar()
	}
	var zapLevel zapcore.Level
	if err := zapLevel.Set(level); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), zap.NewAtomicLevelAt(zapLevel))
	return zap.New(core).Sugar()
}
