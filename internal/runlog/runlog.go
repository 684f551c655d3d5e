// Package runlog is the logging façade for qgate runs: structured JSON entries
// go to an optional per-run log file and key events are mirrored to the
// console with colored severity prefixes.
package runlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the console side of a Logger.
type Options struct {
	Console io.Writer
	Quiet   bool
	Verbose bool
	NoColor bool
}

type prefix struct {
	label string
	color *color.Color
}

// Logger writes every entry to the run log file (debug and above) and mirrors
// entries to the console according to quiet/verbose.
type Logger struct {
	mu      sync.Mutex
	console io.Writer
	quiet   bool
	verbose bool

	file   *zap.Logger
	closer io.Closer
	path   string
	phase  string

	pInfo, pWarn, pError, pOK, pPhase, pDebug prefix
}

// New creates a console-only logger. Call OpenFile to attach a run log.
func New(opts Options) *Logger {
	out := opts.Console
	if out == nil {
		out = os.Stderr
	}

	l := &Logger{
		console: out,
		quiet:   opts.Quiet,
		verbose: opts.Verbose && !opts.Quiet,
		file:    zap.NewNop(),
		pInfo:   prefix{"[INFO]", color.New(color.FgCyan)},
		pWarn:   prefix{"[WARN]", color.New(color.FgYellow)},
		pError:  prefix{"[ERROR]", color.New(color.FgRed)},
		pOK:     prefix{"[OK]", color.New(color.FgGreen)},
		pPhase:  prefix{"[PHASE]", color.New(color.FgMagenta, color.Bold)},
		pDebug:  prefix{"[DEBUG]", color.New(color.FgHiBlack)},
	}

	if opts.NoColor || color.NoColor {
		for _, p := range []*prefix{&l.pInfo, &l.pWarn, &l.pError, &l.pOK, &l.pPhase, &l.pDebug} {
			p.color.DisableColor()
		}
	}
	return l
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return New(Options{Console: io.Discard, NoColor: true})
}

// OpenFile attaches a JSON run log at path. Every entry carries run_id.
func (l *Logger) OpenFile(path, runID string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(f), zapcore.DebugLevel)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closer != nil {
		_ = l.file.Sync()
		_ = l.closer.Close()
	}
	l.file = zap.New(core).With(zap.String("run_id", runID))
	l.closer = f
	l.path = path
	return nil
}

// Path returns the attached log file, if any.
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// SetPhase tags subsequent file entries with phase.
func (l *Logger) SetPhase(phase string) {
	l.mu.Lock()
	l.phase = phase
	l.mu.Unlock()
}

// Quiet reports whether informational console output is suppressed.
func (l *Logger) Quiet() bool { return l.quiet }

// Verbose reports whether debug output reaches the console.
func (l *Logger) Verbose() bool { return l.verbose }

// Console returns the writer the logger mirrors to.
func (l *Logger) Console() io.Writer { return l.console }

func (l *Logger) write(level zapcore.Level, p prefix, show bool, msg string, fields []zap.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.phase != "" {
		fields = append(fields, zap.String("phase", l.phase))
	}
	if ce := l.file.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}

	if show {
		fmt.Fprintf(l.console, "%s %s\n", p.color.Sprint(p.label), msg)
	}
}

func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.write(zapcore.DebugLevel, l.pDebug, l.verbose, msg, fields)
}

func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.write(zapcore.InfoLevel, l.pInfo, !l.quiet, msg, fields)
}

// Success is logged at info level with an [OK] console prefix.
func (l *Logger) Success(msg string, fields ...zap.Field) {
	l.write(zapcore.InfoLevel, l.pOK, !l.quiet, msg, fields)
}

// Phase announces a state machine transition.
func (l *Logger) Phase(name string, fields ...zap.Field) {
	l.SetPhase(name)
	l.write(zapcore.InfoLevel, l.pPhase, !l.quiet, "Entering phase "+name, fields)
}

func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.write(zapcore.WarnLevel, l.pWarn, true, msg, fields)
}

func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.write(zapcore.ErrorLevel, l.pError, true, msg, fields)
}

// Close flushes and closes the run log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closer == nil {
		return nil
	}
	_ = l.file.Sync()
	err := l.closer.Close()
	l.closer = nil
	l.file = zap.NewNop()
	return err
}
