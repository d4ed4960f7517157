// Package logging provides structured console and file logging for packt-dl.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures a Logger.
type Options struct {
	// Verbose enables debug messages.
	Verbose bool

	// Quiet drops everything below warn.
	Quiet bool

	// LogFile, when set, receives JSON lines through a rotating writer.
	LogFile string

	// Out is the console destination (default os.Stdout).
	Out io.Writer
}

// Logger wraps zerolog with a console writer and an optional rotating file.
type Logger struct {
	zlog   zerolog.Logger
	level  zerolog.Level
	output io.Writer // current console writer
	file   *lumberjack.Logger
	runID  string
}

// NewLogger creates a logger for the given options.
func NewLogger(opts Options) (*Logger, error) {
	out := opts.Out
	if out == nil {
		// stdout for logs, stderr is reserved for progress bars
		out = os.Stdout
	}

	level := zerolog.InfoLevel
	switch {
	case opts.Verbose:
		level = zerolog.DebugLevel
	case opts.Quiet:
		level = zerolog.WarnLevel
	}

	l := &Logger{
		level:  level,
		output: out,
		runID:  uuid.NewString(),
	}

	if opts.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(opts.LogFile), 0700); err != nil {
			return nil, err
		}
		l.file = &lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
	}

	l.rebuild()
	return l, nil
}

// NewDefaultCLILogger creates an info-level console logger.
func NewDefaultCLILogger() *Logger {
	l, _ := NewLogger(Options{})
	return l
}

// NewNopLogger discards everything. Used by tests and library callers that
// do not care about output.
func NewNopLogger() *Logger {
	return &Logger{zlog: zerolog.Nop(), level: zerolog.Disabled, output: io.Discard}
}

func (l *Logger) rebuild() {
	console := zerolog.ConsoleWriter{
		Out:        l.output,
		TimeFormat: "15:04:05",
	}

	var w io.Writer = console
	if l.file != nil {
		// The file always gets debug detail; the console honours the user's level.
		w = zerolog.MultiLevelWriter(
			&levelFilter{w: console, min: l.level},
			l.file,
		)
		l.zlog = zerolog.New(w).With().Timestamp().Str("run", l.runID).Logger()
		return
	}

	l.zlog = zerolog.New(w).Level(l.level).With().Timestamp().Logger()
}

// Info returns an info level event.
func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

// Error returns an error level event.
func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// Debug returns a debug level event.
func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

// Warn returns a warn level event.
func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

// With creates a child logger context with additional fields.
func (l *Logger) With() zerolog.Context {
	return l.zlog.With()
}

// SetOutput changes the console writer, e.g. to print above progress bars.
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
	l.rebuild()
}

// Output returns the current console writer.
func (l *Logger) Output() io.Writer {
	return l.output
}

// RunID identifies this process in the log file.
func (l *Logger) RunID() string {
	return l.runID
}

// IsVerbose reports whether debug messages reach the console.
func (l *Logger) IsVerbose() bool {
	return l.level <= zerolog.DebugLevel
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// levelFilter drops events below min before they reach the console.
type levelFilter struct {
	w   io.Writer
	min zerolog.Level
}

func (f *levelFilter) Write(p []byte) (int, error) {
	return f.w.Write(p)
}

func (f *levelFilter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < f.min {
		return len(p), nil
	}
	return f.w.Write(p)
}
