// Package log provides structured logging with session context.
//
// Two logger variants are available:
//   - Logger: Non-sugared zap.Logger for the client core (structured fields)
//   - SugaredLogger: Printf-style logging for CLI surfaces
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed. A nil *Logger is
// valid and discards everything, so library code never has to nil-check.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/opcda/types"
)

// Mode selects where log entries go.
type Mode string

// Log modes.
const (
	ModeNone    Mode = "none"
	ModeConsole Mode = "console"
	ModeFile    Mode = "file"
	ModeBuffer  Mode = "buffer"
)

// ParseMode parses a mode name, case-insensitively. "" means none.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case "", ModeNone:
		return ModeNone, nil
	case ModeConsole, ModeFile, ModeBuffer:
		return m, nil
	default:
		return "", fmt.Errorf("invalid log mode: %q (must be none, console, file, or buffer)", s)
	}
}

// Logger provides structured logging with session context.
// All log entries include session identity fields.
type Logger struct {
	zap    *zap.Logger
	buf    *lineBuffer
	closer io.Closer
}

// SugaredLogger provides printf-style logging for CLI surfaces.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger creates a console logger with session context.
// Output defaults to os.Stderr.
func NewLogger(meta *types.SessionMeta) *Logger {
	return newLoggerWithWriter(meta, os.Stderr)
}

// New creates a logger for the given mode. path is required for ModeFile
// and ignored otherwise. Close the logger to release the file.
func New(meta *types.SessionMeta, mode Mode, path string) (*Logger, error) {
	switch mode {
	case ModeNone, "":
		return NewNop(), nil
	case ModeConsole:
		return NewLogger(meta), nil
	case ModeBuffer:
		buf := &lineBuffer{}
		l := newLoggerWithWriter(meta, buf)
		l.buf = buf
		return l, nil
	case ModeFile:
		if path == "" {
			return nil, fmt.Errorf("log mode file requires a log file path")
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l := newLoggerWithWriter(meta, f)
		l.closer = f
		return l, nil
	default:
		return nil, fmt.Errorf("invalid log mode: %q", mode)
	}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// WithOutput returns a new logger with a different output writer.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	if l == nil {
		return nil
	}
	core := newCore(w)
	return &Logger{zap: l.zap.WithOptions(zap.WrapCore(func(zapcore.Core) zapcore.Core { return core }))}
}

func newCore(w io.Writer) zapcore.Core {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	return zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		zapcore.DebugLevel,
	)
}

// newLoggerWithWriter creates a logger writing to the specified writer.
func newLoggerWithWriter(meta *types.SessionMeta, w io.Writer) *Logger {
	var contextFields []zap.Field
	if meta != nil {
		contextFields = append(contextFields, zap.String("session_id", meta.SessionID))
		if meta.Host != "" {
			contextFields = append(contextFields, zap.String("host", meta.Host))
		}
		if meta.Server != "" {
			contextFields = append(contextFields, zap.String("server", meta.Server))
		}
	}
	return &Logger{zap: zap.New(newCore(w)).With(contextFields...)}
}

// With returns a logger with extra context fields on every entry.
func (l *Logger) With(fields map[string]any) *Logger {
	if l == nil {
		return nil
	}
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	return &Logger{zap: l.zap.With(zf...), buf: l.buf, closer: l.closer}
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	if l == nil {
		return
	}
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	if l == nil {
		return
	}
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	if l == nil {
		return
	}
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	if l == nil {
		return
	}
	l.zap.Error(message, zap.Any("fields", fields))
}

// Drain returns and clears the buffered entries in ModeBuffer, one JSON
// line per entry. Other modes return nil.
func (l *Logger) Drain() []string {
	if l == nil || l.buf == nil {
		return nil
	}
	return l.buf.drain()
}

// Close flushes the logger and releases the log file in ModeFile.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	_ = l.zap.Sync()
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// Sugar returns a SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *SugaredLogger {
	if l == nil {
		return &SugaredLogger{sugar: zap.NewNop().Sugar()}
	}
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

// Debugf logs a debug message with printf-style formatting.
func (s *SugaredLogger) Debugf(template string, args ...any) {
	s.sugar.Debugf(template, args...)
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Infof(template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Warnf(template, args...)
}

// Errorf logs an error message with printf-style formatting.
func (s *SugaredLogger) Errorf(template string, args ...any) {
	s.sugar.Errorf(template, args...)
}

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}

// lineBuffer collects encoded entries in memory. zap writes one entry per
// Write call.
type lineBuffer struct {
	mu    sync.Mutex
	lines []string
}

func (b *lineBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	b.lines = append(b.lines, strings.TrimRight(string(p), "\n"))
	b.mu.Unlock()
	return len(p), nil
}

func (b *lineBuffer) drain() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.lines
	b.lines = nil
	return out
}
