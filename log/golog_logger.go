package log

import (
	"github.com/kataras/golog"
)

// gologLevels maps LogLevel to the level names golog understands
var gologLevels = map[LogLevel]string{
	LogLevelDebug: "debug",
	LogLevelInfo:  "info",
	LogLevelWarn:  "warn",
	LogLevelError: "error",
	LogLevelNone:  "disable",
}

// GologLogger implements Logger on top of kataras/golog, which adds
// colored level tags and timestamps to every line
type GologLogger struct {
	logger *golog.Logger
	level  LogLevel
}

var _ Logger = (*GologLogger)(nil)

// NewGologLogger wraps an existing golog.Logger at info level. The level of
// the wrapped logger is left untouched until SetLevel is called.
func NewGologLogger(logger *golog.Logger) *GologLogger {
	return &GologLogger{logger: logger, level: LogLevelInfo}
}

// NewGolog creates a golog-backed logger with the graphrag prefix at level
func NewGolog(level LogLevel) *GologLogger {
	g := golog.New()
	g.SetPrefix("[graphrag] ")
	l := NewGologLogger(g)
	l.SetLevel(level)
	return l
}

func (l *GologLogger) logf(level LogLevel, emit func(string, ...any), format string, v []any) {
	if l.level <= level {
		emit(format, v...)
	}
}

// Debug logs debug messages
func (l *GologLogger) Debug(format string, v ...any) {
	l.logf(LogLevelDebug, l.logger.Debugf, format, v)
}

// Info logs informational messages
func (l *GologLogger) Info(format string, v ...any) {
	l.logf(LogLevelInfo, l.logger.Infof, format, v)
}

// Warn logs warning messages
func (l *GologLogger) Warn(format string, v ...any) {
	l.logf(LogLevelWarn, l.logger.Warnf, format, v)
}

// Error logs error messages
func (l *GologLogger) Error(format string, v ...any) {
	l.logf(LogLevelError, l.logger.Errorf, format, v)
}

// SetLevel sets the level of this logger and of the wrapped golog logger
func (l *GologLogger) SetLevel(level LogLevel) {
	l.level = level
	name, ok := gologLevels[level]
	if !ok {
		name = "info"
	}
	l.logger.SetLevel(name)
}

// GetLevel returns the current log level
func (l *GologLogger) GetLevel() LogLevel {
	return l.level
}
