package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger implements Logger on a zap.SugaredLogger
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

var _ Logger = (*ZapLogger)(nil)

// NewZapLogger wraps an existing zap logger
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: logger.Sugar()}
}

// NewProductionZapLogger builds a JSON zap logger at level; debug selects
// the development encoder instead
func NewProductionZapLogger(level LogLevel, debug bool) (*ZapLogger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel(level))
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return NewZapLogger(logger), nil
}

func zapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	case LogLevelNone:
		return zapcore.FatalLevel + 1
	}
	return zapcore.InfoLevel
}

// Debug logs debug messages
func (l *ZapLogger) Debug(format string, v ...any) { l.sugar.Debugf(format, v...) }

// Info logs informational messages
func (l *ZapLogger) Info(format string, v ...any) { l.sugar.Infof(format, v...) }

// Warn logs warning messages
func (l *ZapLogger) Warn(format string, v ...any) { l.sugar.Warnf(format, v...) }

// Error logs error messages
func (l *ZapLogger) Error(format string, v ...any) { l.sugar.Errorf(format, v...) }

// Sync flushes buffered entries
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}
