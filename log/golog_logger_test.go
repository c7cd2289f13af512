package log

import (
	"bytes"
	"testing"

	"github.com/kataras/golog"
	"github.com/stretchr/testify/assert"
)

func captured(level LogLevel) (*GologLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	g := golog.New()
	g.SetOutput(&buf)
	g.SetTimeFormat("")
	l := NewGologLogger(g)
	l.SetLevel(level)
	return l, &buf
}

func TestGologLogger_Defaults(t *testing.T) {
	var _ Logger = (*GologLogger)(nil)

	logger := NewGologLogger(golog.New())
	assert.Equal(t, LogLevelInfo, logger.GetLevel())
}

func TestGologLogger_Formats(t *testing.T) {
	logger, buf := captured(LogLevelDebug)

	logger.Debug("chunk %s extracted", "c-1")
	logger.Info("batch %d done", 3)

	out := buf.String()
	assert.Contains(t, out, "chunk c-1 extracted")
	assert.Contains(t, out, "batch 3 done")
}

func TestGologLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		level   LogLevel
		visible []string
		hidden  []string
	}{
		{LogLevelWarn, []string{"warn-line", "error-line"}, []string{"debug-line", "info-line"}},
		{LogLevelError, []string{"error-line"}, []string{"info-line", "warn-line"}},
		{LogLevelNone, nil, []string{"debug-line", "info-line", "warn-line", "error-line"}},
	}
	for _, tt := range tests {
		logger, buf := captured(tt.level)
		assert.Equal(t, tt.level, logger.GetLevel())

		logger.Debug("debug-line")
		logger.Info("info-line")
		logger.Warn("warn-line")
		logger.Error("error-line")

		out := buf.String()
		for _, s := range tt.visible {
			assert.Contains(t, out, s, "level %d", tt.level)
		}
		for _, s := range tt.hidden {
			assert.NotContains(t, out, s, "level %d", tt.level)
		}
	}
}

func TestNewGolog(t *testing.T) {
	logger := NewGolog(LogLevelWarn)
	assert.Equal(t, LogLevelWarn, logger.GetLevel())

	var buf bytes.Buffer
	logger.logger.SetOutput(&buf)
	logger.Warn("retry %d of %d", 1, 3)
	assert.Contains(t, buf.String(), "[graphrag] ")
	assert.Contains(t, buf.String(), "retry 1 of 3")
}
