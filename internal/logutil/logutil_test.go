package logutil

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("shown", "merges", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "level=INFO")
	assert.Contains(t, out, "merges=3")
	assert.Contains(t, out, "source=logutil_test.go:")
}

func TestTrace(t *testing.T) {
	var buf bytes.Buffer

	old := slog.Default()
	t.Cleanup(func() { slog.SetDefault(old) })

	slog.SetDefault(NewLogger(&buf, slog.LevelInfo))
	Trace("quiet")
	assert.Empty(t, buf.String())

	slog.SetDefault(NewLogger(&buf, LevelTrace))
	Trace("loud", "id", 7)

	out := buf.String()
	assert.Contains(t, out, "level=TRACE")
	assert.Contains(t, out, "id=7")
	assert.Contains(t, out, "source=logutil_test.go:")
}
