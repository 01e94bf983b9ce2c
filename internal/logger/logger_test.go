package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFor(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, levelFor("debug"))
	assert.Equal(t, slog.LevelWarn, levelFor(" WARN "))
	assert.Equal(t, slog.LevelError, levelFor("error"))

	// Unknown and empty names fall back to info.
	assert.Equal(t, slog.LevelInfo, levelFor(""))
	assert.Equal(t, slog.LevelInfo, levelFor("verbose"))
}
