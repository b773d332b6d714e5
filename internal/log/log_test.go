package log

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevelFallsBackToInfo(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, parseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("not-a-level"))
	assert.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warn"))
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, 100, orDefault(0, 100))
	assert.Equal(t, 100, orDefault(-5, 100))
	assert.Equal(t, 7, orDefault(7, 100))
}

func TestNewAppliesConfiguredLevel(t *testing.T) {
	logger := New(Config{Level: "debug"})
	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
}
