package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level   string
		enabled zapcore.Level
		quiet   zapcore.Level
	}{
		{level: "debug", enabled: zapcore.DebugLevel, quiet: zapcore.DebugLevel},
		{level: "info", enabled: zapcore.InfoLevel, quiet: zapcore.DebugLevel},
		{level: "warn", enabled: zapcore.WarnLevel, quiet: zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := New(tt.level)
			require.NoError(t, err)
			defer logger.Sync()

			assert.True(t, logger.Core().Enabled(tt.enabled))
			if tt.quiet < tt.enabled {
				assert.False(t, logger.Core().Enabled(tt.quiet))
			}
		})
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("chatty")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chatty")
}
