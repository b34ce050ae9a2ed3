package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		level       zapcore.Level
		development bool
		enabled     []zapcore.Level
		disabled    []zapcore.Level
	}{
		{"production info", zapcore.InfoLevel, false, []zapcore.Level{zapcore.InfoLevel, zapcore.ErrorLevel}, []zapcore.Level{zapcore.DebugLevel}},
		{"development debug", zapcore.DebugLevel, true, []zapcore.Level{zapcore.DebugLevel}, nil},
		{"warn only", zapcore.WarnLevel, false, []zapcore.Level{zapcore.WarnLevel}, []zapcore.Level{zapcore.InfoLevel}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.level, tt.development)
			require.NoError(t, err)
			defer logger.Sync()

			for _, lvl := range tt.enabled {
				assert.True(t, logger.Core().Enabled(lvl), lvl.String())
			}
			for _, lvl := range tt.disabled {
				assert.False(t, logger.Core().Enabled(lvl), lvl.String())
			}
		})
	}
}

func TestMust(t *testing.T) {
	assert.NotPanics(t, func() { Must(zapcore.InfoLevel, true) })
}
