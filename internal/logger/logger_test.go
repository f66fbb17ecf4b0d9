package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		mode    string
		verbose bool
		debug   bool
		info    bool
	}{
		{"production", false, false, true},
		{"production", true, true, true},
		{"development", false, false, true},
		{"", true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			log, err := New(tt.mode, tt.verbose)
			require.NoError(t, err)
			assert.Equal(t, tt.debug, log.Core().Enabled(zapcore.DebugLevel))
			assert.Equal(t, tt.info, log.Core().Enabled(zapcore.InfoLevel))
		})
	}

	_, err := New("syslog", false)
	assert.Error(t, err)
}
