package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	l, err := New("warn", true)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.InfoLevel))
	assert.True(t, l.Core().Enabled(zap.ErrorLevel))

	l, err = New("debug", false)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.DebugLevel))

	_, err = New("loud", true)
	assert.Error(t, err)
}
