package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	old := SetServiceName("ladder_bot_test")
	t.Cleanup(func() {
		SetServiceName(old)
		InfoLogger, FatalLogger = nil, nil
	})

	l, err := New("debug")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.NotNil(t, InfoLogger)
	assert.NotNil(t, FatalLogger)
	assert.NotPanics(t, func() { Info("hello %s", "world") })
}

func TestNewBadLevel(t *testing.T) {
	_, err := New("loud")
	assert.Error(t, err)
}

func TestInfoPanicsWithoutInit(t *testing.T) {
	InfoLogger = nil
	assert.Panics(t, func() { Info("x") })
}
