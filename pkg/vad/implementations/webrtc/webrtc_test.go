package webrtc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/poise/pkg/errkind"
)

func TestSupportsFrameSize(t *testing.T) {
	assert.True(t, SupportsFrameSize(48000, 480))
	assert.True(t, SupportsFrameSize(48000, 960))
	assert.True(t, SupportsFrameSize(16000, 480))
	assert.False(t, SupportsFrameSize(48000, 512))
}

func TestNewInvalid(t *testing.T) {
	_, err := New(ModeAggressive, 44100)
	assert.True(t, errkind.Is(err, errkind.KindConfig))

	_, err = New(7, 48000)
	assert.True(t, errkind.Is(err, errkind.KindConfig))
}

func TestSilenceIsNotSpeech(t *testing.T) {
	c, err := New(ModeAggressive, 48000)
	require.NoError(t, err)

	isSpeech, err := c.IsSpeech(context.Background(), make([]float32, 480))
	require.NoError(t, err)
	assert.False(t, isSpeech)

	_, err = c.IsSpeech(context.Background(), make([]float32, 100))
	assert.Error(t, err)
}
