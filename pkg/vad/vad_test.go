package vad

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/poise/pkg/errkind"
)

func constFrame(v float32) []float32 {
	r := make([]float32, 480)
	for idx := range r {
		r[idx] = v
	}
	return r
}

func newTestGate(t *testing.T, classifier Classifier) *Gate {
	g, err := NewGate(Config{
		ThresholdDB: DefaultThresholdDB,
		HangTime:    DefaultHangTime,
		SampleRate:  48000,
		FrameSize:   480,
		Classifier:  classifier,
	})
	require.NoError(t, err)
	return g
}

func TestHangFrames(t *testing.T) {
	g := newTestGate(t, nil)
	assert.Equal(t, 30, g.HangFrames())
}

func TestNewGateInvalid(t *testing.T) {
	_, err := NewGate(Config{SampleRate: 0, FrameSize: 480})
	assert.True(t, errkind.Is(err, errkind.KindConfig))
	_, err = NewGate(Config{SampleRate: 48000, FrameSize: 0})
	assert.True(t, errkind.Is(err, errkind.KindConfig))
}

func TestSilenceFromStart(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(t, nil)
	assert.False(t, g.IsSpeech(ctx, constFrame(0)), "no speech seen yet, so no hang")
}

func TestHangTime(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(t, nil)

	loud := constFrame(0.1)   // -20 dBFS
	quiet := constFrame(0.001) // -60 dBFS

	for i := 0; i < 5; i++ {
		require.True(t, g.IsSpeech(ctx, loud))
	}
	for i := 1; i < g.HangFrames(); i++ {
		require.True(t, g.IsSpeech(ctx, quiet), "silent frame %d is within the hang window", i)
	}
	assert.False(t, g.IsSpeech(ctx, quiet))
	assert.False(t, g.IsSpeech(ctx, quiet))

	// speech again resets the hang counter
	assert.True(t, g.IsSpeech(ctx, loud))
	assert.True(t, g.IsSpeech(ctx, quiet))

	stats := g.Stats()
	assert.Equal(t, uint64(5+29+2+2), stats.Total)
	assert.Equal(t, uint64(2), stats.Bypassed)
	assert.Equal(t, stats.Total-stats.Bypassed, stats.Active)
}

func TestBypassRatioApproachesOne(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(t, nil)
	for i := 0; i < 1000; i++ {
		g.IsSpeech(ctx, constFrame(0))
	}
	assert.Equal(t, 1.0, g.Stats().BypassRatio)
}

func TestSetThresholdKeepsCounters(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(t, nil)
	frame := constFrame(0.005) // about -46 dBFS

	assert.False(t, g.IsSpeech(ctx, frame))
	g.SetThreshold(-50)
	assert.True(t, g.IsSpeech(ctx, frame))
	assert.Equal(t, -50.0, g.ThresholdDB())

	stats := g.Stats()
	assert.Equal(t, uint64(2), stats.Total)
	assert.Equal(t, uint64(1), stats.Bypassed)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(t, nil)
	g.IsSpeech(ctx, constFrame(0.5))
	g.Reset()
	assert.Equal(t, Stats{}, g.Stats())
	assert.False(t, g.IsSpeech(ctx, constFrame(0)), "the hang window must not survive a reset")
}

type classifierFunc func(frame []float32) (bool, error)

func (f classifierFunc) IsSpeech(_ context.Context, frame []float32) (bool, error) {
	return f(frame)
}

func TestClassifier(t *testing.T) {
	ctx := context.Background()

	calls := 0
	g := newTestGate(t, classifierFunc(func([]float32) (bool, error) {
		calls++
		return false, nil
	}))
	assert.False(t, g.IsSpeech(ctx, constFrame(0.5)), "the classifier vetoes loud noise")
	assert.False(t, g.IsSpeech(ctx, constFrame(0)))
	assert.Equal(t, 1, calls, "quiet frames never reach the classifier")

	g = newTestGate(t, classifierFunc(func([]float32) (bool, error) {
		return false, errors.New("unsupported frame size")
	}))
	assert.True(t, g.IsSpeech(ctx, constFrame(0.5)), "classifier errors fall back to energy")
}
