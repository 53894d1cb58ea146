package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/poise/pkg/errkind"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(&cfg))
}

func TestLoadFromReaderEmpty(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg, spew.Sdump(cfg))
}

func TestLoadFromReaderOverridesDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`
model:
  engine: passthrough
vad:
  threshold_db: -35
  hang_time: 150ms
backend:
  name: hybrid
  render_retry_delay: 250ms
devices:
  output: "3"
  stereo_output: false
`))
	require.NoError(t, err)

	assert.Equal(t, "passthrough", cfg.Model.Engine)
	assert.Equal(t, -35.0, cfg.VAD.ThresholdDB)
	assert.Equal(t, 150*time.Millisecond, cfg.VAD.HangTime)
	assert.Equal(t, BackendHybrid, cfg.Backend.Name)
	assert.Equal(t, 250*time.Millisecond, cfg.Backend.RenderRetryDelay)
	assert.Equal(t, "3", cfg.Devices.Output)
	assert.False(t, cfg.Devices.StereoOutput)

	// untouched keys keep their defaults
	assert.Equal(t, uint32(48000), cfg.SampleRate)
	assert.Equal(t, 45304, cfg.Model.StateSize)
	assert.Equal(t, 3, cfg.Backend.RenderRetries)
	assert.True(t, cfg.VAD.Enabled)
}

func TestLoadFromReaderUnknownKey(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("no_such_key: 1\n"))
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.KindConfig))
}

func TestValidateReportsEverything(t *testing.T) {
	cfg := Default()
	cfg.SampleRate = 0
	cfg.Backend.Name = "alsa"
	cfg.PostProcess.LimiterThreshold = 2
	cfg.Resampler.Quality = "cubic"

	err := Validate(&cfg)
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.KindConfig))
	for _, key := range []string{"sample_rate", "backend.name", "postprocess.limiter_threshold", "resampler.quality"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestValidateWebRTC(t *testing.T) {
	cfg := Default()
	cfg.VAD.Classifier = ClassifierWebRTC
	require.NoError(t, Validate(&cfg))

	cfg.VAD.WebRTCMode = 7
	assert.Error(t, Validate(&cfg))

	cfg.VAD.WebRTCMode = 2
	cfg.FrameSize = 256
	assert.Error(t, Validate(&cfg))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poise.yaml")
	require.NoError(t, os.WriteFile(path, []byte("frame_size: 960\n"), 0640))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 960, cfg.FrameSize)
	assert.Equal(t, 960, cfg.ONNX().FrameSize)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errkind.Is(err, errkind.KindConfig))
}
