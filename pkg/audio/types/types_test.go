package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSamplesForDuration(t *testing.T) {
	assert.Equal(t, 4800, SampleRate(48000).SamplesForDuration(100*time.Millisecond))
	assert.Equal(t, 4410, SampleRate(44100).SamplesForDuration(100*time.Millisecond))
	assert.Equal(t, 480, SampleRate(48000).SamplesForDuration(10*time.Millisecond))
}

func TestLooksLikeLoopback(t *testing.T) {
	for _, name := range []string{
		"CABLE Output (VB-Audio Virtual Cable)",
		"Stereo Mix (Realtek Audio)",
		"Monitor of Built-in Audio Analog Stereo",
		"alsa_output.pci-0000_00_1f.3.analog-stereo.monitor",
		"Speakers [Loopback]",
	} {
		assert.True(t, LooksLikeLoopback(name), name)
	}
	assert.False(t, LooksLikeLoopback("Microphone (USB Audio)"))
}

func TestPCMFormatSize(t *testing.T) {
	assert.Equal(t, uint(4), PCMFormatFloat32LE.Size())
	assert.Equal(t, uint(3), PCMFormatS24LE.Size())
	assert.Equal(t, "f32le", PCMFormatFloat32LE.String())
}
