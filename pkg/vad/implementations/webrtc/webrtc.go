// Package webrtc provides a vad.Classifier backed by the WebRTC voice
// activity detector (libfvad).
package webrtc

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/josharian/fvad"
	"github.com/xaionaro-go/poise/pkg/audio/types"
	"github.com/xaionaro-go/poise/pkg/errkind"
	"github.com/xaionaro-go/poise/pkg/vad"
)

const (
	ModeQuality        = 0
	ModeLowBitrate     = 1
	ModeAggressive     = 2
	ModeVeryAggressive = 3
)

type Classifier struct {
	Locker     sync.Mutex
	Detector   *fvad.Detector
	SampleRate types.SampleRate
	Buffer     []int16
}

var _ vad.Classifier = (*Classifier)(nil)

func New(
	mode int,
	sampleRate types.SampleRate,
) (*Classifier, error) {
	switch sampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return nil, errkind.Configf("the WebRTC VAD does not support sample rate %d", sampleRate)
	}
	if mode < ModeQuality || mode > ModeVeryAggressive {
		return nil, errkind.Configf("invalid WebRTC VAD mode %d, expected 0..3", mode)
	}

	detector := fvad.New()
	if detector == nil {
		return nil, fmt.Errorf("unable to allocate a WebRTC VAD instance")
	}
	if err := detector.SetMode(mode); err != nil {
		return nil, fmt.Errorf("unable to set mode %d: %w", mode, err)
	}
	if err := detector.SetSampleRate(int(sampleRate)); err != nil {
		return nil, fmt.Errorf("unable to set sample rate %d: %w", sampleRate, err)
	}
	return &Classifier{
		Detector:   detector,
		SampleRate: sampleRate,
	}, nil
}

// SupportsFrameSize reports if frames of the given size are 10, 20 or 30 ms long.
func SupportsFrameSize(sampleRate types.SampleRate, frameSize int) bool {
	for _, ms := range []int{10, 20, 30} {
		if frameSize*1000 == ms*int(sampleRate) {
			return true
		}
	}
	return false
}

func (c *Classifier) IsSpeech(
	ctx context.Context,
	frame []float32,
) (bool, error) {
	if !SupportsFrameSize(c.SampleRate, len(frame)) {
		return false, fmt.Errorf("frames of %d samples at %dHz are not supported, expected 10, 20 or 30 ms", len(frame), c.SampleRate)
	}

	c.Locker.Lock()
	defer c.Locker.Unlock()
	if cap(c.Buffer) < len(frame) {
		c.Buffer = make([]int16, len(frame))
	}
	buf := c.Buffer[:len(frame)]
	for idx, v := range frame {
		buf[idx] = int16(math.Max(-1, math.Min(1, float64(v))) * math.MaxInt16)
	}
	return c.Detector.Process(buf)
}
