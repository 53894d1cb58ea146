package oto

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/xaionaro-go/poise/pkg/audio/types"
)

const (
	SampleRate = types.SampleRate(48000)
	Channels   = types.Channel(2)
	BufferSize = 20 * time.Millisecond
)

// oto allows only one context per process, so its format is fixed by
// the first stream opened.
var (
	otoCtxLocker     sync.Mutex
	otoCtx           *oto.Context
	otoCtxSampleRate types.SampleRate
	otoCtxChannels   types.Channel
)

func getOtoContext(
	sampleRate types.SampleRate,
	channels types.Channel,
	bufferSize time.Duration,
) (*oto.Context, error) {
	otoCtxLocker.Lock()
	defer otoCtxLocker.Unlock()

	if otoCtx != nil {
		if sampleRate != otoCtxSampleRate || channels != otoCtxChannels {
			return nil, fmt.Errorf(
				"the oto context is already initialized at %dHz/%dch, cannot reinitialize it at %dHz/%dch",
				otoCtxSampleRate, otoCtxChannels, sampleRate, channels,
			)
		}
		return otoCtx, nil
	}

	ctx, readyChan, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   int(sampleRate),
		ChannelCount: int(channels),
		Format:       oto.FormatFloat32LE,
		BufferSize:   bufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to initialize an oto context at %dHz/%dch: %w", sampleRate, channels, err)
	}
	<-readyChan

	otoCtx = ctx
	otoCtxSampleRate = sampleRate
	otoCtxChannels = channels
	return otoCtx, nil
}

// contextFormat returns the format of the process oto context, or the
// default one if it is not initialized yet.
func contextFormat() (types.SampleRate, types.Channel) {
	otoCtxLocker.Lock()
	defer otoCtxLocker.Unlock()
	if otoCtx == nil {
		return SampleRate, Channels
	}
	return otoCtxSampleRate, otoCtxChannels
}
