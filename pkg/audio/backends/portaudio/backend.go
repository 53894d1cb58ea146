package portaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gordonklaus/portaudio"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/poise/pkg/audio/types"
)

// Backend serves both capture and render through PortAudio callbacks.
type Backend struct {
	locker      sync.Mutex
	initialized bool
}

var _ types.Backend = (*Backend)(nil)

func New() (*Backend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("unable to initialize PortAudio: %w", err)
	}
	return &Backend{
		initialized: true,
	}, nil
}

func (b *Backend) Close() error {
	b.locker.Lock()
	defer b.locker.Unlock()
	if !b.initialized {
		return nil
	}
	b.initialized = false
	return portaudio.Terminate()
}

func (*Backend) Ping(
	ctx context.Context,
) error {
	var mErr *multierror.Error
	if info, err := portaudio.DefaultInputDevice(); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf("unable to get the default input device: %w", err))
	} else {
		logger.Debugf(ctx, "default input device info: %#+v", info)
	}
	if info, err := portaudio.DefaultOutputDevice(); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf("unable to get the default output device: %w", err))
	} else {
		logger.Debugf(ctx, "default output device info: %#+v", info)
	}
	return mErr.ErrorOrNil()
}

func (b *Backend) OpenCapture(
	ctx context.Context,
	cfg types.StreamConfig,
	callback types.CaptureCallback,
) (_ types.Stream, _err error) {
	logger.Debugf(ctx, "OpenCapture: %#+v", cfg)
	defer func() { logger.Debugf(ctx, "/OpenCapture: %v", _err) }()

	device, err := b.lookupCaptureDevice(cfg.Device)
	if err != nil {
		return nil, err
	}

	s := &Stream{}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: int(cfg.Channels),
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.FramesPerBuffer,
	}
	s.PortAudioStream, err = portaudio.OpenStream(params, func(in []float32) {
		if s.isAborted() {
			return
		}
		if callback(in) == types.CallbackAbort {
			s.abortAsync(ctx)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open a capture stream on %q at %dHz/%dch: %w", device.Name, cfg.SampleRate, cfg.Channels, err)
	}
	return s, nil
}

func (b *Backend) OpenRender(
	ctx context.Context,
	cfg types.StreamConfig,
	callback types.RenderCallback,
) (_ types.Stream, _err error) {
	logger.Debugf(ctx, "OpenRender: %#+v", cfg)
	defer func() { logger.Debugf(ctx, "/OpenRender: %v", _err) }()

	device, err := b.lookupRenderDevice(cfg.Device)
	if err != nil {
		return nil, err
	}

	s := &Stream{}
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: int(cfg.Channels),
			Latency:  device.DefaultLowOutputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.FramesPerBuffer,
	}
	s.PortAudioStream, err = portaudio.OpenStream(params, func(out []float32) {
		if s.isAborted() {
			clear(out)
			return
		}
		if callback(out) == types.CallbackAbort {
			clear(out)
			s.abortAsync(ctx)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open a render stream on %q at %dHz/%dch: %w", device.Name, cfg.SampleRate, cfg.Channels, err)
	}
	return s, nil
}
