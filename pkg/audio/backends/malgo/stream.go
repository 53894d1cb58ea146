package malgo

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gen2brain/malgo"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/poise/pkg/audio/pcm"
	"github.com/xaionaro-go/poise/pkg/audio/types"
)

type Stream struct {
	Device *malgo.Device

	ctx      context.Context
	channels int
	callback types.CaptureCallback
	samples  []float32

	locker  sync.Mutex
	aborted atomic.Bool
	closed  bool
}

var _ types.Stream = (*Stream)(nil)

func newStream(
	ctx context.Context,
	channels int,
	callback types.CaptureCallback,
) *Stream {
	return &Stream{
		ctx:      ctx,
		channels: channels,
		callback: callback,
	}
}

func (s *Stream) onData(_, input []byte, frameCount uint32) {
	if frameCount == 0 || s.aborted.Load() {
		return
	}
	n := int(frameCount) * s.channels
	if len(input) < n*4 {
		n = len(input) / 4
	}
	if cap(s.samples) < n {
		s.samples = make([]float32, n)
	}
	samples := s.samples[:n]
	if _, err := pcm.Decode(types.PCMFormatFloat32LE, samples, input[:n*4]); err != nil {
		logger.Errorf(s.ctx, "unable to decode captured samples: %v", err)
		return
	}
	if s.callback(samples) == types.CallbackAbort {
		s.abortAsync()
	}
}

// abortAsync stops the device from outside of the data callback:
// miniaudio does not allow stopping a device from its own callback.
func (s *Stream) abortAsync() {
	if s.aborted.Swap(true) {
		return
	}
	observability.Go(s.ctx, func(ctx context.Context) {
		s.locker.Lock()
		defer s.locker.Unlock()
		if s.closed {
			return
		}
		err := s.Device.Stop()
		logger.Debugf(ctx, "stopped the device on the callback request: %v", err)
	})
}

func (s *Stream) Start(ctx context.Context) error {
	s.locker.Lock()
	defer s.locker.Unlock()
	if s.closed {
		return fmt.Errorf("the stream is closed")
	}
	if err := s.Device.Start(); err != nil {
		return fmt.Errorf("unable to start the device: %w", err)
	}
	return nil
}

func (s *Stream) Stop(ctx context.Context) error {
	s.locker.Lock()
	defer s.locker.Unlock()
	if s.closed || !s.Device.IsStarted() {
		return nil
	}
	if err := s.Device.Stop(); err != nil {
		return fmt.Errorf("unable to stop the device: %w", err)
	}
	return nil
}

func (s *Stream) Close() error {
	s.locker.Lock()
	defer s.locker.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.Device.Uninit()
	return nil
}
