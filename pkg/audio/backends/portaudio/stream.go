package portaudio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gordonklaus/portaudio"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/poise/pkg/audio/types"
)

type Stream struct {
	PortAudioStream *portaudio.Stream

	locker  sync.Mutex
	aborted atomic.Bool
	closed  bool
}

var _ types.Stream = (*Stream)(nil)

func (s *Stream) isAborted() bool {
	return s.aborted.Load()
}

// abortAsync is called from the driver callback, where PortAudio
// forbids calling Abort directly.
func (s *Stream) abortAsync(ctx context.Context) {
	if s.aborted.Swap(true) {
		return
	}
	observability.Go(ctx, func(ctx context.Context) {
		s.locker.Lock()
		defer s.locker.Unlock()
		if s.closed {
			return
		}
		err := s.PortAudioStream.Abort()
		logger.Debugf(ctx, "aborted the stream on the callback request: %v", err)
	})
}

func (s *Stream) Start(ctx context.Context) error {
	s.locker.Lock()
	defer s.locker.Unlock()
	if s.closed {
		return fmt.Errorf("the stream is closed")
	}
	if err := s.PortAudioStream.Start(); err != nil {
		return fmt.Errorf("unable to start the stream: %w", err)
	}
	return nil
}

func (s *Stream) Stop(ctx context.Context) error {
	s.locker.Lock()
	defer s.locker.Unlock()
	if s.closed || s.isAborted() {
		return nil
	}
	if err := s.PortAudioStream.Stop(); err != nil {
		return fmt.Errorf("unable to stop the stream: %w", err)
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
	return s.PortAudioStream.Close()
}
