package pulseaudio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/jfreymuth/pulse"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/poise/pkg/audio/types"
)

// Stream is either a record or a playback stream on a shared client.
type Stream struct {
	*pulse.Client
	RecordStream   *pulse.RecordStream
	PlaybackStream *pulse.PlaybackStream

	bytesCounter *datacounter.WriterCounter

	locker  sync.Mutex
	aborted atomic.Bool
	closed  bool
}

var _ types.Stream = (*Stream)(nil)

// abort is invoked from the Pulse goroutine, the stream is only
// marked and stopped later by the owner.
func (s *Stream) abort() {
	s.aborted.Store(true)
}

func (s *Stream) Start(ctx context.Context) error {
	s.locker.Lock()
	defer s.locker.Unlock()
	if s.closed {
		return fmt.Errorf("the stream is closed")
	}
	switch {
	case s.RecordStream != nil:
		s.RecordStream.Start()
		if err := s.RecordStream.Error(); err != nil {
			return fmt.Errorf("an error occurred during recording: %w", err)
		}
	case s.PlaybackStream != nil:
		s.PlaybackStream.Start()
		if err := s.PlaybackStream.Error(); err != nil {
			return fmt.Errorf("an error occurred during playback: %w", err)
		}
	}
	return nil
}

func (s *Stream) Stop(ctx context.Context) error {
	s.locker.Lock()
	defer s.locker.Unlock()
	if s.closed {
		return nil
	}
	if s.aborted.Load() {
		logger.Debugf(ctx, "the stream was aborted by the callback")
	}
	switch {
	case s.RecordStream != nil:
		s.RecordStream.Stop()
		logger.Debugf(ctx, "captured %d bytes", s.bytesCounter.Count())
		return s.RecordStream.Error()
	case s.PlaybackStream != nil:
		s.PlaybackStream.Stop()
		if s.PlaybackStream.Underflow() {
			logger.Debugf(ctx, "the playback had an underflow")
		}
		return s.PlaybackStream.Error()
	}
	return nil
}

func (s *Stream) Close() (err error) {
	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("got a panic: %v", r)
		}
	}()
	s.locker.Lock()
	defer s.locker.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	switch {
	case s.RecordStream != nil:
		s.RecordStream.Close()
	case s.PlaybackStream != nil:
		s.PlaybackStream.Close()
	}
	return
}
