package oto

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/oto/v3"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/poise/pkg/audio/pcm"
	"github.com/xaionaro-go/poise/pkg/audio/types"
)

// renderReader is pulled by the oto player and fills every read through
// the render callback.
type renderReader struct {
	ctx      context.Context
	callback types.RenderCallback
	samples  []float32
	aborted  atomic.Bool
}

var _ io.Reader = (*renderReader)(nil)

func newRenderReader(
	ctx context.Context,
	callback types.RenderCallback,
) *renderReader {
	return &renderReader{
		ctx:      ctx,
		callback: callback,
	}
}

func (r *renderReader) Read(b []byte) (int, error) {
	if r.aborted.Load() {
		return 0, io.EOF
	}
	n := len(b) / 4
	if n == 0 {
		return 0, nil
	}
	if cap(r.samples) < n {
		r.samples = make([]float32, n)
	}
	samples := r.samples[:n]
	clear(samples)
	if r.callback(samples) == types.CallbackAbort {
		r.aborted.Store(true)
		return 0, io.EOF
	}
	if _, err := pcm.Encode(types.PCMFormatFloat32LE, b, samples); err != nil {
		logger.Errorf(r.ctx, "unable to encode samples: %v", err)
		return 0, io.EOF
	}
	return n * 4, nil
}

type Stream struct {
	Player *oto.Player
	reader *renderReader
	locker sync.Mutex
	closed bool
}

var _ types.Stream = (*Stream)(nil)

func newStream(player *oto.Player, reader *renderReader) *Stream {
	return &Stream{
		Player: player,
		reader: reader,
	}
}

func (s *Stream) Start(context.Context) error {
	s.locker.Lock()
	defer s.locker.Unlock()
	if s.closed {
		return fmt.Errorf("the stream is closed")
	}
	s.Player.Play()
	return nil
}

func (s *Stream) Stop(context.Context) error {
	s.locker.Lock()
	defer s.locker.Unlock()
	if s.closed {
		return nil
	}
	s.Player.Pause()
	return nil
}

func (s *Stream) Close() error {
	s.locker.Lock()
	defer s.locker.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.reader.aborted.Store(true)
	return s.Player.Close()
}
