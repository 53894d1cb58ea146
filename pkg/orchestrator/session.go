package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/poise/pkg/audio/channelmix"
	"github.com/xaionaro-go/poise/pkg/audio/types"
	"github.com/xaionaro-go/poise/pkg/errkind"
	"github.com/xaionaro-go/poise/pkg/frameprocessor"
	"github.com/xaionaro-go/poise/pkg/ringbuffer"
)

// session is the state of one Start..Stop cycle. The ring buffers are
// the only values touched by more than one goroutine; the processor
// belongs to the processing goroutine (the worker or the render
// callback).
type session struct {
	orchestrator *Orchestrator
	processor    *frameprocessor.FrameProcessor
	cfg          *Config
	ctx          context.Context
	cancel       context.CancelFunc

	captureChannels types.Channel
	renderChannels  types.Channel

	inBuf  *ringbuffer.RingBuffer
	outBuf *ringbuffer.RingBuffer

	captureStream types.Stream
	renderStream  types.Stream
	workerDone    chan struct{}

	// owned by the capture callback
	captureMono []float32

	// owned by the render callback
	renderMono []float32

	// owned by the processing goroutine
	chunk             []float32
	lastPublish       time.Time
	reportedOverflow  uint64
	reportedUnderruns uint64

	stopping  atomic.Bool
	failed    atomic.Bool
	underruns atomic.Uint64
}

func newSession(
	ctx context.Context,
	o *Orchestrator,
	inBuf *ringbuffer.RingBuffer,
	captureChannels types.Channel,
	renderChannels types.Channel,
) *session {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &session{
		orchestrator:    o,
		processor:       o.processor,
		cfg:             &o.Config,
		ctx:             ctx,
		cancel:          cancel,
		captureChannels: captureChannels,
		renderChannels:  renderChannels,
		inBuf:           inBuf,
		chunk:           make([]float32, o.processor.InputChunkSize()),
	}
}

func (s *session) fail(err error) {
	if s.failed.Swap(true) {
		return
	}
	s.stopping.Store(true)
	s.orchestrator.fail(s.ctx, s, err)
}

func (s *session) closeStreams(ctx context.Context) {
	for _, stream := range []types.Stream{s.captureStream, s.renderStream} {
		if stream == nil {
			continue
		}
		if err := stream.Close(); err != nil {
			logger.Warnf(ctx, "unable to close a stream: %v", err)
		}
	}
	s.cancel()
}

// recoverCallback turns a panic within a driver callback into a session
// failure; the driver gets CallbackAbort and silence.
func (s *session) recoverCallback(result *types.CallbackResult, out []float32) {
	r := recover()
	if r == nil {
		return
	}
	clear(out)
	*result = types.CallbackAbort
	s.fail(errkind.Fatal(fmt.Errorf("panic in an audio callback: %v", r)))
}

// onCapture only downmixes and buffers: the capture callback never
// resamples or infers.
func (s *session) onCapture(samples []float32) (_ret types.CallbackResult) {
	defer s.recoverCallback(&_ret, nil)
	if s.stopping.Load() {
		return types.CallbackContinue
	}

	channels := int(s.captureChannels)
	frames := len(samples) / channels
	if cap(s.captureMono) < frames {
		s.captureMono = make([]float32, frames)
	}
	mono := s.captureMono[:frames]
	if err := channelmix.Downmix(s.captureChannels, mono, samples[:frames*channels]); err != nil {
		s.fail(errkind.Fatal(fmt.Errorf("unable to downmix the captured audio: %w", err)))
		return types.CallbackAbort
	}
	s.inBuf.Write(mono)
	return types.CallbackContinue
}

// onRender never waits for data: on underrun it renders silence.
func (s *session) onRender(out []float32) (_ret types.CallbackResult) {
	defer s.recoverCallback(&_ret, out)
	if s.stopping.Load() {
		clear(out)
		return types.CallbackContinue
	}

	channels := int(s.renderChannels)
	frames := len(out) / channels
	if s.cfg.Processing == ProcessingRender {
		if err := s.processPending(frames); err != nil {
			s.fail(err)
			clear(out)
			return types.CallbackAbort
		}
		s.publishStatsIfDue(s.ctx, time.Now())
	}

	if cap(s.renderMono) < frames {
		s.renderMono = make([]float32, frames)
	}
	mono := s.renderMono[:frames]
	if !s.outBuf.ReadInto(mono) {
		clear(out)
		s.underruns.Add(1)
		return types.CallbackContinue
	}
	if err := channelmix.Upmix(s.renderChannels, out[:frames*channels], mono); err != nil {
		s.fail(errkind.Fatal(fmt.Errorf("unable to upmix the rendered audio: %w", err)))
		clear(out)
		return types.CallbackAbort
	}
	clear(out[frames*channels:])
	return types.CallbackContinue
}

// processPending runs the processor until the output buffer holds at
// least need samples or the input runs dry.
func (s *session) processPending(need int) error {
	for s.outBuf.Available() < need {
		ok, err := s.processNext(s.ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	return nil
}

// processNext returns false if the input buffer lacks a whole chunk.
func (s *session) processNext(ctx context.Context) (bool, error) {
	if !s.inBuf.ReadInto(s.chunk) {
		return false, nil
	}
	out, err := s.processor.ProcessChunk(ctx, s.chunk)
	if err != nil {
		return false, err
	}
	if out != nil {
		s.outBuf.Write(out)
	}
	return true, nil
}

func (s *session) workerLoop(ctx context.Context) {
	logger.Debugf(ctx, "workerLoop")
	defer func() { logger.Debugf(ctx, "/workerLoop") }()
	defer close(s.workerDone)

	for {
		if ctx.Err() != nil {
			return
		}
		s.publishStatsIfDue(ctx, time.Now())

		ok, err := s.processNext(ctx)
		if err != nil {
			s.fail(err)
			return
		}
		if !ok {
			time.Sleep(s.cfg.IdleSleep)
		}
	}
}

func (s *session) snapshot() Stats {
	return Stats{
		State:                s.orchestrator.State(),
		Processor:            s.processor.Stats(),
		InputOverflowSamples: s.inBuf.Dropped(),
		RenderUnderruns:      s.underruns.Load(),
		InputFill:            s.inBuf.Available(),
		InputCapacity:        s.inBuf.Capacity(),
		OutputFill:           s.outBuf.Available(),
		OutputCapacity:       s.outBuf.Capacity(),
	}
}

func (s *session) publishStatsIfDue(ctx context.Context, now time.Time) {
	if now.Sub(s.lastPublish) < s.cfg.StatsInterval {
		return
	}
	s.publishStats(ctx, now)
}

// publishStats must be called only by the goroutine owning the processor.
func (s *session) publishStats(ctx context.Context, now time.Time) {
	s.lastPublish = now
	stats := s.snapshot()

	if delta := stats.InputOverflowSamples - s.reportedOverflow; delta > 0 {
		logger.Debugf(ctx, "dropped %d input samples since the last report", delta)
		s.cfg.Metrics.InputOverflow.Add(ctx, int64(delta))
		s.reportedOverflow = stats.InputOverflowSamples
	}
	if delta := stats.RenderUnderruns - s.reportedUnderruns; delta > 0 {
		logger.Debugf(ctx, "%d render underruns since the last report", delta)
		s.cfg.Metrics.RenderUnderruns.Add(ctx, int64(delta))
		s.reportedUnderruns = stats.RenderUnderruns
	}
	publish(s.orchestrator.statsCh, stats)
}
