package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/poise/pkg/audio/types"
	"github.com/xaionaro-go/poise/pkg/errkind"
	"github.com/xaionaro-go/poise/pkg/metrics"
	"github.com/xaionaro-go/poise/pkg/ringbuffer"
)

func (o *Orchestrator) captureRole() types.DeviceRole {
	if o.Config.Loopback {
		return types.DeviceRoleLoopback
	}
	return types.DeviceRoleCapture
}

func (o *Orchestrator) open(ctx context.Context) (_ *session, _err error) {
	logger.Tracef(ctx, "open")
	defer func() { logger.Tracef(ctx, "/open: %v", _err) }()

	p := o.processor
	if err := p.Reset(ctx); err != nil {
		return nil, fmt.Errorf("unable to reset the frame processor: %w", err)
	}

	inDevice, err := o.capture.LookupDevice(ctx, o.captureRole(), o.Config.InputDevice)
	if err != nil {
		return nil, fmt.Errorf("unable to resolve the %s device %q: %w", o.captureRole(), o.Config.InputDevice, err)
	}
	if inDevice.SampleRate == 0 {
		return nil, errkind.Configf("the capture device %s reports no sample rate", inDevice)
	}
	if inDevice.Channels == 0 {
		inDevice.Channels = 1
	}
	logger.Debugf(ctx, "capture device: %s", inDevice)
	if err := p.SetupResampler(ctx, inDevice.SampleRate); err != nil {
		return nil, err
	}
	if err := p.SetupOutputResampler(ctx, p.Config.TargetSampleRate); err != nil {
		return nil, err
	}

	outDevice, err := o.render.LookupDevice(ctx, types.DeviceRoleRender, o.Config.OutputDevice)
	if err != nil {
		return nil, fmt.Errorf("unable to resolve the render device %q: %w", o.Config.OutputDevice, err)
	}
	logger.Debugf(ctx, "render device: %s", outDevice)

	renderChannels := types.Channel(1)
	if o.Config.StereoOutput && outDevice.Channels >= 2 {
		renderChannels = 2
	}

	inputCapacity := max(
		inDevice.SampleRate.SamplesForDuration(o.Config.InputBuffer),
		2*p.InputChunkSize(),
	)
	inBuf, err := ringbuffer.New(inputCapacity)
	if err != nil {
		return nil, errkind.Config(fmt.Errorf("unable to allocate the input buffer: %w", err))
	}

	s := newSession(ctx, o, inBuf, inDevice.Channels, renderChannels)

	s.renderStream, err = o.openRender(ctx, s, outDevice)
	if err != nil {
		s.cancel()
		return nil, err
	}

	s.captureStream, err = o.capture.OpenCapture(ctx, types.StreamConfig{
		Device:          inDevice.ID,
		SampleRate:      inDevice.SampleRate,
		Channels:        inDevice.Channels,
		FramesPerBuffer: max(1, o.Config.FramesPerBuffer*int(inDevice.SampleRate)/int(p.Config.TargetSampleRate)),
	}, s.onCapture)
	if err != nil {
		s.closeStreams(ctx)
		return nil, fmt.Errorf("unable to open the capture stream on %s: %w", inDevice, err)
	}

	if err := s.captureStream.Start(ctx); err != nil {
		s.closeStreams(ctx)
		return nil, fmt.Errorf("unable to start the capture stream: %w", err)
	}
	if err := s.renderStream.Start(ctx); err != nil {
		s.closeStreams(ctx)
		return nil, fmt.Errorf("unable to start the render stream: %w", err)
	}

	if o.Config.Processing == ProcessingWorker {
		s.workerDone = make(chan struct{})
		observability.Go(s.ctx, s.workerLoop)
	}
	logger.Infof(ctx, "the session is running: %s -> %s (%s processing)", inDevice, outDevice, o.Config.Processing)
	return s, nil
}

// openRender opens the render stream at the target rate, retrying with
// a growing delay, and then once at the device native rate.
func (o *Orchestrator) openRender(
	ctx context.Context,
	s *session,
	device types.DeviceInfo,
) (types.Stream, error) {
	target := o.processor.Config.TargetSampleRate
	retries := o.Config.RenderRetries
	delay := o.Config.RenderRetryDelay

	var mErr *multierror.Error
	for attempt := 1; attempt <= retries; attempt++ {
		stream, err := o.tryOpenRender(ctx, s, device, target)
		if err == nil {
			o.Config.Metrics.RecordRenderOpenAttempt(ctx, metrics.ResultSuccess)
			return stream, nil
		}
		o.Config.Metrics.RecordRenderOpenAttempt(ctx, metrics.ResultFailure)
		logger.Warnf(ctx, "unable to open the render stream at %dHz (attempt %d/%d): %v", target, attempt, retries, err)
		mErr = multierror.Append(mErr, fmt.Errorf("attempt %d at %dHz: %w", attempt, target, err))
		if attempt == retries {
			break
		}
		if err := o.sleep(ctx, delay); err != nil {
			mErr = multierror.Append(mErr, err)
			return nil, errkind.Transient(fmt.Errorf("render stream opening was interrupted: %w", mErr))
		}
		delay = time.Duration(float64(delay) * o.Config.RenderRetryBackoff)
	}

	fallback := device.SampleRate
	if fallback == 0 || fallback == target {
		return nil, errkind.Transient(fmt.Errorf("unable to open the render stream: %w", mErr))
	}

	logger.Infof(ctx, "falling back to the native sample rate %dHz of the render device %q", fallback, device.Name)
	stream, err := o.tryOpenRender(ctx, s, device, fallback)
	if err != nil {
		o.Config.Metrics.RecordRenderOpenAttempt(ctx, metrics.ResultFallbackFailure)
		mErr = multierror.Append(mErr, fmt.Errorf("fallback at %dHz: %w", fallback, err))
		return nil, errkind.Transient(fmt.Errorf("unable to open the render stream: %w", mErr))
	}
	if err := o.processor.SetupOutputResampler(ctx, fallback); err != nil {
		stream.Close()
		return nil, err
	}
	o.Config.Metrics.RecordRenderOpenAttempt(ctx, metrics.ResultFallbackSuccess)
	return stream, nil
}

func (o *Orchestrator) tryOpenRender(
	ctx context.Context,
	s *session,
	device types.DeviceInfo,
	rate types.SampleRate,
) (types.Stream, error) {
	target := o.processor.Config.TargetSampleRate
	outputFrameSize := o.processor.Config.FrameSize * int(rate) / int(target)
	outBuf, err := ringbuffer.New(max(
		rate.SamplesForDuration(o.Config.OutputBuffer),
		2*outputFrameSize,
	))
	if err != nil {
		return nil, errkind.Config(fmt.Errorf("unable to allocate the output buffer: %w", err))
	}
	s.outBuf = outBuf

	return o.render.OpenRender(ctx, types.StreamConfig{
		Device:          device.ID,
		SampleRate:      rate,
		Channels:        s.renderChannels,
		FramesPerBuffer: max(1, o.Config.FramesPerBuffer*int(rate)/int(target)),
	}, s.onRender)
}
