package pulseaudio

import (
	"context"
	"fmt"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/poise/pkg/audio/types"
)

const (
	ApplicationName = "poise"
	Latency         = 20 * time.Millisecond
)

// Backend serves capture (including sink monitors, i.e. loopback) and
// render over one PulseAudio (or PipeWire-pulse) connection.
type Backend struct {
	PulseClient *pulse.Client
}

var _ types.Backend = (*Backend)(nil)

func New() (*Backend, error) {
	c, err := pulse.NewClient(pulse.ClientApplicationName(ApplicationName))
	if err != nil {
		return nil, fmt.Errorf("unable to open a client to Pulse: %w", err)
	}
	return &Backend{
		PulseClient: c,
	}, nil
}

func (b *Backend) Close() error {
	b.PulseClient.Close()
	return nil
}

func (b *Backend) Ping(context.Context) error {
	if _, err := b.PulseClient.DefaultSink(); err != nil {
		return fmt.Errorf("unable to get the default sink: %w", err)
	}
	if _, err := b.PulseClient.DefaultSource(); err != nil {
		return fmt.Errorf("unable to get the default source: %w", err)
	}
	return nil
}

func channelMap(channels types.Channel) (proto.ChannelMap, error) {
	switch channels {
	case 1:
		return proto.ChannelMap{proto.ChannelMono}, nil
	case 2:
		return proto.ChannelMap{proto.ChannelLeft, proto.ChannelRight}, nil
	default:
		return nil, fmt.Errorf("do not know how to configure %d channels", channels)
	}
}

func (b *Backend) OpenCapture(
	ctx context.Context,
	cfg types.StreamConfig,
	callback types.CaptureCallback,
) (_ types.Stream, _err error) {
	logger.Debugf(ctx, "OpenCapture: %#+v", cfg)
	defer func() { logger.Debugf(ctx, "/OpenCapture: %v", _err) }()

	chanMap, err := channelMap(cfg.Channels)
	if err != nil {
		return nil, err
	}
	sourceOpt, err := b.recordSourceOption(cfg.Device)
	if err != nil {
		return nil, err
	}

	s := &Stream{Client: b.PulseClient}
	w := newCaptureWriter(ctx, callback, s.abort)
	s.bytesCounter = datacounter.NewWriterCounter(w)

	s.RecordStream, err = b.PulseClient.NewRecord(
		pulseWriter{Writer: s.bytesCounter},
		sourceOpt,
		pulse.RecordSampleRate(int(cfg.SampleRate)),
		pulse.RecordChannels(chanMap),
		pulse.RecordLatency(Latency.Seconds()),
		pulse.RecordMediaName("poise capture"),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize a record stream at %dHz/%dch: %w", cfg.SampleRate, cfg.Channels, err)
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

	chanMap, err := channelMap(cfg.Channels)
	if err != nil {
		return nil, err
	}
	sink, err := b.sink(cfg.Device)
	if err != nil {
		return nil, err
	}

	s := &Stream{Client: b.PulseClient}
	s.PlaybackStream, err = b.PulseClient.NewPlayback(
		newRenderReader(ctx, callback, s.abort),
		pulse.PlaybackSink(sink),
		pulse.PlaybackSampleRate(int(cfg.SampleRate)),
		pulse.PlaybackChannels(chanMap),
		pulse.PlaybackLatency(Latency.Seconds()),
		pulse.PlaybackMediaName("poise render"),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize a playback stream at %dHz/%dch: %w", cfg.SampleRate, cfg.Channels, err)
	}
	return s, nil
}
