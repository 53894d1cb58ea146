package pulseaudio

import (
	"context"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
	"github.com/xaionaro-go/poise/pkg/audio/types"
	"github.com/xaionaro-go/poise/pkg/errkind"
)

// Device IDs are PulseAudio source/sink names. A source named
// "<sink>.monitor" captures what is played on the sink.

const monitorSuffix = ".monitor"

func isMonitor(source *pulse.Source) bool {
	return strings.HasSuffix(source.ID(), monitorSuffix)
}

// channelCount reports 1 for an empty channel map.
func channelCount(channelMap proto.ChannelMap) types.Channel {
	channels := len(channelMap)
	if channels < 1 {
		channels = 1
	}
	return types.Channel(channels)
}

func sourceInfo(source *pulse.Source, role types.DeviceRole) types.DeviceInfo {
	return types.DeviceInfo{
		ID:         types.DeviceID(source.ID()),
		Name:       source.Name(),
		Role:       role,
		SampleRate: types.SampleRate(source.SampleRate()),
		Channels:   channelCount(source.Channels()),
		IsLoopback: isMonitor(source),
	}
}

func sinkInfo(sink *pulse.Sink) types.DeviceInfo {
	return types.DeviceInfo{
		ID:         types.DeviceID(sink.ID()),
		Name:       sink.Name(),
		Role:       types.DeviceRoleRender,
		SampleRate: types.SampleRate(sink.SampleRate()),
		Channels:   channelCount(sink.Channels()),
	}
}

func (b *Backend) Devices(
	ctx context.Context,
	role types.DeviceRole,
) ([]types.DeviceInfo, error) {
	var result []types.DeviceInfo
	switch role {
	case types.DeviceRoleCapture, types.DeviceRoleLoopback:
		sources, err := b.PulseClient.ListSources()
		if err != nil {
			return nil, fmt.Errorf("unable to list sources: %w", err)
		}
		for _, source := range sources {
			if role == types.DeviceRoleLoopback && !isMonitor(source) {
				continue
			}
			result = append(result, sourceInfo(source, role))
		}
	case types.DeviceRoleRender:
		sinks, err := b.PulseClient.ListSinks()
		if err != nil {
			return nil, fmt.Errorf("unable to list sinks: %w", err)
		}
		for _, sink := range sinks {
			result = append(result, sinkInfo(sink))
		}
	default:
		return nil, errkind.Configf("unsupported device role: %s", role)
	}
	return result, nil
}

func (b *Backend) LookupDevice(
	ctx context.Context,
	role types.DeviceRole,
	id types.DeviceID,
) (types.DeviceInfo, error) {
	switch role {
	case types.DeviceRoleCapture, types.DeviceRoleLoopback:
		source, err := b.source(role, id)
		if err != nil {
			return types.DeviceInfo{}, err
		}
		return sourceInfo(source, role), nil
	case types.DeviceRoleRender:
		sink, err := b.sink(id)
		if err != nil {
			return types.DeviceInfo{}, err
		}
		return sinkInfo(sink), nil
	default:
		return types.DeviceInfo{}, errkind.Configf("unsupported device role: %s", role)
	}
}

func (b *Backend) source(role types.DeviceRole, id types.DeviceID) (*pulse.Source, error) {
	if id != types.DeviceIDDefault {
		source, err := b.PulseClient.SourceByID(string(id))
		if err != nil {
			return nil, errkind.Config(fmt.Errorf("unable to find source %q: %w", id, err))
		}
		return source, nil
	}

	if role != types.DeviceRoleLoopback {
		source, err := b.PulseClient.DefaultSource()
		if err != nil {
			return nil, errkind.Config(fmt.Errorf("unable to get the default source: %w", err))
		}
		return source, nil
	}

	// the monitor of the default sink, otherwise any monitor
	if sink, err := b.PulseClient.DefaultSink(); err == nil {
		if source, err := b.PulseClient.SourceByID(sink.ID() + monitorSuffix); err == nil {
			return source, nil
		}
	}
	sources, err := b.PulseClient.ListSources()
	if err != nil {
		return nil, fmt.Errorf("unable to list sources: %w", err)
	}
	for _, source := range sources {
		if isMonitor(source) {
			return source, nil
		}
	}
	return nil, errkind.Configf("no monitor sources found")
}

func (b *Backend) sink(id types.DeviceID) (*pulse.Sink, error) {
	if id == types.DeviceIDDefault {
		sink, err := b.PulseClient.DefaultSink()
		if err != nil {
			return nil, errkind.Config(fmt.Errorf("unable to get the default sink: %w", err))
		}
		return sink, nil
	}
	sink, err := b.PulseClient.SinkByID(string(id))
	if err != nil {
		return nil, errkind.Config(fmt.Errorf("unable to find sink %q: %w", id, err))
	}
	return sink, nil
}

func (b *Backend) recordSourceOption(id types.DeviceID) (pulse.RecordOption, error) {
	source, err := b.source(types.DeviceRoleCapture, id)
	if err != nil {
		return nil, err
	}
	return pulse.RecordSource(source), nil
}
