// Package oto is a render-only backend over ebitengine/oto.
package oto

import (
	"context"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/poise/pkg/audio/types"
	"github.com/xaionaro-go/poise/pkg/errkind"
)

const DeviceIDDefault = types.DeviceID("oto:default")

type Backend struct{}

var _ types.RenderBackend = (*Backend)(nil)

func New() *Backend {
	return &Backend{}
}

func (*Backend) Close() error {
	return nil
}

func (*Backend) Ping(context.Context) error {
	// oto has no way to probe the device without creating the process context
	return nil
}

func defaultDevice() types.DeviceInfo {
	sampleRate, channels := contextFormat()
	return types.DeviceInfo{
		ID:         DeviceIDDefault,
		Name:       "default",
		Role:       types.DeviceRoleRender,
		SampleRate: sampleRate,
		Channels:   channels,
	}
}

func (*Backend) Devices(
	ctx context.Context,
	role types.DeviceRole,
) ([]types.DeviceInfo, error) {
	if role != types.DeviceRoleRender {
		return nil, nil
	}
	return []types.DeviceInfo{defaultDevice()}, nil
}

func (*Backend) LookupDevice(
	ctx context.Context,
	role types.DeviceRole,
	id types.DeviceID,
) (types.DeviceInfo, error) {
	if role != types.DeviceRoleRender {
		return types.DeviceInfo{}, errkind.Configf("the oto backend does not support role %s", role)
	}
	if id != types.DeviceIDDefault && id != DeviceIDDefault {
		return types.DeviceInfo{}, errkind.Configf("render device %q is not found, oto supports only the default device", id)
	}
	return defaultDevice(), nil
}

func (*Backend) OpenRender(
	ctx context.Context,
	cfg types.StreamConfig,
	callback types.RenderCallback,
) (_ types.Stream, _err error) {
	logger.Debugf(ctx, "OpenRender: %#+v", cfg)
	defer func() { logger.Debugf(ctx, "/OpenRender: %v", _err) }()

	if cfg.Device != types.DeviceIDDefault && cfg.Device != DeviceIDDefault {
		return nil, errkind.Configf("render device %q is not found, oto supports only the default device", cfg.Device)
	}

	bufferSize := BufferSize
	if cfg.FramesPerBuffer > 0 && cfg.SampleRate > 0 {
		bufferSize = time.Duration(cfg.FramesPerBuffer) * time.Second / time.Duration(cfg.SampleRate)
	}
	otoCtx, err := getOtoContext(cfg.SampleRate, cfg.Channels, bufferSize)
	if err != nil {
		return nil, err
	}

	reader := newRenderReader(ctx, callback)
	return newStream(otoCtx.NewPlayer(reader), reader), nil
}
