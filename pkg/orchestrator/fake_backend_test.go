package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/xaionaro-go/poise/pkg/audio/types"
)

type fakeStream struct {
	started atomic.Bool
	stopped atomic.Bool
	closed  atomic.Bool
}

var _ types.Stream = (*fakeStream)(nil)

func (s *fakeStream) Start(context.Context) error {
	s.started.Store(true)
	return nil
}

func (s *fakeStream) Stop(context.Context) error {
	s.stopped.Store(true)
	return nil
}

func (s *fakeStream) Close() error {
	s.closed.Store(true)
	return nil
}

// fakeBackend lets the tests drive the capture and render callbacks
// the way an audio driver would.
type fakeBackend struct {
	locker sync.Mutex

	captureDevice types.DeviceInfo
	renderDevice  types.DeviceInfo
	renderErr     func(cfg types.StreamConfig) error

	captureConfigs []types.StreamConfig
	renderConfigs  []types.StreamConfig
	lookupRoles    []types.DeviceRole

	captureCallback types.CaptureCallback
	renderCallback  types.RenderCallback
	captureStream   *fakeStream
	renderStream    *fakeStream
}

var _ types.Backend = (*fakeBackend)(nil)

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		captureDevice: types.DeviceInfo{
			ID:         "mic",
			Name:       "Microphone",
			Role:       types.DeviceRoleCapture,
			SampleRate: 48000,
			Channels:   2,
		},
		renderDevice: types.DeviceInfo{
			ID:         "speakers",
			Name:       "Speakers",
			Role:       types.DeviceRoleRender,
			SampleRate: 48000,
			Channels:   2,
		},
	}
}

func (b *fakeBackend) Close() error               { return nil }
func (b *fakeBackend) Ping(context.Context) error { return nil }

func (b *fakeBackend) Devices(ctx context.Context, role types.DeviceRole) ([]types.DeviceInfo, error) {
	info, err := b.LookupDevice(ctx, role, types.DeviceIDDefault)
	if err != nil {
		return nil, err
	}
	return []types.DeviceInfo{info}, nil
}

func (b *fakeBackend) LookupDevice(_ context.Context, role types.DeviceRole, id types.DeviceID) (types.DeviceInfo, error) {
	b.locker.Lock()
	defer b.locker.Unlock()
	b.lookupRoles = append(b.lookupRoles, role)
	if role == types.DeviceRoleRender {
		return b.renderDevice, nil
	}
	if id != types.DeviceIDDefault && id != b.captureDevice.ID {
		return types.DeviceInfo{}, fmt.Errorf("no device %q", id)
	}
	return b.captureDevice, nil
}

func (b *fakeBackend) OpenCapture(_ context.Context, cfg types.StreamConfig, callback types.CaptureCallback) (types.Stream, error) {
	b.locker.Lock()
	defer b.locker.Unlock()
	b.captureConfigs = append(b.captureConfigs, cfg)
	b.captureCallback = callback
	b.captureStream = &fakeStream{}
	return b.captureStream, nil
}

func (b *fakeBackend) OpenRender(_ context.Context, cfg types.StreamConfig, callback types.RenderCallback) (types.Stream, error) {
	b.locker.Lock()
	defer b.locker.Unlock()
	b.renderConfigs = append(b.renderConfigs, cfg)
	if b.renderErr != nil {
		if err := b.renderErr(cfg); err != nil {
			return nil, err
		}
	}
	b.renderCallback = callback
	b.renderStream = &fakeStream{}
	return b.renderStream, nil
}

func (b *fakeBackend) capture(samples []float32) types.CallbackResult {
	b.locker.Lock()
	callback := b.captureCallback
	b.locker.Unlock()
	return callback(samples)
}

func (b *fakeBackend) render(samples []float32) types.CallbackResult {
	b.locker.Lock()
	callback := b.renderCallback
	b.locker.Unlock()
	return callback(samples)
}

func (b *fakeBackend) renderOpens() []types.StreamConfig {
	b.locker.Lock()
	defer b.locker.Unlock()
	return append([]types.StreamConfig{}, b.renderConfigs...)
}
