// Package malgo is a capture-only backend over miniaudio. It is the one
// able to capture the system output (WASAPI loopback), which makes it
// the capture half of the hybrid backend.
package malgo

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gen2brain/malgo"
	"github.com/xaionaro-go/poise/pkg/audio/types"
	"github.com/xaionaro-go/poise/pkg/errkind"
)

// DefaultSampleRate is reported for every device: miniaudio converts
// to whatever rate the stream is opened with.
const DefaultSampleRate = types.SampleRate(48000)

type Backend struct {
	locker   sync.Mutex
	MalgoCtx *malgo.AllocatedContext
}

var _ types.CaptureBackend = (*Backend)(nil)

func New() (*Backend, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize a malgo context: %w", err)
	}
	return &Backend{
		MalgoCtx: ctx,
	}, nil
}

func (b *Backend) Close() error {
	b.locker.Lock()
	defer b.locker.Unlock()
	if b.MalgoCtx == nil {
		return nil
	}
	err := b.MalgoCtx.Uninit()
	b.MalgoCtx.Free()
	b.MalgoCtx = nil
	return err
}

func (b *Backend) Ping(ctx context.Context) error {
	devices, err := b.MalgoCtx.Devices(malgo.Capture)
	if err != nil {
		return fmt.Errorf("unable to list capture devices: %w", err)
	}
	logger.Debugf(ctx, "malgo capture devices: %d", len(devices))
	return nil
}

func deviceType(role types.DeviceRole) (malgo.DeviceType, error) {
	switch role {
	case types.DeviceRoleCapture:
		return malgo.Capture, nil
	case types.DeviceRoleLoopback:
		// loopback captures from a playback device
		return malgo.Playback, nil
	default:
		return 0, errkind.Configf("the malgo backend does not support role %s", role)
	}
}

// Device IDs are "<role>:<hex of the miniaudio ID>", an empty hex part
// selects the default device of the role.
func encodeID(role types.DeviceRole, id *malgo.DeviceID) types.DeviceID {
	if id == nil {
		return types.DeviceID(role.String() + ":")
	}
	return types.DeviceID(role.String() + ":" + hex.EncodeToString(id[:]))
}

func decodeRole(id types.DeviceID) (types.DeviceRole, string, error) {
	roleStr, hexID, ok := strings.Cut(string(id), ":")
	if !ok {
		return types.DeviceRoleUndefined, "", errkind.Configf("invalid malgo device ID %q", id)
	}
	switch roleStr {
	case types.DeviceRoleCapture.String():
		return types.DeviceRoleCapture, hexID, nil
	case types.DeviceRoleLoopback.String():
		return types.DeviceRoleLoopback, hexID, nil
	}
	return types.DeviceRoleUndefined, "", errkind.Configf("invalid role in malgo device ID %q", id)
}

func (b *Backend) Devices(
	ctx context.Context,
	role types.DeviceRole,
) ([]types.DeviceInfo, error) {
	devType, err := deviceType(role)
	if err != nil {
		return nil, err
	}
	devices, err := b.MalgoCtx.Devices(devType)
	if err != nil {
		return nil, fmt.Errorf("unable to list %s devices: %w", role, err)
	}

	result := make([]types.DeviceInfo, 0, len(devices))
	for _, device := range devices {
		result = append(result, types.DeviceInfo{
			ID:         encodeID(role, &device.ID),
			Name:       device.Name(),
			Role:       role,
			SampleRate: DefaultSampleRate,
			Channels:   1,
			IsLoopback: role == types.DeviceRoleLoopback,
		})
	}
	return result, nil
}

func (b *Backend) LookupDevice(
	ctx context.Context,
	role types.DeviceRole,
	id types.DeviceID,
) (types.DeviceInfo, error) {
	devices, err := b.Devices(ctx, role)
	if err != nil {
		return types.DeviceInfo{}, err
	}
	if id == types.DeviceIDDefault || id == encodeID(role, nil) {
		return types.DeviceInfo{
			ID:         encodeID(role, nil),
			Name:       "default",
			Role:       role,
			SampleRate: DefaultSampleRate,
			Channels:   1,
			IsLoopback: role == types.DeviceRoleLoopback,
		}, nil
	}
	for _, device := range devices {
		if device.ID == id {
			return device, nil
		}
	}
	return types.DeviceInfo{}, errkind.Configf("%s device %q is not found", role, id)
}

func (b *Backend) findDeviceID(id types.DeviceID) (types.DeviceRole, *malgo.DeviceID, error) {
	if id == types.DeviceIDDefault {
		return types.DeviceRoleCapture, nil, nil
	}
	role, hexID, err := decodeRole(id)
	if err != nil {
		return role, nil, err
	}
	if hexID == "" {
		return role, nil, nil
	}
	devType, err := deviceType(role)
	if err != nil {
		return role, nil, err
	}
	devices, err := b.MalgoCtx.Devices(devType)
	if err != nil {
		return role, nil, fmt.Errorf("unable to list %s devices: %w", role, err)
	}
	for _, device := range devices {
		if encodeID(role, &device.ID) == id {
			devID := device.ID
			return role, &devID, nil
		}
	}
	return role, nil, errkind.Configf("%s device %q is not found", role, id)
}

// OpenCapture opens a loopback capture if the device ID was resolved
// for the loopback role, otherwise a regular capture.
func (b *Backend) OpenCapture(
	ctx context.Context,
	cfg types.StreamConfig,
	callback types.CaptureCallback,
) (_ types.Stream, _err error) {
	logger.Debugf(ctx, "OpenCapture: %#+v", cfg)
	defer func() { logger.Debugf(ctx, "/OpenCapture: %v", _err) }()

	b.locker.Lock()
	defer b.locker.Unlock()
	if b.MalgoCtx == nil {
		return nil, fmt.Errorf("the backend is closed")
	}

	role, devID, err := b.findDeviceID(cfg.Device)
	if err != nil {
		return nil, err
	}

	devType := malgo.Capture
	if role == types.DeviceRoleLoopback {
		devType = malgo.Loopback
	}
	deviceConfig := malgo.DefaultDeviceConfig(devType)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.FramesPerBuffer)
	deviceConfig.Alsa.NoMMap = 1
	if devID != nil {
		deviceConfig.Capture.DeviceID = devID.Pointer()
	}

	s := newStream(ctx, int(cfg.Channels), callback)
	s.Device, err = malgo.InitDevice(b.MalgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.onData,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to initialize a %s device at %dHz/%dch: %w", role, cfg.SampleRate, cfg.Channels, err)
	}
	return s, nil
}
