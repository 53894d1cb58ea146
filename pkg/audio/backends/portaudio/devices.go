package portaudio

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gordonklaus/portaudio"
	"github.com/xaionaro-go/poise/pkg/audio/types"
	"github.com/xaionaro-go/poise/pkg/errkind"
)

// Device IDs are indexes in portaudio.Devices().

func deviceInfo(idx int, device *portaudio.DeviceInfo, role types.DeviceRole) types.DeviceInfo {
	channels := device.MaxInputChannels
	if role == types.DeviceRoleRender {
		channels = device.MaxOutputChannels
	}
	if channels < 1 {
		channels = 1
	}
	return types.DeviceInfo{
		ID:         types.DeviceID(strconv.Itoa(idx)),
		Name:       device.Name,
		Role:       role,
		SampleRate: types.SampleRate(device.DefaultSampleRate),
		Channels:   types.Channel(channels),
		IsLoopback: types.LooksLikeLoopback(device.Name),
	}
}

func matchesRole(device *portaudio.DeviceInfo, role types.DeviceRole) bool {
	switch role {
	case types.DeviceRoleCapture:
		return device.MaxInputChannels > 0
	case types.DeviceRoleLoopback:
		return device.MaxInputChannels > 0 && types.LooksLikeLoopback(device.Name)
	case types.DeviceRoleRender:
		return device.MaxOutputChannels > 0
	default:
		return false
	}
}

func (*Backend) Devices(
	ctx context.Context,
	role types.DeviceRole,
) ([]types.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("unable to list devices: %w", err)
	}

	var result []types.DeviceInfo
	for idx, device := range devices {
		if matchesRole(device, role) {
			result = append(result, deviceInfo(idx, device, role))
		}
	}
	return result, nil
}

func (b *Backend) LookupDevice(
	ctx context.Context,
	role types.DeviceRole,
	id types.DeviceID,
) (types.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return types.DeviceInfo{}, fmt.Errorf("unable to list devices: %w", err)
	}

	idx, err := b.resolveIndex(devices, role, id)
	if err != nil {
		return types.DeviceInfo{}, err
	}
	return deviceInfo(idx, devices[idx], role), nil
}

func (b *Backend) resolveIndex(
	devices []*portaudio.DeviceInfo,
	role types.DeviceRole,
	id types.DeviceID,
) (int, error) {
	if id != types.DeviceIDDefault {
		idx, err := strconv.Atoi(string(id))
		if err != nil {
			return 0, errkind.Configf("invalid PortAudio device ID %q: %w", id, err)
		}
		if idx < 0 || idx >= len(devices) {
			return 0, errkind.Configf("device ID %d is out of range, available devices: 0-%d", idx, len(devices)-1)
		}
		if !matchesRole(devices[idx], role) && role != types.DeviceRoleLoopback {
			return 0, errkind.Configf("device %d (%q) cannot be used for %s", idx, devices[idx].Name, role)
		}
		return idx, nil
	}

	var (
		def *portaudio.DeviceInfo
		err error
	)
	switch role {
	case types.DeviceRoleCapture:
		def, err = portaudio.DefaultInputDevice()
	case types.DeviceRoleRender:
		def, err = portaudio.DefaultOutputDevice()
	case types.DeviceRoleLoopback:
		// virtual cables are preferred over other loopback-like devices
		candidate := -1
		for idx, device := range devices {
			if !matchesRole(device, role) {
				continue
			}
			if candidate < 0 || types.IsVirtualCable(device.Name) && !types.IsVirtualCable(devices[candidate].Name) {
				candidate = idx
			}
		}
		if candidate < 0 {
			return 0, errkind.Configf("no loopback capture device found, specify one explicitly")
		}
		return candidate, nil
	default:
		return 0, errkind.Configf("unsupported device role: %s", role)
	}
	if err != nil {
		return 0, errkind.Config(fmt.Errorf("unable to get the default %s device: %w", role, err))
	}
	for idx, device := range devices {
		if device == def || device.Name == def.Name && device.HostApi == def.HostApi {
			return idx, nil
		}
	}
	return 0, errkind.Configf("the default %s device %q is not in the device list", role, def.Name)
}

func (b *Backend) lookupDevice(role types.DeviceRole, id types.DeviceID) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("unable to list devices: %w", err)
	}
	idx, err := b.resolveIndex(devices, role, id)
	if err != nil {
		return nil, err
	}
	return devices[idx], nil
}

func (b *Backend) lookupCaptureDevice(id types.DeviceID) (*portaudio.DeviceInfo, error) {
	return b.lookupDevice(types.DeviceRoleCapture, id)
}

func (b *Backend) lookupRenderDevice(id types.DeviceID) (*portaudio.DeviceInfo, error) {
	return b.lookupDevice(types.DeviceRoleRender, id)
}
