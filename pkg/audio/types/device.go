package types

import (
	"context"
	"fmt"
	"strings"
)

// DeviceRole is the logical role a device plays in the pipeline.
type DeviceRole int

const (
	DeviceRoleUndefined = DeviceRole(iota)
	DeviceRoleCapture
	DeviceRoleLoopback
	DeviceRoleRender
)

func (r DeviceRole) String() string {
	switch r {
	case DeviceRoleUndefined:
		return "undefined"
	case DeviceRoleCapture:
		return "capture"
	case DeviceRoleLoopback:
		return "loopback"
	case DeviceRoleRender:
		return "render"
	default:
		return fmt.Sprintf("unknown_role_%d", int(r))
	}
}

// DeviceID is an opaque backend-specific device handle. The empty value
// selects the backend default for the role.
type DeviceID string

const DeviceIDDefault = DeviceID("")

type DeviceInfo struct {
	ID         DeviceID
	Name       string
	Role       DeviceRole
	SampleRate SampleRate
	Channels   Channel
	IsLoopback bool
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s:%q(%s, %dHz, %dch)", d.ID, d.Name, d.Role, d.SampleRate, d.Channels)
}

// DeviceDirectory resolves device handles together with their native
// sample rate and channel count.
type DeviceDirectory interface {
	Devices(ctx context.Context, role DeviceRole) ([]DeviceInfo, error)
	LookupDevice(ctx context.Context, role DeviceRole, id DeviceID) (DeviceInfo, error)
}

var loopbackNameMarkers = []string{
	"cable output",
	"loopback",
	"stereo mix",
	"monitor of",
	".monitor",
}

// LooksLikeLoopback guesses by the device name whether the device
// captures what is being played rather than a microphone.
func LooksLikeLoopback(name string) bool {
	name = strings.ToLower(name)
	for _, marker := range loopbackNameMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

// IsVirtualCable reports whether the device is a virtual audio cable
// output, the preferred kind of loopback source.
func IsVirtualCable(name string) bool {
	return strings.Contains(strings.ToLower(name), "cable output")
}
