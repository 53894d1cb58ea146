package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/poise/pkg/audio/types"
)

type listingBackend struct {
	types.Backend
}

func (listingBackend) Devices(_ context.Context, role types.DeviceRole) ([]types.DeviceInfo, error) {
	switch role {
	case types.DeviceRoleLoopback:
		return []types.DeviceInfo{{ID: "sink.monitor", Name: "Monitor of Sink", Role: role, SampleRate: 48000, Channels: 2, IsLoopback: true}}, nil
	case types.DeviceRoleRender:
		return []types.DeviceInfo{{ID: "sink", Name: "Sink", Role: role, SampleRate: 44100, Channels: 2}}, nil
	}
	return nil, nil
}

func TestListDevices(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, listDevices(context.Background(), &buf, listingBackend{}))
	out := buf.String()
	assert.Contains(t, out, `"Monitor of Sink" 48000Hz 2ch [LOOPBACK]`)
	assert.Contains(t, out, `"Sink" 44100Hz 2ch`)
	assert.NotContains(t, out, "capture ")
}
