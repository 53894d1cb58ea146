package hybrid

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/poise/pkg/audio/types"
)

type fakeHalf struct {
	name     string
	pingErr  error
	closeErr error
	closed   bool
}

func (f *fakeHalf) Close() error {
	f.closed = true
	return f.closeErr
}

func (f *fakeHalf) Ping(context.Context) error { return f.pingErr }

func (f *fakeHalf) Devices(_ context.Context, role types.DeviceRole) ([]types.DeviceInfo, error) {
	return []types.DeviceInfo{{ID: types.DeviceID(f.name), Role: role}}, nil
}

func (f *fakeHalf) LookupDevice(_ context.Context, role types.DeviceRole, id types.DeviceID) (types.DeviceInfo, error) {
	return types.DeviceInfo{ID: types.DeviceID(f.name), Name: string(id), Role: role}, nil
}

func (f *fakeHalf) OpenCapture(context.Context, types.StreamConfig, types.CaptureCallback) (types.Stream, error) {
	return nil, fmt.Errorf("capture:%s", f.name)
}

func (f *fakeHalf) OpenRender(context.Context, types.StreamConfig, types.RenderCallback) (types.Stream, error) {
	return nil, fmt.Errorf("render:%s", f.name)
}

func TestDelegation(t *testing.T) {
	ctx := context.Background()
	capture, render := &fakeHalf{name: "c"}, &fakeHalf{name: "r"}
	b := New(capture, render)

	info, err := b.LookupDevice(ctx, types.DeviceRoleLoopback, "x")
	require.NoError(t, err)
	assert.Equal(t, types.DeviceID("c"), info.ID)

	info, err = b.LookupDevice(ctx, types.DeviceRoleRender, "y")
	require.NoError(t, err)
	assert.Equal(t, types.DeviceID("r"), info.ID)

	devices, err := b.Devices(ctx, types.DeviceRoleCapture)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, types.DeviceID("c"), devices[0].ID)

	_, err = b.OpenCapture(ctx, types.StreamConfig{}, nil)
	assert.EqualError(t, err, "capture:c")
	_, err = b.OpenRender(ctx, types.StreamConfig{}, nil)
	assert.EqualError(t, err, "render:r")
}

func TestPingAndCloseAggregate(t *testing.T) {
	ctx := context.Background()
	capture := &fakeHalf{name: "c", pingErr: fmt.Errorf("no loopback"), closeErr: fmt.Errorf("busy")}
	render := &fakeHalf{name: "r", pingErr: fmt.Errorf("no sink")}
	b := New(capture, render)

	err := b.Ping(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no loopback")
	assert.Contains(t, err.Error(), "no sink")

	err = b.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "busy")
	assert.True(t, capture.closed)
	assert.True(t, render.closed)
}
