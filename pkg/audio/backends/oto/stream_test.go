package oto

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/poise/pkg/audio/types"
)

func TestRenderReader(t *testing.T) {
	ctx := context.Background()
	calls := 0
	r := newRenderReader(ctx, func(samples []float32) types.CallbackResult {
		calls++
		for idx := range samples {
			samples[idx] = 0.5
		}
		if calls == 2 {
			return types.CallbackAbort
		}
		return types.CallbackContinue
	})

	buf := make([]byte, 16)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.Equal(t, float32(0.5), math.Float32frombits(binary.LittleEndian.Uint32(buf[12:])))

	_, err = r.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
	_, err = r.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 2, calls)
}

func TestLookupDevice(t *testing.T) {
	ctx := context.Background()
	b := New()

	info, err := b.LookupDevice(ctx, types.DeviceRoleRender, types.DeviceIDDefault)
	require.NoError(t, err)
	assert.Equal(t, DeviceIDDefault, info.ID)
	assert.Equal(t, SampleRate, info.SampleRate)

	_, err = b.LookupDevice(ctx, types.DeviceRoleCapture, types.DeviceIDDefault)
	require.Error(t, err)
	_, err = b.LookupDevice(ctx, types.DeviceRoleRender, "hw:1")
	require.Error(t, err)
}
