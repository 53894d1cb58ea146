// Package hybrid composes a capture backend and a render backend of
// possibly different libraries into one types.Backend.
package hybrid

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/poise/pkg/audio/types"
)

const Name = "hybrid"

type Backend struct {
	Capture types.CaptureBackend
	Render  types.RenderBackend
}

var _ types.Backend = (*Backend)(nil)

func New(
	capture types.CaptureBackend,
	render types.RenderBackend,
) *Backend {
	return &Backend{
		Capture: capture,
		Render:  render,
	}
}

func (b *Backend) String() string {
	return fmt.Sprintf("%s(%T+%T)", Name, b.Capture, b.Render)
}

func (b *Backend) directory(role types.DeviceRole) types.DeviceDirectory {
	if role == types.DeviceRoleRender {
		return b.Render
	}
	return b.Capture
}

func (b *Backend) Devices(
	ctx context.Context,
	role types.DeviceRole,
) ([]types.DeviceInfo, error) {
	return b.directory(role).Devices(ctx, role)
}

func (b *Backend) LookupDevice(
	ctx context.Context,
	role types.DeviceRole,
	id types.DeviceID,
) (types.DeviceInfo, error) {
	return b.directory(role).LookupDevice(ctx, role, id)
}

func (b *Backend) Ping(ctx context.Context) error {
	var mErr *multierror.Error
	if err := b.Capture.Ping(ctx); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf("the capture half: %w", err))
	}
	if err := b.Render.Ping(ctx); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf("the render half: %w", err))
	}
	return mErr.ErrorOrNil()
}

func (b *Backend) OpenCapture(
	ctx context.Context,
	cfg types.StreamConfig,
	callback types.CaptureCallback,
) (types.Stream, error) {
	return b.Capture.OpenCapture(ctx, cfg, callback)
}

func (b *Backend) OpenRender(
	ctx context.Context,
	cfg types.StreamConfig,
	callback types.RenderCallback,
) (types.Stream, error) {
	return b.Render.OpenRender(ctx, cfg, callback)
}

// Close closes both halves, even if one of them fails.
func (b *Backend) Close() error {
	var mErr *multierror.Error
	if err := b.Capture.Close(); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf("unable to close the capture half: %w", err))
	}
	if err := b.Render.Close(); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf("unable to close the render half: %w", err))
	}
	return mErr.ErrorOrNil()
}
