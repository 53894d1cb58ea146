package types

import (
	"context"
	"io"
)

type CaptureBackend interface {
	io.Closer
	DeviceDirectory
	Ping(ctx context.Context) error
	OpenCapture(ctx context.Context, cfg StreamConfig, callback CaptureCallback) (Stream, error)
}

type RenderBackend interface {
	io.Closer
	DeviceDirectory
	Ping(ctx context.Context) error
	OpenRender(ctx context.Context, cfg StreamConfig, callback RenderCallback) (Stream, error)
}

// Backend is a combined backend serving both capture and render.
type Backend interface {
	CaptureBackend
	OpenRender(ctx context.Context, cfg StreamConfig, callback RenderCallback) (Stream, error)
}
