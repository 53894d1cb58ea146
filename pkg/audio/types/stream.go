package types

import (
	"context"
	"io"
)

type CallbackResult int

const (
	CallbackContinue = CallbackResult(iota)
	CallbackAbort
)

// CaptureCallback receives interleaved float32 samples from the driver.
// The slice is only valid for the duration of the call.
type CaptureCallback func(samples []float32) CallbackResult

// RenderCallback must fill the whole interleaved slice.
type RenderCallback func(samples []float32) CallbackResult

type StreamConfig struct {
	Device          DeviceID
	SampleRate      SampleRate
	Channels        Channel
	FramesPerBuffer int
}

type Stream interface {
	io.Closer
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
