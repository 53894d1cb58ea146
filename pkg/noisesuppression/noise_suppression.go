package noisesuppression

import (
	"context"
	"io"
)

// Engine is a frame-based denoising model with an externally owned
// recurrent state.
type Engine interface {
	io.Closer

	// FrameSize is the exact amount of mono samples Infer accepts,
	// zero means any size.
	FrameSize() int

	// StateSize is the length of the recurrent state vector, zero
	// means the engine keeps its state internally.
	StateSize() int

	// Infer returns the enhanced frame and the state to pass to the
	// next call. The output frame length may differ from the input.
	Infer(ctx context.Context, frame []float32, state []float32) (enhanced []float32, newState []float32, err error)
}
