package noisesuppression

import (
	"context"
)

// Passthrough returns every frame unchanged. It is used when the pipeline
// has to run without a model (e.g. for measuring the pipeline latency).
type Passthrough struct {
	StateSizeValue int
}

var _ Engine = (*Passthrough)(nil)

func NewPassthrough(stateSize int) *Passthrough {
	return &Passthrough{
		StateSizeValue: stateSize,
	}
}

func (*Passthrough) Close() error {
	return nil
}

func (*Passthrough) FrameSize() int {
	return 0
}

func (e *Passthrough) StateSize() int {
	return e.StateSizeValue
}

func (*Passthrough) Infer(
	_ context.Context,
	frame []float32,
	state []float32,
) ([]float32, []float32, error) {
	out := make([]float32, len(frame))
	copy(out, frame)
	return out, state, nil
}
