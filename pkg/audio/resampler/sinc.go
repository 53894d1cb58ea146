package resampler

import (
	"fmt"

	soxr "github.com/tphakala/go-audio-resampler"
	"github.com/xaionaro-go/poise/pkg/audio/types"
)

type sincEngine interface {
	Process(input []float32) ([]float32, error)
	Flush() ([]float32, error)
}

// sinc is a polyphase FIR converter. It is mono only.
type sinc struct {
	inputRate  float64
	outputRate float64
	engine     sincEngine
}

var _ converter = (*sinc)(nil)

func newSinc(
	inputRate types.SampleRate,
	outputRate types.SampleRate,
	channels types.Channel,
) (*sinc, error) {
	if channels != 1 {
		return nil, fmt.Errorf("the sinc resampler supports only mono, but received %d channels", channels)
	}
	s := &sinc{
		inputRate:  float64(inputRate),
		outputRate: float64(outputRate),
	}
	if err := s.Reset(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *sinc) Convert(out, in []float32) ([]float32, error) {
	if len(in) == 0 {
		return out, nil
	}
	converted, err := s.engine.Process(in)
	if err != nil {
		return out, err
	}
	return append(out, converted...), nil
}

func (s *sinc) Flush(out []float32) ([]float32, error) {
	tail, err := s.engine.Flush()
	out = append(out, tail...)
	if err != nil {
		return out, err
	}
	return out, s.Reset()
}

func (s *sinc) Reset() error {
	engine, err := soxr.NewEngineFloat32(s.inputRate, s.outputRate, soxr.QualityLow)
	if err != nil {
		return fmt.Errorf("unable to initialize the engine: %w", err)
	}
	s.engine = engine
	return nil
}
