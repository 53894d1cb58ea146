// Package resampler implements a stateful streaming sample-rate converter.
//
// Input is accumulated across calls and converted samples are buffered until
// the requested amount is available, so the output stream is continuous:
// nothing is dropped or duplicated at call boundaries.
package resampler

import (
	"fmt"
	"strings"

	"github.com/xaionaro-go/poise/pkg/audio/types"
	"github.com/xaionaro-go/poise/pkg/errkind"
)

type Quality int

const (
	QualityUndefined = Quality(iota)
	QualityLinear
	QualitySinc
	EndOfQuality
)

func (q Quality) String() string {
	switch q {
	case QualityUndefined:
		return "undefined"
	case QualityLinear:
		return "linear"
	case QualitySinc:
		return "sinc"
	default:
		return fmt.Sprintf("unknown_quality_%d", int(q))
	}
}

func ParseQuality(s string) (Quality, error) {
	for q := QualityUndefined + 1; q < EndOfQuality; q++ {
		if strings.EqualFold(q.String(), s) {
			return q, nil
		}
	}
	return QualityUndefined, errkind.Configf("unknown resampler quality %q", s)
}

type converter interface {
	// Convert appends the samples converted from in to out.
	Convert(out, in []float32) ([]float32, error)

	// Flush appends everything still derivable from the already consumed
	// input and forgets the stream.
	Flush(out []float32) ([]float32, error)

	Reset() error
}

type StreamingResampler struct {
	InputRate  types.SampleRate
	OutputRate types.SampleRate
	Channels   types.Channel
	Quality    Quality

	converter converter
	pending   []float32
}

func New(
	inputRate types.SampleRate,
	outputRate types.SampleRate,
	channels types.Channel,
	quality Quality,
) (*StreamingResampler, error) {
	if inputRate == 0 || outputRate == 0 {
		return nil, errkind.Configf("invalid sample rates: %d -> %d", inputRate, outputRate)
	}
	if channels == 0 {
		return nil, errkind.Configf("invalid channels count: %d", channels)
	}

	r := &StreamingResampler{
		InputRate:  inputRate,
		OutputRate: outputRate,
		Channels:   channels,
		Quality:    quality,
	}

	switch quality {
	case QualityLinear:
		r.converter = newLinear(inputRate, outputRate, channels)
	case QualitySinc:
		c, err := newSinc(inputRate, outputRate, channels)
		if err != nil {
			return nil, fmt.Errorf("unable to initialize the sinc resampler %d -> %d: %w", inputRate, outputRate, err)
		}
		r.converter = c
	default:
		return nil, errkind.Configf("unsupported resampler quality: %s", quality)
	}
	return r, nil
}

// Ratio is OutputRate/InputRate.
func (r *StreamingResampler) Ratio() float64 {
	return float64(r.OutputRate) / float64(r.InputRate)
}

// Process consumes the interleaved input and returns exactly
// frames*Channels samples. If not enough converted samples are
// accumulated yet it returns (nil, nil) and keeps everything buffered.
func (r *StreamingResampler) Process(input []float32, frames int) ([]float32, error) {
	var err error
	r.pending, err = r.converter.Convert(r.pending, input)
	if err != nil {
		return nil, fmt.Errorf("unable to convert %d samples: %w", len(input), err)
	}
	if frames < 0 {
		return nil, fmt.Errorf("requested a negative amount of frames: %d", frames)
	}

	need := frames * int(r.Channels)
	if len(r.pending) < need {
		return nil, nil
	}

	out := make([]float32, need)
	copy(out, r.pending)
	n := copy(r.pending, r.pending[need:])
	r.pending = r.pending[:n]
	return out, nil
}

// Buffered returns the amount of converted frames waiting to be consumed.
func (r *StreamingResampler) Buffered() int {
	return len(r.pending) / int(r.Channels)
}

// Flush returns all the remaining converted samples (including the
// stream tail) and resets the state.
func (r *StreamingResampler) Flush() ([]float32, error) {
	out, err := r.converter.Flush(r.pending)
	r.pending = nil
	if err != nil {
		return out, fmt.Errorf("unable to flush the converter: %w", err)
	}
	return out, nil
}

// Reset drops all the accumulated state, no converted samples survive it.
func (r *StreamingResampler) Reset() error {
	r.pending = r.pending[:0]
	return r.converter.Reset()
}
