package resampler

import (
	"github.com/xaionaro-go/poise/pkg/audio/types"
)

// linear interpolates between neighbouring input frames. Output frame k
// is taken at input position k*step/denom, tracked exactly in integers.
type linear struct {
	channels int
	step     uint64
	denom    uint64

	// phase is the position of the next output frame relative
	// to history[0], in units of 1/denom input frames.
	phase   uint64
	history []float32
}

var _ converter = (*linear)(nil)

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func newLinear(
	inputRate types.SampleRate,
	outputRate types.SampleRate,
	channels types.Channel,
) *linear {
	d := gcd(uint64(inputRate), uint64(outputRate))
	return &linear{
		channels: int(channels),
		step:     uint64(inputRate) / d,
		denom:    uint64(outputRate) / d,
	}
}

func (l *linear) frames() uint64 {
	return uint64(len(l.history) / l.channels)
}

func (l *linear) emit(out []float32, idx, frac uint64, hold bool) []float32 {
	ch := l.channels
	base := int(idx) * ch
	if frac == 0 || hold {
		return append(out, l.history[base:base+ch]...)
	}
	weight := float32(frac) / float32(l.denom)
	for c := 0; c < ch; c++ {
		a := l.history[base+c]
		b := l.history[base+ch+c]
		out = append(out, a+(b-a)*weight)
	}
	return out
}

func (l *linear) Convert(out, in []float32) ([]float32, error) {
	l.history = append(l.history, in...)
	frames := l.frames()
	for {
		idx := l.phase / l.denom
		frac := l.phase % l.denom
		if idx >= frames || (frac != 0 && idx+1 >= frames) {
			break
		}
		out = l.emit(out, idx, frac, false)
		l.phase += l.step
	}

	consumed := l.phase / l.denom
	if consumed > frames {
		consumed = frames
	}
	if consumed > 0 {
		n := copy(l.history, l.history[int(consumed)*l.channels:])
		l.history = l.history[:n]
		l.phase -= consumed * l.denom
	}
	return out, nil
}

func (l *linear) Flush(out []float32) ([]float32, error) {
	frames := l.frames()
	for {
		idx := l.phase / l.denom
		frac := l.phase % l.denom
		if idx >= frames {
			break
		}
		out = l.emit(out, idx, frac, idx+1 >= frames)
		l.phase += l.step
	}
	return out, l.Reset()
}

func (l *linear) Reset() error {
	l.history = l.history[:0]
	l.phase = 0
	return nil
}
