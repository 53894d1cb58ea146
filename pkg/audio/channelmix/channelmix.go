package channelmix

import (
	"fmt"

	"github.com/xaionaro-go/poise/pkg/audio/types"
)

// Downmix averages the channels of the interleaved input into mono output.
// len(output) must be len(input)/channels.
func Downmix(channels types.Channel, output, input []float32) error {
	if channels == 0 {
		return fmt.Errorf("channels count is zero")
	}
	if len(input)%int(channels) != 0 {
		return fmt.Errorf("expected an input length that is a multiple of %d, but received %d", channels, len(input))
	}
	frames := len(input) / int(channels)
	if len(output) != frames {
		return fmt.Errorf("the output length is %d, but expected %d", len(output), frames)
	}

	if channels == 1 {
		copy(output, input)
		return nil
	}

	scale := 1 / float32(channels)
	for frameIdx := 0; frameIdx < frames; frameIdx++ {
		frame := input[frameIdx*int(channels) : (frameIdx+1)*int(channels)]
		var sum float32
		for _, v := range frame {
			sum += v
		}
		output[frameIdx] = sum * scale
	}
	return nil
}

// Upmix duplicates every mono sample of the input into all the
// channels of the interleaved output.
func Upmix(channels types.Channel, output, input []float32) error {
	if channels == 0 {
		return fmt.Errorf("channels count is zero")
	}
	if len(output) != len(input)*int(channels) {
		return fmt.Errorf("the output length is %d, but expected %d*%d", len(output), len(input), channels)
	}

	if channels == 1 {
		copy(output, input)
		return nil
	}

	for frameIdx, v := range input {
		frame := output[frameIdx*int(channels) : (frameIdx+1)*int(channels)]
		for ch := range frame {
			frame[ch] = v
		}
	}
	return nil
}
