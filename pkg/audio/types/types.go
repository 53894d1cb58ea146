package types

import (
	"fmt"
	"time"
)

type SampleRate uint32

func (r SampleRate) SamplesForDuration(d time.Duration) int {
	return int(int64(d) * int64(r) / int64(time.Second))
}

type Channel uint32

type PCMFormat uint

const (
	PCMFormatUndefined = PCMFormat(iota)
	PCMFormatU8
	PCMFormatS16LE
	PCMFormatS24LE
	PCMFormatS32LE
	PCMFormatFloat32LE
	EndOfPCMFormat
)

func (f PCMFormat) Size() uint {
	switch f {
	case PCMFormatU8:
		return 1
	case PCMFormatS16LE:
		return 2
	case PCMFormatS24LE:
		return 3
	case PCMFormatS32LE, PCMFormatFloat32LE:
		return 4
	default:
		return 0
	}
}

func (f PCMFormat) String() string {
	switch f {
	case PCMFormatUndefined:
		return "undefined"
	case PCMFormatU8:
		return "u8"
	case PCMFormatS16LE:
		return "s16le"
	case PCMFormatS24LE:
		return "s24le"
	case PCMFormatS32LE:
		return "s32le"
	case PCMFormatFloat32LE:
		return "f32le"
	default:
		return fmt.Sprintf("unknown_format_%d", uint(f))
	}
}
