package pcm

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	"github.com/xaionaro-go/poise/pkg/audio/types"
)

func getFloat32(f types.PCMFormat, p []byte) float32 {
	switch f {
	case types.PCMFormatU8:
		return (float32(p[0]) - 128) / 128
	case types.PCMFormatS16LE:
		return float32(int16(binary.LittleEndian.Uint16(p))) / 32768
	case types.PCMFormatS24LE:
		val := int32(uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16)
		if val&0x800000 != 0 {
			val |= -16777216
		}
		return float32(val) / 8388608
	case types.PCMFormatS32LE:
		return float32(float64(int32(binary.LittleEndian.Uint32(p))) / 2147483648)
	case types.PCMFormatFloat32LE:
		return math.Float32frombits(binary.LittleEndian.Uint32(p))
	default:
		panic(fmt.Sprintf("unknown format: %v", f))
	}
}

func saturate(v, lo, hi float64) float64 {
	switch {
	case v > hi:
		return hi
	case v < lo:
		return lo
	}
	return v
}

func setFloat32(f types.PCMFormat, p []byte, v float32) {
	switch f {
	case types.PCMFormatU8:
		p[0] = byte(saturate(math.Round(float64(v)*128+128), 0, 255))
	case types.PCMFormatS16LE:
		binary.LittleEndian.PutUint16(p, uint16(int16(saturate(math.Round(float64(v)*32768), -32768, 32767))))
	case types.PCMFormatS24LE:
		val := int32(saturate(math.Round(float64(v)*8388608), -8388608, 8388607))
		p[0] = byte(val)
		p[1] = byte(val >> 8)
		p[2] = byte(val >> 16)
	case types.PCMFormatS32LE:
		val := int32(saturate(math.Round(float64(v)*2147483648), -2147483648, 2147483647))
		binary.LittleEndian.PutUint32(p, uint32(val))
	case types.PCMFormatFloat32LE:
		binary.LittleEndian.PutUint32(p, math.Float32bits(v))
	default:
		panic(fmt.Sprintf("unknown format: %v", f))
	}
}

// Decode converts complete samples of src into dst and returns
// the amount of samples converted.
func Decode(format types.PCMFormat, dst []float32, src []byte) (int, error) {
	sampleSize := int(format.Size())
	if sampleSize == 0 {
		return 0, fmt.Errorf("unsupported PCM format: %s", format)
	}
	if len(src)%sampleSize != 0 {
		return 0, fmt.Errorf("the size of the input (%d) is not a multiple of the sample size %d", len(src), sampleSize)
	}
	n := len(src) / sampleSize
	if n > len(dst) {
		n = len(dst)
	}
	for idx := 0; idx < n; idx++ {
		dst[idx] = getFloat32(format, src[idx*sampleSize:])
	}
	return n, nil
}

// Encode is the inverse of Decode. Values outside of [-1, 1] are
// saturated for integer formats.
func Encode(format types.PCMFormat, dst []byte, src []float32) (int, error) {
	sampleSize := int(format.Size())
	if sampleSize == 0 {
		return 0, fmt.Errorf("unsupported PCM format: %s", format)
	}
	n := len(dst) / sampleSize
	if n > len(src) {
		n = len(src)
	}
	for idx := 0; idx < n; idx++ {
		setFloat32(format, dst[idx*sampleSize:], src[idx])
	}
	return n, nil
}

// Float32sAsBytes returns the memory of s as bytes, without copying.
func Float32sAsBytes(s []float32) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*4)
}

// BytesAsFloat32s returns the memory of b as float32 samples, without
// copying. len(b) must be a multiple of 4 and b must be 4-byte aligned.
func BytesAsFloat32s(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(unsafe.SliceData(b))), len(b)/4)
}

// IsNativeFloat32LE reports if the host's float32 memory layout
// matches PCMFormatFloat32LE.
func IsNativeFloat32LE() bool {
	return binary.NativeEndian.Uint16([]byte{1, 2}) == 0x0201
}
