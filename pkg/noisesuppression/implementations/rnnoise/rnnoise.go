//go:build rnnoise
// +build rnnoise

package rnnoise

import (
	"context"
	"fmt"
	"math"
	"sync"
	"unsafe"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/poise/pkg/noisesuppression"
)

/*
#cgo pkg-config: rnnoise
#cgo CFLAGS: -march=native
#include <rnnoise.h>
*/
import "C"

const (
	SampleRate = 48_000
)

type RNNoise struct {
	Locker       sync.Mutex
	DenoiseState *C.DenoiseState
	Input        []float32
	Output       []float32

	// LastVADProbability is the voice probability estimated for the
	// last processed frame.
	LastVADProbability float64
}

var _ noisesuppression.Engine = (*RNNoise)(nil)

var frameSize int

func init() {
	frameSize = int(C.rnnoise_get_frame_size())
}

func New() (*RNNoise, error) {
	denoiseState := C.rnnoise_create(nil)
	if denoiseState == nil {
		return nil, fmt.Errorf("unable to create an RNNoise state")
	}
	return &RNNoise{
		DenoiseState: denoiseState,
		Input:        make([]float32, frameSize),
		Output:       make([]float32, frameSize),
	}, nil
}

func (s *RNNoise) Close() error {
	s.Locker.Lock()
	defer s.Locker.Unlock()
	if s.DenoiseState == nil {
		return fmt.Errorf("double-free attempt")
	}
	C.rnnoise_destroy(s.DenoiseState)
	s.DenoiseState = nil
	return nil
}

func (*RNNoise) FrameSize() int {
	return frameSize
}

// StateSize is zero: the recurrent state lives inside DenoiseState.
func (*RNNoise) StateSize() int {
	return 0
}

func (s *RNNoise) Infer(
	ctx context.Context,
	frame []float32,
	state []float32,
) (_ret []float32, _state []float32, _err error) {
	logger.Tracef(ctx, "Infer, len:%d", len(frame))
	defer func() { logger.Tracef(ctx, "/Infer, len:%d: %v", len(frame), _err) }()

	if len(frame) != frameSize {
		return nil, nil, fmt.Errorf("expected a frame of %d samples, but received %d", frameSize, len(frame))
	}

	s.Locker.Lock()
	defer s.Locker.Unlock()
	if s.DenoiseState == nil {
		return nil, nil, fmt.Errorf("the engine is closed")
	}

	gain(s.Input, frame)
	vadProb := C.rnnoise_process_frame(
		s.DenoiseState,
		(*C.float)(unsafe.Pointer(unsafe.SliceData(s.Output))),
		(*C.float)(unsafe.Pointer(unsafe.SliceData(s.Input))),
	)
	s.LastVADProbability = float64(vadProb)

	out := make([]float32, frameSize)
	ungain(out, s.Output)
	return out, state, nil
}

func gain(dst, src []float32) {
	for idx := range src {
		dst[idx] = src[idx] * math.MaxInt16
	}
}

func ungain(dst, src []float32) {
	for idx := range src {
		dst[idx] = src[idx] / math.MaxInt16
	}
}
