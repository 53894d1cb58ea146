package pulseaudio

import (
	"context"
	"io"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
	"github.com/xaionaro-go/poise/pkg/audio/pcm"
	"github.com/xaionaro-go/poise/pkg/audio/types"
)

type pulseWriter struct {
	io.Writer
}

var _ pulse.Writer = pulseWriter{}

func (pulseWriter) Format() byte {
	return proto.FormatFloat32LE
}

// captureWriter converts the bytes Pulse delivers into float32 samples
// for the callback. A trailing partial sample is kept until the next write.
type captureWriter struct {
	ctx      context.Context
	callback types.CaptureCallback
	onAbort  func()
	partial  []byte
	samples  []float32
	aborted  bool
}

func newCaptureWriter(
	ctx context.Context,
	callback types.CaptureCallback,
	onAbort func(),
) *captureWriter {
	return &captureWriter{
		ctx:      ctx,
		callback: callback,
		onAbort:  onAbort,
	}
}

func (w *captureWriter) Write(b []byte) (int, error) {
	if w.aborted {
		return len(b), nil
	}
	data := b
	if len(w.partial) > 0 {
		data = append(w.partial, b...)
	}
	whole := len(data) / 4 * 4

	if cap(w.samples) < whole/4 {
		w.samples = make([]float32, whole/4)
	}
	samples := w.samples[:whole/4]
	_, err := pcm.Decode(types.PCMFormatFloat32LE, samples, data[:whole])
	w.partial = append(w.partial[:0], data[whole:]...)
	if err != nil {
		logger.Errorf(w.ctx, "unable to decode captured samples: %v", err)
		return len(b), nil
	}
	if w.callback(samples) == types.CallbackAbort {
		w.aborted = true
		w.onAbort()
	}
	return len(b), nil
}

type renderReader struct {
	ctx      context.Context
	callback types.RenderCallback
	onAbort  func()
	samples  []float32
}

var _ pulse.Reader = (*renderReader)(nil)

func newRenderReader(
	ctx context.Context,
	callback types.RenderCallback,
	onAbort func(),
) *renderReader {
	return &renderReader{
		ctx:      ctx,
		callback: callback,
		onAbort:  onAbort,
	}
}

func (*renderReader) Format() byte {
	return proto.FormatFloat32LE
}

func (r *renderReader) Read(b []byte) (int, error) {
	n := len(b) / 4
	if cap(r.samples) < n {
		r.samples = make([]float32, n)
	}
	samples := r.samples[:n]
	clear(samples)
	if r.callback(samples) == types.CallbackAbort {
		r.onAbort()
		return 0, pulse.EndOfData
	}
	if _, err := pcm.Encode(types.PCMFormatFloat32LE, b, samples); err != nil {
		logger.Errorf(r.ctx, "unable to encode samples: %v", err)
		return 0, pulse.EndOfData
	}
	return n * 4, nil
}
