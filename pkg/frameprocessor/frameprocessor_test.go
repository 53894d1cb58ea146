package frameprocessor

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/poise/pkg/errkind"
	"github.com/xaionaro-go/poise/pkg/noisesuppression"
)

type fakeEngine struct {
	frameSize int
	stateSize int
	calls     int
	inputs    [][]float32
	states    [][]float32
	output    func(frame []float32) []float32
	newState  func(state []float32) []float32
	err       error
	delay     time.Duration
}

var _ noisesuppression.Engine = (*fakeEngine)(nil)

func (e *fakeEngine) Close() error   { return nil }
func (e *fakeEngine) FrameSize() int { return e.frameSize }
func (e *fakeEngine) StateSize() int { return e.stateSize }

func (e *fakeEngine) Infer(
	_ context.Context,
	frame []float32,
	state []float32,
) ([]float32, []float32, error) {
	e.calls++
	e.inputs = append(e.inputs, append([]float32{}, frame...))
	e.states = append(e.states, append([]float32{}, state...))
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	if e.err != nil {
		return nil, nil, e.err
	}
	out := append([]float32{}, frame...)
	if e.output != nil {
		out = e.output(frame)
	}
	newState := state
	if e.newState != nil {
		newState = e.newState(state)
	}
	return out, newState, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.EnableVAD = false
	return cfg
}

func newProcessor(t *testing.T, engine noisesuppression.Engine, cfg Config) *FrameProcessor {
	t.Helper()
	p, err := New(engine, cfg)
	require.NoError(t, err)
	return p
}

func constFrame(n int, v float32) []float32 {
	frame := make([]float32, n)
	for i := range frame {
		frame[i] = v
	}
	return frame
}

func alternating(n int, amplitude float32) []float32 {
	frame := make([]float32, n)
	for i := range frame {
		if i%2 == 0 {
			frame[i] = amplitude
		} else {
			frame[i] = -amplitude
		}
	}
	return frame
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, testConfig())
	assert.True(t, errkind.Is(err, errkind.KindConfig))

	cfg := testConfig()
	cfg.FrameSize = 0
	_, err = New(&fakeEngine{}, cfg)
	assert.True(t, errkind.Is(err, errkind.KindConfig))

	cfg = testConfig()
	cfg.TargetSampleRate = 0
	_, err = New(&fakeEngine{}, cfg)
	assert.True(t, errkind.Is(err, errkind.KindConfig))

	_, err = New(&fakeEngine{frameSize: 256}, testConfig())
	assert.True(t, errkind.Is(err, errkind.KindConfig))

	cfg = testConfig()
	cfg.LimiterThreshold = 0
	_, err = New(&fakeEngine{}, cfg)
	assert.True(t, errkind.Is(err, errkind.KindConfig))
}

func TestProcessChunkPadsShortChunks(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{}
	p := newProcessor(t, engine, testConfig())

	chunk := alternating(100, 0.5)
	out, err := p.ProcessChunk(ctx, chunk)
	require.NoError(t, err)
	require.Len(t, out, 480)

	require.Equal(t, 1, engine.calls)
	require.Len(t, engine.inputs[0], 480)
	assert.Equal(t, chunk, engine.inputs[0][:100])
	for i, v := range engine.inputs[0][100:] {
		require.Zero(t, v, "sample %d", 100+i)
	}
}

func TestProcessChunkTruncatesLongChunks(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{}
	p := newProcessor(t, engine, testConfig())

	chunk := alternating(1000, 0.5)
	out, err := p.ProcessChunk(ctx, chunk)
	require.NoError(t, err)
	require.Len(t, out, 480)
	assert.Equal(t, chunk[:480], engine.inputs[0])
}

func TestProcessChunkEmpty(t *testing.T) {
	engine := &fakeEngine{}
	p := newProcessor(t, engine, testConfig())

	out, err := p.ProcessChunk(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, out, 480)
}

func TestSoftLimiter(t *testing.T) {
	engine := &fakeEngine{}
	p := newProcessor(t, engine, testConfig())

	out, err := p.ProcessChunk(context.Background(), alternating(480, 1.5))
	require.NoError(t, err)

	var peak float64
	for _, v := range out {
		require.GreaterOrEqual(t, v, float32(-1))
		require.LessOrEqual(t, v, float32(1))
		peak = math.Max(peak, math.Abs(float64(v)))
	}
	assert.InDelta(t, 0.98, peak, 1e-6)
}

func TestPostprocessRemovesDC(t *testing.T) {
	p := newProcessor(t, &fakeEngine{}, testConfig())

	out, err := p.ProcessChunk(context.Background(), constFrame(480, 0.3))
	require.NoError(t, err)
	for _, v := range out {
		require.InDelta(t, 0, v, 1e-6)
	}
}

func TestPostprocessKeepsRangeAfterDCRemoval(t *testing.T) {
	engine := &fakeEngine{
		output: func(frame []float32) []float32 {
			out := constFrame(len(frame), -1)
			out[0] = 0.98
			return out
		},
	}
	p := newProcessor(t, engine, testConfig())

	out, err := p.ProcessChunk(context.Background(), constFrame(480, 0.1))
	require.NoError(t, err)
	for _, v := range out {
		require.GreaterOrEqual(t, v, float32(-1))
		require.LessOrEqual(t, v, float32(1))
	}
}

func TestMalformedOutputFallsBack(t *testing.T) {
	for name, output := range map[string]func([]float32) []float32{
		"empty": func([]float32) []float32 { return nil },
		"nan": func(frame []float32) []float32 {
			out := append([]float32{}, frame...)
			out[10] = float32(math.NaN())
			return out
		},
	} {
		t.Run(name, func(t *testing.T) {
			p := newProcessor(t, &fakeEngine{output: output}, testConfig())
			chunk := alternating(480, 0.25)
			out, err := p.ProcessChunk(context.Background(), chunk)
			require.NoError(t, err)
			require.Len(t, out, 480)
			for i := range chunk {
				require.InDelta(t, chunk[i], out[i], 1e-6, "sample %d", i)
			}
		})
	}
}

func TestShortOutputIsPadded(t *testing.T) {
	engine := &fakeEngine{
		output: func(frame []float32) []float32 { return alternating(200, 0.5) },
	}
	p := newProcessor(t, engine, testConfig())

	out, err := p.ProcessChunk(context.Background(), alternating(480, 0.5))
	require.NoError(t, err)
	require.Len(t, out, 480)
}

func TestSilenceBypassesInference(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{}
	cfg := DefaultConfig()
	p := newProcessor(t, engine, cfg)

	silence := make([]float32, 480)
	for i := 0; i < 100; i++ {
		out, err := p.ProcessChunk(ctx, silence)
		require.NoError(t, err)
		require.Equal(t, silence, out)
	}

	assert.Zero(t, engine.calls)
	stats := p.Stats()
	require.True(t, stats.VADEnabled)
	assert.Equal(t, 1.0, stats.VAD.BypassRatio, spew.Sdump(stats))
	assert.Zero(t, stats.FrameCount)
	assert.Zero(t, stats.RTF)
}

func TestSilenceAfterSpeechWithinHangTime(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{}
	p := newProcessor(t, engine, DefaultConfig())

	_, err := p.ProcessChunk(ctx, alternating(480, 0.5))
	require.NoError(t, err)
	require.Equal(t, 1, engine.calls)

	silence := make([]float32, 480)
	for i := 0; i < 40; i++ {
		_, err := p.ProcessChunk(ctx, silence)
		require.NoError(t, err)
	}

	// the 29 silent frames inside the hang window are still inferred
	assert.Equal(t, 1+29, engine.calls)
	stats := p.Stats()
	assert.Equal(t, uint64(41), stats.VAD.Total)
	assert.Equal(t, uint64(11), stats.VAD.Bypassed)
}

func TestStateIsThreaded(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{
		stateSize: 4,
		newState: func(state []float32) []float32 {
			out := make([]float32, len(state))
			for i, v := range state {
				out[i] = v + 1
			}
			return out
		},
	}
	p := newProcessor(t, engine, testConfig())

	for i := 0; i < 3; i++ {
		_, err := p.ProcessChunk(ctx, alternating(480, 0.1))
		require.NoError(t, err)
	}
	require.Len(t, engine.states, 3)
	assert.Equal(t, []float32{0, 0, 0, 0}, engine.states[0])
	assert.Equal(t, []float32{1, 1, 1, 1}, engine.states[1])
	assert.Equal(t, []float32{2, 2, 2, 2}, engine.states[2])
	assert.Equal(t, []float32{3, 3, 3, 3}, p.State())

	require.NoError(t, p.Reset(ctx))
	assert.Equal(t, []float32{0, 0, 0, 0}, p.State())
	assert.Zero(t, p.Stats().FrameCount)
}

func TestWrongStateLengthIsFatal(t *testing.T) {
	engine := &fakeEngine{
		stateSize: 4,
		newState:  func([]float32) []float32 { return []float32{1} },
	}
	p := newProcessor(t, engine, testConfig())

	_, err := p.ProcessChunk(context.Background(), alternating(480, 0.1))
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.KindFatal))
}

func TestInferenceErrorPropagates(t *testing.T) {
	engineErr := errors.New("model exploded")
	p := newProcessor(t, &fakeEngine{err: engineErr}, testConfig())

	_, err := p.ProcessChunk(context.Background(), alternating(480, 0.1))
	require.ErrorIs(t, err, engineErr)
	assert.True(t, errkind.Is(err, errkind.KindFatal))
}

func TestInputResampler(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{}
	p := newProcessor(t, engine, testConfig())
	require.NoError(t, p.SetupResampler(ctx, 16000))
	assert.Equal(t, 160, p.InputChunkSize())

	var outputs int
	for i := 0; i < 10; i++ {
		out, err := p.ProcessChunk(ctx, alternating(160, 0.5))
		require.NoError(t, err)
		if out == nil {
			continue
		}
		require.Len(t, out, 480)
		outputs++
	}
	// the linear converter lags for a frame until the next input arrives
	assert.GreaterOrEqual(t, outputs, 9)
	assert.Equal(t, outputs, engine.calls)

	require.NoError(t, p.SetupResampler(ctx, 48000))
	assert.Equal(t, 480, p.InputChunkSize())
}

func TestOutputResampler(t *testing.T) {
	ctx := context.Background()
	p := newProcessor(t, &fakeEngine{}, testConfig())
	require.NoError(t, p.SetupOutputResampler(ctx, 44100))
	assert.Equal(t, 441, p.OutputFrameSize())

	var outputs int
	for i := 0; i < 10; i++ {
		out, err := p.ProcessChunk(ctx, alternating(480, 0.5))
		require.NoError(t, err)
		if out == nil {
			continue
		}
		require.Len(t, out, 441)
		outputs++
	}
	assert.GreaterOrEqual(t, outputs, 9)

	require.NoError(t, p.SetupOutputResampler(ctx, 48000))
	assert.Equal(t, 480, p.OutputFrameSize())

	assert.Error(t, p.SetupOutputResampler(ctx, 0))
	assert.Error(t, p.SetupResampler(ctx, 0))
}

func TestBypassedFramesAreResampled(t *testing.T) {
	ctx := context.Background()
	p := newProcessor(t, &fakeEngine{}, DefaultConfig())
	require.NoError(t, p.SetupOutputResampler(ctx, 24000))

	var outputs int
	for i := 0; i < 5; i++ {
		out, err := p.ProcessChunk(ctx, make([]float32, 480))
		require.NoError(t, err)
		if out != nil {
			require.Len(t, out, 240)
			outputs++
		}
	}
	assert.GreaterOrEqual(t, outputs, 4)
}

func TestStatsRTF(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{delay: 2 * time.Millisecond}
	p := newProcessor(t, engine, testConfig())

	for i := 0; i < 5; i++ {
		_, err := p.ProcessChunk(ctx, alternating(480, 0.5))
		require.NoError(t, err)
	}

	stats := p.Stats()
	assert.Equal(t, uint64(5), stats.FrameCount)
	assert.False(t, stats.VADEnabled)
	assert.GreaterOrEqual(t, stats.AvgTimeMS, 2.0)
	assert.InDelta(t, stats.AvgTimeMS/10, stats.RTF, 1e-9)
	assert.NotEmpty(t, stats.String())
}
