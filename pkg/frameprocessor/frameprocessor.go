// Package frameprocessor turns arbitrary chunks of mono audio into
// denoised frames: input resampling, frame size normalization, voice
// activity gating, model inference, postprocessing and output resampling.
//
// A FrameProcessor is not safe for concurrent use: the recurrent model
// state must be advanced strictly in frame order by a single goroutine.
package frameprocessor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/poise/pkg/audio/resampler"
	"github.com/xaionaro-go/poise/pkg/audio/types"
	"github.com/xaionaro-go/poise/pkg/errkind"
	"github.com/xaionaro-go/poise/pkg/metrics"
	"github.com/xaionaro-go/poise/pkg/noisesuppression"
	"github.com/xaionaro-go/poise/pkg/vad"
)

const (
	DefaultSampleRate       = types.SampleRate(48000)
	DefaultFrameSize        = 480
	DefaultLimiterThreshold = 0.98

	clipMin = -1.0
	clipMax = 1.0
)

type Config struct {
	TargetSampleRate types.SampleRate
	FrameSize        int

	EnableVAD      bool
	VADThresholdDB float64
	VADHangTime    time.Duration
	VADClassifier  vad.Classifier

	LimiterThreshold float64
	ResamplerQuality resampler.Quality

	Metrics *metrics.Metrics
}

func DefaultConfig() Config {
	return Config{
		TargetSampleRate: DefaultSampleRate,
		FrameSize:        DefaultFrameSize,
		EnableVAD:        true,
		VADThresholdDB:   vad.DefaultThresholdDB,
		VADHangTime:      vad.DefaultHangTime,
		LimiterThreshold: DefaultLimiterThreshold,
		ResamplerQuality: resampler.QualityLinear,
	}
}

type FrameProcessor struct {
	Config Config

	engine          noisesuppression.Engine
	gate            *vad.Gate
	state           []float32
	inputRate       types.SampleRate
	outputRate      types.SampleRate
	inputResampler  *resampler.StreamingResampler
	outputResampler *resampler.StreamingResampler
	outputFrameSize int

	frameCount         uint64
	totalInferenceTime time.Duration
}

func New(
	engine noisesuppression.Engine,
	cfg Config,
) (*FrameProcessor, error) {
	if engine == nil {
		return nil, errkind.Configf("no inference engine")
	}
	if cfg.TargetSampleRate == 0 {
		return nil, errkind.Configf("invalid target sample rate: %d", cfg.TargetSampleRate)
	}
	if cfg.FrameSize <= 0 {
		return nil, errkind.Configf("invalid frame size: %d", cfg.FrameSize)
	}
	if engineFrameSize := engine.FrameSize(); engineFrameSize != 0 && engineFrameSize != cfg.FrameSize {
		return nil, errkind.Configf("the engine requires frames of %d samples, but the frame size is %d", engineFrameSize, cfg.FrameSize)
	}
	if !(cfg.LimiterThreshold > 0 && cfg.LimiterThreshold <= clipMax) {
		return nil, errkind.Configf("the limiter threshold must be within (0, 1], but it is %v", cfg.LimiterThreshold)
	}
	if cfg.ResamplerQuality == resampler.QualityUndefined {
		cfg.ResamplerQuality = resampler.QualityLinear
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Noop()
	}

	p := &FrameProcessor{
		Config:          cfg,
		engine:          engine,
		state:           make([]float32, engine.StateSize()),
		inputRate:       cfg.TargetSampleRate,
		outputRate:      cfg.TargetSampleRate,
		outputFrameSize: cfg.FrameSize,
	}
	if cfg.EnableVAD {
		gate, err := vad.NewGate(vad.Config{
			ThresholdDB: cfg.VADThresholdDB,
			HangTime:    cfg.VADHangTime,
			SampleRate:  cfg.TargetSampleRate,
			FrameSize:   cfg.FrameSize,
			Classifier:  cfg.VADClassifier,
		})
		if err != nil {
			return nil, fmt.Errorf("unable to initialize the voice activity gate: %w", err)
		}
		p.gate = gate
	}
	return p, nil
}

// SetupResampler configures conversion of the incoming audio to the
// target rate. No resampler is used if the rates are equal.
func (p *FrameProcessor) SetupResampler(ctx context.Context, inputRate types.SampleRate) error {
	if inputRate == 0 {
		return errkind.Configf("invalid input sample rate: %d", inputRate)
	}
	p.inputRate = inputRate
	if inputRate == p.Config.TargetSampleRate {
		p.inputResampler = nil
		return nil
	}
	r, err := resampler.New(inputRate, p.Config.TargetSampleRate, 1, p.Config.ResamplerQuality)
	if err != nil {
		return fmt.Errorf("unable to initialize the input resampler %d -> %d: %w", inputRate, p.Config.TargetSampleRate, err)
	}
	logger.Debugf(ctx, "input resampling enabled: %dHz -> %dHz (%s)", inputRate, p.Config.TargetSampleRate, p.Config.ResamplerQuality)
	p.inputResampler = r
	return nil
}

// SetupOutputResampler configures conversion of the processed audio
// from the target rate to outputRate.
func (p *FrameProcessor) SetupOutputResampler(ctx context.Context, outputRate types.SampleRate) error {
	if outputRate == 0 {
		return errkind.Configf("invalid output sample rate: %d", outputRate)
	}
	p.outputRate = outputRate
	if outputRate == p.Config.TargetSampleRate {
		p.outputResampler = nil
		p.outputFrameSize = p.Config.FrameSize
		return nil
	}
	r, err := resampler.New(p.Config.TargetSampleRate, outputRate, 1, p.Config.ResamplerQuality)
	if err != nil {
		return fmt.Errorf("unable to initialize the output resampler %d -> %d: %w", p.Config.TargetSampleRate, outputRate, err)
	}
	p.outputResampler = r
	p.outputFrameSize = int(uint64(p.Config.FrameSize) * uint64(outputRate) / uint64(p.Config.TargetSampleRate))
	logger.Debugf(ctx, "output resampling enabled: %dHz -> %dHz (frame size: %d)", p.Config.TargetSampleRate, outputRate, p.outputFrameSize)
	return nil
}

func (p *FrameProcessor) InputSampleRate() types.SampleRate {
	return p.inputRate
}

func (p *FrameProcessor) OutputSampleRate() types.SampleRate {
	return p.outputRate
}

// InputChunkSize is the amount of input samples which corresponds to one
// frame at the target rate.
func (p *FrameProcessor) InputChunkSize() int {
	n := int(uint64(p.Config.FrameSize) * uint64(p.inputRate) / uint64(p.Config.TargetSampleRate))
	if n < 1 {
		n = 1
	}
	return n
}

// OutputFrameSize is the amount of samples returned by a successful
// ProcessChunk.
func (p *FrameProcessor) OutputFrameSize() int {
	return p.outputFrameSize
}

// ProcessChunk returns (nil, nil) when a resampler has not accumulated
// enough samples yet; the caller just keeps feeding. Any returned error
// comes from the inference engine and is fatal for the session.
func (p *FrameProcessor) ProcessChunk(
	ctx context.Context,
	chunk []float32,
) (_ret []float32, _err error) {
	logger.Tracef(ctx, "ProcessChunk(%d)", len(chunk))
	defer func() { logger.Tracef(ctx, "/ProcessChunk(%d): %d %v", len(chunk), len(_ret), _err) }()

	if p.inputResampler != nil {
		resampled, err := p.inputResampler.Process(chunk, p.Config.FrameSize)
		if err != nil {
			return nil, fmt.Errorf("unable to resample the input: %w", err)
		}
		if resampled == nil {
			return nil, nil
		}
		chunk = resampled
	}

	frame := normalizeFrameSize(chunk, p.Config.FrameSize)

	var output []float32
	if p.gate != nil && !p.gate.IsSpeech(ctx, frame) {
		p.Config.Metrics.RecordBypass(ctx)
		output = frame
	} else {
		enhanced, err := p.infer(ctx, frame)
		if err != nil {
			return nil, err
		}
		output = p.normalizeOutput(enhanced, frame)
		p.postprocess(output)
	}

	if p.outputResampler != nil {
		resampled, err := p.outputResampler.Process(output, p.outputFrameSize)
		if err != nil {
			return nil, fmt.Errorf("unable to resample the output: %w", err)
		}
		return resampled, nil
	}
	return output, nil
}

func (p *FrameProcessor) infer(
	ctx context.Context,
	frame []float32,
) ([]float32, error) {
	startTS := time.Now()
	enhanced, newState, err := p.engine.Infer(ctx, frame, p.state)
	duration := time.Since(startTS)
	if err != nil {
		return nil, errkind.Fatal(fmt.Errorf("inference failed: %w", err))
	}
	if len(p.state) > 0 {
		if len(newState) != len(p.state) {
			return nil, errkind.Fatal(fmt.Errorf("the engine returned a state of %d values, expected %d", len(newState), len(p.state)))
		}
		copy(p.state, newState)
	}

	p.frameCount++
	p.totalInferenceTime += duration
	p.Config.Metrics.RecordInference(ctx, duration)
	return enhanced, nil
}

func normalizeFrameSize(samples []float32, frameSize int) []float32 {
	frame := make([]float32, frameSize)
	copy(frame, samples)
	return frame
}

// normalizeOutput falls back to the model input if the model produced
// nothing usable.
func (p *FrameProcessor) normalizeOutput(enhanced, fallback []float32) []float32 {
	if len(enhanced) == 0 || !allFinite(enhanced) {
		return normalizeFrameSize(fallback, p.Config.FrameSize)
	}
	return normalizeFrameSize(enhanced, p.Config.FrameSize)
}

func allFinite(samples []float32) bool {
	for _, v := range samples {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func (p *FrameProcessor) postprocess(frame []float32) {
	if len(frame) == 0 {
		return
	}

	var peak float64
	for _, v := range frame {
		peak = math.Max(peak, math.Abs(float64(v)))
	}
	if peak > p.Config.LimiterThreshold {
		scale := p.Config.LimiterThreshold / peak
		for i, v := range frame {
			frame[i] = float32(float64(v) * scale)
		}
	}

	var sum float64
	for i, v := range frame {
		v = clamp(v)
		frame[i] = v
		sum += float64(v)
	}

	mean := sum / float64(len(frame))
	for i, v := range frame {
		frame[i] = clamp(float32(float64(v) - mean))
	}
}

func clamp(v float32) float32 {
	switch {
	case v < clipMin:
		return clipMin
	case v > clipMax:
		return clipMax
	default:
		return v
	}
}

// Reset zeroes the recurrent state and the statistics, and resets the
// resamplers and the gate.
func (p *FrameProcessor) Reset(ctx context.Context) error {
	logger.Debugf(ctx, "Reset")
	for i := range p.state {
		p.state[i] = 0
	}
	if p.inputResampler != nil {
		if err := p.inputResampler.Reset(); err != nil {
			return fmt.Errorf("unable to reset the input resampler: %w", err)
		}
	}
	if p.outputResampler != nil {
		if err := p.outputResampler.Reset(); err != nil {
			return fmt.Errorf("unable to reset the output resampler: %w", err)
		}
	}
	if p.gate != nil {
		p.gate.Reset()
	}
	p.frameCount = 0
	p.totalInferenceTime = 0
	return nil
}

// Flush returns the tail still held by the output resampler. It is used
// by offline processing at the end of the stream.
func (p *FrameProcessor) Flush(ctx context.Context) ([]float32, error) {
	if p.outputResampler == nil {
		return nil, nil
	}
	tail, err := p.outputResampler.Flush()
	if err != nil {
		return nil, fmt.Errorf("unable to flush the output resampler: %w", err)
	}
	logger.Debugf(ctx, "flushed %d samples", len(tail))
	return tail, nil
}

// SetVADThreshold changes the gate threshold without resetting its
// statistics.
func (p *FrameProcessor) SetVADThreshold(thresholdDB float64) {
	if p.gate != nil {
		p.gate.SetThreshold(thresholdDB)
	}
}

// State returns a copy of the recurrent model state.
func (p *FrameProcessor) State() []float32 {
	out := make([]float32, len(p.state))
	copy(out, p.state)
	return out
}
