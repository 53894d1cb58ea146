package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/poise/pkg/audio/resampler"
	"github.com/xaionaro-go/poise/pkg/audio/types"
	"github.com/xaionaro-go/poise/pkg/errkind"
	"github.com/xaionaro-go/poise/pkg/noisesuppression/engines"
	"github.com/xaionaro-go/poise/pkg/vad/implementations/webrtc"
	"gopkg.in/yaml.v3"
)

var (
	validBackends    = []string{BackendAuto, BackendPortAudio, BackendPulseAudio, BackendHybrid}
	validCapture     = []string{"malgo", BackendPortAudio, BackendPulseAudio}
	validRender      = []string{"oto", BackendPortAudio, BackendPulseAudio}
	validClassifiers = []string{ClassifierNone, ClassifierWebRTC}
	validProcessing  = []string{ProcessingWorker, ProcessingRender}
)

// Load reads the YAML file at path over the defaults and validates the
// result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errkind.Config(fmt.Errorf("unable to open the config %q: %w", path, err))
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("unable to load the config %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults; keys absent in
// the input keep their default values, unknown keys are an error.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errkind.Config(fmt.Errorf("unable to decode yaml: %w", err))
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate returns all the problems found in cfg at once.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.SampleRate == 0 {
		errs = append(errs, fmt.Errorf("sample_rate must be positive"))
	}
	if cfg.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("frame_size %d must be positive", cfg.FrameSize))
	}

	if _, err := engines.ParseName(cfg.Model.Engine); err != nil {
		errs = append(errs, fmt.Errorf("model.engine: %w", err))
	}
	if cfg.Model.StateSize < 0 {
		errs = append(errs, fmt.Errorf("model.state_size %d is negative", cfg.Model.StateSize))
	}
	if cfg.Model.IntraOpThreads < 1 || cfg.Model.InterOpThreads < 1 {
		errs = append(errs, fmt.Errorf("model.intra_op_threads and model.inter_op_threads must be at least 1"))
	}

	if cfg.VAD.HangTime < 0 {
		errs = append(errs, fmt.Errorf("vad.hang_time %v is negative", cfg.VAD.HangTime))
	}
	if !slices.Contains(validClassifiers, cfg.VAD.Classifier) {
		errs = append(errs, fmt.Errorf("vad.classifier %q is invalid; valid values: %v", cfg.VAD.Classifier, validClassifiers))
	}
	if cfg.VAD.Classifier == ClassifierWebRTC {
		if cfg.VAD.WebRTCMode < webrtc.ModeQuality || cfg.VAD.WebRTCMode > webrtc.ModeVeryAggressive {
			errs = append(errs, fmt.Errorf("vad.webrtc_mode %d is out of range [0, 3]", cfg.VAD.WebRTCMode))
		}
		if !webrtc.SupportsFrameSize(types.SampleRate(cfg.SampleRate), cfg.FrameSize) {
			errs = append(errs, fmt.Errorf("the webrtc classifier does not support %d-sample frames at %dHz", cfg.FrameSize, cfg.SampleRate))
		}
	}

	if !(cfg.PostProcess.LimiterThreshold > 0 && cfg.PostProcess.LimiterThreshold <= 1) {
		errs = append(errs, fmt.Errorf("postprocess.limiter_threshold %v is out of range (0, 1]", cfg.PostProcess.LimiterThreshold))
	}
	if _, err := resampler.ParseQuality(cfg.Resampler.Quality); err != nil {
		errs = append(errs, fmt.Errorf("resampler.quality: %w", err))
	}

	if cfg.Buffers.Input <= 0 || cfg.Buffers.Output <= 0 {
		errs = append(errs, fmt.Errorf("buffers.input and buffers.output must be positive"))
	}

	if !slices.Contains(validBackends, cfg.Backend.Name) {
		errs = append(errs, fmt.Errorf("backend.name %q is invalid; valid values: %v", cfg.Backend.Name, validBackends))
	}
	if cfg.Backend.Name == BackendHybrid {
		if !slices.Contains(validCapture, cfg.Backend.HybridCapture) {
			errs = append(errs, fmt.Errorf("backend.hybrid_capture %q is invalid; valid values: %v", cfg.Backend.HybridCapture, validCapture))
		}
		if !slices.Contains(validRender, cfg.Backend.HybridRender) {
			errs = append(errs, fmt.Errorf("backend.hybrid_render %q is invalid; valid values: %v", cfg.Backend.HybridRender, validRender))
		}
	}
	if !slices.Contains(validProcessing, cfg.Backend.Processing) {
		errs = append(errs, fmt.Errorf("backend.processing %q is invalid; valid values: %v", cfg.Backend.Processing, validProcessing))
	}
	if cfg.Backend.RenderRetries < 1 {
		errs = append(errs, fmt.Errorf("backend.render_retries %d must be at least 1", cfg.Backend.RenderRetries))
	}
	if cfg.Backend.RenderRetryDelay < 0 {
		errs = append(errs, fmt.Errorf("backend.render_retry_delay %v is negative", cfg.Backend.RenderRetryDelay))
	}
	if cfg.Backend.RenderRetryBackoff < 1 {
		errs = append(errs, fmt.Errorf("backend.render_retry_backoff %v must be at least 1", cfg.Backend.RenderRetryBackoff))
	}
	if cfg.Backend.FramesPerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("backend.frames_per_buffer %d must be positive", cfg.Backend.FramesPerBuffer))
	}
	if cfg.Backend.StopTimeout <= 0 || cfg.Backend.IdleSleep <= 0 {
		errs = append(errs, fmt.Errorf("backend.stop_timeout and backend.idle_sleep must be positive"))
	}

	if cfg.StatsInterval <= 0 {
		errs = append(errs, fmt.Errorf("stats_interval %v must be positive", cfg.StatsInterval))
	}
	var level logger.Level
	if err := level.Set(cfg.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level %q is invalid: %w", cfg.LogLevel, err))
	}

	if len(errs) == 0 {
		return nil
	}
	return errkind.Config(errors.Join(errs...))
}
