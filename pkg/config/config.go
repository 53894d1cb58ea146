// Package config describes the YAML configuration of the denoiser.
package config

import (
	"time"

	"github.com/xaionaro-go/poise/pkg/noisesuppression/implementations/onnx"
)

type Config struct {
	SampleRate        uint32        `yaml:"sample_rate"`
	FrameSize         int           `yaml:"frame_size"`
	Model             Model         `yaml:"model"`
	VAD               VAD           `yaml:"vad"`
	PostProcess       PostProcess   `yaml:"postprocess"`
	Resampler         Resampler     `yaml:"resampler"`
	Buffers           Buffers       `yaml:"buffers"`
	Backend           Backend       `yaml:"backend"`
	Devices           Devices       `yaml:"devices"`
	StatsInterval     time.Duration `yaml:"stats_interval"`
	LogLevel          string        `yaml:"log_level"`
	MetricsListenAddr string        `yaml:"metrics_listen_addr"`
}

type Model struct {
	Engine         string  `yaml:"engine"`
	Path           string  `yaml:"path"`
	StateSize      int     `yaml:"state_size"`
	AttenLimDB     float32 `yaml:"atten_lim_db"`
	IntraOpThreads int     `yaml:"intra_op_threads"`
	InterOpThreads int     `yaml:"inter_op_threads"`
}

type VAD struct {
	Enabled     bool          `yaml:"enabled"`
	ThresholdDB float64       `yaml:"threshold_db"`
	HangTime    time.Duration `yaml:"hang_time"`

	// Classifier is "none" or "webrtc".
	Classifier string `yaml:"classifier"`
	WebRTCMode int    `yaml:"webrtc_mode"`
}

type PostProcess struct {
	LimiterThreshold float64 `yaml:"limiter_threshold"`
}

type Resampler struct {
	Quality string `yaml:"quality"`
}

type Buffers struct {
	Input  time.Duration `yaml:"input"`
	Output time.Duration `yaml:"output"`
}

type Backend struct {
	Name          string `yaml:"name"`
	HybridCapture string `yaml:"hybrid_capture"`
	HybridRender  string `yaml:"hybrid_render"`

	// Processing is "worker" or "render".
	Processing string `yaml:"processing"`

	RenderRetries      int           `yaml:"render_retries"`
	RenderRetryDelay   time.Duration `yaml:"render_retry_delay"`
	RenderRetryBackoff float64       `yaml:"render_retry_backoff"`
	FramesPerBuffer    int           `yaml:"frames_per_buffer"`
	StopTimeout        time.Duration `yaml:"stop_timeout"`
	IdleSleep          time.Duration `yaml:"idle_sleep"`
}

type Devices struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`

	// Loopback captures what the system plays instead of a microphone.
	Loopback     bool `yaml:"loopback"`
	StereoOutput bool `yaml:"stereo_output"`
}

const (
	BackendAuto       = "auto"
	BackendPortAudio  = "portaudio"
	BackendPulseAudio = "pulseaudio"
	BackendHybrid     = "hybrid"

	ClassifierNone   = "none"
	ClassifierWebRTC = "webrtc"

	ProcessingWorker = "worker"
	ProcessingRender = "render"
)

func Default() Config {
	return Config{
		SampleRate: 48000,
		FrameSize:  480,
		Model: Model{
			Engine:         "onnx",
			Path:           onnx.DefaultModelFile,
			StateSize:      onnx.DefaultStateSize,
			AttenLimDB:     onnx.DefaultAttenLimDB,
			IntraOpThreads: onnx.DefaultIntraOpThreads,
			InterOpThreads: onnx.DefaultInterOpThreads,
		},
		VAD: VAD{
			Enabled:     true,
			ThresholdDB: -40,
			HangTime:    300 * time.Millisecond,
			Classifier:  ClassifierNone,
			WebRTCMode:  2,
		},
		PostProcess: PostProcess{
			LimiterThreshold: 0.98,
		},
		Resampler: Resampler{
			Quality: "linear",
		},
		Buffers: Buffers{
			Input:  100 * time.Millisecond,
			Output: 100 * time.Millisecond,
		},
		Backend: Backend{
			Name:               BackendAuto,
			HybridCapture:      "malgo",
			HybridRender:       "oto",
			Processing:         ProcessingWorker,
			RenderRetries:      3,
			RenderRetryDelay:   500 * time.Millisecond,
			RenderRetryBackoff: 1.5,
			FramesPerBuffer:    480,
			StopTimeout:        time.Second,
			IdleSleep:          time.Millisecond,
		},
		Devices: Devices{
			StereoOutput: true,
		},
		StatsInterval: time.Second,
		LogLevel:      "info",
	}
}

func (cfg Config) ONNX() onnx.Config {
	onnxCfg := onnx.DefaultConfig()
	onnxCfg.ModelPath = cfg.Model.Path
	onnxCfg.FrameSize = cfg.FrameSize
	onnxCfg.StateSize = cfg.Model.StateSize
	onnxCfg.AttenLimDB = cfg.Model.AttenLimDB
	onnxCfg.IntraOpThreads = cfg.Model.IntraOpThreads
	onnxCfg.InterOpThreads = cfg.Model.InterOpThreads
	return onnxCfg
}
