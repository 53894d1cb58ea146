package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/xaionaro-go/poise/pkg/audio/types"
	"github.com/xaionaro-go/poise/pkg/errkind"
	"github.com/xaionaro-go/poise/pkg/metrics"
)

// Processing selects the goroutine running the FrameProcessor.
type Processing int

const (
	ProcessingUndefined = Processing(iota)

	// ProcessingWorker runs the FrameProcessor in a dedicated goroutine.
	ProcessingWorker

	// ProcessingRender runs the FrameProcessor inside the render callback.
	ProcessingRender
)

func (p Processing) String() string {
	switch p {
	case ProcessingUndefined:
		return "undefined"
	case ProcessingWorker:
		return "worker"
	case ProcessingRender:
		return "render"
	default:
		return fmt.Sprintf("unknown_processing_%d", int(p))
	}
}

func ParseProcessing(s string) (Processing, error) {
	switch strings.ToLower(s) {
	case "", "worker":
		return ProcessingWorker, nil
	case "render":
		return ProcessingRender, nil
	}
	return ProcessingUndefined, errkind.Configf("unknown processing mode %q", s)
}

const (
	DefaultBufferDuration     = 100 * time.Millisecond
	DefaultRenderRetries      = 3
	DefaultRenderRetryDelay   = 500 * time.Millisecond
	DefaultRenderRetryBackoff = 1.5
	DefaultFramesPerBuffer    = 480
	DefaultStopTimeout        = time.Second
	DefaultIdleSleep          = time.Millisecond
	DefaultStatsInterval      = 100 * time.Millisecond
)

type Config struct {
	InputDevice  types.DeviceID
	OutputDevice types.DeviceID

	// Loopback resolves InputDevice in the loopback role, so the
	// pipeline denoises what the system plays.
	Loopback bool

	InputBuffer  time.Duration
	OutputBuffer time.Duration

	// StereoOutput duplicates the mono output into two channels if the
	// render device has at least two.
	StereoOutput bool

	RenderRetries      int
	RenderRetryDelay   time.Duration
	RenderRetryBackoff float64
	FramesPerBuffer    int

	StopTimeout   time.Duration
	IdleSleep     time.Duration
	Processing    Processing
	StatsInterval time.Duration

	Metrics *metrics.Metrics
}

func DefaultConfig() Config {
	return Config{
		InputBuffer:        DefaultBufferDuration,
		OutputBuffer:       DefaultBufferDuration,
		StereoOutput:       true,
		RenderRetries:      DefaultRenderRetries,
		RenderRetryDelay:   DefaultRenderRetryDelay,
		RenderRetryBackoff: DefaultRenderRetryBackoff,
		FramesPerBuffer:    DefaultFramesPerBuffer,
		StopTimeout:        DefaultStopTimeout,
		IdleSleep:          DefaultIdleSleep,
		Processing:         ProcessingWorker,
		StatsInterval:      DefaultStatsInterval,
	}
}

func (cfg *Config) validate() error {
	switch {
	case cfg.InputBuffer <= 0 || cfg.OutputBuffer <= 0:
		return errkind.Configf("buffer durations must be positive: input %v, output %v", cfg.InputBuffer, cfg.OutputBuffer)
	case cfg.RenderRetries < 1:
		return errkind.Configf("at least one render open attempt is required, got %d", cfg.RenderRetries)
	case cfg.RenderRetryDelay < 0:
		return errkind.Configf("the render retry delay is negative: %v", cfg.RenderRetryDelay)
	case cfg.RenderRetryBackoff < 1:
		return errkind.Configf("the render retry backoff must be at least 1, got %v", cfg.RenderRetryBackoff)
	case cfg.FramesPerBuffer <= 0:
		return errkind.Configf("frames per buffer must be positive, got %d", cfg.FramesPerBuffer)
	case cfg.StopTimeout <= 0 || cfg.IdleSleep <= 0:
		return errkind.Configf("the stop timeout and the idle sleep must be positive: %v, %v", cfg.StopTimeout, cfg.IdleSleep)
	}
	switch cfg.Processing {
	case ProcessingUndefined:
		cfg.Processing = ProcessingWorker
	case ProcessingWorker, ProcessingRender:
	default:
		return errkind.Configf("unknown processing mode %s", cfg.Processing)
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = DefaultStatsInterval
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Noop()
	}
	return nil
}
