package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/poise/pkg/audio/resampler"
	"github.com/xaionaro-go/poise/pkg/audio/types"
	"github.com/xaionaro-go/poise/pkg/config"
	"github.com/xaionaro-go/poise/pkg/frameprocessor"
	"github.com/xaionaro-go/poise/pkg/metrics"
	"github.com/xaionaro-go/poise/pkg/noisesuppression/engines"
	"github.com/xaionaro-go/poise/pkg/orchestrator"
	"github.com/xaionaro-go/poise/pkg/vad"
	"github.com/xaionaro-go/poise/pkg/vad/implementations/webrtc"
)

type flags struct {
	LoggerLevel       logger.Level
	ConfigPath        string
	NetPprofAddr      string
	MetricsListenAddr string
	Model             string
	Engine            string
	InputDevice       string
	OutputDevice      string
	Loopback          bool
	NoVAD             bool
	VADThreshold      float64
	AttenLimDB        float32
	Backend           string
	ListDevices       bool
	StereoOutput      bool
}

func parseFlags() flags {
	f := flags{
		LoggerLevel: logger.LevelInfo,
	}
	pflag.Var(&f.LoggerLevel, "log-level", "Log level")
	pflag.StringVar(&f.ConfigPath, "config", "", "path to a YAML config file")
	pflag.StringVar(&f.NetPprofAddr, "net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	pflag.StringVar(&f.MetricsListenAddr, "metrics-listen-addr", "", "an address to serve Prometheus metrics at /metrics")
	pflag.StringVar(&f.Model, "model", "", "path to the ONNX model file")
	pflag.StringVar(&f.Engine, "engine", "", fmt.Sprintf("inference engine, one of %v", engines.Names()))
	pflag.StringVar(&f.InputDevice, "input-device", "", "capture device ID (see --list-devices)")
	pflag.StringVar(&f.OutputDevice, "output-device", "", "render device ID (see --list-devices)")
	pflag.BoolVar(&f.Loopback, "loopback", false, "capture what the system plays instead of a microphone")
	pflag.BoolVar(&f.NoVAD, "no-vad", false, "run the model on every frame, including silence")
	pflag.Float64Var(&f.VADThreshold, "vad-threshold", 0, "voice activity threshold in dBFS")
	pflag.Float32Var(&f.AttenLimDB, "atten-lim-db", 0, "attenuation limit of the model in dB")
	pflag.StringVar(&f.Backend, "backend", "", "audio backend: auto, portaudio, pulseaudio or hybrid")
	pflag.BoolVar(&f.ListDevices, "list-devices", false, "print the devices of the selected backend and exit")
	pflag.BoolVar(&f.StereoOutput, "stereo-output", true, "duplicate the mono output into two channels")
	pflag.Parse()
	return f
}

// applyFlags overrides the config values with the flags given explicitly.
func applyFlags(cfg *config.Config, f flags) {
	changed := pflag.CommandLine.Changed
	if changed("log-level") {
		cfg.LogLevel = f.LoggerLevel.String()
	}
	if changed("metrics-listen-addr") {
		cfg.MetricsListenAddr = f.MetricsListenAddr
	}
	if changed("model") {
		cfg.Model.Path = f.Model
	}
	if changed("engine") {
		cfg.Model.Engine = f.Engine
	}
	if changed("input-device") {
		cfg.Devices.Input = f.InputDevice
	}
	if changed("output-device") {
		cfg.Devices.Output = f.OutputDevice
	}
	if changed("loopback") {
		cfg.Devices.Loopback = f.Loopback
	}
	if changed("no-vad") {
		cfg.VAD.Enabled = !f.NoVAD
	}
	if changed("vad-threshold") {
		cfg.VAD.ThresholdDB = f.VADThreshold
	}
	if changed("atten-lim-db") {
		cfg.Model.AttenLimDB = f.AttenLimDB
	}
	if changed("backend") {
		cfg.Backend.Name = f.Backend
	}
	if changed("stereo-output") {
		cfg.Devices.StereoOutput = f.StereoOutput
	}
}

func loadConfig(f flags) (*config.Config, error) {
	cfg := config.Default()
	if f.ConfigPath != "" {
		loaded, err := config.Load(f.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	applyFlags(&cfg, f)
	if err := config.Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	f := parseFlags()
	cfg, err := loadConfig(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	var loggerLevel logger.Level
	if err := loggerLevel.Set(cfg.LogLevel); err != nil {
		loggerLevel = logger.LevelInfo
	}
	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}

	err = run(ctx, cfg, f)
	belt.Flush(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, f flags) (_err error) {
	ctx, cancelFn := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancelFn()

	if f.NetPprofAddr != "" {
		observability.Go(ctx, func(ctx context.Context) {
			logger.Errorf(ctx, "the pprof server stopped: %v", http.ListenAndServe(f.NetPprofAddr, nil))
		})
	}

	m, err := setupMetrics(ctx, cfg.MetricsListenAddr)
	if err != nil {
		return err
	}

	backend, err := newBackend(ctx, cfg.Backend)
	if err != nil {
		return fmt.Errorf("unable to initialize an audio backend: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warnf(ctx, "unable to close the audio backend: %v", err)
		}
	}()

	if f.ListDevices {
		return listDevices(ctx, os.Stdout, backend)
	}

	processor, closeEngine, err := newProcessor(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer closeEngine()

	processing, err := orchestrator.ParseProcessing(cfg.Backend.Processing)
	if err != nil {
		return err
	}
	o, err := orchestrator.New(processor, backend, backend, orchestrator.Config{
		InputDevice:        types.DeviceID(cfg.Devices.Input),
		OutputDevice:       types.DeviceID(cfg.Devices.Output),
		Loopback:           cfg.Devices.Loopback,
		InputBuffer:        cfg.Buffers.Input,
		OutputBuffer:       cfg.Buffers.Output,
		StereoOutput:       cfg.Devices.StereoOutput,
		RenderRetries:      cfg.Backend.RenderRetries,
		RenderRetryDelay:   cfg.Backend.RenderRetryDelay,
		RenderRetryBackoff: cfg.Backend.RenderRetryBackoff,
		FramesPerBuffer:    cfg.Backend.FramesPerBuffer,
		StopTimeout:        cfg.Backend.StopTimeout,
		IdleSleep:          cfg.Backend.IdleSleep,
		Processing:         processing,
		Metrics:            m,
	})
	if err != nil {
		return err
	}

	observability.Go(ctx, func(ctx context.Context) {
		logStats(ctx, o, cfg.StatsInterval)
	})

	logger.Infof(ctx, "starting...")
	err = o.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("the session failed: %w", err)
	}
	logger.Infof(ctx, "stopped")
	return nil
}

func setupMetrics(ctx context.Context, listenAddr string) (*metrics.Metrics, error) {
	if listenAddr == "" {
		return metrics.Noop(), nil
	}
	mp, _, err := metrics.InitProvider(ctx)
	if err != nil {
		return nil, err
	}
	m, err := metrics.NewMetrics(mp)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	observability.Go(ctx, func(ctx context.Context) {
		logger.Errorf(ctx, "the metrics server stopped: %v", http.ListenAndServe(listenAddr, mux))
	})
	return m, nil
}

func newProcessor(
	ctx context.Context,
	cfg *config.Config,
	m *metrics.Metrics,
) (*frameprocessor.FrameProcessor, func(), error) {
	engineName, err := engines.ParseName(cfg.Model.Engine)
	if err != nil {
		return nil, nil, err
	}
	engine, err := engines.New(ctx, engineName, cfg.ONNX())
	if err != nil {
		return nil, nil, err
	}
	closeEngine := func() {
		if err := engine.Close(); err != nil {
			logger.Warnf(ctx, "unable to close the engine: %v", err)
		}
	}

	quality, err := resampler.ParseQuality(cfg.Resampler.Quality)
	if err != nil {
		closeEngine()
		return nil, nil, err
	}

	pCfg := frameprocessor.Config{
		TargetSampleRate: types.SampleRate(cfg.SampleRate),
		FrameSize:        cfg.FrameSize,
		EnableVAD:        cfg.VAD.Enabled,
		VADThresholdDB:   cfg.VAD.ThresholdDB,
		VADHangTime:      cfg.VAD.HangTime,
		LimiterThreshold: cfg.PostProcess.LimiterThreshold,
		ResamplerQuality: quality,
		Metrics:          m,
	}
	if cfg.VAD.Enabled && cfg.VAD.Classifier == config.ClassifierWebRTC {
		var classifier vad.Classifier
		classifier, err = webrtc.New(cfg.VAD.WebRTCMode, pCfg.TargetSampleRate)
		if err != nil {
			closeEngine()
			return nil, nil, err
		}
		pCfg.VADClassifier = classifier
	}

	processor, err := frameprocessor.New(engine, pCfg)
	if err != nil {
		closeEngine()
		return nil, nil, err
	}
	return processor, closeEngine, nil
}

func logStats(ctx context.Context, o *orchestrator.Orchestrator, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	var (
		latest orchestrator.Stats
		have   bool
	)
	for {
		select {
		case <-ctx.Done():
			return
		case latest = <-o.Stats():
			have = true
		case <-t.C:
			if have {
				logger.Infof(ctx, "%s", latest)
			}
		}
	}
}
