package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/poise/pkg/audio/pcm"
	"github.com/xaionaro-go/poise/pkg/audio/resampler"
	"github.com/xaionaro-go/poise/pkg/audio/types"
	"github.com/xaionaro-go/poise/pkg/frameprocessor"
	"github.com/xaionaro-go/poise/pkg/noisesuppression/engines"
	"github.com/xaionaro-go/poise/pkg/noisesuppression/implementations/onnx"
)

func main() {
	loggerLevel := logger.LevelInfo
	pflag.Var(&loggerLevel, "log-level", "Log level")
	isS16Flag := pflag.Bool("s16", false, "raw input and output are S16LE instead of float32LE")
	sampleRateFlag := pflag.Uint32("sample-rate", 48000, "sample rate of a raw input")
	engineFlag := pflag.String("engine", string(engines.NameONNX), fmt.Sprintf("inference engine, one of %v", engines.Names()))
	modelFlag := pflag.String("model", onnx.DefaultModelFile, "path to the ONNX model file")
	attenLimDBFlag := pflag.Float32("atten-lim-db", onnx.DefaultAttenLimDB, "attenuation limit of the model in dB")
	noVADFlag := pflag.Bool("no-vad", false, "run the model on every frame, including silence")
	qualityFlag := pflag.String("resampler-quality", "linear", "resampler quality: linear or sinc")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	pflag.Parse()

	if pflag.NArg() != 2 {
		fmt.Fprintf(os.Stderr, "expected exactly two arguments: <input-file> <output-file>\n")
		os.Exit(1)
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}

	if *netPprofAddr != "" {
		observability.Go(ctx, func(ctx context.Context) {
			logger.Errorf(ctx, "the pprof server stopped: %v", http.ListenAndServe(*netPprofAddr, nil))
		})
	}

	format := types.PCMFormatFloat32LE
	if *isS16Flag {
		format = types.PCMFormatS16LE
	}

	err := run(ctx, params{
		InputPath:   pflag.Arg(0),
		OutputPath:  pflag.Arg(1),
		RawFormat:   format,
		RawRate:     types.SampleRate(*sampleRateFlag),
		Engine:      *engineFlag,
		Model:       *modelFlag,
		AttenLimDB:  *attenLimDBFlag,
		EnableVAD:   !*noVADFlag,
		QualityName: *qualityFlag,
	})
	belt.Flush(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

type params struct {
	InputPath   string
	OutputPath  string
	RawFormat   types.PCMFormat
	RawRate     types.SampleRate
	Engine      string
	Model       string
	AttenLimDB  float32
	EnableVAD   bool
	QualityName string
}

func run(ctx context.Context, p params) error {
	input, err := readInput(p.InputPath, p.RawFormat, p.RawRate)
	if err != nil {
		return err
	}
	logger.Infof(ctx, "read %d samples at %dHz from %q", len(input.Samples), input.SampleRate, p.InputPath)

	engineName, err := engines.ParseName(p.Engine)
	if err != nil {
		return err
	}
	onnxCfg := onnx.DefaultConfig()
	onnxCfg.ModelPath = p.Model
	onnxCfg.AttenLimDB = p.AttenLimDB
	engine, err := engines.New(ctx, engineName, onnxCfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	quality, err := resampler.ParseQuality(p.QualityName)
	if err != nil {
		return err
	}
	cfg := frameprocessor.DefaultConfig()
	cfg.EnableVAD = p.EnableVAD
	cfg.ResamplerQuality = quality
	processor, err := frameprocessor.New(engine, cfg)
	if err != nil {
		return err
	}

	output, err := denoise(ctx, processor, input.Samples, input.SampleRate)
	if err != nil {
		return err
	}
	logger.Infof(ctx, "%s", processor.Stats())

	outFormat := p.RawFormat
	if outFormat == types.PCMFormatUndefined {
		outFormat = types.PCMFormatFloat32LE
	}
	return writeOutput(ctx, p.OutputPath, outFormat, output)
}

// denoise runs the whole signal through the processor and returns it at
// the input rate, trimmed to the input length.
func denoise(
	ctx context.Context,
	processor *frameprocessor.FrameProcessor,
	samples []float32,
	sampleRate types.SampleRate,
) ([]float32, error) {
	if err := processor.SetupResampler(ctx, sampleRate); err != nil {
		return nil, err
	}
	if err := processor.SetupOutputResampler(ctx, sampleRate); err != nil {
		return nil, err
	}

	chunkSize := processor.InputChunkSize()
	output := make([]float32, 0, len(samples)+chunkSize)
	chunk := make([]float32, chunkSize)
	for offset := 0; offset < len(samples); offset += chunkSize {
		n := copy(chunk, samples[offset:])
		clear(chunk[n:])
		out, err := processor.ProcessChunk(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("unable to process the chunk at sample %d: %w", offset, err)
		}
		output = append(output, out...)
	}

	tail, err := processor.Flush(ctx)
	if err != nil {
		return nil, err
	}
	output = append(output, tail...)
	if len(output) > len(samples) {
		output = output[:len(samples)]
	}
	return output, nil
}

func writeOutput(
	ctx context.Context,
	path string,
	format types.PCMFormat,
	samples []float32,
) (_err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("unable to open %q for writing: %w", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil && _err == nil {
			_err = fmt.Errorf("unable to close %q: %w", path, err)
		}
	}()

	raw := make([]byte, len(samples)*int(format.Size()))
	if _, err := pcm.Encode(format, raw, samples); err != nil {
		return fmt.Errorf("unable to encode the output: %w", err)
	}
	wc := datacounter.NewWriterCounter(f)
	if _, err := wc.Write(raw); err != nil {
		return fmt.Errorf("unable to write %q: %w", path, err)
	}
	logger.Infof(ctx, "written %d bytes to %q", wc.Count(), path)
	return nil
}
