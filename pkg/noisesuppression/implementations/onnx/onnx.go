//go:build onnx
// +build onnx

package onnx

import (
	"context"
	"fmt"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/poise/pkg/errkind"
	"github.com/xaionaro-go/poise/pkg/noisesuppression"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

type Engine struct {
	Locker sync.Mutex
	Config Config

	session    *ort.DynamicAdvancedSession
	inputFrame *ort.Tensor[float32]
	states     *ort.Tensor[float32]
	attenLimDB *ort.Scalar[float32]
}

var _ noisesuppression.Engine = (*Engine)(nil)

func initEnvironment(libPath string) error {
	ortInitOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

func New(
	ctx context.Context,
	cfg Config,
) (_ret *Engine, _err error) {
	logger.Debugf(ctx, "onnx.New: %#+v", cfg)
	defer func() { logger.Debugf(ctx, "/onnx.New: %v", _err) }()

	if cfg.FrameSize <= 0 || cfg.StateSize <= 0 {
		return nil, errkind.Configf("invalid model dimensions: frame_size:%d state_size:%d", cfg.FrameSize, cfg.StateSize)
	}
	modelPath, err := ResolveModelPath(cfg.ModelPath)
	if err != nil {
		return nil, err
	}
	cfg.ModelPath = modelPath

	if err := initEnvironment(cfg.SharedLibraryPath); err != nil {
		return nil, fmt.Errorf("unable to initialize the ONNX Runtime environment: %w", err)
	}

	e := &Engine{Config: cfg}
	defer func() {
		if _err != nil {
			e.Close()
		}
	}()

	if e.inputFrame, err = ort.NewEmptyTensor[float32](ort.NewShape(int64(cfg.FrameSize))); err != nil {
		return nil, fmt.Errorf("unable to create the input frame tensor: %w", err)
	}
	if e.states, err = ort.NewEmptyTensor[float32](ort.NewShape(int64(cfg.StateSize))); err != nil {
		return nil, fmt.Errorf("unable to create the states tensor: %w", err)
	}
	if e.attenLimDB, err = ort.NewScalar(cfg.AttenLimDB); err != nil {
		return nil, fmt.Errorf("unable to create the attenuation limit scalar: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("unable to create session options: %w", err)
	}
	defer options.Destroy()
	if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
		return nil, fmt.Errorf("unable to set intra-op threads to %d: %w", cfg.IntraOpThreads, err)
	}
	if err := options.SetInterOpNumThreads(cfg.InterOpThreads); err != nil {
		return nil, fmt.Errorf("unable to set inter-op threads to %d: %w", cfg.InterOpThreads, err)
	}

	// the enhanced frame has a dynamic shape, so outputs are allocated per run
	e.session, err = ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{InputNameFrame, InputNameStates, InputNameAttenLimDB},
		[]string{OutputNameEnhanced, OutputNameNewStates, OutputNameLSNR},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create a session for model %q: %w", cfg.ModelPath, err)
	}
	return e, nil
}

func (e *Engine) FrameSize() int {
	return e.Config.FrameSize
}

func (e *Engine) StateSize() int {
	return e.Config.StateSize
}

func (e *Engine) Infer(
	ctx context.Context,
	frame []float32,
	state []float32,
) (_enhanced []float32, _state []float32, _err error) {
	logger.Tracef(ctx, "Infer")
	defer func() { logger.Tracef(ctx, "/Infer: %v", _err) }()

	if len(frame) != e.Config.FrameSize {
		return nil, nil, fmt.Errorf("expected a frame of %d samples, but received %d", e.Config.FrameSize, len(frame))
	}
	if len(state) != e.Config.StateSize {
		return nil, nil, fmt.Errorf("expected a state of %d values, but received %d", e.Config.StateSize, len(state))
	}

	e.Locker.Lock()
	defer e.Locker.Unlock()
	if e.session == nil {
		return nil, nil, fmt.Errorf("the engine is closed")
	}

	copy(e.inputFrame.GetData(), frame)
	copy(e.states.GetData(), state)
	outputs := []ort.Value{nil, nil, nil}
	if err := e.session.Run([]ort.Value{e.inputFrame, e.states, e.attenLimDB}, outputs); err != nil {
		return nil, nil, fmt.Errorf("unable to run the model: %w", err)
	}
	defer func() {
		for _, output := range outputs {
			if output != nil {
				output.Destroy()
			}
		}
	}()

	enhanced, err := tensorData(outputs[0], OutputNameEnhanced)
	if err != nil {
		return nil, nil, err
	}
	newState, err := tensorData(outputs[1], OutputNameNewStates)
	if err != nil {
		return nil, nil, err
	}
	if lsnr, err := tensorData(outputs[2], OutputNameLSNR); err == nil {
		logger.Tracef(ctx, "lsnr: %v", lsnr)
	}
	return enhanced, newState, nil
}

// tensorData copies the output out of ORT-owned memory.
func tensorData(v ort.Value, name string) ([]float32, error) {
	t, ok := v.(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("output %q has an unexpected type %T", name, v)
	}
	data := t.GetData()
	out := make([]float32, len(data))
	copy(out, data)
	return out, nil
}

func (e *Engine) Close() error {
	e.Locker.Lock()
	defer e.Locker.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	if e.inputFrame != nil {
		e.inputFrame.Destroy()
		e.inputFrame = nil
	}
	if e.states != nil {
		e.states.Destroy()
		e.states = nil
	}
	if e.attenLimDB != nil {
		e.attenLimDB.Destroy()
		e.attenLimDB = nil
	}
	return nil
}
