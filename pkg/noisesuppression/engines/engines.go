// Package engines constructs a noise suppression engine by its name.
package engines

import (
	"context"
	"fmt"
	"strings"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/poise/pkg/errkind"
	"github.com/xaionaro-go/poise/pkg/noisesuppression"
	"github.com/xaionaro-go/poise/pkg/noisesuppression/implementations/onnx"
	"github.com/xaionaro-go/poise/pkg/noisesuppression/implementations/rnnoise"
)

type Name string

const (
	NameONNX        = Name("onnx")
	NameRNNoise     = Name("rnnoise")
	NamePassthrough = Name("passthrough")
)

func Names() []Name {
	return []Name{NameONNX, NameRNNoise, NamePassthrough}
}

func ParseName(s string) (Name, error) {
	for _, name := range Names() {
		if strings.EqualFold(s, string(name)) {
			return name, nil
		}
	}
	return "", errkind.Configf("unknown engine %q, expected one of %v", s, Names())
}

func New(
	ctx context.Context,
	name Name,
	onnxCfg onnx.Config,
) (_ret noisesuppression.Engine, _err error) {
	logger.Debugf(ctx, "engines.New: %s", name)
	defer func() { logger.Debugf(ctx, "/engines.New: %s: %v", name, _err) }()

	switch name {
	case NameONNX:
		e, err := onnx.New(ctx, onnxCfg)
		if err != nil {
			return nil, fmt.Errorf("unable to initialize the ONNX engine: %w", err)
		}
		return e, nil
	case NameRNNoise:
		e, err := rnnoise.New()
		if err != nil {
			return nil, fmt.Errorf("unable to initialize RNNoise: %w", err)
		}
		return e, nil
	case NamePassthrough:
		return noisesuppression.NewPassthrough(onnxCfg.StateSize), nil
	default:
		return nil, errkind.Configf("unknown engine %q", name)
	}
}
