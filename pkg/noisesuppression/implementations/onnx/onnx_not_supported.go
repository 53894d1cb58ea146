//go:build !onnx
// +build !onnx

package onnx

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/poise/pkg/noisesuppression"
)

type Engine = noisesuppression.Passthrough

func New(
	ctx context.Context,
	cfg Config,
) (*Engine, error) {
	return nil, fmt.Errorf("built without tag 'onnx'")
}
