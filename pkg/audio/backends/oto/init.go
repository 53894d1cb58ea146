package oto

import (
	"context"
	"io"

	"github.com/xaionaro-go/poise/pkg/audio/registry"
)

const (
	Name     = "oto"
	Priority = 50
)

func init() {
	registry.RegisterFactory(Name, Priority, Factory{})
}

type Factory struct{}

func (Factory) NewBackend(context.Context) (io.Closer, error) {
	return New(), nil
}
