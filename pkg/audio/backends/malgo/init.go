package malgo

import (
	"context"
	"io"

	"github.com/xaionaro-go/poise/pkg/audio/registry"
)

const (
	Name     = "malgo"
	Priority = 40
)

func init() {
	registry.RegisterFactory(Name, Priority, Factory{})
}

type Factory struct{}

func (Factory) NewBackend(context.Context) (io.Closer, error) {
	return New()
}
