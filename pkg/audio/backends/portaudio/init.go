package portaudio

import (
	"context"
	"io"

	"github.com/xaionaro-go/poise/pkg/audio/registry"
)

const (
	Name     = "portaudio"
	Priority = 60
)

func init() {
	registry.RegisterFactory(Name, Priority, Factory{})
}

type Factory struct{}

func (Factory) NewBackend(context.Context) (io.Closer, error) {
	return New()
}
