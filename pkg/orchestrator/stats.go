package orchestrator

import (
	"fmt"

	"github.com/xaionaro-go/poise/pkg/frameprocessor"
)

type Stats struct {
	State     State
	Processor frameprocessor.Stats

	InputOverflowSamples uint64
	RenderUnderruns      uint64

	InputFill      int
	InputCapacity  int
	OutputFill     int
	OutputCapacity int
}

func (s Stats) String() string {
	return fmt.Sprintf(
		"%s %s overflow:%d underruns:%d in:%d/%d out:%d/%d",
		s.State, s.Processor, s.InputOverflowSamples, s.RenderUnderruns,
		s.InputFill, s.InputCapacity, s.OutputFill, s.OutputCapacity,
	)
}

// publish replaces an unread snapshot instead of blocking.
func publish(ch chan Stats, stats Stats) {
	for {
		select {
		case ch <- stats:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
