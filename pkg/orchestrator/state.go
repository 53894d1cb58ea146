package orchestrator

import (
	"fmt"
)

type State int32

const (
	StateIdle = State(iota)
	StateOpening
	StateRunning
	StateStopping
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown_state_%d", int32(s))
	}
}
