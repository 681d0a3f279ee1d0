package loadgen

import (
	"errors"
	"fmt"
)

var (
	ErrLifecycleOrder = errors.New("loadgen: invalid lifecycle transition")
	ErrInvalidConfig  = errors.New("loadgen: invalid config")
)

// Phase describes the generator run lifecycle. Transitions only move forward.
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseRunning    Phase = "running"
	PhaseDraining   Phase = "draining"
	PhaseFinished   Phase = "finished"
)

var nextPhase = map[Phase]Phase{
	PhaseNotStarted: PhaseRunning,
	PhaseRunning:    PhaseDraining,
	PhaseDraining:   PhaseFinished,
}

func transitionError(from, to Phase) error {
	return fmt.Errorf("%w: %s -> %s", ErrLifecycleOrder, from, to)
}
