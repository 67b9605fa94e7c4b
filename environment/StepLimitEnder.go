package environment

import "github.com/samuelfneumann/mtppo/timestep"

// StepLimit implements the Ender interface to cut episodes off at a
// specific number of steps
type StepLimit struct {
	episodeSteps int
}

// NewStepLimit creates and returns a new step limit
func NewStepLimit(episodeSteps int) StepLimit {
	return StepLimit{episodeSteps}
}

// End determines whether or not the current episode should be cut off,
// returning a boolean to indicate truncation. If the episode should be
// cut off, End() marks the timestep as the last, truncated, step of
// its episode.
func (s StepLimit) End(t *timestep.TimeStep) bool {
	if s.episodeSteps > 0 && t.Number >= s.episodeSteps && !t.Last() {
		t.End(true)
		return true
	}
	return false
}
