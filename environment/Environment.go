// Package environment outlines the interfaces needed to implement
// concrete environments and vectors of environments stepped together
package environment

import (
	"github.com/samuelfneumann/mtppo/timestep"
)

// Starter samples the starting configuration of an episode
type Starter interface {
	Start() []int
}

// Ender determines whether an episode should be cut off. If so, it
// marks the TimeStep as the last of its episode.
type Ender interface {
	End(t *timestep.TimeStep) bool
}

// Environment is a single episodic environment with discrete actions.
// Step must not be called after a Last TimeStep until Reset is called.
type Environment interface {
	Seed(seed uint64)
	Reset() (timestep.TimeStep, error)
	Step(action int) (timestep.TimeStep, error)
	NumActions() int
	ObservationSpec() []Spec
}

// TrialResult describes a finished trial of a multi-trial environment
type TrialResult struct {
	Success bool

	// Steps is the number of steps the trial took and Shortest the
	// fewest steps it could have taken
	Steps    int
	Shortest int
}

// Score returns the efficiency of the trial in [0, 1]: the ratio of the
// shortest path to the steps taken for a successful trial, and 0 for an
// unsuccessful trial
func (t TrialResult) Score() float64 {
	if !t.Success || t.Steps <= 0 {
		return 0
	}
	if t.Shortest >= t.Steps {
		return 1
	}
	return float64(t.Shortest) / float64(t.Steps)
}

// Trialer is an Environment whose episodes are made of several trials,
// each with a goal the agent can move towards
type Trialer interface {
	Environment

	// Distance returns the number of steps left to the current goal
	Distance() int

	// TrialEnded returns whether the last call to Step finished a trial,
	// and if so, the result of the trial
	TrialEnded() (TrialResult, bool)
}

// Vector is a fixed-size vector of environments stepped in lockstep.
// Environments whose episodes end are reset automatically, and the
// observation returned for them is the first of the next episode.
type Vector interface {
	NumEnvs() int

	// Labels returns the task label of each environment
	Labels() []string

	NumActions() int
	ObservationSpec() []Spec
	Reset(seed uint64) (timestep.Observation, error)
	Step(actions []int) (timestep.Batch, error)
}
