// Package experiment implements functionality for running a multi-task
// PPO training experiment. Each task collects rollouts from its own
// vector of environments and turns them into PPO loss records. Records
// of all tasks are combined in lockstep into a single update of a shared
// model.
package experiment

import (
	"context"
	"errors"
)

var (
	// ErrNaNGradient is returned when a gradient contains a NaN. No
	// parameters are updated on the step which produced it.
	ErrNaNGradient = errors.New("NaN gradient")

	// ErrBudgetReached is returned when the environment step budget of
	// an experiment is exhausted
	ErrBudgetReached = errors.New("step budget reached")
)

// Experiment outlines structs that can run experiments. The Step()
// method performs a single update of the trained model. The Run()
// method performs updates until the step budget is exhausted or ctx is
// cancelled. The Save() function saves all data tracked during the
// experiment.
type Experiment interface {
	Step() error
	Run(ctx context.Context) error
	Save() error
}
