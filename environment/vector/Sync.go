// Package vector implements vectors of environments which are stepped
// together
package vector

import (
	"fmt"

	"github.com/samuelfneumann/mtppo/environment"
	"github.com/samuelfneumann/mtppo/timestep"
)

// Sync steps a vector of environments one after another in the calling
// goroutine. Environments whose episodes end are reset immediately. The
// reward, end flags, and info of the finished episode are reported for
// that step, along with the first observation of the next episode.
type Sync struct {
	envs   []environment.Environment
	labels []string
}

// NewSync returns a new Sync vector of the given environments, all
// labelled with the same task label. The environments must share an
// observation specification and action count.
func NewSync(envs []environment.Environment, label string) (*Sync, error) {
	if len(envs) == 0 {
		return nil, fmt.Errorf("newSync: no environments")
	}

	actions := envs[0].NumActions()
	specs := envs[0].ObservationSpec()
	for i, e := range envs[1:] {
		if e.NumActions() != actions {
			return nil, fmt.Errorf("newSync: environment %d has %d actions, "+
				"want %d", i+1, e.NumActions(), actions)
		}
		if !sameSpecs(e.ObservationSpec(), specs) {
			return nil, fmt.Errorf("newSync: environment %d has a different "+
				"observation specification", i+1)
		}
	}

	labels := make([]string, len(envs))
	for i := range labels {
		labels[i] = label
	}
	return &Sync{envs: envs, labels: labels}, nil
}

// NumEnvs returns the number of environments
func (s *Sync) NumEnvs() int {
	return len(s.envs)
}

// Labels returns the task label of each environment
func (s *Sync) Labels() []string {
	return append([]string(nil), s.labels...)
}

// NumActions returns the number of actions of each environment
func (s *Sync) NumActions() int {
	return s.envs[0].NumActions()
}

// ObservationSpec returns the observation specification of each
// environment
func (s *Sync) ObservationSpec() []environment.Spec {
	return s.envs[0].ObservationSpec()
}

// Reset seeds environment i with seed + i and resets it
func (s *Sync) Reset(seed uint64) (timestep.Observation, error) {
	features := make([]timestep.Features, len(s.envs))
	for i, e := range s.envs {
		e.Seed(seed + uint64(i))
		step, err := e.Reset()
		if err != nil {
			return nil, fmt.Errorf("reset: environment %d: %w", i, err)
		}
		features[i] = step.Observation
	}
	return timestep.Stack(features)
}

// Step takes one step in each environment
func (s *Sync) Step(actions []int) (timestep.Batch, error) {
	n := len(s.envs)
	if len(actions) != n {
		return timestep.Batch{}, fmt.Errorf("step: want %d actions, have %d",
			n, len(actions))
	}

	b := timestep.Batch{
		Reward:     make([]float64, n),
		Terminated: make([]bool, n),
		Truncated:  make([]bool, n),
		Info:       make([]timestep.Info, n),
	}
	features := make([]timestep.Features, n)
	for i, e := range s.envs {
		step, err := e.Step(actions[i])
		if err != nil {
			return timestep.Batch{}, fmt.Errorf("step: environment %d: %w",
				i, err)
		}
		b.Reward[i] = step.Reward
		b.Terminated[i] = step.Terminated()
		b.Truncated[i] = step.Last() && step.Truncated
		b.Info[i] = step.Info
		features[i] = step.Observation

		if step.Last() {
			first, err := e.Reset()
			if err != nil {
				return timestep.Batch{}, fmt.Errorf("step: resetting "+
					"environment %d: %w", i, err)
			}
			features[i] = first.Observation
		}
	}

	obs, err := timestep.Stack(features)
	if err != nil {
		return timestep.Batch{}, fmt.Errorf("step: %w", err)
	}
	b.Observation = obs
	return b, nil
}

func sameSpecs(a, b []environment.Spec) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
