// Package wrappers implements wrappers which alter the rewards and
// observations of environments
package wrappers

import (
	"fmt"

	"github.com/samuelfneumann/mtppo/environment"
	"github.com/samuelfneumann/mtppo/noise"
	"github.com/samuelfneumann/mtppo/timestep"
)

// ShapeType describes how a shaped reward is computed
type ShapeType string

// Available shaped rewards
const (
	// InverseDistance is 1 / (1 + d) for the distance d to the goal
	InverseDistance ShapeType = "inverse_distance"

	// Progress is the decrease in distance to the goal on each step
	Progress ShapeType = "progress"

	// Subtask is 1 when a trial is completed successfully
	Subtask ShapeType = "subtask"
)

// ShapedKey is the observation key of the shaped reward
const ShapedKey = "shaped_reward"

// ShapedConfig configures a ShapedReward wrapper
type ShapedConfig struct {
	Type  ShapeType
	Noise noise.Config

	// AddToReward adds the shaped reward to the environment reward
	AddToReward bool
}

// Validate returns an error if the ShapedConfig is invalid
func (c ShapedConfig) Validate() error {
	switch c.Type {
	case InverseDistance, Progress, Subtask:
	default:
		return fmt.Errorf("validate: unknown shaped reward type %q", c.Type)
	}
	if err := c.Noise.Validate(); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	return nil
}

// ShapedReward wraps a multi-trial environment and adds a shaped reward
// to its observations. The shaped reward is passed through a
// noise.RewardNoise, which is notified of each finished trial and of
// its score.
//
// Trials are supervised if the shaped reward passed through the noise
// filter on the step which finished them. At the end of each episode,
// the number of supervised and unsupervised trials and the sum of the
// raw rewards in each are reported in the final info.
type ShapedReward struct {
	environment.Trialer
	config ShapedConfig
	noise  *noise.RewardNoise

	supervisedTrials   int
	unsupervisedTrials int
	supervisedReward   float64
	unsupervisedReward float64
	trialReward        float64
}

// NewShapedReward returns a new ShapedReward wrapping env. The noise
// is seeded with seed.
func NewShapedReward(env environment.Trialer, c ShapedConfig,
	seed uint64) (*ShapedReward, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newShapedReward: %w", err)
	}
	n, err := noise.New(c.Noise, seed)
	if err != nil {
		return nil, fmt.Errorf("newShapedReward: %w", err)
	}
	return &ShapedReward{Trialer: env, config: c, noise: n}, nil
}

// Noise returns the RewardNoise applied to the shaped reward
func (s *ShapedReward) Noise() *noise.RewardNoise {
	return s.noise
}

// ObservationSpec returns the observation specification
func (s *ShapedReward) ObservationSpec() []environment.Spec {
	return append(s.Trialer.ObservationSpec(),
		environment.NewSpec(ShapedKey, 1, -1, 1))
}

// Reset resets the wrapped environment and the per-episode statistics.
// The RewardNoise keeps its state across episodes.
func (s *ShapedReward) Reset() (timestep.TimeStep, error) {
	step, err := s.Trialer.Reset()
	if err != nil {
		return step, fmt.Errorf("reset: %w", err)
	}
	s.supervisedTrials, s.unsupervisedTrials = 0, 0
	s.supervisedReward, s.unsupervisedReward = 0, 0
	s.trialReward = 0

	step.Observation[ShapedKey] = []float64{0}
	return step, nil
}

// Step takes one step in the wrapped environment
func (s *ShapedReward) Step(action int) (timestep.TimeStep, error) {
	before := s.Distance()
	step, err := s.Trialer.Step(action)
	if err != nil {
		return step, fmt.Errorf("step: %w", err)
	}
	result, ended := s.TrialEnded()

	shaped, err := s.noise.Apply(s.shape(before, result, ended))
	if err != nil {
		return step, fmt.Errorf("step: %w", err)
	}

	s.trialReward += step.Info.Reward
	if ended {
		if s.noise.Active() {
			s.supervisedTrials++
			s.supervisedReward += s.trialReward
		} else {
			s.unsupervisedTrials++
			s.unsupervisedReward += s.trialReward
		}
		s.trialReward = 0
		s.noise.TrialFinished()
		s.noise.Feedback(result.Score())
	}

	step.Observation[ShapedKey] = []float64{shaped}
	if s.config.AddToReward {
		step.Reward += shaped
	}

	if step.Last() {
		if step.Info.Final == nil {
			step.Info.Final = make(map[string]float64)
		}
		step.Info.Final["supervised_trials"] = float64(s.supervisedTrials)
		step.Info.Final["unsupervised_trials"] = float64(s.unsupervisedTrials)
		step.Info.Final["supervised_reward"] = s.supervisedReward
		step.Info.Final["unsupervised_reward"] = s.unsupervisedReward
	}
	return step, nil
}

// shape computes the shaped reward before noise is applied
func (s *ShapedReward) shape(before int, result environment.TrialResult,
	ended bool) float64 {
	switch s.config.Type {
	case InverseDistance:
		if ended {
			if result.Success {
				return 1
			}
			return 0
		}
		return 1 / (1 + float64(s.Distance()))

	case Progress:
		if ended {
			if result.Success {
				return 1
			}
			return 0
		}
		return float64(before - s.Distance())

	case Subtask:
		if ended && result.Success {
			return 1
		}
	}
	return 0
}
