// Package ppo implements the losses of Proximal Policy Optimization
// (https://arxiv.org/abs/1707.06347) computed over trajectories
// collected from a vector of environments by a recurrent policy.
package ppo

import "fmt"

// ClipRatio is the clipping radius ε of the probability ratio in the
// clipped surrogate objective
const ClipRatio = 0.1

// Config configures the PPO losses.
//
// Epochs is used by the recurrent variant, which replays the whole
// trajectory on each epoch. MinibatchSize and NumMinibatches are used by
// the flattened variant, which shuffles individual steps.
type Config struct {
	Discount      float64
	GAELambda     float64
	NormAdvantage bool

	ClipVFLoss   float64 // <= 0 if no value loss clipping
	EntropyCoeff float64
	ValueCoeff   float64
	TargetKL     float64 // <= 0 if no early stopping

	Epochs         int
	MinibatchSize  int
	NumMinibatches int
}

// DefaultConfig returns the default PPO configuration
func DefaultConfig() Config {
	return Config{
		Discount:       0.99,
		GAELambda:      0.95,
		NormAdvantage:  true,
		EntropyCoeff:   0.01,
		ValueCoeff:     0.5,
		Epochs:         4,
		MinibatchSize:  32,
		NumMinibatches: 4,
	}
}

// Validate returns an error if the Config is invalid. If recurrent is
// true, the Config is checked for use with the recurrent variant, and
// otherwise for the flattened variant.
func (c Config) Validate(recurrent bool) error {
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("validate: discount must be in [0, 1], have %v",
			c.Discount)
	}
	if c.GAELambda < 0 || c.GAELambda > 1 {
		return fmt.Errorf("validate: λ must be in [0, 1], have %v",
			c.GAELambda)
	}

	if recurrent {
		if c.Epochs <= 0 {
			return fmt.Errorf("validate: epochs must be positive, have %d",
				c.Epochs)
		}
		return nil
	}

	if c.MinibatchSize <= 0 || c.NumMinibatches <= 0 {
		return fmt.Errorf("validate: minibatch size and count must be "+
			"positive, have %d and %d", c.MinibatchSize, c.NumMinibatches)
	}
	return nil
}
