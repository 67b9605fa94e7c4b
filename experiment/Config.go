package experiment

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/mtppo/multitask"
	"github.com/samuelfneumann/mtppo/network"
	"github.com/samuelfneumann/mtppo/ppo"
)

// Config represents a configuration of a training experiment
type Config struct {
	RolloutLength int
	RewardScale   float64
	RewardClip    float64 // <= 0 if rewards are not clipped
	MaxGradNorm   float64 // <= 0 if gradients are not clipped

	// Model describes the model to train, including its weight
	// initializer. Its seed is overwritten by the experiment seed.
	Model network.Config

	PPO ppo.Config

	// Recurrent selects the recurrent PPO variant, which replays whole
	// trajectories. Otherwise steps are shuffled into minibatches.
	Recurrent bool

	WarmupSteps           int
	UpdateHiddenAfterGrad bool

	// ObsScale multiplies the named observation components, and
	// ObsIgnore removes the named components before the model sees them
	ObsScale  map[string]float64
	ObsIgnore []string

	MaxSteps      int // <= 0 for no per-run step budget
	MaxStepsTotal int // <= 0 for no total step budget

	// CheckpointInterval is the number of updates between checkpoints
	CheckpointInterval int

	Multitask MultitaskConfig

	Seed uint64
}

// MultitaskConfig configures how the losses of several tasks are
// weighted. With neither static nor dynamic weights, losses are averaged.
type MultitaskConfig struct {
	StaticWeight []float64

	Dynamic     bool
	Temperature float64
	RandomScore []float64
	MaxScore    []float64
}

// DefaultConfig returns the default training configuration
func DefaultConfig() Config {
	return Config{
		RolloutLength:      128,
		RewardScale:        1,
		RewardClip:         1,
		MaxGradNorm:        0.5,
		Model:              network.Config{Type: network.LinearTraceType, Decay: 0.9},
		PPO:                ppo.DefaultConfig(),
		Recurrent:          true,
		MaxSteps:           1000,
		MaxStepsTotal:      -1,
		CheckpointInterval: 1000,
		Multitask:          MultitaskConfig{Temperature: 10},
	}
}

// Validate returns an error if the Config is invalid for numTasks tasks
func (c Config) Validate(numTasks int) error {
	if c.RolloutLength <= 0 {
		return fmt.Errorf("validate: rollout length must be positive, "+
			"have %d", c.RolloutLength)
	}
	if c.WarmupSteps < 0 {
		return fmt.Errorf("validate: warmup steps must be non-negative, "+
			"have %d", c.WarmupSteps)
	}
	if math.IsNaN(c.RewardScale) || math.IsInf(c.RewardScale, 0) {
		return fmt.Errorf("validate: invalid reward scale %v", c.RewardScale)
	}
	if c.CheckpointInterval < 0 {
		return fmt.Errorf("validate: checkpoint interval must be "+
			"non-negative, have %d", c.CheckpointInterval)
	}
	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if err := c.PPO.Validate(c.Recurrent); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if _, err := c.Multitask.weighter(numTasks); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	return nil
}

// weighter returns the task Weighter described by the MultitaskConfig,
// or nil if losses are averaged
func (m MultitaskConfig) weighter(numTasks int) (multitask.Weighter, error) {
	if m.Dynamic && m.StaticWeight != nil {
		return nil, fmt.Errorf("weighter: static and dynamic weights " +
			"are mutually exclusive")
	}

	switch {
	case m.Dynamic:
		if len(m.MaxScore) != numTasks || len(m.RandomScore) != numTasks {
			return nil, fmt.Errorf("weighter: want %d maximum and random "+
				"scores, have %d and %d", numTasks, len(m.MaxScore),
				len(m.RandomScore))
		}
		return multitask.NewDynamic(m.MaxScore, m.RandomScore,
			m.Temperature)

	case m.StaticWeight != nil:
		if len(m.StaticWeight) != numTasks {
			return nil, fmt.Errorf("weighter: want %d static weights, "+
				"have %d", numTasks, len(m.StaticWeight))
		}
		return multitask.NewStatic(m.StaticWeight)
	}
	return nil, nil
}
