// Package noise implements RewardNoise, a stateful filter which
// transforms a raw scalar reward into a possibly zeroed, perturbed, or
// delayed reward. A RewardNoise is driven by the number of times it has
// been applied (steps), the number of trials which have finished, or
// random draws.
package noise

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidCycle is returned when a cycle has zero total length
var ErrInvalidCycle = errors.New("noise: cycle must have a positive length")

// Mode describes how a RewardNoise alters rewards
type Mode string

// Available modes
const (
	None        Mode = "none"
	Zero        Mode = "zero"
	Gaussian    Mode = "gaussian"
	Stop        Mode = "stop"
	DynamicZero Mode = "dynamic_zero"
)

// Trigger describes what drives a Mode
type Trigger string

// Available triggers
const (
	NoTrigger   Trigger = ""
	Probability Trigger = "probability"
	Steps       Trigger = "steps"
	Trials      Trigger = "trials"
	CycleSteps  Trigger = "cycle_steps"
	CycleTrials Trigger = "cycle_trials"
)

// validTriggers lists the triggers each mode may be combined with
var validTriggers = map[Mode][]Trigger{
	"":          {NoTrigger},
	None:        {NoTrigger},
	Zero:        {Probability, CycleSteps, CycleTrials},
	Gaussian:    {NoTrigger},
	Stop:        {Probability, Steps, Trials},
	DynamicZero: {NoTrigger},
}

// Cycle is an on/off cycle. Rewards pass through for On steps (or
// trials) and are zeroed for the following Off steps (or trials).
type Cycle struct {
	On  int
	Off int
}

// Dynamic configures the dynamic zero mode. An exponential moving
// average of trial scores is tracked with rate 1/Window. Rewards start
// active and are deactivated once the average reaches ActiveTarget. They
// are reactivated if the average falls to InactiveTarget. An
// InactiveTarget of -Inf means rewards never come back.
type Dynamic struct {
	Window         int
	ActiveTarget   float64
	InactiveTarget float64
}

// DelayType describes how a delay length is chosen
type DelayType string

// Available delay types
const (
	Fixed  DelayType = "fixed"
	Random DelayType = "random"
)

// Delay holds rewards back for some number of steps before they are
// surfaced. For Fixed delays, Steps is used. For Random delays, a delay
// in [Min, Max] is drawn for each non-zero reward. If Replace is set,
// a newly delayed reward replaces any reward still waiting.
type Delay struct {
	Type    DelayType
	Steps   int
	Min     int
	Max     int
	Replace bool
}

// Start zeroes all rewards until some number of trials have finished.
// For Fixed starts, Trials is used. For Random starts, the number of
// trials is drawn once from [Min, Max].
type Start struct {
	Type   DelayType
	Trials int
	Min    int
	Max    int
}

// Config describes a RewardNoise. Param is the probability for the
// probability trigger, the standard deviation for the gaussian mode, and
// the number of steps or trials for the stop mode.
type Config struct {
	Mode         Mode
	Trigger      Trigger
	Param        float64
	Cycle        Cycle
	Dynamic      Dynamic
	Delay        *Delay `json:",omitempty"`
	DelayedStart *Start `json:",omitempty"`
}

// Identity returns a Config which leaves rewards untouched
func Identity() Config {
	return Config{Mode: None}
}

// ZeroProbability returns a Config which zeroes each reward with
// probability p
func ZeroProbability(p float64) Config {
	return Config{Mode: Zero, Trigger: Probability, Param: p}
}

// ZeroCycleSteps returns a Config which passes rewards for on steps
// then zeroes them for off steps, repeatedly
func ZeroCycleSteps(on, off int) Config {
	return Config{Mode: Zero, Trigger: CycleSteps, Cycle: Cycle{on, off}}
}

// ZeroCycleTrials returns a Config which passes rewards for on trials
// then zeroes them for off trials, repeatedly
func ZeroCycleTrials(on, off int) Config {
	return Config{Mode: Zero, Trigger: CycleTrials, Cycle: Cycle{on, off}}
}

// GaussianNoise returns a Config which adds zero-mean Gaussian noise
// with standard deviation sigma to rewards
func GaussianNoise(sigma float64) Config {
	return Config{Mode: Gaussian, Param: sigma}
}

// StopProbability returns a Config which, with probability p, zeroes
// all rewards forever
func StopProbability(p float64) Config {
	return Config{Mode: Stop, Trigger: Probability, Param: p}
}

// StopSteps returns a Config which zeroes all rewards after n steps
func StopSteps(n int) Config {
	return Config{Mode: Stop, Trigger: Steps, Param: float64(n)}
}

// StopTrials returns a Config which zeroes all rewards after n trials
func StopTrials(n int) Config {
	return Config{Mode: Stop, Trigger: Trials, Param: float64(n)}
}

// DynamicZeroing returns a Config for the dynamic zero mode
func DynamicZeroing(window int, active, inactive float64) Config {
	return Config{
		Mode:    DynamicZero,
		Dynamic: Dynamic{window, active, inactive},
	}
}

// WithDelay returns a copy of c which delays rewards
func (c Config) WithDelay(d Delay) Config {
	c.Delay = &d
	return c
}

// WithDelayedStart returns a copy of c which zeroes rewards until some
// number of trials have finished
func (c Config) WithDelayedStart(s Start) Config {
	c.DelayedStart = &s
	return c
}

// String implements the fmt.Stringer interface
func (c Config) String() string {
	str := fmt.Sprintf("%v", c.Mode)
	switch c.Trigger {
	case CycleSteps, CycleTrials:
		str += fmt.Sprintf("(%d,%d) %v", c.Cycle.On, c.Cycle.Off, c.Trigger)
	case NoTrigger:
		if c.Mode == Gaussian {
			str += fmt.Sprintf("(%v)", c.Param)
		}
	default:
		str += fmt.Sprintf("(%v) %v", c.Param, c.Trigger)
	}
	if c.Delay != nil {
		str += fmt.Sprintf(" delay=%v", *c.Delay)
	}
	return str
}

// Validate returns an error if the Config cannot be used to construct
// a RewardNoise, or if it would fail on first use
func (c Config) Validate() error {
	if err := c.validateStructure(); err != nil {
		return err
	}
	if c.Trigger == CycleSteps || c.Trigger == CycleTrials {
		return c.Cycle.validate()
	}
	return nil
}

// validateStructure checks everything except the cycle length, which
// is checked on first use
func (c Config) validateStructure() error {
	triggers, ok := validTriggers[c.Mode]
	if !ok {
		return fmt.Errorf("validate: unknown mode %q", c.Mode)
	}
	found := false
	for _, t := range triggers {
		if t == c.Trigger {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("validate: trigger %q cannot be used with mode %q",
			c.Trigger, c.Mode)
	}

	switch c.Trigger {
	case Probability:
		if c.Param < 0 || c.Param > 1 {
			return fmt.Errorf("validate: probability must be in [0, 1], "+
				"have %v", c.Param)
		}
	case Steps, Trials:
		if c.Param < 0 || c.Param != math.Trunc(c.Param) {
			return fmt.Errorf("validate: %v must be a non-negative integer, "+
				"have %v", c.Trigger, c.Param)
		}
	case CycleSteps, CycleTrials:
		if c.Cycle.On < 0 || c.Cycle.Off < 0 {
			return fmt.Errorf("validate: cycle lengths must be "+
				"non-negative, have %v", c.Cycle)
		}
	}

	switch c.Mode {
	case Gaussian:
		if c.Param < 0 {
			return fmt.Errorf("validate: standard deviation must be "+
				"non-negative, have %v", c.Param)
		}
	case DynamicZero:
		if c.Dynamic.Window <= 0 {
			return fmt.Errorf("validate: dynamic window must be positive, "+
				"have %v", c.Dynamic.Window)
		}
		if c.Dynamic.InactiveTarget > c.Dynamic.ActiveTarget {
			return fmt.Errorf("validate: inactive target %v exceeds active "+
				"target %v", c.Dynamic.InactiveTarget, c.Dynamic.ActiveTarget)
		}
	}

	if d := c.Delay; d != nil {
		switch d.Type {
		case Fixed:
			if d.Steps < 0 {
				return fmt.Errorf("validate: negative delay %v", d.Steps)
			}
		case Random:
			if d.Min < 0 || d.Max < d.Min {
				return fmt.Errorf("validate: illegal delay range [%v, %v]",
					d.Min, d.Max)
			}
		default:
			return fmt.Errorf("validate: unknown delay type %q", d.Type)
		}
	}

	if s := c.DelayedStart; s != nil {
		switch s.Type {
		case Fixed:
			if s.Trials < 0 {
				return fmt.Errorf("validate: negative delayed start %v",
					s.Trials)
			}
		case Random:
			if s.Min < 0 || s.Max < s.Min {
				return fmt.Errorf("validate: illegal delayed start range "+
					"[%v, %v]", s.Min, s.Max)
			}
		default:
			return fmt.Errorf("validate: unknown delayed start type %q",
				s.Type)
		}
	}
	return nil
}

func (c Cycle) validate() error {
	if c.On+c.Off <= 0 {
		return ErrInvalidCycle
	}
	return nil
}

// pass returns whether index i falls in the on part of the cycle
func (c Cycle) pass(i int) (bool, error) {
	if err := c.validate(); err != nil {
		return false, err
	}
	return i%(c.On+c.Off) < c.On, nil
}
