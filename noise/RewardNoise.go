package noise

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// pending is a delayed reward waiting to be surfaced
type pending struct {
	due   int
	value float64
}

// RewardNoise filters the rewards of a single environment. Apply should
// be called exactly once per environment step, and TrialFinished
// exactly once per finished trial. The step and trial counters only
// ever move forward.
type RewardNoise struct {
	config Config
	rng    *rand.Rand

	bernoulli distuv.Bernoulli
	normal    distuv.Normal

	stepCount  int
	trialCount int
	startAfter int

	// stop by probability
	drawn   bool
	stopped bool

	// dynamic zero
	ema    float64
	active bool

	queue  []pending
	passed bool
}

// New returns a new RewardNoise. Mode and trigger combinations are
// checked here, while cycle lengths are checked when the RewardNoise
// is first applied.
func New(c Config, seed uint64) (*RewardNoise, error) {
	if err := c.validateStructure(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed))
	n := &RewardNoise{
		config:    c,
		rng:       rng,
		bernoulli: distuv.Bernoulli{P: c.Param, Src: rng},
		normal:    distuv.Normal{Mu: 0, Sigma: c.Param, Src: rng},
		active:    true,
	}

	if s := c.DelayedStart; s != nil {
		switch s.Type {
		case Fixed:
			n.startAfter = s.Trials
		case Random:
			n.startAfter = s.Min + rng.Intn(s.Max-s.Min+1)
		}
	}
	return n, nil
}

// Config returns the configuration of the RewardNoise
func (n *RewardNoise) Config() Config {
	return n.config
}

// StepCount returns the number of times Apply has been called
func (n *RewardNoise) StepCount() int {
	return n.stepCount
}

// TrialCount returns the number of finished trials
func (n *RewardNoise) TrialCount() int {
	return n.trialCount
}

// Active returns whether the last call to Apply let the reward through
// the filter, before any delay was applied
func (n *RewardNoise) Active() bool {
	return n.passed
}

// TrialFinished notifies the RewardNoise that a trial has ended
func (n *RewardNoise) TrialFinished() {
	n.trialCount++
}

// Feedback reports the score of a finished trial, in [0, 1]. Only the
// dynamic zero mode uses the score.
func (n *RewardNoise) Feedback(score float64) {
	if n.config.Mode != DynamicZero {
		return
	}
	d := n.config.Dynamic
	n.ema += (score - n.ema) / float64(d.Window)

	if n.active && n.ema >= d.ActiveTarget {
		n.active = false
	} else if !n.active && n.ema <= d.InactiveTarget {
		n.active = true
	}
}

// Apply returns the transformed reward and advances the step counter
func (n *RewardNoise) Apply(reward float64) (float64, error) {
	n.stepCount++

	out, err := n.filter(reward)
	if err != nil {
		return 0, err
	}

	if n.config.Delay != nil {
		out = n.delay(out)
	}
	return out, nil
}

func (n *RewardNoise) filter(reward float64) (float64, error) {
	n.passed = false
	if n.trialCount < n.startAfter {
		return 0, nil
	}

	pass := true
	switch n.config.Mode {
	case Zero:
		switch n.config.Trigger {
		case Probability:
			pass = n.bernoulli.Rand() == 0

		case CycleSteps:
			var err error
			if pass, err = n.config.Cycle.pass(n.stepCount - 1); err != nil {
				return 0, err
			}

		case CycleTrials:
			var err error
			if pass, err = n.config.Cycle.pass(n.trialCount); err != nil {
				return 0, err
			}
		}

	case DynamicZero:
		pass = n.active

	case Gaussian:
		reward += n.normal.Rand()

	case Stop:
		switch n.config.Trigger {
		case Probability:
			if !n.drawn {
				n.stopped = n.bernoulli.Rand() == 1
				n.drawn = true
			}
			pass = !n.stopped

		case Steps:
			pass = float64(n.stepCount) <= n.config.Param

		case Trials:
			pass = float64(n.trialCount) < n.config.Param
		}
	}

	if !pass {
		return 0, nil
	}
	n.passed = true
	return reward, nil
}

// delay queues a reward and returns the sum of all queued rewards
// which are due on the current step
func (n *RewardNoise) delay(reward float64) float64 {
	d := n.config.Delay
	if reward != 0 {
		steps := d.Steps
		if d.Type == Random {
			steps = d.Min + n.rng.Intn(d.Max-d.Min+1)
		}
		if d.Replace {
			n.queue = n.queue[:0]
		}
		n.queue = append(n.queue, pending{n.stepCount + steps, reward})
	}

	var out float64
	waiting := n.queue[:0]
	for _, p := range n.queue {
		if p.due <= n.stepCount {
			out += p.value
		} else {
			waiting = append(waiting, p)
		}
	}
	n.queue = waiting
	return out
}
