package ppo

import (
	"fmt"

	"github.com/samuelfneumann/mtppo/buffer/gae"
	"github.com/samuelfneumann/mtppo/buffer/history"
	"github.com/samuelfneumann/mtppo/network"
)

// frozen holds the outputs of a no-gradient pass over a trajectory.
// These are the fixed references the clipped objective compares
// against.
type frozen struct {
	n, envs int

	// hidden[t] is the hidden state used at step t, after resetting
	// the environments whose episodes ended on arriving at step t
	hidden []network.Hidden

	actions    [][]int
	values     [][]float64 // n steps
	logProbs   [][]float64 // n-1 steps
	entropy    [][]float64 // n-1 steps
	advantages [][]float64 // n-1 steps
	returns    [][]float64 // n-1 steps
}

// freeze runs the model over the trajectory in h and computes
// advantages and returns. If carry is true, the hidden state is carried
// forward from the first step of the trajectory. Otherwise, the hidden
// state recorded at each step is used.
func freeze(h *history.Buffer, m network.Model, c Config,
	carry bool) (*frozen, error) {
	n, envs := h.Len(), h.NumEnvs()
	if n < 2 {
		return nil, fmt.Errorf("freeze: need at least 2 steps, have %d", n)
	}
	if h.NumActions() < n-1 {
		return nil, fmt.Errorf("freeze: %d steps but only %d actions", n,
			h.NumActions())
	}

	f := &frozen{
		n:        n,
		envs:     envs,
		hidden:   make([]network.Hidden, n),
		actions:  make([][]int, n-1),
		values:   make([][]float64, n),
		logProbs: make([][]float64, n-1),
		entropy:  make([][]float64, n-1),
	}

	init := m.InitHidden(envs)
	hidden := h.Hidden(0)
	for t := 0; t < n; t++ {
		if !carry {
			hidden = h.Hidden(t)
		}

		var err error
		if hidden, err = hidden.ResetWhere(h.Terminal(t), init); err != nil {
			return nil, fmt.Errorf("freeze: step %d: %w", t, err)
		}
		out, err := m.Forward(h.Obs(t), hidden)
		if err != nil {
			return nil, fmt.Errorf("freeze: step %d: %w", t, err)
		}

		f.hidden[t] = hidden
		f.values[t] = out.Value
		if t < n-1 {
			f.actions[t] = h.Action(t)
			f.logProbs[t], f.entropy[t] = logProb(out.Logits, f.actions[t])
		}
		hidden = out.Hidden
	}

	adv, err := gae.Estimate(f.values, h.Rewards(), h.Terminals(),
		c.Discount, c.GAELambda)
	if err != nil {
		return nil, fmt.Errorf("freeze: %w", err)
	}
	f.returns = gae.Returns(adv, f.values[:n-1])
	if c.NormAdvantage {
		gae.Normalize(adv)
	}
	f.advantages = adv

	return f, nil
}

// step returns the frozen samples of step t
func (f *frozen) step(t int) samples {
	return samples{
		actions:    f.actions[t],
		oldLogProb: f.logProbs[t],
		oldValue:   f.values[t],
		advantage:  f.advantages[t],
		returns:    f.returns[t],
	}
}

// gather returns the frozen samples at the given flat indices, where
// index k refers to environment k % envs at step k / envs
func (f *frozen) gather(indices []int) samples {
	s := samples{
		actions:    make([]int, len(indices)),
		oldLogProb: make([]float64, len(indices)),
		oldValue:   make([]float64, len(indices)),
		advantage:  make([]float64, len(indices)),
		returns:    make([]float64, len(indices)),
	}
	for i, k := range indices {
		t, e := k/f.envs, k%f.envs
		s.actions[i] = f.actions[t][e]
		s.oldLogProb[i] = f.logProbs[t][e]
		s.oldValue[i] = f.values[t][e]
		s.advantage[i] = f.advantages[t][e]
		s.returns[i] = f.returns[t][e]
	}
	return s
}
