package ppo

import (
	"fmt"

	"github.com/samuelfneumann/mtppo/buffer/history"
	"github.com/samuelfneumann/mtppo/network"
)

// NewRecurrent returns an Iterator over the PPO losses of the
// trajectory in h, for a model whose hidden state must be carried
// through the trajectory in order. Each Record covers one epoch over
// the whole trajectory, starting from the first recorded hidden state.
//
// Old log-probabilities, values, and advantages are computed once,
// before the first epoch. Since they are fixed, normalizing advantages
// once is the same as normalizing them on each epoch.
func NewRecurrent(h *history.Buffer, m network.Trainable,
	c Config) (*Iterator, error) {
	if err := c.Validate(true); err != nil {
		return nil, fmt.Errorf("newRecurrent: %w", err)
	}
	f, err := freeze(h, m, c, true)
	if err != nil {
		return nil, fmt.Errorf("newRecurrent: %w", err)
	}

	epoch := 0
	next := func() (*Record, error) {
		if epoch >= c.Epochs {
			return nil, nil
		}
		epoch++
		return recurrentEpoch(h, m, c, f)
	}
	return &Iterator{next: next, targetKL: c.TargetKL}, nil
}

// recurrentEpoch unrolls m over the whole trajectory in a single
// graph, so that gradients flow back through the hidden state across
// steps
func recurrentEpoch(h *history.Buffer, m network.Trainable, c Config,
	f *frozen) (*Record, error) {
	samples := float64((f.n - 1) * f.envs)
	init := m.InitHidden(f.envs)

	g := network.NewGraph(m.Learnables()...)
	hidden := g.Hidden(h.Hidden(0))
	var sums terms
	for t := 0; t < f.n-1; t++ {
		var err error
		if hidden, err = g.ResetWhere(hidden, h.Terminal(t), init); err != nil {
			return nil, fmt.Errorf("recurrentEpoch: step %d: %w", t, err)
		}
		out, err := m.Fwd(g, g.Observation(h.Obs(t)), hidden)
		if err != nil {
			return nil, fmt.Errorf("recurrentEpoch: step %d: %w", t, err)
		}

		tm, err := objective(g, out, f.step(t), c)
		if err != nil {
			return nil, fmt.Errorf("recurrentEpoch: step %d: %w", t, err)
		}
		if sums, err = sums.add(tm); err != nil {
			return nil, fmt.Errorf("recurrentEpoch: step %d: %w", t, err)
		}
		hidden = out.Hidden
	}

	r, err := evaluate(g, m, sums, hidden, c, samples)
	if err != nil {
		return nil, fmt.Errorf("recurrentEpoch: %w", err)
	}
	return r, nil
}
