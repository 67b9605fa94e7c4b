package ppo

import (
	"fmt"

	"github.com/samuelfneumann/mtppo/buffer/history"
	"github.com/samuelfneumann/mtppo/network"
	"github.com/samuelfneumann/mtppo/timestep"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// NewFlat returns an Iterator over the PPO losses of the trajectory in
// h, treating each step of each environment as an independent sample.
// The hidden state recorded at each step is used as the model input
// for that step. Each Record covers one minibatch, drawn without
// replacement using a source seeded with seed.
//
// Advantages are normalized over the whole trajectory before it is
// split into minibatches.
func NewFlat(h *history.Buffer, m network.Trainable, c Config,
	seed uint64) (*Iterator, error) {
	if err := c.Validate(false); err != nil {
		return nil, fmt.Errorf("newFlat: %w", err)
	}
	f, err := freeze(h, m, c, false)
	if err != nil {
		return nil, fmt.Errorf("newFlat: %w", err)
	}

	batch := (f.n - 1) * f.envs
	mb, err := NewMinibatches(batch, c.MinibatchSize, c.NumMinibatches,
		rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, fmt.Errorf("newFlat: %w", err)
	}

	next := func() (*Record, error) {
		indices, ok := mb.Next()
		if !ok {
			return nil, nil
		}
		return minibatch(h, m, c, f, indices)
	}
	return &Iterator{next: next, targetKL: c.TargetKL}, nil
}

func minibatch(h *history.Buffer, m network.Trainable, c Config,
	f *frozen, indices []int) (*Record, error) {
	obs, hidden := f.inputs(h, indices)

	g := network.NewGraph(m.Learnables()...)
	out, err := m.Fwd(g, g.Observation(obs), g.Hidden(hidden))
	if err != nil {
		return nil, fmt.Errorf("minibatch: %w", err)
	}
	tm, err := objective(g, out, f.gather(indices), c)
	if err != nil {
		return nil, fmt.Errorf("minibatch: %w", err)
	}

	r, err := evaluate(g, m, tm, nil, c, float64(len(indices)))
	if err != nil {
		return nil, fmt.Errorf("minibatch: %w", err)
	}
	return r, nil
}

// inputs gathers the observations and hidden states at the given flat
// indices into a single batch
func (f *frozen) inputs(h *history.Buffer,
	indices []int) (timestep.Observation, network.Hidden) {
	obs := make(timestep.Observation)
	for key, m := range h.Obs(0) {
		_, c := m.Dims()
		gathered := mat.NewDense(len(indices), c, nil)
		for i, k := range indices {
			t, e := k/f.envs, k%f.envs
			gathered.SetRow(i, h.Obs(t)[key].RawRowView(e))
		}
		obs[key] = gathered
	}

	hidden := make(network.Hidden, len(f.hidden[0]))
	for l, m := range f.hidden[0] {
		_, c := m.Dims()
		gathered := mat.NewDense(len(indices), c, nil)
		for i, k := range indices {
			t, e := k/f.envs, k%f.envs
			gathered.SetRow(i, f.hidden[t][l].RawRowView(e))
		}
		hidden[l] = gathered
	}
	return obs, hidden
}
