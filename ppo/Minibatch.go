package ppo

import (
	"fmt"

	"golang.org/x/exp/rand"
)

// Minibatches enumerates minibatches of indices into a batch without
// replacement. Indices are drawn from a shuffled permutation of the
// batch, and the batch is reshuffled each time every full minibatch of
// the permutation has been used. Within one pass over the permutation,
// no index is repeated. If the minibatch size does not divide the batch
// size, the indices left over at the end of each permutation are unused
// for that pass.
type Minibatches struct {
	batch, size, count int
	rng                *rand.Rand

	perm []int
	i    int
}

// NewMinibatches returns a new enumerator of count minibatches of the
// given size over a batch of the given size
func NewMinibatches(batch, size, count int, rng *rand.Rand) (*Minibatches,
	error) {
	if size <= 0 || count < 0 {
		return nil, fmt.Errorf("newMinibatches: illegal minibatch size %d "+
			"or count %d", size, count)
	}
	if size > batch {
		return nil, fmt.Errorf("newMinibatches: minibatch size %d exceeds "+
			"batch size %d", size, batch)
	}
	return &Minibatches{batch: batch, size: size, count: count, rng: rng}, nil
}

// Next returns the next minibatch. If all minibatches have been
// returned, Next returns false.
func (m *Minibatches) Next() ([]int, bool) {
	if m.i >= m.count {
		return nil, false
	}

	perPass := m.batch / m.size
	j := m.i % perPass
	if j == 0 {
		m.perm = m.rng.Perm(m.batch)
	}
	m.i++

	return append([]int(nil), m.perm[j*m.size:(j+1)*m.size]...), true
}
