// Package network implements policy models. A model maps a batch of
// observations and a recurrent hidden state to action logits, state
// values, and the next hidden state.
package network

import (
	"fmt"

	"github.com/samuelfneumann/mtppo/timestep"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// Hidden is the recurrent state of a model, one matrix per recurrent
// layer. Each matrix has one row per environment.
type Hidden []*mat.Dense

// Clone returns a deep copy of the Hidden state
func (h Hidden) Clone() Hidden {
	out := make(Hidden, len(h))
	for i, m := range h {
		out[i] = mat.DenseCopyOf(m)
	}
	return out
}

// ResetWhere returns a copy of h where the rows selected by mask are
// replaced by the corresponding rows of init. Rows not selected are
// copied untouched.
func (h Hidden) ResetWhere(mask []bool, init Hidden) (Hidden, error) {
	if len(h) != len(init) {
		return nil, fmt.Errorf("resetWhere: hidden has %d layers but "+
			"initial hidden has %d", len(h), len(init))
	}

	out := h.Clone()
	for l, m := range out {
		r, c := m.Dims()
		ir, ic := init[l].Dims()
		if r != len(mask) || ir != r || ic != c {
			return nil, fmt.Errorf("resetWhere: layer %d shape (%d, %d) "+
				"incompatible with initial (%d, %d) and mask of length %d",
				l, r, c, ir, ic, len(mask))
		}
		for i, reset := range mask {
			if reset {
				m.SetRow(i, init[l].RawRowView(i))
			}
		}
	}
	return out, nil
}

// Rows returns a new Hidden state made of the given rows
func (h Hidden) Rows(rows []int) Hidden {
	out := make(Hidden, len(h))
	for l, m := range h {
		_, c := m.Dims()
		sub := mat.NewDense(len(rows), c, nil)
		for i, r := range rows {
			sub.SetRow(i, m.RawRowView(r))
		}
		out[l] = sub
	}
	return out
}

// Output is the output of a model on a batch of observations
type Output struct {
	Logits *mat.Dense // (batch, actions)
	Value  []float64  // (batch)
	Hidden Hidden
}

// Nodes are the outputs of one step of a model added to a computational
// graph
type Nodes struct {
	Logits *G.Node // (batch, actions)
	Value  *G.Node // (batch)
	Hidden []*G.Node
}

// Model is a policy model with a fixed call contract
type Model interface {
	// InitHidden returns the initial hidden state for batch
	// environments
	InitHidden(batch int) Hidden

	// Forward computes the outputs of the model. Forward does not
	// record anything needed for gradients.
	Forward(obs timestep.Observation, hidden Hidden) (Output, error)

	NumActions() int
}

// Trainable is a Model whose parameters can be learned
type Trainable interface {
	Model

	// Inputs returns the observation inputs the model reads
	Inputs() []Input

	// Fwd adds one step of the model to g. Steps may be chained by
	// passing the hidden nodes of one step to the next, in which case
	// gradients flow back through every chained step.
	Fwd(g *Graph, obs map[string]*G.Node, hidden []*G.Node) (Nodes, error)

	// Learnables returns the learnable parameters of the model
	Learnables() []*Param

	// ZeroGrad zeroes all accumulated gradients
	ZeroGrad()
}

// Attender is a model which exposes diagnostic attention weights over
// its inputs
type Attender interface {
	Attention() map[string]float64
}

// ValueGrads returns the learnables of t in the form required by
// Gorgonia solvers
func ValueGrads(t Trainable) []G.ValueGrad {
	params := t.Learnables()
	model := make([]G.ValueGrad, len(params))
	for i, p := range params {
		model[i] = p
	}
	return model
}

// zeroGrad zeroes the gradients of params
func zeroGrad(params []*Param) {
	for _, p := range params {
		p.ZeroGrad()
	}
}
