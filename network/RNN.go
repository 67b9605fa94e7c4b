package network

import (
	"fmt"

	"github.com/samuelfneumann/mtppo/initwfn"
	"github.com/samuelfneumann/mtppo/timestep"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// RNN is an Elman recurrent policy:
//
//	h' = act(x Wx + h Wh + b)
//
// Action logits and state values are linear functions of [x, h']. All
// weights are learned, and gradients flow back through the recurrence
// when steps are chained in one Graph.
type RNN struct {
	inputs   []Input
	features int
	hidden   int
	actions  int

	input     *fcLayer // (features, hidden)
	recurrent *Param   // (hidden, hidden)
	act       *Activation

	action *fcLayer // (features+hidden, actions)
	value  *fcLayer // (features+hidden, 1)

	inference forwarder
}

// NewRNN returns a new RNN with the given number of hidden units. All
// weights are initialized using init with different seeds, and all
// biases are initialized to zero.
func NewRNN(inputs []Input, hidden, actions int, act *Activation,
	init *initwfn.InitWFn, seed uint64) (*RNN, error) {
	if hidden <= 0 || actions <= 0 {
		return nil, fmt.Errorf("newRNN: hidden size and actions must be "+
			"positive, have %d and %d", hidden, actions)
	}
	if act == nil {
		return nil, fmt.Errorf("newRNN: nil activation")
	}
	sorted, features, err := sortInputs(inputs)
	if err != nil {
		return nil, fmt.Errorf("newRNN: %w", err)
	}

	initFn := func(offset uint64) G.InitWFn {
		if init == nil {
			return nil
		}
		return init.InitWFn(seed + offset)
	}
	return &RNN{
		inputs:    sorted,
		features:  features,
		hidden:    hidden,
		actions:   actions,
		input:     newFCLayer("input", features, hidden, initFn(0), nil),
		recurrent: NewParam("recurrent_weights", initFn(1), hidden, hidden),
		act:       act,
		action: newFCLayer("action", features+hidden, actions, initFn(2),
			nil),
		value: newFCLayer("value", features+hidden, 1, nil, nil),
	}, nil
}

// NumActions returns the number of actions
func (r *RNN) NumActions() int {
	return r.actions
}

// Inputs returns the inputs of the model, sorted by name
func (r *RNN) Inputs() []Input {
	return append([]Input(nil), r.inputs...)
}

// InitHidden returns a zero hidden state for batch environments
func (r *RNN) InitHidden(batch int) Hidden {
	return Hidden{mat.NewDense(batch, r.hidden, nil)}
}

// Learnables returns the parameters of the model
func (r *RNN) Learnables() []*Param {
	params := append(r.input.learnables(), r.recurrent)
	params = append(params, r.action.learnables()...)
	return append(params, r.value.learnables()...)
}

// ZeroGrad zeroes all accumulated gradients
func (r *RNN) ZeroGrad() {
	zeroGrad(r.Learnables())
}

// Forward computes action logits, state values, and the next hidden
// state
func (r *RNN) Forward(obs timestep.Observation,
	hidden Hidden) (Output, error) {
	return r.inference.forward(r, obs, hidden)
}

// Fwd adds one step of the model to g
func (r *RNN) Fwd(g *Graph, obs map[string]*G.Node,
	hidden []*G.Node) (Nodes, error) {
	if len(hidden) != 1 {
		return Nodes{}, fmt.Errorf("fwd: expected 1 hidden layer, have %d",
			len(hidden))
	}
	if s := hidden[0].Shape(); len(s) != 2 || s[1] != r.hidden {
		return Nodes{}, fmt.Errorf("fwd: hidden state has shape %v, want "+
			"(batch, %d)", s, r.hidden)
	}

	x, err := concat(obs, r.inputs)
	if err != nil {
		return Nodes{}, fmt.Errorf("fwd: %w", err)
	}

	// The input layer has no activation, it is applied after the
	// recurrent term is added
	pre, err := r.input.fwd(g, x)
	if err != nil {
		return Nodes{}, fmt.Errorf("fwd: %w", err)
	}
	rec, err := G.Mul(hidden[0], g.Param(r.recurrent))
	if err != nil {
		return Nodes{}, fmt.Errorf("fwd: %w", err)
	}
	if pre, err = G.Add(pre, rec); err != nil {
		return Nodes{}, fmt.Errorf("fwd: %w", err)
	}
	next, err := r.act.f(pre)
	if err != nil {
		return Nodes{}, fmt.Errorf("fwd: %w", err)
	}

	z, err := G.Concat(1, x, next)
	if err != nil {
		return Nodes{}, fmt.Errorf("fwd: %w", err)
	}
	logits, err := r.action.fwd(g, z)
	if err != nil {
		return Nodes{}, fmt.Errorf("fwd: %w", err)
	}
	value, err := r.value.column(g, z)
	if err != nil {
		return Nodes{}, fmt.Errorf("fwd: %w", err)
	}

	return Nodes{Logits: logits, Value: value, Hidden: []*G.Node{next}}, nil
}
