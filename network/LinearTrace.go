package network

import (
	"fmt"
	"math"
	"sort"

	"github.com/samuelfneumann/mtppo/initwfn"
	"github.com/samuelfneumann/mtppo/timestep"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// Input describes a single named input of a model
type Input struct {
	Name string
	Size int
}

// LinearTrace is a recurrent linear policy. Its hidden state is an
// exponential trace of past observations:
//
//	h' = decay * h + (1 - decay) * x
//
// Action logits and state values are linear functions of the
// concatenation [x, h] of the current observation and the trace of
// observations before it. The trace itself has no learnable
// parameters.
type LinearTrace struct {
	inputs   []Input
	features int
	actions  int
	decay    float64

	action *fcLayer // (2*features, actions)
	value  *fcLayer // (2*features, 1)

	inference forwarder
}

// NewLinearTrace returns a new LinearTrace model. Action weights are
// initialized using init, all other parameters are initialized to zero.
func NewLinearTrace(inputs []Input, actions int, decay float64,
	init *initwfn.InitWFn, seed uint64) (*LinearTrace, error) {
	if actions <= 0 {
		return nil, fmt.Errorf("newLinearTrace: actions must be positive, "+
			"have %d", actions)
	}
	if decay < 0 || decay >= 1 {
		return nil, fmt.Errorf("newLinearTrace: decay must be in [0, 1), "+
			"have %v", decay)
	}
	sorted, features, err := sortInputs(inputs)
	if err != nil {
		return nil, fmt.Errorf("newLinearTrace: %w", err)
	}

	var actionInit G.InitWFn
	if init != nil {
		actionInit = init.InitWFn(seed)
	}
	return &LinearTrace{
		inputs:   sorted,
		features: features,
		actions:  actions,
		decay:    decay,
		action:   newFCLayer("action", 2*features, actions, actionInit, nil),
		value:    newFCLayer("value", 2*features, 1, nil, nil),
	}, nil
}

// NumActions returns the number of actions
func (l *LinearTrace) NumActions() int {
	return l.actions
}

// Inputs returns the inputs of the model, sorted by name
func (l *LinearTrace) Inputs() []Input {
	return append([]Input(nil), l.inputs...)
}

// InitHidden returns a zero trace for batch environments
func (l *LinearTrace) InitHidden(batch int) Hidden {
	return Hidden{mat.NewDense(batch, l.features, nil)}
}

// Learnables returns the parameters of the model
func (l *LinearTrace) Learnables() []*Param {
	return append(l.action.learnables(), l.value.learnables()...)
}

// ZeroGrad zeroes all accumulated gradients
func (l *LinearTrace) ZeroGrad() {
	zeroGrad(l.Learnables())
}

// Forward computes action logits, state values, and the next trace
func (l *LinearTrace) Forward(obs timestep.Observation,
	hidden Hidden) (Output, error) {
	return l.inference.forward(l, obs, hidden)
}

// Fwd adds one step of the model to g
func (l *LinearTrace) Fwd(g *Graph, obs map[string]*G.Node,
	hidden []*G.Node) (Nodes, error) {
	if len(hidden) != 1 {
		return Nodes{}, fmt.Errorf("fwd: expected 1 hidden layer, have %d",
			len(hidden))
	}
	if s := hidden[0].Shape(); len(s) != 2 || s[1] != l.features {
		return Nodes{}, fmt.Errorf("fwd: hidden state has shape %v, want "+
			"(batch, %d)", s, l.features)
	}

	x, err := concat(obs, l.inputs)
	if err != nil {
		return Nodes{}, fmt.Errorf("fwd: %w", err)
	}
	z, err := G.Concat(1, x, hidden[0])
	if err != nil {
		return Nodes{}, fmt.Errorf("fwd: %w", err)
	}

	logits, err := l.action.fwd(g, z)
	if err != nil {
		return Nodes{}, fmt.Errorf("fwd: %w", err)
	}
	value, err := l.value.column(g, z)
	if err != nil {
		return Nodes{}, fmt.Errorf("fwd: %w", err)
	}

	decayed := G.Must(G.Mul(hidden[0], g.Scalar(l.decay)))
	fresh := G.Must(G.Mul(x, g.Scalar(1-l.decay)))
	next, err := G.Add(decayed, fresh)
	if err != nil {
		return Nodes{}, fmt.Errorf("fwd: %w", err)
	}

	return Nodes{Logits: logits, Value: value, Hidden: []*G.Node{next}}, nil
}

// Attention returns the mean absolute action weight over each input,
// for the current observation and for its trace
func (l *LinearTrace) Attention() map[string]float64 {
	weights := mat.NewDense(2*l.features, l.actions, l.action.weights.Data())
	att := make(map[string]float64, 2*len(l.inputs))

	row := 0
	for _, in := range l.inputs {
		var obs, trace float64
		for j := row; j < row+in.Size; j++ {
			for a := 0; a < l.actions; a++ {
				obs += math.Abs(weights.At(j, a))
				trace += math.Abs(weights.At(j+l.features, a))
			}
		}
		n := float64(in.Size * l.actions)
		att[in.Name] = obs / n
		att[in.Name+"_trace"] = trace / n
		row += in.Size
	}
	return att
}

// sortInputs returns the inputs sorted by name and their total size
func sortInputs(inputs []Input) ([]Input, int, error) {
	if len(inputs) == 0 {
		return nil, 0, fmt.Errorf("no inputs")
	}
	sorted := append([]Input(nil), inputs...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})
	features := 0
	for i, in := range sorted {
		if in.Size <= 0 {
			return nil, 0, fmt.Errorf("input %q has size %d", in.Name,
				in.Size)
		}
		if i > 0 && sorted[i-1].Name == in.Name {
			return nil, 0, fmt.Errorf("duplicate input %q", in.Name)
		}
		features += in.Size
	}
	return sorted, features, nil
}
