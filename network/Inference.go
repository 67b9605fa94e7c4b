package network

import (
	"fmt"

	"github.com/samuelfneumann/mtppo/timestep"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// inference runs a Trainable forward on batches of a fixed size. The
// graph is built once, and inputs and parameters are set with G.Let
// before each run.
type inference struct {
	graph  *Graph
	vm     G.VM
	obs    map[string]*G.Node
	hidden []*G.Node

	logitsVal G.Value
	valueVal  G.Value
	hiddenVal []G.Value
}

func newInference(m Trainable, batch int) (*inference, error) {
	graph := NewGraph(m.Learnables()...)
	g := graph.ExprGraph()

	obs := make(map[string]*G.Node)
	for _, in := range m.Inputs() {
		obs[in.Name] = G.NewMatrix(g, tensor.Float64,
			G.WithShape(batch, in.Size),
			G.WithName("input_"+in.Name),
			G.WithInit(G.Zeroes()),
		)
	}

	init := m.InitHidden(batch)
	hidden := make([]*G.Node, len(init))
	for l, h := range init {
		r, c := h.Dims()
		hidden[l] = G.NewMatrix(g, tensor.Float64,
			G.WithShape(r, c),
			G.WithName(fmt.Sprintf("input_hidden_%d", l)),
			G.WithInit(G.Zeroes()),
		)
	}

	out, err := m.Fwd(graph, obs, hidden)
	if err != nil {
		return nil, fmt.Errorf("newInference: %w", err)
	}

	inf := &inference{
		graph:     graph,
		obs:       obs,
		hidden:    hidden,
		hiddenVal: make([]G.Value, len(out.Hidden)),
	}
	G.Read(out.Logits, &inf.logitsVal)
	G.Read(out.Value, &inf.valueVal)
	for l, h := range out.Hidden {
		G.Read(h, &inf.hiddenVal[l])
	}
	inf.vm = G.NewTapeMachine(g)
	return inf, nil
}

// forward runs the graph on obs and hidden using the current values of
// the parameters of m
func (inf *inference) forward(m Trainable, obs timestep.Observation,
	hidden Hidden) (Output, error) {
	if len(hidden) != len(inf.hidden) {
		return Output{}, fmt.Errorf("forward: expected %d hidden layers, "+
			"have %d", len(inf.hidden), len(hidden))
	}
	for name, n := range inf.obs {
		o, ok := obs[name]
		if !ok {
			return Output{}, fmt.Errorf("forward: observation missing "+
				"input %q", name)
		}
		if err := let(n, o); err != nil {
			return Output{}, fmt.Errorf("forward: input %q: %w", name, err)
		}
	}
	for l, n := range inf.hidden {
		if err := let(n, hidden[l]); err != nil {
			return Output{}, fmt.Errorf("forward: hidden layer %d: %w", l,
				err)
		}
	}
	for _, p := range m.Learnables() {
		if err := G.Let(inf.graph.Param(p), p.value); err != nil {
			return Output{}, fmt.Errorf("forward: %w", err)
		}
	}

	defer inf.vm.Reset()
	if err := inf.vm.RunAll(); err != nil {
		return Output{}, fmt.Errorf("forward: %w", err)
	}

	out := Output{
		Logits: Dense(inf.logitsVal),
		Value:  Floats(inf.valueVal),
		Hidden: make(Hidden, len(inf.hiddenVal)),
	}
	for l, v := range inf.hiddenVal {
		out.Hidden[l] = Dense(v)
	}
	return out, nil
}

// let sets the value of the input node n to a copy of m
func let(n *G.Node, m *mat.Dense) error {
	r, c := m.Dims()
	if s := n.Shape(); s[0] != r || s[1] != c {
		return fmt.Errorf("have shape (%d, %d), want %v", r, c, s)
	}
	data := mat.DenseCopyOf(m).RawMatrix().Data
	return G.Let(n, tensor.New(tensor.WithShape(r, c),
		tensor.WithBacking(data)))
}

// forwarder implements Model.Forward for a Trainable, caching one
// inference graph per batch size
type forwarder struct {
	cache map[int]*inference
}

func (f *forwarder) forward(m Trainable, obs timestep.Observation,
	hidden Hidden) (Output, error) {
	if len(hidden) == 0 {
		return Output{}, fmt.Errorf("forward: no hidden state")
	}
	batch, _ := hidden[0].Dims()

	inf, ok := f.cache[batch]
	if !ok {
		var err error
		if inf, err = newInference(m, batch); err != nil {
			return Output{}, err
		}
		if f.cache == nil {
			f.cache = make(map[int]*inference)
		}
		f.cache[batch] = inf
	}
	return inf.forward(m, obs, hidden)
}
