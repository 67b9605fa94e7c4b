package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Activation is an element-wise activation function added to a
// computational graph
type Activation struct {
	name string
	f    func(x *G.Node) (*G.Node, error)
}

// String implements the fmt.Stringer interface
func (a *Activation) String() string {
	return a.name
}

// Identity returns an identity *Activation
func Identity() *Activation {
	return &Activation{
		name: "identity",
		f: func(x *G.Node) (*G.Node, error) {
			return x, nil
		},
	}
}

// ReLU returns a ReLU *Activation
func ReLU() *Activation {
	return &Activation{name: "relu", f: G.Rectify}
}

// TanH returns a tanh *Activation
func TanH() *Activation {
	return &Activation{name: "tanh", f: G.Tanh}
}

// ActivationByName returns the named *Activation
func ActivationByName(name string) (*Activation, error) {
	switch name {
	case "", "tanh":
		return TanH(), nil
	case "relu":
		return ReLU(), nil
	case "identity":
		return Identity(), nil
	}
	return nil, fmt.Errorf("activationByName: unknown activation %q", name)
}

// fcLayer implements a fully connected layer. Weights have shape
// (in, out) and the bias has shape (1, out) so that it can be broadcast
// over the batch.
type fcLayer struct {
	weights *Param
	bias    *Param
	act     *Activation
}

// newFCLayer returns a new fully connected layer. If init is nil, the
// weights are initialized to zero. The bias is always initialized to
// zero.
func newFCLayer(name string, in, out int, init G.InitWFn,
	act *Activation) *fcLayer {
	return &fcLayer{
		weights: NewParam(name+"_weights", init, in, out),
		bias:    NewParam(name+"_bias", nil, 1, out),
		act:     act,
	}
}

// fwd adds the forward pass of the fcLayer on x to g
func (f *fcLayer) fwd(g *Graph, x *G.Node) (*G.Node, error) {
	out, err := G.Mul(x, g.Param(f.weights))
	if err != nil {
		return nil, fmt.Errorf("fwd: %v: %w", f.weights.Name(), err)
	}

	// Broadcast the bias to all samples along the batch dimension
	out, err = G.BroadcastAdd(out, g.Param(f.bias), nil, []byte{0})
	if err != nil {
		return nil, fmt.Errorf("fwd: %v: %w", f.bias.Name(), err)
	}

	if f.act == nil {
		return out, nil
	}
	return f.act.f(out)
}

// learnables returns the parameters of the layer
func (f *fcLayer) learnables() []*Param {
	return []*Param{f.weights, f.bias}
}

// column adds the forward pass of a layer with a single output to g and
// returns it as a vector with one element per sample
func (f *fcLayer) column(g *Graph, x *G.Node) (*G.Node, error) {
	out, err := f.fwd(g, x)
	if err != nil {
		return nil, err
	}
	return G.Reshape(out, tensor.Shape{x.Shape()[0]})
}

// concat concatenates the named inputs, in order, along the feature
// dimension
func concat(obs map[string]*G.Node, inputs []Input) (*G.Node, error) {
	nodes := make([]*G.Node, len(inputs))
	for i, in := range inputs {
		n, ok := obs[in.Name]
		if !ok {
			return nil, fmt.Errorf("concat: observation missing input %q",
				in.Name)
		}
		if s := n.Shape(); len(s) != 2 || s[1] != in.Size {
			return nil, fmt.Errorf("concat: input %q has shape %v, want "+
				"(batch, %d)", in.Name, s, in.Size)
		}
		nodes[i] = n
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return G.Concat(1, nodes...)
}
