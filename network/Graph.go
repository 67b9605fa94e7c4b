package network

import (
	"fmt"
	"strconv"

	"github.com/samuelfneumann/mtppo/timestep"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Graph is a Gorgonia computational graph holding a copy of a set of
// learnable parameters. Any number of model steps and losses can be
// added to a Graph before it is run once with Run.
//
// Input nodes in a Gorgonia graph are identified by name, so every
// constant added through a Graph is given a unique name.
type Graph struct {
	g          *G.ExprGraph
	params     []*Param
	learnables G.Nodes
	nodes      map[*Param]*G.Node

	cost  *G.Node
	names int
}

// NewGraph returns a new Graph holding copies of params
func NewGraph(params ...*Param) *Graph {
	g := &Graph{
		g:          G.NewGraph(),
		params:     params,
		learnables: make(G.Nodes, len(params)),
		nodes:      make(map[*Param]*G.Node, len(params)),
	}
	for i, p := range params {
		g.learnables[i] = p.node(g.g)
		g.nodes[p] = g.learnables[i]
	}
	return g
}

// ExprGraph returns the underlying Gorgonia graph
func (g *Graph) ExprGraph() *G.ExprGraph {
	return g.g
}

// Learnables returns the nodes holding the parameters of the Graph, in
// the order the parameters were given to NewGraph
func (g *Graph) Learnables() G.Nodes {
	return g.learnables
}

// Param returns the node holding p. Param panics if p was not given to
// NewGraph.
func (g *Graph) Param(p *Param) *G.Node {
	n, ok := g.nodes[p]
	if !ok {
		panic(fmt.Sprintf("param: %v is not in the graph", p.Name()))
	}
	return n
}

func (g *Graph) name(prefix string) string {
	g.names++
	return prefix + "_" + strconv.Itoa(g.names)
}

// Matrix adds a constant matrix to the graph
func (g *Graph) Matrix(name string, m mat.Matrix) *G.Node {
	r, c := m.Dims()
	data := mat.DenseCopyOf(m).RawMatrix().Data
	return G.NewMatrix(g.g, tensor.Float64,
		G.WithShape(r, c),
		G.WithValue(tensor.New(tensor.WithShape(r, c),
			tensor.WithBacking(data))),
		G.WithName(g.name(name)),
	)
}

// Vector adds a constant vector to the graph
func (g *Graph) Vector(name string, v []float64) *G.Node {
	data := append([]float64(nil), v...)
	return G.NewVector(g.g, tensor.Float64,
		G.WithShape(len(data)),
		G.WithValue(tensor.New(tensor.WithShape(len(data)),
			tensor.WithBacking(data))),
		G.WithName(g.name(name)),
	)
}

// Scalar adds a constant scalar to the graph. Scalars with equal values
// share a node.
func (g *Graph) Scalar(v float64) *G.Node {
	return G.NewScalar(g.g, tensor.Float64,
		G.WithValue(v),
		G.WithName("scalar_"+strconv.FormatFloat(v, 'g', -1, 64)),
	)
}

// Observation adds each matrix of obs to the graph
func (g *Graph) Observation(obs timestep.Observation) map[string]*G.Node {
	nodes := make(map[string]*G.Node, len(obs))
	for key, m := range obs {
		nodes[key] = g.Matrix(key, m)
	}
	return nodes
}

// Hidden adds each layer of h to the graph
func (g *Graph) Hidden(h Hidden) []*G.Node {
	nodes := make([]*G.Node, len(h))
	for l, m := range h {
		nodes[l] = g.Matrix("hidden", m)
	}
	return nodes
}

// ResetWhere adds to the graph the hidden state whose rows selected by
// mask are replaced by the rows of init. If no row is selected, hidden
// is returned unchanged.
func (g *Graph) ResetWhere(hidden []*G.Node, mask []bool,
	init Hidden) ([]*G.Node, error) {
	resets := false
	for _, reset := range mask {
		resets = resets || reset
	}
	if !resets {
		return hidden, nil
	}
	if len(hidden) != len(init) {
		return nil, fmt.Errorf("resetWhere: hidden has %d layers but "+
			"initial hidden has %d", len(hidden), len(init))
	}

	out := make([]*G.Node, len(hidden))
	for l, h := range hidden {
		r, c := init[l].Dims()
		if r != len(mask) {
			return nil, fmt.Errorf("resetWhere: layer %d has %d rows but "+
				"mask has length %d", l, r, len(mask))
		}
		keep := mat.NewDense(r, c, nil)
		reset := mat.NewDense(r, c, nil)
		for i, m := range mask {
			if m {
				reset.SetRow(i, init[l].RawRowView(i))
				continue
			}
			for j := 0; j < c; j++ {
				keep.Set(i, j, 1)
			}
		}

		kept, err := G.HadamardProd(h, g.Matrix("keep", keep))
		if err != nil {
			return nil, fmt.Errorf("resetWhere: %w", err)
		}
		if out[l], err = G.Add(kept, g.Matrix("reset", reset)); err != nil {
			return nil, fmt.Errorf("resetWhere: %w", err)
		}
	}
	return out, nil
}

// Grad adds to the graph the gradient of cost with respect to every
// learnable. The gradient is computed by Run.
func (g *Graph) Grad(cost *G.Node) error {
	if _, err := G.Grad(cost, g.learnables...); err != nil {
		return fmt.Errorf("grad: %w", err)
	}
	g.cost = cost
	return nil
}

// Run computes the value of every node in the graph. If Grad was
// called, Run returns the gradient of the cost with respect to each
// learnable, otherwise it returns nil.
func (g *Graph) Run() (Gradients, error) {
	var opts []G.VMOpt
	if g.cost != nil {
		opts = append(opts, G.BindDualValues(g.learnables...))
	}
	vm := G.NewTapeMachine(g.g, opts...)
	defer vm.Close()

	if err := vm.RunAll(); err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	if g.cost == nil {
		return nil, nil
	}

	grads := make(Gradients, len(g.learnables))
	for i, n := range g.learnables {
		grad, err := n.Grad()
		if err != nil {
			return nil, fmt.Errorf("run: gradient of %v: %w",
				g.params[i].Name(), err)
		}
		grads[i] = Floats(grad)
	}
	return grads, nil
}

// Gradients holds one gradient for each parameter of a Graph
type Gradients [][]float64

// AccumulateTo adds scale times the gradients into the accumulated
// gradients of params, which must be in the order given to NewGraph
func (gr Gradients) AccumulateTo(params []*Param, scale float64) error {
	if len(params) != len(gr) {
		return fmt.Errorf("accumulateTo: have %d gradients for %d "+
			"parameters", len(gr), len(params))
	}
	for i, p := range params {
		acc := p.GradData()
		if len(acc) != len(gr[i]) {
			return fmt.Errorf("accumulateTo: gradient of %v has %d "+
				"elements, want %d", p.Name(), len(gr[i]), len(acc))
		}
		for j, v := range gr[i] {
			acc[j] += scale * v
		}
	}
	return nil
}

// Value returns the float64 data of a scalar Gorgonia value
func Value(v G.Value) float64 {
	switch d := v.Data().(type) {
	case float64:
		return d
	case []float64:
		return d[0]
	default:
		panic(fmt.Sprintf("value: unsupported data %T", d))
	}
}

// Floats returns a copy of the float64 data of a Gorgonia value
func Floats(v G.Value) []float64 {
	switch d := v.Data().(type) {
	case float64:
		return []float64{d}
	case []float64:
		return append([]float64(nil), d...)
	default:
		panic(fmt.Sprintf("floats: unsupported data %T", d))
	}
}

// Dense returns a copy of a matrix Gorgonia value
func Dense(v G.Value) *mat.Dense {
	s := v.Shape()
	return mat.NewDense(s[0], s[1], Floats(v))
}
